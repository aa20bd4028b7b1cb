package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	apperrors "github.com/promptparty/server-go/internal/errors"
	"github.com/promptparty/server-go/internal/game"
	"github.com/promptparty/server-go/internal/model"
	"github.com/promptparty/server-go/internal/util"
)

type Command struct {
	Type string // NEW, JOIN, PROMPT, ANSWER, STARTVOTE, VOTE, RESULTS, STATUS, LEAVE, HELP
	Arg  string
}

func parseCommand(text string) *Command {
	trimmed := strings.TrimSpace(text)

	if arg, ok := commandArg(trimmed, "/new"); ok {
		return &Command{Type: "NEW", Arg: arg}
	}
	if arg, ok := commandArg(trimmed, "/join"); ok && arg != "" {
		return &Command{Type: "JOIN", Arg: strings.ToUpper(arg)}
	}
	if arg, ok := commandArg(trimmed, "/prompt"); ok && arg != "" {
		return &Command{Type: "PROMPT", Arg: arg}
	}
	if arg, ok := commandArg(trimmed, "/answer"); ok && arg != "" {
		return &Command{Type: "ANSWER", Arg: arg}
	}
	if arg, ok := commandArg(trimmed, "/vote"); ok && arg != "" {
		return &Command{Type: "VOTE", Arg: arg}
	}

	switch trimmed {
	case "/startvote":
		return &Command{Type: "STARTVOTE"}
	case "/results":
		return &Command{Type: "RESULTS"}
	case "/status":
		return &Command{Type: "STATUS"}
	case "/leave":
		return &Command{Type: "LEAVE"}
	case "/help":
		return &Command{Type: "HELP"}
	}

	return nil
}

func commandArg(text, prefix string) (string, bool) {
	if text == prefix {
		return "", true
	}
	if strings.HasPrefix(text, prefix+" ") {
		return strings.TrimSpace(text[len(prefix)+1:]), true
	}
	return "", false
}

// BotHandler is the conversational front door. It keeps a user -> session
// registry so commands after /join need no session argument, and translates
// lifecycle errors into short human-readable replies. All game rules live in
// the lifecycle; this handler only parses and formats.
type BotHandler struct {
	lifecycle *game.Lifecycle

	mu       sync.Mutex
	sessions map[string]string // userID -> sessionID
}

func NewBotHandler(lifecycle *game.Lifecycle) *BotHandler {
	return &BotHandler{
		lifecycle: lifecycle,
		sessions:  make(map[string]string),
	}
}

func (h *BotHandler) currentSession(userID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[userID]
}

func (h *BotHandler) setCurrentSession(userID, sessionID string) {
	h.mu.Lock()
	if sessionID == "" {
		delete(h.sessions, userID)
	} else {
		h.sessions[userID] = sessionID
	}
	h.mu.Unlock()
}

// POST /bot/webhook
func (h *BotHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req BotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("invalid bot webhook request")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}

	log.Info().
		Str("userId", req.UserID).
		Str("text", truncate(req.Text, 50)).
		Msg("received bot webhook")

	cmd := parseCommand(req.Text)
	if cmd == nil {
		writeJSON(w, http.StatusOK, NewBotTextResponse(
			"I only understand commands. Try /help."))
		return
	}

	writeJSON(w, http.StatusOK, h.handleCommand(r.Context(), cmd, &req))
}

func (h *BotHandler) handleCommand(ctx context.Context, cmd *Command, req *BotRequest) *BotResponse {
	name := req.DisplayName
	if name == "" {
		name = "Player " + truncate(req.UserID, 8)
	}

	switch cmd.Type {
	case "NEW":
		session, err := h.lifecycle.Create(ctx, req.UserID, name, cmd.Arg)
		if err != nil {
			return NewBotTextResponse(humanMessage(err))
		}
		h.setCurrentSession(req.UserID, session.ID)
		reply := fmt.Sprintf("🎉 Game created! Join code: %s\n\nOthers can join with:\n/join %s", session.ID, session.ID)
		if session.Prompt == "" {
			reply += "\n\nSet the question with /prompt <text>"
		} else {
			reply += "\n\nQuestion: " + session.Prompt + "\nAnswer with /answer <text>"
		}
		return NewBotTextResponse(reply)

	case "JOIN":
		if !util.IsValidSessionID(cmd.Arg) {
			return NewBotTextResponse("That doesn't look like a join code. Example: /join K7WQ2N")
		}
		session, err := h.lifecycle.Join(ctx, cmd.Arg, req.UserID, name)
		if err != nil {
			if apperrors.GetCode(err) == apperrors.ErrCodeAlreadyJoined {
				// Re-joining the same game just points the user back at it.
				h.setCurrentSession(req.UserID, cmd.Arg)
			}
			return NewBotTextResponse(humanMessage(err))
		}
		h.setCurrentSession(req.UserID, session.ID)
		reply := fmt.Sprintf("✅ Joined game %s (%d/%d players).", session.ID, len(session.Participants), session.MaxParticipants)
		if session.Prompt != "" {
			reply += "\n\nQuestion: " + session.Prompt + "\nAnswer with /answer <text>"
		}
		return NewBotTextResponse(reply)

	case "PROMPT":
		sessionID, resp := h.requireSession(req.UserID)
		if resp != nil {
			return resp
		}
		session, err := h.lifecycle.SetPrompt(ctx, sessionID, req.UserID, cmd.Arg)
		if err != nil {
			return NewBotTextResponse(humanMessage(err))
		}
		return NewBotTextResponse("Question set:\n" + session.Prompt + "\n\nEveryone, answer with /answer <text>")

	case "ANSWER":
		sessionID, resp := h.requireSession(req.UserID)
		if resp != nil {
			return resp
		}
		session, err := h.lifecycle.SubmitAnswer(ctx, sessionID, req.UserID, cmd.Arg)
		if err != nil {
			return NewBotTextResponse(humanMessage(err))
		}
		if session.Status == model.StatusVoting {
			return NewBotTextResponse("Answer saved — everyone answered!\n\n" + formatBallot(session, req.UserID))
		}
		return NewBotTextResponse(fmt.Sprintf("Answer saved (%d/%d in).", len(session.Answers), len(session.Participants)))

	case "STARTVOTE":
		sessionID, resp := h.requireSession(req.UserID)
		if resp != nil {
			return resp
		}
		session, err := h.lifecycle.StartVoting(ctx, sessionID, req.UserID)
		if err != nil {
			return NewBotTextResponse(humanMessage(err))
		}
		return NewBotTextResponse("🗳 Voting is open!\n\n" + formatBallot(session, req.UserID))

	case "VOTE":
		sessionID, resp := h.requireSession(req.UserID)
		if resp != nil {
			return resp
		}
		session, err := h.lifecycle.Get(sessionID)
		if err != nil {
			return NewBotTextResponse(humanMessage(err))
		}
		targets, err := parseVoteTargets(cmd.Arg, session)
		if err != nil {
			return NewBotTextResponse(humanMessage(err))
		}
		session, err = h.lifecycle.CastVote(ctx, sessionID, req.UserID, targets)
		if err != nil {
			return NewBotTextResponse(humanMessage(err))
		}
		if session.Status == model.StatusResults {
			return NewBotTextResponse("Vote counted — that was the last one!\n\n" + formatResults(session))
		}
		return NewBotTextResponse(fmt.Sprintf("Vote counted (%d/%d ballots in).",
			len(session.Votes), len(session.EligibleVoters())))

	case "RESULTS":
		sessionID, resp := h.requireSession(req.UserID)
		if resp != nil {
			return resp
		}
		session, err := h.lifecycle.Get(sessionID)
		if err != nil {
			return NewBotTextResponse(humanMessage(err))
		}
		if len(session.Results) == 0 {
			return NewBotTextResponse("No results yet — the game is still in " + statusLabel(session.Status) + ".")
		}
		return NewBotTextResponse(formatResults(session))

	case "STATUS":
		sessionID := h.currentSession(req.UserID)
		if sessionID == "" {
			return NewBotTextResponse("You're not in a game.\n\n/new to start one or /join <code> to join.")
		}
		session, err := h.lifecycle.Get(sessionID)
		if err != nil {
			return NewBotTextResponse(humanMessage(err))
		}
		return NewBotTextResponse(formatStatus(session))

	case "LEAVE":
		h.setCurrentSession(req.UserID, "")
		return NewBotTextResponse("Left the conversation. The game keeps running without you; /join again any time.")

	case "HELP":
		return NewBotTextResponse(
			"📖 Commands:\n" +
				"• /new [question] — start a game\n" +
				"• /join <code> — join a game\n" +
				"• /prompt <text> — set the question (creator)\n" +
				"• /answer <text> — submit your answer\n" +
				"• /startvote — open voting (creator)\n" +
				"• /vote <n> [m] — vote for 1-2 answers\n" +
				"• /results — show the ranking\n" +
				"• /status — where is my game\n" +
				"• /leave — forget my current game")

	default:
		return NewBotTextResponse("Unknown command. Try /help.")
	}
}

func (h *BotHandler) requireSession(userID string) (string, *BotResponse) {
	sessionID := h.currentSession(userID)
	if sessionID == "" {
		return "", NewBotTextResponse("You're not in a game yet.\n\n/new to start one or /join <code> to join.")
	}
	return sessionID, nil
}

// parseVoteTargets maps ballot numbers ("1 3") onto participant ids via the
// answer-submission order shown in the ballot.
func parseVoteTargets(arg string, session *model.Session) ([]string, error) {
	fields := strings.Fields(arg)
	targets := make([]string, 0, len(fields))
	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil || n < 1 || n > len(session.AnswerOrder) {
			return nil, apperrors.InvalidInput("vote", fmt.Sprintf("%q is not an answer number", field))
		}
		targets = append(targets, session.AnswerOrder[n-1])
	}
	return targets, nil
}

// formatBallot numbers answers by submission order, hiding the recipient's
// own entry but keeping its number so everyone votes with the same numbering.
func formatBallot(session *model.Session, recipientID string) string {
	var b strings.Builder
	b.WriteString("Question: " + session.Prompt + "\n\n")
	for i, id := range session.AnswerOrder {
		if id == recipientID {
			continue
		}
		fmt.Fprintf(&b, "%d) %s\n", i+1, session.Answers[id].Text)
	}
	b.WriteString("\nVote with /vote <n> [m] (up to 2, not your own).")
	return b.String()
}

func formatResults(session *model.Session) string {
	var b strings.Builder
	b.WriteString("🏆 Results — " + session.Prompt + "\n\n")
	for i, result := range session.Results {
		fmt.Fprintf(&b, "%d. %s — %q (%d votes)\n", i+1, result.Name, result.Text, result.VoteCount)
	}
	return b.String()
}

func formatStatus(session *model.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Game %s — %s\n", session.ID, statusLabel(session.Status))
	fmt.Fprintf(&b, "Players: %d/%d\n", len(session.Participants), session.MaxParticipants)
	if session.Prompt != "" {
		b.WriteString("Question: " + session.Prompt + "\n")
	}
	fmt.Fprintf(&b, "Answers: %d, ballots: %d", len(session.Answers), len(session.Votes))
	return b.String()
}

func statusLabel(status model.SessionStatus) string {
	switch status {
	case model.StatusWaitingForPlayers:
		return "waiting for players"
	case model.StatusCollectingAnswers:
		return "collecting answers"
	case model.StatusVoting:
		return "voting"
	case model.StatusResults:
		return "results"
	case model.StatusClosed:
		return "closed"
	default:
		return string(status)
	}
}

// humanMessage maps structured errors to short replies for the chat surface.
func humanMessage(err error) string {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNotFound:
		return "❌ No such game. Check the join code."
	case apperrors.ErrCodeSessionClosed:
		return "That game is over."
	case apperrors.ErrCodeAlreadyJoined:
		return "You're already in that game."
	case apperrors.ErrCodeSessionFull:
		return "That game is full."
	case apperrors.ErrCodeForbidden:
		return "Only the game creator can do that."
	case apperrors.ErrCodeInvalidState:
		return "You can't do that right now."
	case apperrors.ErrCodeNotAMember:
		return "You're not in that game. /join <code> first."
	case apperrors.ErrCodeNoPrompt:
		return "No question has been set yet. The creator sets it with /prompt <text>."
	case apperrors.ErrCodeDuplicateAnswer:
		return "You already answered — one answer per player."
	case apperrors.ErrCodeAlreadyVoted:
		return "You already voted."
	case apperrors.ErrCodeSelfVote:
		return "Nice try — you can't vote for your own answer."
	case apperrors.ErrCodeTooManyTargets:
		return "Pick at most two answers."
	case apperrors.ErrCodeUnknownTarget:
		return "One of those isn't a valid answer number."
	case apperrors.ErrCodeTooFewAnswers:
		return "Not enough answers to vote on yet."
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeMissingRequired, apperrors.ErrCodeValidation:
		if appErr, ok := apperrors.AsAppError(err); ok {
			return appErr.Message
		}
		return "That input doesn't look right."
	default:
		return "Something went wrong. Please try again."
	}
}
