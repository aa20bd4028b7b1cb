package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/promptparty/server-go/internal/config"
	apperrors "github.com/promptparty/server-go/internal/errors"
	"github.com/promptparty/server-go/internal/game"
	"github.com/promptparty/server-go/internal/util"
)

// SessionHandler is the HTTP/JSON front door. It is glue only: every request
// becomes one lifecycle call.
type SessionHandler struct {
	lifecycle *game.Lifecycle
}

func NewSessionHandler(lifecycle *game.Lifecycle) *SessionHandler {
	return &SessionHandler{lifecycle: lifecycle}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{sessionId}", h.Get)
	r.Post("/{sessionId}/join", h.Join)
	r.Post("/{sessionId}/prompt", h.SetPrompt)
	r.Post("/{sessionId}/answers", h.SubmitAnswer)
	r.Post("/{sessionId}/start-voting", h.StartVoting)
	r.Post("/{sessionId}/votes", h.CastVote)
	r.Post("/{sessionId}/finalize", h.Finalize)
	r.Post("/{sessionId}/close", h.Close)

	return r
}

func sessionID(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "sessionId")))
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.InvalidInput("body", "malformed JSON")
	}
	return nil
}

type createSessionRequest struct {
	CreatorID   string `json:"creatorId"`
	CreatorName string `json:"creatorName"`
	Prompt      string `json:"prompt"`
}

// POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	name, ok := util.CleanText(req.CreatorName, config.MaxNameLength)
	if !ok {
		writeError(w, apperrors.InvalidInput("creatorName", "must be 1-64 characters"))
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt != "" {
		if _, ok := util.CleanText(prompt, config.MaxPromptLength); !ok {
			writeError(w, apperrors.InvalidInput("prompt", "too long"))
			return
		}
	}

	session, err := h.lifecycle.Create(r.Context(), req.CreatorID, name, prompt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, formatSession(session))
}

// GET /v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.lifecycle.List()
	resp := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, formatSession(session))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": resp})
}

// GET /v1/sessions/{sessionId}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.lifecycle.Get(sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatSession(session))
}

type joinRequest struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
}

// POST /v1/sessions/{sessionId}/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	name, ok := util.CleanText(req.Name, config.MaxNameLength)
	if !ok {
		writeError(w, apperrors.InvalidInput("name", "must be 1-64 characters"))
		return
	}

	session, err := h.lifecycle.Join(r.Context(), sessionID(r), req.ParticipantID, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatSession(session))
}

type promptRequest struct {
	CreatorID string `json:"creatorId"`
	Text      string `json:"text"`
}

// POST /v1/sessions/{sessionId}/prompt
func (h *SessionHandler) SetPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CreatorID == "" {
		writeError(w, apperrors.MissingRequired("creatorId"))
		return
	}
	text, ok := util.CleanText(req.Text, config.MaxPromptLength)
	if !ok {
		writeError(w, apperrors.InvalidInput("text", "must be 1-500 characters"))
		return
	}

	session, err := h.lifecycle.SetPrompt(r.Context(), sessionID(r), req.CreatorID, text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatSession(session))
}

type answerRequest struct {
	ParticipantID string `json:"participantId"`
	Text          string `json:"text"`
}

// POST /v1/sessions/{sessionId}/answers
func (h *SessionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ParticipantID == "" {
		writeError(w, apperrors.MissingRequired("participantId"))
		return
	}
	text, ok := util.CleanText(req.Text, config.MaxAnswerLength)
	if !ok {
		writeError(w, apperrors.InvalidInput("text", "must be 1-500 characters"))
		return
	}

	session, err := h.lifecycle.SubmitAnswer(r.Context(), sessionID(r), req.ParticipantID, text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatSession(session))
}

type startVotingRequest struct {
	CreatorID string `json:"creatorId"`
}

// POST /v1/sessions/{sessionId}/start-voting
func (h *SessionHandler) StartVoting(w http.ResponseWriter, r *http.Request) {
	var req startVotingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CreatorID == "" {
		writeError(w, apperrors.MissingRequired("creatorId"))
		return
	}

	session, err := h.lifecycle.StartVoting(r.Context(), sessionID(r), req.CreatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatSession(session))
}

type voteRequest struct {
	VoterID   string   `json:"voterId"`
	TargetIDs []string `json:"targetIds"`
}

// POST /v1/sessions/{sessionId}/votes
func (h *SessionHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.VoterID == "" {
		writeError(w, apperrors.MissingRequired("voterId"))
		return
	}

	session, err := h.lifecycle.CastVote(r.Context(), sessionID(r), req.VoterID, req.TargetIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatSession(session))
}

type finalizeRequest struct {
	Force bool `json:"force"`
}

// POST /v1/sessions/{sessionId}/finalize
func (h *SessionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	session, err := h.lifecycle.Finalize(r.Context(), sessionID(r), req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatSession(session))
}

// POST /v1/sessions/{sessionId}/close
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	session, err := h.lifecycle.Close(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	log.Info().Str("sessionId", session.ID).Msg("session closed via api")
	writeJSON(w, http.StatusOK, formatSession(session))
}
