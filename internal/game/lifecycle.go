package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/promptparty/server-go/internal/config"
	apperrors "github.com/promptparty/server-go/internal/errors"
	"github.com/promptparty/server-go/internal/model"
	"github.com/promptparty/server-go/internal/notify"
	"github.com/promptparty/server-go/internal/scheduler"
	"github.com/promptparty/server-go/internal/store"
)

// Session join codes use the unambiguous alphabet (no O/I/0/1).
const sessionIDChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const sessionIDLength = 6

// Defaults are the per-session limits stamped onto new sessions.
type Defaults struct {
	MaxParticipants        int
	MinAnswersToVote       int
	MinParticipantsToStart int
	ResultsCloseAfter      time.Duration
}

// Lifecycle owns every session state transition. Both front doors call into
// it, so there is exactly one code path per business operation.
//
// Operations on the same session are serialized through a per-id mutex; the
// store's read-modify-write cycle never interleaves for one session.
type Lifecycle struct {
	store     *store.Store
	notifier  notify.Notifier
	scheduler *scheduler.Scheduler
	defaults  Defaults

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	reminders map[string]string // sessionID -> pending auto-close reminder id

	now func() time.Time
}

func NewLifecycle(st *store.Store, notifier notify.Notifier, sched *scheduler.Scheduler, defaults Defaults) *Lifecycle {
	return &Lifecycle{
		store:     st,
		notifier:  notifier,
		scheduler: sched,
		defaults:  defaults,
		locks:     make(map[string]*sync.Mutex),
		reminders: make(map[string]string),
		now:       time.Now,
	}
}

func (l *Lifecycle) lockSession(id string) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[id] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (l *Lifecycle) dropLock(id string) {
	l.mu.Lock()
	delete(l.locks, id)
	delete(l.reminders, id)
	l.mu.Unlock()
}

// Create makes a new session with the creator auto-joined. A supplied prompt
// opens the session directly in the answer-collection phase.
func (l *Lifecycle) Create(ctx context.Context, creatorID, creatorName, prompt string) (*model.Session, error) {
	if creatorID == "" {
		creatorID = uuid.NewString()
	}

	now := l.now()
	session := &model.Session{
		CreatorID: creatorID,
		Status:    model.StatusWaitingForPlayers,
		Prompt:    prompt,
		Participants: []model.Participant{
			{ID: creatorID, Name: creatorName, JoinedAt: now},
		},
		Answers:                make(map[string]model.Answer),
		Votes:                  make(map[string][]string),
		CreatedAt:              now,
		MaxParticipants:        l.defaults.MaxParticipants,
		MinAnswersToVote:       l.defaults.MinAnswersToVote,
		MinParticipantsToStart: l.defaults.MinParticipantsToStart,
	}
	if prompt != "" {
		session.Status = model.StatusCollectingAnswers
	}

	// Retry on the off chance a generated code collides.
	for attempts := 0; ; attempts++ {
		session.ID = newSessionID()
		err := l.store.Create(session)
		if err == nil {
			break
		}
		if attempts >= 5 {
			return nil, apperrors.Internal("Could not allocate a session id")
		}
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("creatorId", creatorID).
		Bool("hasPrompt", prompt != "").
		Msg("session created")

	l.notifier.Notify(ctx, notify.NewEvent(model.EventParticipantJoined, session.ID,
		notify.ParticipantJoinedPayload{
			Participant:      session.Participants[0],
			ParticipantCount: 1,
		}))

	return session.Clone(), nil
}

// Join adds a participant. A blank participantID gets a generated one.
func (l *Lifecycle) Join(ctx context.Context, sessionID, participantID, name string) (*model.Session, error) {
	unlock := l.lockSession(sessionID)
	defer unlock()

	session := l.store.Get(sessionID)
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.Status == model.StatusClosed {
		return nil, apperrors.SessionClosed()
	}
	if session.Status != model.StatusWaitingForPlayers && session.Status != model.StatusCollectingAnswers {
		return nil, apperrors.InvalidState("Join", string(session.Status))
	}
	if participantID != "" && session.IsMember(participantID) {
		return nil, apperrors.AlreadyJoined()
	}
	if len(session.Participants) >= session.MaxParticipants {
		return nil, apperrors.SessionFull(session.MaxParticipants)
	}

	if participantID == "" {
		participantID = uuid.NewString()
	}
	participant := model.Participant{ID: participantID, Name: name, JoinedAt: l.now()}
	session.Participants = append(session.Participants, participant)
	l.store.Put(session)

	log.Info().
		Str("sessionId", sessionID).
		Str("participantId", participantID).
		Int("participants", len(session.Participants)).
		Msg("participant joined")

	l.notifier.Notify(ctx, notify.NewEvent(model.EventParticipantJoined, sessionID,
		notify.ParticipantJoinedPayload{
			Participant:      participant,
			ParticipantCount: len(session.Participants),
		}))

	return session, nil
}

// SetPrompt sets or overwrites the shared prompt. Only the creator may call
// it, and only while no answers exist; setting the first prompt moves the
// session into answer collection.
func (l *Lifecycle) SetPrompt(ctx context.Context, sessionID, creatorID, text string) (*model.Session, error) {
	unlock := l.lockSession(sessionID)
	defer unlock()

	session := l.store.Get(sessionID)
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.CreatorID != creatorID {
		return nil, apperrors.Forbidden("Only the session creator may set the prompt")
	}
	if session.Status != model.StatusWaitingForPlayers && session.Status != model.StatusCollectingAnswers {
		return nil, apperrors.InvalidState("SetPrompt", string(session.Status))
	}
	if len(session.Answers) > 0 {
		return nil, apperrors.InvalidState("SetPrompt", "collecting_answers with submitted answers")
	}

	session.Prompt = text
	if session.Status == model.StatusWaitingForPlayers {
		session.Status = model.StatusCollectingAnswers
	}
	l.store.Put(session)

	log.Info().Str("sessionId", sessionID).Msg("prompt set")
	return session, nil
}

// SubmitAnswer records a participant's answer. When the answer count reaches
// the participant cap the session moves straight to voting.
func (l *Lifecycle) SubmitAnswer(ctx context.Context, sessionID, participantID, text string) (*model.Session, error) {
	unlock := l.lockSession(sessionID)
	defer unlock()

	session := l.store.Get(sessionID)
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.Status != model.StatusWaitingForPlayers && session.Status != model.StatusCollectingAnswers {
		return nil, apperrors.InvalidState("SubmitAnswer", string(session.Status))
	}
	if !session.IsMember(participantID) {
		return nil, apperrors.NotAMember()
	}
	if session.Prompt == "" {
		return nil, apperrors.NoPrompt()
	}
	if _, ok := session.Answers[participantID]; ok {
		return nil, apperrors.DuplicateAnswer()
	}

	session.Answers[participantID] = model.Answer{Text: text, SubmittedAt: l.now()}
	session.AnswerOrder = append(session.AnswerOrder, participantID)

	autoStart := len(session.Answers) >= session.MaxParticipants
	if autoStart {
		session.Status = model.StatusVoting
	}
	l.store.Put(session)

	log.Info().
		Str("sessionId", sessionID).
		Str("participantId", participantID).
		Int("answers", len(session.Answers)).
		Bool("autoStart", autoStart).
		Msg("answer submitted")

	l.notifier.Notify(ctx, notify.NewEvent(model.EventAnswerSubmitted, sessionID,
		notify.AnswerSubmittedPayload{
			ParticipantID:    participantID,
			AnswerCount:      len(session.Answers),
			ParticipantCount: len(session.Participants),
		}))
	if autoStart {
		l.notifyVotingStarted(ctx, session)
	}

	return session, nil
}

// StartVoting is the creator's forced transition into the voting phase.
func (l *Lifecycle) StartVoting(ctx context.Context, sessionID, creatorID string) (*model.Session, error) {
	unlock := l.lockSession(sessionID)
	defer unlock()

	session := l.store.Get(sessionID)
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.CreatorID != creatorID {
		return nil, apperrors.Forbidden("Only the session creator may start voting")
	}
	if session.Status != model.StatusCollectingAnswers {
		return nil, apperrors.InvalidState("StartVoting", string(session.Status))
	}
	if len(session.Answers) < session.MinAnswersToVote {
		return nil, apperrors.TooFewAnswers(session.MinAnswersToVote)
	}

	session.Status = model.StatusVoting
	l.store.Put(session)

	log.Info().
		Str("sessionId", sessionID).
		Int("answers", len(session.Answers)).
		Msg("voting started")

	l.notifyVotingStarted(ctx, session)
	return session, nil
}

// CastVote records a ballot of 1-2 answer authors. Participants who never
// answered may still vote, but only answer authors count toward
// auto-finalization.
func (l *Lifecycle) CastVote(ctx context.Context, sessionID, voterID string, targetIDs []string) (*model.Session, error) {
	unlock := l.lockSession(sessionID)
	defer unlock()

	session := l.store.Get(sessionID)
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.Status != model.StatusVoting {
		return nil, apperrors.InvalidState("CastVote", string(session.Status))
	}
	if !session.IsMember(voterID) {
		return nil, apperrors.NotAMember()
	}
	if _, ok := session.Votes[voterID]; ok {
		return nil, apperrors.AlreadyVoted()
	}
	if len(targetIDs) == 0 {
		return nil, apperrors.MissingRequired("targetIds")
	}
	if len(targetIDs) > config.MaxVoteTargets {
		return nil, apperrors.TooManyTargets(config.MaxVoteTargets)
	}
	seen := make(map[string]bool, len(targetIDs))
	for _, target := range targetIDs {
		if target == voterID {
			return nil, apperrors.SelfVote()
		}
		if seen[target] {
			return nil, apperrors.InvalidInput("targetIds", "duplicate target")
		}
		seen[target] = true
		if _, ok := session.Answers[target]; !ok {
			return nil, apperrors.UnknownTarget(target)
		}
	}

	session.Votes[voterID] = append([]string(nil), targetIDs...)
	l.store.Put(session)

	log.Info().
		Str("sessionId", sessionID).
		Str("voterId", voterID).
		Int("votes", len(session.Votes)).
		Msg("vote recorded")

	l.notifier.Notify(ctx, notify.NewEvent(model.EventVoteRecorded, sessionID,
		notify.VoteRecordedPayload{
			VoterID:        voterID,
			VotesCast:      len(session.Votes),
			EligibleVoters: len(session.EligibleVoters()),
		}))

	if session.AllEligibleVoted() {
		l.finalizeLocked(ctx, session)
	}
	return session, nil
}

// Finalize moves a voting session to results. Without force it requires
// every eligible voter to have voted.
func (l *Lifecycle) Finalize(ctx context.Context, sessionID string, force bool) (*model.Session, error) {
	unlock := l.lockSession(sessionID)
	defer unlock()

	session := l.store.Get(sessionID)
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.Status != model.StatusVoting {
		return nil, apperrors.InvalidState("Finalize", string(session.Status))
	}
	if !force && !session.AllEligibleVoted() {
		return nil, apperrors.InvalidState("Finalize", "voting with outstanding ballots")
	}

	l.finalizeLocked(ctx, session)
	return session, nil
}

// finalizeLocked computes results, stamps the session and schedules the
// auto-close. Caller holds the session lock.
func (l *Lifecycle) finalizeLocked(ctx context.Context, session *model.Session) {
	session.Results = Tally(session)
	session.Status = model.StatusResults
	now := l.now()
	session.FinalizedAt = &now
	l.store.Put(session)

	reminderID := l.scheduler.ScheduleAfter(l.defaults.ResultsCloseAfter, ReminderPayload{
		Kind:      ReminderAutoClose,
		SessionID: session.ID,
	})
	l.mu.Lock()
	l.reminders[session.ID] = reminderID
	l.mu.Unlock()

	log.Info().
		Str("sessionId", session.ID).
		Int("results", len(session.Results)).
		Msg("session finalized")

	l.notifier.Notify(ctx, notify.NewEvent(model.EventResultsReady, session.ID,
		notify.ResultsReadyPayload{
			Prompt:  session.Prompt,
			Results: session.Results,
		}))
}

// Close marks the session closed from any state and cancels its pending
// auto-close reminder.
func (l *Lifecycle) Close(ctx context.Context, sessionID string) (*model.Session, error) {
	unlock := l.lockSession(sessionID)
	defer unlock()

	session := l.store.Get(sessionID)
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.Status != model.StatusClosed {
		session.Status = model.StatusClosed
		l.store.Put(session)
	}

	l.mu.Lock()
	reminderID, ok := l.reminders[sessionID]
	delete(l.reminders, sessionID)
	l.mu.Unlock()
	if ok {
		l.scheduler.Cancel(reminderID)
	}

	log.Info().Str("sessionId", sessionID).Msg("session closed")
	return session, nil
}

// Get returns a snapshot of the session.
func (l *Lifecycle) Get(sessionID string) (*model.Session, error) {
	session := l.store.Get(sessionID)
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

// List returns snapshots of every session, for display only.
func (l *Lifecycle) List() []*model.Session {
	return l.store.ListAll()
}

// Delete removes the session outright. Used by retention cleanup.
func (l *Lifecycle) Delete(sessionID string) {
	unlock := l.lockSession(sessionID)
	l.store.Delete(sessionID)
	unlock()
	l.dropLock(sessionID)
}

func (l *Lifecycle) notifyVotingStarted(ctx context.Context, session *model.Session) {
	ballot := make([]notify.BallotEntry, 0, len(session.AnswerOrder))
	for _, id := range session.AnswerOrder {
		name := ""
		if p := session.Participant(id); p != nil {
			name = p.Name
		}
		ballot = append(ballot, notify.BallotEntry{
			ParticipantID: id,
			Name:          name,
			Text:          session.Answers[id].Text,
		})
	}
	l.notifier.Notify(ctx, notify.NewEvent(model.EventVotingStarted, session.ID,
		notify.VotingStartedPayload{
			Prompt: session.Prompt,
			Ballot: ballot,
		}))
}
