package notify

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/promptparty/server-go/internal/model"
)

// Event is an outbound state-change announcement. It carries plain data only;
// transports decide how to deliver it.
type Event struct {
	Kind      model.EventKind `json:"kind"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// Notifier delivers events to participants. Implementations must swallow
// delivery failures; a failed notification never rolls back the state
// transition that produced it.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NewEvent marshals payload into an Event. A payload that fails to marshal
// produces an event with empty data rather than an error.
func NewEvent(kind model.EventKind, sessionID string, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("failed to encode event payload")
		data = []byte("{}")
	}
	return Event{Kind: kind, SessionID: sessionID, Data: data}
}

// Event payloads

type ParticipantJoinedPayload struct {
	Participant      model.Participant `json:"participant"`
	ParticipantCount int               `json:"participantCount"`
}

type AnswerSubmittedPayload struct {
	ParticipantID    string `json:"participantId"`
	AnswerCount      int    `json:"answerCount"`
	ParticipantCount int    `json:"participantCount"`
}

// BallotEntry is one votable answer. The ballot sent to transports carries
// every answer in submission order; transports hide the recipient's own entry.
type BallotEntry struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Text          string `json:"text"`
}

type VotingStartedPayload struct {
	Prompt string        `json:"prompt"`
	Ballot []BallotEntry `json:"ballot"`
}

type VoteRecordedPayload struct {
	VoterID        string `json:"voterId"`
	VotesCast      int    `json:"votesCast"`
	EligibleVoters int    `json:"eligibleVoters"`
}

type ResultsReadyPayload struct {
	Prompt  string         `json:"prompt"`
	Results []model.Result `json:"results"`
}
