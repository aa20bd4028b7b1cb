package model

import (
	"time"
)

type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Answer struct {
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Result is one row of the final ranking, immutable once computed.
type Result struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Text          string `json:"text"`
	VoteCount     int    `json:"voteCount"`
}

// Session is one round of prompt -> answers -> votes -> results.
//
// Participants is insertion-ordered. AnswerOrder records participant ids in
// answer-submission order and is the tie-break sequence for the final ranking.
type Session struct {
	ID           string            `json:"id"`
	CreatorID    string            `json:"creatorId"`
	Status       SessionStatus     `json:"status"`
	Prompt       string            `json:"prompt,omitempty"`
	Participants []Participant     `json:"participants"`
	Answers      map[string]Answer `json:"answers"`
	AnswerOrder  []string          `json:"answerOrder"`
	Votes        map[string][]string `json:"votes"`
	Results      []Result          `json:"results,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	FinalizedAt  *time.Time        `json:"finalizedAt,omitempty"`

	MaxParticipants        int `json:"maxParticipants"`
	MinAnswersToVote       int `json:"minAnswersToVote"`
	MinParticipantsToStart int `json:"minParticipantsToStart"`
}

// Participant returns the participant record for id, or nil.
func (s *Session) Participant(id string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i]
		}
	}
	return nil
}

// IsMember reports whether id has joined the session.
func (s *Session) IsMember(id string) bool {
	return s.Participant(id) != nil
}

// EligibleVoters returns the participant ids whose votes count toward
// auto-finalization: participants with a submitted answer.
func (s *Session) EligibleVoters() []string {
	voters := make([]string, 0, len(s.AnswerOrder))
	for _, id := range s.AnswerOrder {
		if s.IsMember(id) {
			voters = append(voters, id)
		}
	}
	return voters
}

// AllEligibleVoted reports whether every eligible voter has cast a vote.
func (s *Session) AllEligibleVoted() bool {
	voters := s.EligibleVoters()
	if len(voters) == 0 {
		return false
	}
	for _, id := range voters {
		if _, ok := s.Votes[id]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing the stored session to unsynchronized mutation.
func (s *Session) Clone() *Session {
	c := *s
	c.Participants = append([]Participant(nil), s.Participants...)
	c.AnswerOrder = append([]string(nil), s.AnswerOrder...)
	if s.Answers != nil {
		c.Answers = make(map[string]Answer, len(s.Answers))
		for k, v := range s.Answers {
			c.Answers[k] = v
		}
	}
	if s.Votes != nil {
		c.Votes = make(map[string][]string, len(s.Votes))
		for k, v := range s.Votes {
			c.Votes[k] = append([]string(nil), v...)
		}
	}
	c.Results = append([]Result(nil), s.Results...)
	if s.FinalizedAt != nil {
		t := *s.FinalizedAt
		c.FinalizedAt = &t
	}
	return &c
}
