package model

type SessionStatus string

const (
	StatusWaitingForPlayers SessionStatus = "waiting_for_players"
	StatusCollectingAnswers SessionStatus = "collecting_answers"
	StatusVoting            SessionStatus = "voting"
	StatusResults           SessionStatus = "results"
	StatusClosed            SessionStatus = "closed"
)

// Active reports whether the session still accepts lifecycle operations.
func (s SessionStatus) Active() bool {
	return s != StatusClosed
}

type EventKind string

const (
	EventParticipantJoined EventKind = "participant_joined"
	EventAnswerSubmitted   EventKind = "answer_submitted"
	EventVotingStarted     EventKind = "voting_started"
	EventVoteRecorded      EventKind = "vote_recorded"
	EventResultsReady      EventKind = "results_ready"
)
