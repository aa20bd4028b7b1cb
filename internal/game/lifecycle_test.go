package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/promptparty/server-go/internal/errors"
	"github.com/promptparty/server-go/internal/model"
	"github.com/promptparty/server-go/internal/notify"
	"github.com/promptparty/server-go/internal/scheduler"
	"github.com/promptparty/server-go/internal/store"
)

type nopSnapshotter struct{}

func (nopSnapshotter) LoadAll(ctx context.Context) ([]model.Session, error) { return nil, nil }
func (nopSnapshotter) SaveAll(ctx context.Context, sessions []model.Session) error {
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event notify.Event) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *recordingNotifier) kinds() []model.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]model.EventKind, 0, len(n.events))
	for _, event := range n.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func newTestLifecycle(t *testing.T) (*Lifecycle, *recordingNotifier, *scheduler.Scheduler) {
	t.Helper()

	notifier := &recordingNotifier{}
	sched := scheduler.New(time.Hour, func(scheduler.Reminder) {})
	lifecycle := NewLifecycle(
		store.New(nopSnapshotter{}, time.Hour),
		notifier,
		sched,
		Defaults{
			MaxParticipants:        4,
			MinAnswersToVote:       2,
			MinParticipantsToStart: 2,
			ResultsCloseAfter:      30 * time.Minute,
		},
	)
	return lifecycle, notifier, sched
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.GetCode(err))
}

// runs a session up to the voting phase with answers from a, b, c
func sessionInVoting(t *testing.T, lifecycle *Lifecycle) *model.Session {
	t.Helper()
	ctx := context.Background()

	session, err := lifecycle.Create(ctx, "a", "Alice", "Best pizza topping?")
	require.NoError(t, err)

	_, err = lifecycle.Join(ctx, session.ID, "b", "Bob")
	require.NoError(t, err)
	_, err = lifecycle.Join(ctx, session.ID, "c", "Cara")
	require.NoError(t, err)

	_, err = lifecycle.SubmitAnswer(ctx, session.ID, "a", "pineapple")
	require.NoError(t, err)
	_, err = lifecycle.SubmitAnswer(ctx, session.ID, "b", "mushrooms")
	require.NoError(t, err)
	_, err = lifecycle.SubmitAnswer(ctx, session.ID, "c", "anchovies")
	require.NoError(t, err)

	session, err = lifecycle.StartVoting(ctx, session.ID, "a")
	require.NoError(t, err)
	require.Equal(t, model.StatusVoting, session.Status)
	return session
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creator is auto-joined", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)

		session, err := lifecycle.Create(ctx, "a", "Alice", "")
		require.NoError(t, err)

		assert.Equal(t, model.StatusWaitingForPlayers, session.Status)
		require.Len(t, session.Participants, 1)
		assert.Equal(t, "a", session.Participants[0].ID)
		assert.Equal(t, "a", session.CreatorID)
	})

	t.Run("supplied prompt opens answer collection", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)

		session, err := lifecycle.Create(ctx, "a", "Alice", "Q1")
		require.NoError(t, err)

		assert.Equal(t, model.StatusCollectingAnswers, session.Status)
		assert.Equal(t, "Q1", session.Prompt)
	})

	t.Run("blank creator id gets generated", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)

		session, err := lifecycle.Create(ctx, "", "Alice", "")
		require.NoError(t, err)
		assert.NotEmpty(t, session.CreatorID)
	})

	t.Run("emits participant_joined", func(t *testing.T) {
		lifecycle, notifier, _ := newTestLifecycle(t)

		_, err := lifecycle.Create(ctx, "a", "Alice", "")
		require.NoError(t, err)
		assert.Equal(t, []model.EventKind{model.EventParticipantJoined}, notifier.kinds())
	})
}

func TestJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("adds participants in order", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "")

		session, err := lifecycle.Join(ctx, session.ID, "b", "Bob")
		require.NoError(t, err)
		session, err = lifecycle.Join(ctx, session.ID, "c", "Cara")
		require.NoError(t, err)

		require.Len(t, session.Participants, 3)
		assert.Equal(t, "a", session.Participants[0].ID)
		assert.Equal(t, "b", session.Participants[1].ID)
		assert.Equal(t, "c", session.Participants[2].ID)
	})

	t.Run("unknown session", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		_, err := lifecycle.Join(ctx, "XXXXXX", "b", "Bob")
		assertCode(t, err, apperrors.ErrCodeNotFound)
	})

	t.Run("duplicate participant", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "")

		_, err := lifecycle.Join(ctx, session.ID, "a", "Alice again")
		assertCode(t, err, apperrors.ErrCodeAlreadyJoined)
	})

	t.Run("full session", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "")
		for _, id := range []string{"b", "c", "d"} {
			_, err := lifecycle.Join(ctx, session.ID, id, "p-"+id)
			require.NoError(t, err)
		}

		_, err := lifecycle.Join(ctx, session.ID, "e", "Evan")
		assertCode(t, err, apperrors.ErrCodeSessionFull)
	})

	t.Run("closed session", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "")
		_, err := lifecycle.Close(ctx, session.ID)
		require.NoError(t, err)

		_, err = lifecycle.Join(ctx, session.ID, "b", "Bob")
		assertCode(t, err, apperrors.ErrCodeSessionClosed)
	})

	t.Run("joining during voting", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)

		_, err := lifecycle.Join(ctx, session.ID, "z", "Zoe")
		assertCode(t, err, apperrors.ErrCodeInvalidState)
	})
}

func TestSetPrompt(t *testing.T) {
	ctx := context.Background()

	t.Run("moves waiting session into answer collection", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "")

		session, err := lifecycle.SetPrompt(ctx, session.ID, "a", "Q1")
		require.NoError(t, err)
		assert.Equal(t, "Q1", session.Prompt)
		assert.Equal(t, model.StatusCollectingAnswers, session.Status)
	})

	t.Run("creator may overwrite before any answer", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")

		session, err := lifecycle.SetPrompt(ctx, session.ID, "a", "Q2")
		require.NoError(t, err)
		assert.Equal(t, "Q2", session.Prompt)
	})

	t.Run("non-creator is rejected", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "")
		_, err := lifecycle.Join(ctx, session.ID, "b", "Bob")
		require.NoError(t, err)

		_, err = lifecycle.SetPrompt(ctx, session.ID, "b", "Q1")
		assertCode(t, err, apperrors.ErrCodeForbidden)
	})

	t.Run("locked once answers exist", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")
		_, err := lifecycle.SubmitAnswer(ctx, session.ID, "a", "my answer")
		require.NoError(t, err)

		_, err = lifecycle.SetPrompt(ctx, session.ID, "a", "Q2")
		assertCode(t, err, apperrors.ErrCodeInvalidState)
	})
}

func TestSubmitAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("stores answers in submission order", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")
		_, err := lifecycle.Join(ctx, session.ID, "b", "Bob")
		require.NoError(t, err)

		_, err = lifecycle.SubmitAnswer(ctx, session.ID, "b", "from bob")
		require.NoError(t, err)
		session, err = lifecycle.SubmitAnswer(ctx, session.ID, "a", "from alice")
		require.NoError(t, err)

		assert.Equal(t, []string{"b", "a"}, session.AnswerOrder)
		assert.Equal(t, "from bob", session.Answers["b"].Text)
	})

	t.Run("requires membership", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")

		_, err := lifecycle.SubmitAnswer(ctx, session.ID, "ghost", "boo")
		assertCode(t, err, apperrors.ErrCodeNotAMember)
	})

	t.Run("requires a prompt", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "")

		_, err := lifecycle.SubmitAnswer(ctx, session.ID, "a", "answer")
		assertCode(t, err, apperrors.ErrCodeNoPrompt)
	})

	t.Run("rejects re-submission and keeps the count", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")
		_, err := lifecycle.SubmitAnswer(ctx, session.ID, "a", "first")
		require.NoError(t, err)

		_, err = lifecycle.SubmitAnswer(ctx, session.ID, "a", "second")
		assertCode(t, err, apperrors.ErrCodeDuplicateAnswer)

		session, err = lifecycle.Get(session.ID)
		require.NoError(t, err)
		assert.Len(t, session.Answers, 1)
		assert.Equal(t, "first", session.Answers["a"].Text)
	})

	t.Run("auto-starts voting at the participant cap", func(t *testing.T) {
		lifecycle, notifier, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")
		for _, id := range []string{"b", "c", "d"} {
			_, err := lifecycle.Join(ctx, session.ID, id, "p-"+id)
			require.NoError(t, err)
		}

		for _, id := range []string{"a", "b", "c"} {
			session, _ = lifecycle.SubmitAnswer(ctx, session.ID, id, "answer-"+id)
			assert.Equal(t, model.StatusCollectingAnswers, session.Status)
		}
		session, err := lifecycle.SubmitAnswer(ctx, session.ID, "d", "answer-d")
		require.NoError(t, err)

		assert.Equal(t, model.StatusVoting, session.Status)
		assert.Contains(t, notifier.kinds(), model.EventVotingStarted)
	})
}

func TestStartVoting(t *testing.T) {
	ctx := context.Background()

	t.Run("requires the creator", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")
		_, err := lifecycle.Join(ctx, session.ID, "b", "Bob")
		require.NoError(t, err)

		_, err = lifecycle.StartVoting(ctx, session.ID, "b")
		assertCode(t, err, apperrors.ErrCodeForbidden)
	})

	t.Run("requires minimum answers", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")
		_, err := lifecycle.SubmitAnswer(ctx, session.ID, "a", "only one")
		require.NoError(t, err)

		_, err = lifecycle.StartVoting(ctx, session.ID, "a")
		assertCode(t, err, apperrors.ErrCodeTooFewAnswers)
	})

	t.Run("rejects zero answers even when forced", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")

		_, err := lifecycle.StartVoting(ctx, session.ID, "a")
		assertCode(t, err, apperrors.ErrCodeTooFewAnswers)
	})

	t.Run("transitions with enough answers", func(t *testing.T) {
		lifecycle, notifier, _ := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)

		assert.Equal(t, model.StatusVoting, session.Status)
		assert.Contains(t, notifier.kinds(), model.EventVotingStarted)
	})

	t.Run("cannot start twice", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)

		_, err := lifecycle.StartVoting(ctx, session.ID, "a")
		assertCode(t, err, apperrors.ErrCodeInvalidState)
	})
}

func TestCastVote(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects voting before the voting phase", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")

		_, err := lifecycle.CastVote(ctx, session.ID, "a", []string{"b"})
		assertCode(t, err, apperrors.ErrCodeInvalidState)
	})

	t.Run("rejects self votes and leaves state unchanged", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)

		_, err := lifecycle.CastVote(ctx, session.ID, "a", []string{"a"})
		assertCode(t, err, apperrors.ErrCodeSelfVote)

		session, err = lifecycle.Get(session.ID)
		require.NoError(t, err)
		assert.Empty(t, session.Votes)
		assert.Equal(t, model.StatusVoting, session.Status)
	})

	t.Run("rejects more than two targets", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)

		_, err := lifecycle.CastVote(ctx, session.ID, "a", []string{"b", "c", "b"})
		assertCode(t, err, apperrors.ErrCodeTooManyTargets)
	})

	t.Run("rejects duplicate targets", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)

		_, err := lifecycle.CastVote(ctx, session.ID, "a", []string{"b", "b"})
		assertCode(t, err, apperrors.ErrCodeInvalidInput)
	})

	t.Run("rejects targets without an answer", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)

		_, err := lifecycle.CastVote(ctx, session.ID, "a", []string{"ghost"})
		assertCode(t, err, apperrors.ErrCodeUnknownTarget)
	})

	t.Run("rejects double voting", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)

		_, err := lifecycle.CastVote(ctx, session.ID, "a", []string{"b"})
		require.NoError(t, err)
		_, err = lifecycle.CastVote(ctx, session.ID, "a", []string{"c"})
		assertCode(t, err, apperrors.ErrCodeAlreadyVoted)
	})

	t.Run("participants without answers may vote", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		ctx := context.Background()

		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")
		_, err := lifecycle.Join(ctx, session.ID, "b", "Bob")
		require.NoError(t, err)
		_, err = lifecycle.Join(ctx, session.ID, "d", "Dee")
		require.NoError(t, err)
		_, err = lifecycle.SubmitAnswer(ctx, session.ID, "a", "one")
		require.NoError(t, err)
		_, err = lifecycle.SubmitAnswer(ctx, session.ID, "b", "two")
		require.NoError(t, err)
		_, err = lifecycle.StartVoting(ctx, session.ID, "a")
		require.NoError(t, err)

		// d never answered but is a member
		session, err = lifecycle.CastVote(ctx, session.ID, "d", []string{"a"})
		require.NoError(t, err)
		assert.Contains(t, session.Votes, "d")
		// d's ballot does not finalize the round
		assert.Equal(t, model.StatusVoting, session.Status)
	})

	t.Run("auto-finalizes when every answer author voted", func(t *testing.T) {
		lifecycle, notifier, _ := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)

		_, err := lifecycle.CastVote(ctx, session.ID, "a", []string{"b"})
		require.NoError(t, err)
		_, err = lifecycle.CastVote(ctx, session.ID, "b", []string{"c"})
		require.NoError(t, err)
		session, err = lifecycle.CastVote(ctx, session.ID, "c", []string{"a"})
		require.NoError(t, err)

		assert.Equal(t, model.StatusResults, session.Status)
		assert.Len(t, session.Results, 3)
		assert.Contains(t, notifier.kinds(), model.EventResultsReady)
	})
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects while ballots are outstanding", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)

		_, err := lifecycle.Finalize(ctx, session.ID, false)
		assertCode(t, err, apperrors.ErrCodeInvalidState)
	})

	t.Run("forced finalize computes results", func(t *testing.T) {
		lifecycle, _, sched := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)

		_, err := lifecycle.CastVote(ctx, session.ID, "b", []string{"c"})
		require.NoError(t, err)

		session, err = lifecycle.Finalize(ctx, session.ID, true)
		require.NoError(t, err)

		assert.Equal(t, model.StatusResults, session.Status)
		require.NotNil(t, session.FinalizedAt)
		assert.Equal(t, "c", session.Results[0].ParticipantID)
		assert.Equal(t, 1, session.Results[0].VoteCount)
		assert.Equal(t, 1, sched.Pending(), "auto-close reminder scheduled")
	})

	t.Run("second finalize is rejected and results are unchanged", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)
		session, err := lifecycle.Finalize(ctx, session.ID, true)
		require.NoError(t, err)
		results := session.Results

		_, err = lifecycle.Finalize(ctx, session.ID, true)
		assertCode(t, err, apperrors.ErrCodeInvalidState)

		session, err = lifecycle.Get(session.ID)
		require.NoError(t, err)
		assert.Equal(t, results, session.Results)
	})

	t.Run("tie breaks by submission order", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		ctx := context.Background()

		// B answers first, then C; they vote for each other.
		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")
		_, err := lifecycle.Join(ctx, session.ID, "b", "Bob")
		require.NoError(t, err)
		_, err = lifecycle.Join(ctx, session.ID, "c", "Cara")
		require.NoError(t, err)
		_, err = lifecycle.SubmitAnswer(ctx, session.ID, "b", "ans-B")
		require.NoError(t, err)
		_, err = lifecycle.SubmitAnswer(ctx, session.ID, "c", "ans-C")
		require.NoError(t, err)
		_, err = lifecycle.StartVoting(ctx, session.ID, "a")
		require.NoError(t, err)

		_, err = lifecycle.CastVote(ctx, session.ID, "b", []string{"c"})
		require.NoError(t, err)
		session, err = lifecycle.CastVote(ctx, session.ID, "c", []string{"b"})
		require.NoError(t, err)

		require.Equal(t, model.StatusResults, session.Status)
		require.Len(t, session.Results, 2)
		assert.Equal(t, "b", session.Results[0].ParticipantID, "earlier submission wins the tie")
		assert.Equal(t, 1, session.Results[0].VoteCount)
		assert.Equal(t, "c", session.Results[1].ParticipantID)
		assert.Equal(t, 1, session.Results[1].VoteCount)
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	t.Run("closes from any state", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		session, _ := lifecycle.Create(ctx, "a", "Alice", "")

		session, err := lifecycle.Close(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusClosed, session.Status)
	})

	t.Run("cancels the pending auto-close reminder", func(t *testing.T) {
		lifecycle, _, sched := newTestLifecycle(t)
		session := sessionInVoting(t, lifecycle)
		_, err := lifecycle.Finalize(ctx, session.ID, true)
		require.NoError(t, err)
		require.Equal(t, 1, sched.Pending())

		_, err = lifecycle.Close(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, sched.Pending())
	})
}

func TestConcurrentOperations(t *testing.T) {
	t.Run("simultaneous answers never duplicate entries", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		ctx := context.Background()

		session, _ := lifecycle.Create(ctx, "a", "Alice", "Q1")
		for _, id := range []string{"b", "c", "d"} {
			_, err := lifecycle.Join(ctx, session.ID, id, "p-"+id)
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		for _, id := range []string{"a", "b", "c", "d"} {
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					lifecycle.SubmitAnswer(ctx, session.ID, id, "answer-"+id)
				}(id)
			}
		}
		wg.Wait()

		session, err := lifecycle.Get(session.ID)
		require.NoError(t, err)
		assert.Len(t, session.Answers, 4)
		assert.Len(t, session.AnswerOrder, 4)
	})
}

func TestRestoreTimers(t *testing.T) {
	t.Run("re-derives auto-close for finalized sessions", func(t *testing.T) {
		lifecycle, _, _ := newTestLifecycle(t)
		ctx := context.Background()
		session := sessionInVoting(t, lifecycle)
		_, err := lifecycle.Finalize(ctx, session.ID, true)
		require.NoError(t, err)

		// Fresh scheduler simulating a restart over the same store.
		fresh := scheduler.New(time.Hour, func(scheduler.Reminder) {})
		restarted := NewLifecycle(lifecycle.store, &recordingNotifier{}, fresh, lifecycle.defaults)
		restarted.RestoreTimers()

		assert.Equal(t, 1, fresh.Pending())
	})
}

func TestNewSessionID(t *testing.T) {
	t.Run("generates codes from the unambiguous alphabet", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			id := newSessionID()
			assert.Len(t, id, sessionIDLength)
			assert.NotContains(t, id, "O")
			assert.NotContains(t, id, "I")
			assert.NotContains(t, id, "0")
			assert.NotContains(t, id, "1")
		}
	})
}
