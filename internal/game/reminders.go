package game

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/promptparty/server-go/internal/model"
	"github.com/promptparty/server-go/internal/scheduler"
)

type ReminderKind string

const (
	// ReminderAutoClose closes a finalized session after the results window.
	ReminderAutoClose ReminderKind = "auto_close"
)

// ReminderPayload is what the lifecycle registers with the scheduler.
type ReminderPayload struct {
	Kind      ReminderKind
	SessionID string
}

// HandleReminder is the scheduler callback.
func (l *Lifecycle) HandleReminder(reminder scheduler.Reminder) {
	payload, ok := reminder.Payload.(ReminderPayload)
	if !ok {
		log.Error().Str("reminderId", reminder.ID).Msg("reminder with unexpected payload type")
		return
	}

	switch payload.Kind {
	case ReminderAutoClose:
		session := l.store.Get(payload.SessionID)
		if session == nil || session.Status != model.StatusResults {
			return
		}
		if _, err := l.Close(context.Background(), payload.SessionID); err != nil {
			log.Error().Err(err).Str("sessionId", payload.SessionID).Msg("auto-close failed")
		}
	default:
		log.Warn().Str("kind", string(payload.Kind)).Msg("unknown reminder kind")
	}
}

// RestoreTimers re-derives reminders from persisted state after a restart.
// Sessions already past their close time get a zero-delay reminder, which
// fires on the first sweep.
func (l *Lifecycle) RestoreTimers() {
	restored := 0
	for _, session := range l.store.ListAll() {
		if session.Status != model.StatusResults || session.FinalizedAt == nil {
			continue
		}

		delay := session.FinalizedAt.Add(l.defaults.ResultsCloseAfter).Sub(l.now())
		if delay < 0 {
			delay = 0
		}
		reminderID := l.scheduler.ScheduleAfter(delay, ReminderPayload{
			Kind:      ReminderAutoClose,
			SessionID: session.ID,
		})

		l.mu.Lock()
		l.reminders[session.ID] = reminderID
		l.mu.Unlock()
		restored++
	}

	if restored > 0 {
		log.Info().Int("count", restored).Msg("auto-close reminders restored")
	}
}
