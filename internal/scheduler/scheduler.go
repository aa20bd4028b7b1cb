package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Reminder is a time-deferred callback registration. Firing is at-least-once
// and best-effort: a reminder fires on the first sweep at or after its due
// time, never at the exact instant.
type Reminder struct {
	ID      string
	DueAt   time.Time
	Payload any
}

// Callback receives due reminders from the sweep loop.
type Callback func(Reminder)

// Scheduler keeps pending reminders in memory and sweeps them on a ticker.
// Reminders do not survive a restart by themselves; owners re-derive them
// from persisted state at startup.
type Scheduler struct {
	mu        sync.Mutex
	reminders map[string]Reminder

	interval time.Duration
	callback Callback
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func New(sweepInterval time.Duration, callback Callback) *Scheduler {
	return &Scheduler{
		reminders: make(map[string]Reminder),
		interval:  sweepInterval,
		callback:  callback,
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// ScheduleAfter registers a reminder due after d and returns its id.
func (s *Scheduler) ScheduleAfter(d time.Duration, payload any) string {
	reminder := Reminder{
		ID:      uuid.NewString(),
		DueAt:   s.now().Add(d),
		Payload: payload,
	}

	s.mu.Lock()
	s.reminders[reminder.ID] = reminder
	s.mu.Unlock()

	log.Debug().
		Str("reminderId", reminder.ID).
		Time("dueAt", reminder.DueAt).
		Msg("reminder scheduled")

	return reminder.ID
}

// Cancel removes a pending reminder. It reports whether the reminder was
// still pending.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reminders[id]; !ok {
		return false
	}
	delete(s.reminders, id)
	return true
}

// PollDue removes and returns all reminders due at or before now, ordered by
// due time.
func (s *Scheduler) PollDue() []Reminder {
	now := s.now()

	s.mu.Lock()
	var due []Reminder
	for id, reminder := range s.reminders {
		if !reminder.DueAt.After(now) {
			due = append(due, reminder)
			delete(s.reminders, id)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].DueAt.Before(due[j].DueAt)
	})
	return due
}

// Pending returns the number of registered, unfired reminders.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reminders)
}

// Start runs the sweep loop until Stop.
func (s *Scheduler) Start() {
	go s.run()
	log.Info().Dur("interval", s.interval).Msg("reminder scheduler started")
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	log.Info().Msg("reminder scheduler stopped")
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Scheduler) sweep() {
	for _, reminder := range s.PollDue() {
		s.callback(reminder)
	}
}
