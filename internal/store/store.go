package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/promptparty/server-go/internal/errors"
	"github.com/promptparty/server-go/internal/model"
)

// Snapshotter is the durable-storage contract: bulk load at startup and
// whole-state save on flush.
type Snapshotter interface {
	LoadAll(ctx context.Context) ([]model.Session, error)
	SaveAll(ctx context.Context, sessions []model.Session) error
}

// Store holds all sessions in memory, keyed by id. Memory is the source of
// truth; every mutation marks the store dirty and a background flusher writes
// the whole state through the Snapshotter on a debounce, so an unclean
// shutdown may lose up to one flush interval of writes.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session

	snapshotter Snapshotter
	interval    time.Duration
	dirty       atomic.Bool
	done        chan struct{}
	stopOnce    sync.Once
}

func New(snapshotter Snapshotter, flushInterval time.Duration) *Store {
	return &Store{
		sessions:    make(map[string]*model.Session),
		snapshotter: snapshotter,
		interval:    flushInterval,
		done:        make(chan struct{}),
	}
}

// Load replaces in-memory state with the snapshot. A missing or corrupt
// snapshot is tolerated: the store starts empty and the failure is logged.
func (s *Store) Load(ctx context.Context) {
	sessions, err := s.snapshotter.LoadAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load session snapshot, starting empty")
		return
	}

	s.mu.Lock()
	s.sessions = make(map[string]*model.Session, len(sessions))
	for i := range sessions {
		sess := sessions[i]
		s.sessions[sess.ID] = &sess
	}
	s.mu.Unlock()

	log.Info().Int("count", len(sessions)).Msg("sessions loaded from snapshot")
}

func (s *Store) Create(session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return apperrors.AlreadyExists("Session")
	}
	s.sessions[session.ID] = session.Clone()
	s.markDirty()
	return nil
}

// Get returns a snapshot of the session, or nil if absent.
func (s *Store) Get(id string) *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return session.Clone()
}

// Put replaces the stored session, last writer wins.
func (s *Store) Put(session *model.Session) {
	s.mu.Lock()
	s.sessions[session.ID] = session.Clone()
	s.markDirty()
	s.mu.Unlock()
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.markDirty()
	s.mu.Unlock()
}

// ListAll returns snapshots of every session. Iteration order is unspecified.
func (s *Store) ListAll() []*model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*model.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session.Clone())
	}
	return sessions
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// markDirty is called with s.mu held.
func (s *Store) markDirty() {
	s.dirty.Store(true)
}

// StartFlusher runs the debounced persistence loop until Stop. Writes landing
// within one interval coalesce into a single flush.
func (s *Store) StartFlusher() {
	go s.run()
	log.Info().Dur("interval", s.interval).Msg("store flusher started")
}

func (s *Store) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if s.dirty.Swap(false) {
				s.flush()
			}
		}
	}
}

func (s *Store) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.snapshotter.SaveAll(ctx, s.snapshot()); err != nil {
		// Degraded mode: state stays in memory and the next tick retries.
		log.Error().Err(err).Msg("failed to flush sessions")
		s.dirty.Store(true)
		return
	}
	log.Debug().Msg("sessions flushed")
}

func (s *Store) snapshot() []model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]model.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, *session.Clone())
	}
	return sessions
}

// Flush writes the current state through synchronously, regardless of the
// dirty flag. Used on shutdown.
func (s *Store) Flush(ctx context.Context) error {
	s.dirty.Store(false)
	return s.snapshotter.SaveAll(ctx, s.snapshot())
}

// Stop halts the flusher loop. It does not flush; call Flush for that.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	log.Info().Msg("store flusher stopped")
}
