package jobs

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/promptparty/server-go/internal/game"
	"github.com/promptparty/server-go/internal/store"
)

// CleanupJob purges sessions older than the retention window on a periodic
// sweep, regardless of their status.
type CleanupJob struct {
	store     *store.Store
	lifecycle *game.Lifecycle
	maxAge    time.Duration
	interval  time.Duration
	done      chan struct{}
	now       func() time.Time
}

func NewCleanupJob(st *store.Store, lifecycle *game.Lifecycle, maxAge, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		store:     st,
		lifecycle: lifecycle,
		maxAge:    maxAge,
		interval:  interval,
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("maxAge", j.maxAge).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.Cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.Cleanup()
		}
	}
}

// Cleanup deletes every session past the retention window. It returns the
// number of sessions purged.
func (j *CleanupJob) Cleanup() int {
	cutoff := j.now().Add(-j.maxAge)

	purged := 0
	for _, session := range j.store.ListAll() {
		if session.CreatedAt.Before(cutoff) {
			j.lifecycle.Delete(session.ID)
			purged++
		}
	}

	if purged > 0 {
		log.Info().Int("count", purged).Msg("cleaned up stale sessions")
	}
	return purged
}
