package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/queue"
	"github.com/driftmail/driftmail/pkg/storage"
)

// Scheduler enqueues an incremental sync job for every account on a fixed
// period.  The queue serializes sync against other mutating work per
// account, so the scheduler itself never touches the network.
type Scheduler struct {
	globalShutdown    chan bool // Closes when the process needs to shut down
	schedulerShutdown chan bool // Closed after the scheduler has shut down
	store             storage.Store
	jobs              queue.Queue
	interval          time.Duration
}

// NewScheduler configures a new Scheduler.
func NewScheduler(
	cfg config.Sync,
	store storage.Store,
	jobs queue.Queue,
	shutdownChannel chan bool,
) *Scheduler {
	return &Scheduler{
		globalShutdown:    shutdownChannel,
		schedulerShutdown: make(chan bool),
		store:             store,
		jobs:              jobs,
		interval:          cfg.Interval,
	}
}

// Start launches the scheduler unless the period is zero.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		log.Info().Str("module", "sync").Msg("Periodic sync disabled")
		close(s.schedulerShutdown)
		return
	}
	log.Info().Str("module", "sync").Dur("interval", s.interval).
		Msg("Periodic sync configured")
	go s.run()
}

func (s *Scheduler) run() {
	defer close(s.schedulerShutdown)
	for {
		select {
		case <-s.globalShutdown:
			return
		case <-time.After(s.interval):
		}
		s.enqueueAll()
	}
}

// enqueueAll adds one sync job per account, skipping accounts that already
// have one queued or running.
func (s *Scheduler) enqueueAll() {
	ctx := context.Background()
	accounts, err := s.store.Accounts(ctx)
	if err != nil {
		log.Error().Str("module", "sync").Err(err).Msg("Failed to list accounts")
		return
	}
	for _, a := range accounts {
		pending, err := s.jobs.Pending(ctx, a.ID)
		if err != nil {
			log.Error().Str("module", "sync").Str("account", a.ID).Err(err).
				Msg("Failed to inspect queue")
			continue
		}
		if hasSync(pending) {
			continue
		}
		j, err := queue.New(queue.TypeMailSync, a.ID, nil)
		if err == nil {
			err = s.jobs.Enqueue(ctx, j)
		}
		if err != nil {
			log.Error().Str("module", "sync").Str("account", a.ID).Err(err).
				Msg("Failed to enqueue sync")
		}
	}
}

func hasSync(jobs []*queue.Job) bool {
	for _, j := range jobs {
		if j.Type == queue.TypeMailSync {
			return true
		}
	}
	return false
}

// Join does not return until the scheduler has exited.
func (s *Scheduler) Join() {
	<-s.schedulerShutdown
}
