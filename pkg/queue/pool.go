package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/mail"
)

// Handler performs the work a job describes.  Handlers are invoked at least
// once per job and must be idempotent.
type Handler func(ctx context.Context, j *Job) error

// Pool drains a Queue with a bounded set of workers.
type Pool struct {
	queue    Queue
	handlers map[Type]Handler
	policy   RetryPolicy
	workers  int
	poll     time.Duration
	locks    HashLock
	wait     sync.WaitGroup
}

// NewPool builds a pool over the given queue.
func NewPool(q Queue, cfg config.Queue) *Pool {
	return &Pool{
		queue:    q,
		handlers: make(map[Type]Handler),
		policy: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     ExponentialBackoff(cfg.BackoffBase),
		},
		workers: cfg.Workers,
		poll:    cfg.Poll,
	}
}

// Handle registers the handler for a job type.  Must be called before
// Start.
func (p *Pool) Handle(t Type, h Handler) {
	p.handlers[t] = h
}

// Start recovers interrupted jobs and launches the workers.  They exit
// when ctx is canceled; Join blocks until they have.
func (p *Pool) Start(ctx context.Context) error {
	n, err := p.queue.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovering interrupted jobs: %w", err)
	}
	if n > 0 {
		log.Info().Str("module", "queue").Int("jobs", n).
			Msg("Re-queued jobs interrupted by previous shutdown")
	}
	for i := 0; i < p.workers; i++ {
		p.wait.Add(1)
		go p.worker(ctx, i)
	}
	return nil
}

// Join waits for all workers to exit.
func (p *Pool) Join() {
	p.wait.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wait.Done()
	logger := log.With().Str("module", "queue").Int("worker", id).Logger()
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		j, err := p.queue.Dequeue(ctx, time.Now())
		if err != nil {
			logger.Error().Err(err).Msg("Dequeue failed")
		}
		if j != nil {
			p.run(ctx, j)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// run executes one job and settles its outcome.  Mutating jobs hold the
// account lock for the duration, serializing remote mailbox access.
func (p *Pool) run(ctx context.Context, j *Job) {
	logger := log.With().Str("module", "queue").Str("id", j.ID).
		Str("type", string(j.Type)).Str("account", j.AccountID).
		Int("attempt", j.Attempts).Logger()

	if j.Type.Mutating() {
		l := p.locks.Get(j.AccountID)
		l.Lock()
		defer l.Unlock()
	}

	h, ok := p.handlers[j.Type]
	if !ok {
		logger.Error().Msg("No handler registered for job type")
		_ = p.queue.Kill(ctx, j.ID, fmt.Errorf("no handler for job type %q", j.Type))
		return
	}

	err := h(ctx, j)
	if err == nil {
		if cerr := p.queue.Complete(ctx, j.ID); cerr != nil {
			logger.Error().Err(cerr).Msg("Failed to complete job")
		}
		return
	}

	switch mail.Classify(err) {
	case mail.KindAuth, mail.KindDataQuality:
		// Retrying cannot fix bad credentials or a malformed payload.
		logger.Warn().Err(err).Msg("Job dead-lettered without retry")
		if kerr := p.queue.Kill(ctx, j.ID, err); kerr != nil {
			logger.Error().Err(kerr).Msg("Failed to kill job")
		}
	default:
		logger.Warn().Err(err).Msg("Job attempt failed")
		if ferr := p.queue.Fail(ctx, j.ID, err, p.policy, time.Now()); ferr != nil {
			logger.Error().Err(ferr).Msg("Failed to reschedule job")
		}
	}
}
