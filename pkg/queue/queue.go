package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotCancelable is returned when Cancel targets a job that already
	// left the queued state; an in-flight send cannot be recalled.
	ErrNotCancelable = errors.New("job is not cancelable")

	// ErrNoJob is returned by operations addressing an unknown job ID.
	ErrNoJob = errors.New("no such job")
)

// Queue stores jobs and hands them to workers.  Implementations provide
// at-least-once delivery: a job is re-queued if the process dies while it
// is active, so handlers must tolerate replays.
type Queue interface {
	// Enqueue adds a job.  A zero NotBefore means immediately eligible;
	// a future NotBefore implements scheduled work.
	Enqueue(ctx context.Context, j *Job) error

	// Dequeue returns the next eligible job marked active, or nil when
	// nothing is runnable at the given instant.  Eligibility respects
	// NotBefore, and mutating jobs for one account come out strictly in
	// enqueue order with at most one active at a time.
	Dequeue(ctx context.Context, now time.Time) (*Job, error)

	// Complete removes a finished job.
	Complete(ctx context.Context, id string) error

	// Fail records a failed attempt.  The job re-queues with a backoff
	// delay, or parks in the dead-letter set once attempts reach the
	// policy ceiling.
	Fail(ctx context.Context, id string, jobErr error, p RetryPolicy, now time.Time) error

	// Kill parks a job in the dead-letter set immediately, skipping
	// remaining retries.  Used for errors retrying cannot fix.
	Kill(ctx context.Context, id string, jobErr error) error

	// Cancel removes a job that has not started.  Returns
	// ErrNotCancelable if it is active, dead or already gone.
	Cancel(ctx context.Context, id string) error

	// DeadLetters lists jobs that exhausted their retries.
	DeadLetters(ctx context.Context) ([]*Job, error)

	// Pending lists queued and active jobs for an account, oldest first.
	Pending(ctx context.Context, accountID string) ([]*Job, error)

	// Recover re-queues jobs left active by a previous process.  Called
	// once at startup, before workers start.
	Recover(ctx context.Context) (int, error)
}
