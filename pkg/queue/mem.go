package queue

import (
	"context"
	"sync"
	"time"
)

// MemQueue is an in-memory Queue for tests and ephemeral deployments.
type MemQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
	seq  int64
}

var _ Queue = &MemQueue{}

// NewMemQueue returns an empty in-memory queue.
func NewMemQueue() *MemQueue {
	return &MemQueue{jobs: make(map[string]*Job)}
}

// Enqueue adds a job.
func (q *MemQueue) Enqueue(_ context.Context, j *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	cp := *j
	cp.State = StateQueued
	cp.Seq = q.seq
	if cp.Enqueued.IsZero() {
		cp.Enqueued = time.Now()
	}
	q.jobs[cp.ID] = &cp
	return nil
}

// Dequeue returns the next eligible job, oldest first.
func (q *MemQueue) Dequeue(_ context.Context, now time.Time) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var best *Job
	for _, j := range q.jobs {
		if j.State != StateQueued {
			continue
		}
		if j.Type.Mutating() && q.accountBusy(j) {
			continue
		}
		if j.NotBefore.After(now) {
			continue
		}
		if best == nil || j.Seq < best.Seq {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}
	best.State = StateActive
	best.Attempts++
	cp := *best
	return &cp, nil
}

// accountBusy reports whether the job must wait for its account: another
// mutating job is active, or an older mutating job is still queued.
func (q *MemQueue) accountBusy(j *Job) bool {
	for _, other := range q.jobs {
		if other.AccountID != j.AccountID || !other.Type.Mutating() {
			continue
		}
		if other.State == StateActive {
			return true
		}
		if other.State == StateQueued && other.Seq < j.Seq {
			return true
		}
	}
	return false
}

// Complete removes a finished job.
func (q *MemQueue) Complete(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[id]; !ok {
		return ErrNoJob
	}
	delete(q.jobs, id)
	return nil
}

// Fail re-queues with backoff, or parks the job once attempts are spent.
func (q *MemQueue) Fail(_ context.Context, id string, jobErr error, p RetryPolicy, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return ErrNoJob
	}
	j.LastError = jobErr.Error()
	if j.Attempts >= p.MaxAttempts {
		j.State = StateDead
		return nil
	}
	j.State = StateQueued
	j.NotBefore = now.Add(p.Backoff(j.Attempts))
	return nil
}

// Kill parks a job immediately.
func (q *MemQueue) Kill(_ context.Context, id string, jobErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return ErrNoJob
	}
	j.LastError = jobErr.Error()
	j.State = StateDead
	return nil
}

// Cancel removes a job that has not started.
func (q *MemQueue) Cancel(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok || j.State != StateQueued {
		return ErrNotCancelable
	}
	delete(q.jobs, id)
	return nil
}

// DeadLetters lists parked jobs, oldest first.
func (q *MemQueue) DeadLetters(_ context.Context) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.collect(func(j *Job) bool { return j.State == StateDead }), nil
}

// Pending lists queued and active jobs for an account, oldest first.
func (q *MemQueue) Pending(_ context.Context, accountID string) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.collect(func(j *Job) bool {
		return j.AccountID == accountID &&
			(j.State == StateQueued || j.State == StateActive)
	}), nil
}

func (q *MemQueue) collect(keep func(*Job) bool) []*Job {
	var out []*Job
	for _, j := range q.jobs {
		if keep(j) {
			cp := *j
			out = append(out, &cp)
		}
	}
	// Insertion sort; queues stay small.
	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && out[k].Seq < out[k-1].Seq; k-- {
			out[k], out[k-1] = out[k-1], out[k]
		}
	}
	return out
}

// Recover re-queues jobs left active.  A fresh memory queue never has any;
// kept for interface symmetry so startup code treats both backends alike.
func (q *MemQueue) Recover(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.jobs {
		if j.State == StateActive {
			j.State = StateQueued
			n++
		}
	}
	return n, nil
}
