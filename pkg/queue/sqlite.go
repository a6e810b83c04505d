package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLQueue is a durable Queue sharing the SQLite database with the mail
// store.  Jobs survive restarts; Recover returns interrupted ones to the
// queue.
type SQLQueue struct {
	db *sqlx.DB
}

var _ Queue = &SQLQueue{}

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	account_id TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	state TEXT NOT NULL DEFAULT 'queued',
	not_before TIMESTAMP,
	last_error TEXT NOT NULL DEFAULT '',
	enqueued TIMESTAMP NOT NULL,
	mutating INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS jobs_by_state ON jobs (state, seq);
CREATE INDEX IF NOT EXISTS jobs_by_account ON jobs (account_id, state);
`

// NewSQLQueue prepares the jobs table on an already opened database.
func NewSQLQueue(db *sqlx.DB) (*SQLQueue, error) {
	if _, err := db.Exec(jobsSchema); err != nil {
		return nil, fmt.Errorf("creating jobs table: %w", err)
	}
	return &SQLQueue{db: db}, nil
}

type jobRow struct {
	Seq       int64        `db:"seq"`
	ID        string       `db:"id"`
	Type      string       `db:"type"`
	AccountID string       `db:"account_id"`
	Payload   string       `db:"payload"`
	Attempts  int          `db:"attempts"`
	State     string       `db:"state"`
	NotBefore sql.NullTime `db:"not_before"`
	LastError string       `db:"last_error"`
	Enqueued  time.Time    `db:"enqueued"`
	Mutating  bool         `db:"mutating"`
}

func (r *jobRow) toJob() *Job {
	j := &Job{
		Seq:       r.Seq,
		ID:        r.ID,
		Type:      Type(r.Type),
		AccountID: r.AccountID,
		Attempts:  r.Attempts,
		State:     State(r.State),
		LastError: r.LastError,
		Enqueued:  r.Enqueued,
	}
	if r.Payload != "" {
		j.Payload = []byte(r.Payload)
	}
	if r.NotBefore.Valid {
		j.NotBefore = r.NotBefore.Time
	}
	return j
}

// Enqueue adds a job.
func (q *SQLQueue) Enqueue(ctx context.Context, j *Job) error {
	enqueued := j.Enqueued
	if enqueued.IsZero() {
		enqueued = time.Now()
	}
	var notBefore sql.NullTime
	if !j.NotBefore.IsZero() {
		notBefore = sql.NullTime{Time: j.NotBefore.UTC(), Valid: true}
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, account_id, payload, attempts, state,
			not_before, last_error, enqueued, mutating)
		VALUES (?, ?, ?, ?, 0, 'queued', ?, '', ?, ?)`,
		j.ID, string(j.Type), j.AccountID, string(j.Payload),
		notBefore, enqueued.UTC(), j.Type.Mutating())
	return err
}

// dequeueSQL selects the oldest runnable job.  A mutating job waits until
// no sibling mutating job for its account is active or queued ahead of it.
const dequeueSQL = `
SELECT * FROM jobs j
WHERE j.state = 'queued'
  AND (j.not_before IS NULL OR j.not_before <= ?)
  AND (j.mutating = 0 OR (
	NOT EXISTS (SELECT 1 FROM jobs a
		WHERE a.account_id = j.account_id AND a.mutating = 1 AND a.state = 'active')
	AND NOT EXISTS (SELECT 1 FROM jobs p
		WHERE p.account_id = j.account_id AND p.mutating = 1
		AND p.state = 'queued' AND p.seq < j.seq)
  ))
ORDER BY j.seq LIMIT 1`

// Dequeue returns the next eligible job marked active, or nil.
func (q *SQLQueue) Dequeue(ctx context.Context, now time.Time) (*Job, error) {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var r jobRow
	err = tx.GetContext(ctx, &r, dequeueSQL, now.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE jobs SET state = 'active', attempts = attempts + 1 WHERE id = ?", r.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	j := r.toJob()
	j.State = StateActive
	j.Attempts++
	return j, nil
}

// Complete removes a finished job.
func (q *SQLQueue) Complete(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return err
	}
	return affectedOr(res, ErrNoJob)
}

// Fail re-queues with backoff, or parks the job once attempts are spent.
func (q *SQLQueue) Fail(ctx context.Context, id string, jobErr error, p RetryPolicy, now time.Time) error {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var attempts int
	err = tx.GetContext(ctx, &attempts, "SELECT attempts FROM jobs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoJob
	}
	if err != nil {
		return err
	}
	if attempts >= p.MaxAttempts {
		_, err = tx.ExecContext(ctx,
			"UPDATE jobs SET state = 'dead', last_error = ? WHERE id = ?",
			jobErr.Error(), id)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET state = 'queued', last_error = ?, not_before = ?
			WHERE id = ?`,
			jobErr.Error(), now.Add(p.Backoff(attempts)).UTC(), id)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Kill parks a job immediately.
func (q *SQLQueue) Kill(ctx context.Context, id string, jobErr error) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE jobs SET state = 'dead', last_error = ? WHERE id = ?", jobErr.Error(), id)
	if err != nil {
		return err
	}
	return affectedOr(res, ErrNoJob)
}

// Cancel removes a job that has not started.
func (q *SQLQueue) Cancel(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx,
		"DELETE FROM jobs WHERE id = ? AND state = 'queued'", id)
	if err != nil {
		return err
	}
	return affectedOr(res, ErrNotCancelable)
}

// DeadLetters lists parked jobs, oldest first.
func (q *SQLQueue) DeadLetters(ctx context.Context) ([]*Job, error) {
	return q.selectJobs(ctx,
		"SELECT * FROM jobs WHERE state = 'dead' ORDER BY seq")
}

// Pending lists queued and active jobs for an account, oldest first.
func (q *SQLQueue) Pending(ctx context.Context, accountID string) ([]*Job, error) {
	return q.selectJobs(ctx,
		"SELECT * FROM jobs WHERE account_id = ? AND state IN ('queued', 'active') ORDER BY seq",
		accountID)
}

// Recover re-queues jobs a dead process left active.
func (q *SQLQueue) Recover(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx,
		"UPDATE jobs SET state = 'queued' WHERE state = 'active'")
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (q *SQLQueue) selectJobs(ctx context.Context, query string, args ...interface{}) ([]*Job, error) {
	var rows []jobRow
	if err := q.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	jobs := make([]*Job, len(rows))
	for i := range rows {
		jobs[i] = rows[i].toJob()
	}
	return jobs, nil
}

func affectedOr(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
