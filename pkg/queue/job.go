// Package queue implements the durable job queue and the worker pool that
// drains it.  Every mutation of a remote mailbox flows through here so that
// failures retry with backoff instead of being lost.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of work a job carries.
type Type string

// Job types.
const (
	TypeMailSync      Type = "mail-sync"
	TypeSendEmail     Type = "send-email"
	TypeUpdateFlags   Type = "update-flags"
	TypeMoveToTrash   Type = "move-to-trash"
	TypeRuleProcess   Type = "rule-processing"
	TypeAutoResponder Type = "autoresponder"
)

// Mutating reports whether jobs of this type touch the remote mailbox state
// for an account.  Mutating jobs for one account run serially and in
// enqueue order; a flag update enqueued after a move must see the move's
// result.
func (t Type) Mutating() bool {
	switch t {
	case TypeMailSync, TypeUpdateFlags, TypeMoveToTrash:
		return true
	}
	return false
}

// State is the lifecycle position of a job.
type State string

// Job states.  A failed job returns to StateQueued with a future NotBefore
// until its attempts are exhausted, then parks in StateDead.
const (
	StateQueued    State = "queued"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateDead      State = "dead"
)

// Job is one unit of queued work.
type Job struct {
	ID        string          `db:"id" json:"id"`
	Type      Type            `db:"type" json:"type"`
	AccountID string          `db:"account_id" json:"accountId"`
	Payload   json.RawMessage `db:"payload" json:"payload,omitempty"`
	Attempts  int             `db:"attempts" json:"attempts"`
	State     State           `db:"state" json:"state"`
	NotBefore time.Time       `db:"not_before" json:"notBefore"`
	LastError string          `db:"last_error" json:"lastError,omitempty"`
	Enqueued  time.Time       `db:"enqueued" json:"enqueued"`

	// Seq orders jobs within the queue; assigned at enqueue.
	Seq int64 `db:"seq" json:"-"`
}

// New builds a job ready to enqueue.  The payload must marshal cleanly;
// callers pass their own payload structs.
func New(t Type, accountID string, payload interface{}) (*Job, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Job{
		ID:        uuid.NewString(),
		Type:      t,
		AccountID: accountID,
		Payload:   raw,
		State:     StateQueued,
	}, nil
}

// Backoff maps a completed attempt count to the delay before the next try.
type Backoff func(attempts int) time.Duration

// ExponentialBackoff doubles the base delay per prior attempt.
func ExponentialBackoff(base time.Duration) Backoff {
	return func(attempts int) time.Duration {
		d := base
		for i := 1; i < attempts; i++ {
			d *= 2
		}
		return d
	}
}

// RetryPolicy bounds how a failing job is retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     Backoff
}

// DefaultRetryPolicy matches the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(5 * time.Second),
	}
}
