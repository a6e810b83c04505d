package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftmail/driftmail/pkg/queue"
	"github.com/driftmail/driftmail/pkg/storage/sqlite"
)

// queueFactory returns a fresh queue per sub-test.
type queueFactory func(t *testing.T) queue.Queue

func implementations(t *testing.T) map[string]queueFactory {
	return map[string]queueFactory{
		"memory": func(t *testing.T) queue.Queue {
			return queue.NewMemQueue()
		},
		"sqlite": func(t *testing.T) queue.Queue {
			db, err := sqlite.Open(filepath.Join(t.TempDir(), "queue.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			q, err := queue.NewSQLQueue(db)
			require.NoError(t, err)
			return q
		},
	}
}

func forEach(t *testing.T, test func(t *testing.T, q queue.Queue)) {
	for name, factory := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			test(t, factory(t))
		})
	}
}

func mustJob(t *testing.T, typ queue.Type, account string) *queue.Job {
	j, err := queue.New(typ, account, nil)
	require.NoError(t, err)
	return j
}

func TestEnqueueDequeue(t *testing.T) {
	forEach(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		now := time.Now()
		j := mustJob(t, queue.TypeSendEmail, "acct1")
		require.NoError(t, q.Enqueue(ctx, j))

		got, err := q.Dequeue(ctx, now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, j.ID, got.ID)
		assert.Equal(t, queue.StateActive, got.State)
		assert.Equal(t, 1, got.Attempts)

		// An active job is not handed out twice.
		again, err := q.Dequeue(ctx, now)
		require.NoError(t, err)
		assert.Nil(t, again)

		require.NoError(t, q.Complete(ctx, j.ID))
		pending, err := q.Pending(ctx, "acct1")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

func TestFIFOOrder(t *testing.T) {
	forEach(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		now := time.Now()
		first := mustJob(t, queue.TypeSendEmail, "acct1")
		second := mustJob(t, queue.TypeSendEmail, "acct1")
		require.NoError(t, q.Enqueue(ctx, first))
		require.NoError(t, q.Enqueue(ctx, second))

		got, err := q.Dequeue(ctx, now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)
	})
}

func TestNotBeforeDelaysEligibility(t *testing.T) {
	forEach(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		now := time.Now()
		j := mustJob(t, queue.TypeSendEmail, "acct1")
		j.NotBefore = now.Add(time.Hour)
		require.NoError(t, q.Enqueue(ctx, j))

		got, err := q.Dequeue(ctx, now)
		require.NoError(t, err)
		assert.Nil(t, got, "scheduled job must not fire early")

		got, err = q.Dequeue(ctx, now.Add(2*time.Hour))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, j.ID, got.ID)
	})
}

// TestMutatingSerialization verifies that two mutating jobs for one account
// never run concurrently and come out in enqueue order, while another
// account's work proceeds.
func TestMutatingSerialization(t *testing.T) {
	forEach(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		now := time.Now()
		move := mustJob(t, queue.TypeMoveToTrash, "acct1")
		flags := mustJob(t, queue.TypeUpdateFlags, "acct1")
		other := mustJob(t, queue.TypeMailSync, "acct2")
		require.NoError(t, q.Enqueue(ctx, move))
		require.NoError(t, q.Enqueue(ctx, flags))
		require.NoError(t, q.Enqueue(ctx, other))

		got, err := q.Dequeue(ctx, now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, move.ID, got.ID)

		// acct1 is busy; next out is acct2's job.
		got, err = q.Dequeue(ctx, now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, other.ID, got.ID)

		// Nothing further until the move settles.
		got, err = q.Dequeue(ctx, now)
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, q.Complete(ctx, move.ID))
		got, err = q.Dequeue(ctx, now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, flags.ID, got.ID)
	})
}

// TestRetryBlocksLaterMutations verifies a mutating job waiting out its
// backoff still holds its place in the account's order.
func TestRetryBlocksLaterMutations(t *testing.T) {
	forEach(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		now := time.Now()
		policy := queue.RetryPolicy{
			MaxAttempts: 3,
			Backoff:     queue.ExponentialBackoff(time.Minute),
		}
		move := mustJob(t, queue.TypeMoveToTrash, "acct1")
		flags := mustJob(t, queue.TypeUpdateFlags, "acct1")
		require.NoError(t, q.Enqueue(ctx, move))
		require.NoError(t, q.Enqueue(ctx, flags))

		got, err := q.Dequeue(ctx, now)
		require.NoError(t, err)
		require.Equal(t, move.ID, got.ID)
		require.NoError(t, q.Fail(ctx, move.ID, errors.New("connection reset"), policy, now))

		// The later flag update must not jump the queue during backoff.
		got, err = q.Dequeue(ctx, now)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = q.Dequeue(ctx, now.Add(2*time.Minute))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, move.ID, got.ID)
		assert.Equal(t, 2, got.Attempts)
	})
}

func TestBackoffThenDeadLetter(t *testing.T) {
	forEach(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		now := time.Now()
		policy := queue.RetryPolicy{
			MaxAttempts: 2,
			Backoff:     queue.ExponentialBackoff(time.Second),
		}
		j := mustJob(t, queue.TypeSendEmail, "acct1")
		require.NoError(t, q.Enqueue(ctx, j))

		got, err := q.Dequeue(ctx, now)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NoError(t, q.Fail(ctx, j.ID, errors.New("greylisted"), policy, now))

		// First failure reschedules.
		dead, err := q.DeadLetters(ctx)
		require.NoError(t, err)
		assert.Empty(t, dead)

		got, err = q.Dequeue(ctx, now.Add(2*time.Second))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 2, got.Attempts)
		require.NoError(t, q.Fail(ctx, j.ID, errors.New("greylisted"), policy, now))

		// Second failure exhausts the policy.
		dead, err = q.DeadLetters(ctx)
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Equal(t, j.ID, dead[0].ID)
		assert.Equal(t, "greylisted", dead[0].LastError)

		got, err = q.Dequeue(ctx, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Nil(t, got, "dead job must not be handed out")
	})
}

func TestKillSkipsRetries(t *testing.T) {
	forEach(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		j := mustJob(t, queue.TypeMailSync, "acct1")
		require.NoError(t, q.Enqueue(ctx, j))
		got, err := q.Dequeue(ctx, time.Now())
		require.NoError(t, err)
		require.NotNil(t, got)

		require.NoError(t, q.Kill(ctx, j.ID, errors.New("authentication rejected")))
		dead, err := q.DeadLetters(ctx)
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Equal(t, 1, dead[0].Attempts)
	})
}

func TestCancelQueuedOnly(t *testing.T) {
	forEach(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		j := mustJob(t, queue.TypeSendEmail, "acct1")
		j.NotBefore = time.Now().Add(time.Hour)
		require.NoError(t, q.Enqueue(ctx, j))

		require.NoError(t, q.Cancel(ctx, j.ID))
		pending, err := q.Pending(ctx, "acct1")
		require.NoError(t, err)
		assert.Empty(t, pending)

		// Active jobs cannot be recalled.
		running := mustJob(t, queue.TypeSendEmail, "acct1")
		require.NoError(t, q.Enqueue(ctx, running))
		got, err := q.Dequeue(ctx, time.Now())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.ErrorIs(t, q.Cancel(ctx, running.ID), queue.ErrNotCancelable)
	})
}

func TestRecoverRequeuesActive(t *testing.T) {
	forEach(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		j := mustJob(t, queue.TypeMailSync, "acct1")
		require.NoError(t, q.Enqueue(ctx, j))
		got, err := q.Dequeue(ctx, time.Now())
		require.NoError(t, err)
		require.NotNil(t, got)

		n, err := q.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err = q.Dequeue(ctx, time.Now())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, j.ID, got.ID)
	})
}

func TestPayloadRoundTrip(t *testing.T) {
	forEach(t, func(t *testing.T, q queue.Queue) {
		ctx := context.Background()
		type payload struct {
			MessageIDs []string `json:"messageIds"`
		}
		j, err := queue.New(queue.TypeUpdateFlags, "acct1", payload{
			MessageIDs: []string{"<m1@example.com>"},
		})
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(ctx, j))

		got, err := q.Dequeue(ctx, time.Now())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.JSONEq(t, `{"messageIds":["<m1@example.com>"]}`, string(got.Payload))
	})
}
