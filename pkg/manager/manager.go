// Package manager is the mailbox service behind the REST layer.  Reads
// project conversations from the store; mutations apply locally first,
// then enqueue the matching remote job and return without waiting.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftmail/driftmail/pkg/mail"
	"github.com/driftmail/driftmail/pkg/queue"
	"github.com/driftmail/driftmail/pkg/secure"
	"github.com/driftmail/driftmail/pkg/storage"
	"github.com/driftmail/driftmail/pkg/worker"
)

// Manager is the interface controllers use to interact with mailboxes.
type Manager interface {
	AddAccount(ctx context.Context, a *mail.Account, password string) error
	Accounts(ctx context.Context) ([]*mail.Account, error)
	ListConversations(ctx context.Context, accountID string, q mail.Query) ([]*mail.Conversation, error)
	SendEmail(ctx context.Context, msg *mail.Outgoing) (jobID string, err error)
	ScheduleSend(ctx context.Context, msg *mail.Outgoing, at time.Time) (jobID string, err error)
	CancelScheduledSend(ctx context.Context, jobID string) error
	Move(ctx context.Context, accountID string, conversationIDs []string, dest string) error
	Label(ctx context.Context, accountID string, conversationIDs []string, label string, add bool) error
	MarkRead(ctx context.Context, accountID string, conversationIDs []string, read bool) error
	Snooze(ctx context.Context, accountID string, conversationIDs []string, until time.Time) error
	Delete(ctx context.Context, accountID string, conversationIDs []string) error
	SyncNow(ctx context.Context, accountID string, full bool) error
	SendFailures(ctx context.Context) ([]*queue.Job, error)
	AddRule(ctx context.Context, r *mail.Rule) error
	Rules(ctx context.Context, accountID string) ([]*mail.Rule, error)
}

// Service is a Manager backed by the storage.Store and job queue.
type Service struct {
	Store  storage.Store
	Jobs   queue.Queue
	Keeper *secure.Keeper
}

var _ Manager = &Service{}

// AddAccount seals the password and registers the account, then kicks off
// a full sync.
func (s *Service) AddAccount(ctx context.Context, a *mail.Account, password string) error {
	sealed, err := s.Keeper.Seal([]byte(password))
	if err != nil {
		return fmt.Errorf("sealing credentials: %w", err)
	}
	a.SealedPassword = sealed
	if err := s.Store.UpsertAccount(ctx, a); err != nil {
		return fmt.Errorf("registering account: %w", err)
	}
	return s.SyncNow(ctx, a.ID, true)
}

// Accounts lists registered accounts.
func (s *Service) Accounts(ctx context.Context) ([]*mail.Account, error) {
	return s.Store.Accounts(ctx)
}

// ListConversations projects the account's conversations, newest-first,
// filtered by the query.
func (s *Service) ListConversations(ctx context.Context, accountID string, q mail.Query) ([]*mail.Conversation, error) {
	emails, err := s.Store.GetEmails(ctx, accountID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return mail.Filter(mail.Aggregate(emails, now), q, now), nil
}

// SendEmail queues a message for immediate submission.
func (s *Service) SendEmail(ctx context.Context, msg *mail.Outgoing) (string, error) {
	return s.enqueueSend(ctx, msg, time.Time{})
}

// ScheduleSend queues a message to fire at the given time.  Until then the
// job is cancelable, which implements undo-send.
func (s *Service) ScheduleSend(ctx context.Context, msg *mail.Outgoing, at time.Time) (string, error) {
	return s.enqueueSend(ctx, msg, at)
}

func (s *Service) enqueueSend(ctx context.Context, msg *mail.Outgoing, at time.Time) (string, error) {
	j, err := queue.New(queue.TypeSendEmail, msg.AccountID, worker.SendPayload{Outgoing: *msg})
	if err != nil {
		return "", err
	}
	j.NotBefore = at
	if err := s.Jobs.Enqueue(ctx, j); err != nil {
		return "", err
	}
	log.Debug().Str("module", "manager").Str("account", msg.AccountID).
		Str("job", j.ID).Time("at", at).Msg("Queued outgoing message")
	return j.ID, nil
}

// CancelScheduledSend recalls a send that has not fired.  An in-flight
// send is not preemptible; attempting to cancel one returns
// queue.ErrNotCancelable.
func (s *Service) CancelScheduledSend(ctx context.Context, jobID string) error {
	return s.Jobs.Cancel(ctx, jobID)
}

// members expands conversation IDs into refs for their member messages,
// snapshotting each message's folder and UID before any local mutation.
func (s *Service) members(ctx context.Context, accountID string, conversationIDs []string) ([]worker.MessageRef, error) {
	emails, err := s.Store.GetEmails(ctx, accountID)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(conversationIDs))
	for _, id := range conversationIDs {
		want[id] = true
	}
	var refs []worker.MessageRef
	for _, e := range emails {
		if want[e.ConversationID] {
			refs = append(refs, worker.RefOf(e))
		}
	}
	return refs, nil
}

// mutate applies the mutation locally, then enqueues the remote job built
// by makeJob (nil for local-only mutations like snooze).  makeJob receives
// the pre-mutation refs: a move rewrites FolderID locally, and the mirror
// must still address the folder the server knows.
func (s *Service) mutate(
	ctx context.Context,
	accountID string,
	conversationIDs []string,
	m mail.LocalMutation,
	makeJob func(refs []worker.MessageRef) (*queue.Job, error),
) error {
	refs, err := s.members(ctx, accountID, conversationIDs)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.MessageID
	}
	if err := s.Store.ApplyLocal(ctx, accountID, ids, m); err != nil {
		return err
	}
	if makeJob == nil {
		return nil
	}
	j, err := makeJob(refs)
	if err != nil {
		return err
	}
	return s.Jobs.Enqueue(ctx, j)
}

// Move relocates the conversations' messages to the destination folder.
func (s *Service) Move(ctx context.Context, accountID string, conversationIDs []string, dest string) error {
	return s.mutate(ctx, accountID, conversationIDs,
		mail.LocalMutation{SetFolder: &dest},
		func(refs []worker.MessageRef) (*queue.Job, error) {
			return queue.New(queue.TypeMoveToTrash, accountID, worker.MovePayload{
				Messages: refs,
				Dest:     dest,
			})
		})
}

// Label adds or removes a label.  Remote-backed labels also mirror to the
// server; purely local labels change nothing remotely.
func (s *Service) Label(ctx context.Context, accountID string, conversationIDs []string, label string, add bool) error {
	m := mail.LocalMutation{}
	if add {
		m.AddLabels = []string{label}
	} else {
		m.RemoveLabels = []string{label}
	}
	var makeJob func([]worker.MessageRef) (*queue.Job, error)
	if flag, ok := mail.RemoteFlagFor(label); ok {
		makeJob = func(refs []worker.MessageRef) (*queue.Job, error) {
			return queue.New(queue.TypeUpdateFlags, accountID, worker.FlagsPayload{
				Messages: refs,
				Add:      add,
				Flags:    []string{flag},
			})
		}
	}
	return s.mutate(ctx, accountID, conversationIDs, m, makeJob)
}

// MarkRead sets or clears the read state.
func (s *Service) MarkRead(ctx context.Context, accountID string, conversationIDs []string, read bool) error {
	return s.mutate(ctx, accountID, conversationIDs,
		mail.LocalMutation{SetRead: &read},
		func(refs []worker.MessageRef) (*queue.Job, error) {
			return queue.New(queue.TypeUpdateFlags, accountID, worker.FlagsPayload{
				Messages: refs,
				Add:      read,
				Flags:    []string{mail.FlagSeen},
			})
		})
}

// Snooze hides the conversations until the given time.  A zero time wakes
// them immediately.  Snooze state is local-only; nothing mirrors to the
// server.
func (s *Service) Snooze(ctx context.Context, accountID string, conversationIDs []string, until time.Time) error {
	snooze := !until.IsZero()
	return s.mutate(ctx, accountID, conversationIDs,
		mail.LocalMutation{SetSnooze: &snooze, SnoozeUntil: until},
		nil)
}

// Delete moves the conversations to the account's Trash folder.
func (s *Service) Delete(ctx context.Context, accountID string, conversationIDs []string) error {
	dest := "Trash"
	if trash, err := storage.FindSpecialUse(ctx, s.Store, accountID, mail.UseTrash); err == nil {
		dest = trash.Path
	}
	return s.Move(ctx, accountID, conversationIDs, dest)
}

// SyncNow enqueues a sync pass for the account.
func (s *Service) SyncNow(ctx context.Context, accountID string, full bool) error {
	j, err := queue.New(queue.TypeMailSync, accountID, worker.SyncPayload{Full: full})
	if err != nil {
		return err
	}
	return s.Jobs.Enqueue(ctx, j)
}

// SendFailures lists dead-lettered send jobs so permanently failed sends
// stay visible instead of vanishing.
func (s *Service) SendFailures(ctx context.Context) ([]*queue.Job, error) {
	dead, err := s.Jobs.DeadLetters(ctx)
	if err != nil {
		return nil, err
	}
	var fails []*queue.Job
	for _, j := range dead {
		if j.Type == queue.TypeSendEmail {
			fails = append(fails, j)
		}
	}
	return fails, nil
}

// AddRule stores a filter rule.
func (s *Service) AddRule(ctx context.Context, r *mail.Rule) error {
	return s.Store.UpsertRule(ctx, r)
}

// Rules lists the account's filter rules.
func (s *Service) Rules(ctx context.Context, accountID string) ([]*mail.Rule, error) {
	return s.Store.Rules(ctx, accountID)
}
