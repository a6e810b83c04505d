// Package worker implements the handlers behind each job type: sending
// mail, syncing accounts, and pushing local mutations back to the remote
// mailbox.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/mail"
	"github.com/driftmail/driftmail/pkg/msghub"
	"github.com/driftmail/driftmail/pkg/queue"
	"github.com/driftmail/driftmail/pkg/secure"
	"github.com/driftmail/driftmail/pkg/storage"
	"github.com/driftmail/driftmail/pkg/sync"
)

// Remote is the mutating side of the protocol adapter, used to mirror
// local changes back to the server.
type Remote interface {
	SetFlags(folder string, uids []uint32, add bool, flags []string) ([]mail.OpOutcome, error)
	Move(folder string, uids []uint32, dest string) ([]mail.OpOutcome, error)
	Append(folder string, raw []byte, flags []string) error
	Close() error
}

// RemoteDial opens a logged-in mutating session for an account.
type RemoteDial func(a *mail.Account, password string) (Remote, error)

// Sender submits an outgoing message, returning the raw bytes sent.
type Sender interface {
	Send(a *mail.Account, password string, msg *mail.Outgoing) ([]byte, error)
}

// Job payloads.
type (
	// SyncPayload selects full or incremental mode for a mail-sync job.
	SyncPayload struct {
		Full bool `json:"full,omitempty"`
	}

	// SendPayload carries the composed message of a send-email job.
	SendPayload struct {
		Outgoing mail.Outgoing `json:"outgoing"`
	}

	// MessageRef pins a message to the folder and UID it occupied when
	// the job was enqueued.  The optimistic local update has already
	// rewritten the stored record, so remote mirroring must target this
	// snapshot rather than the current FolderID.
	MessageRef struct {
		MessageID string `json:"messageId"`
		Folder    string `json:"folder"`
		UID       uint32 `json:"uid"`
	}

	// FlagsPayload adds or removes protocol flags on a set of messages.
	FlagsPayload struct {
		Messages []MessageRef `json:"messages"`
		Add      bool         `json:"add"`
		Flags    []string     `json:"flags"`
	}

	// MovePayload relocates a set of messages to a destination folder.
	MovePayload struct {
		Messages []MessageRef `json:"messages"`
		Dest     string       `json:"dest"`
	}

	// MessagesPayload names messages for rule-processing and
	// autoresponder jobs.
	MessagesPayload struct {
		MessageIDs []string `json:"messageIds"`
	}
)

// RefOf snapshots a message's current remote coordinates for a job payload.
func RefOf(e *mail.Email) MessageRef {
	return MessageRef{MessageID: e.MessageID, Folder: e.FolderID, UID: e.ID}
}

// Workers owns the dependencies shared by all handlers.
type Workers struct {
	store  storage.Store
	jobs   queue.Queue
	hub    *msghub.Hub
	engine *sync.Engine
	sender Sender
	keeper *secure.Keeper
	dial   RemoteDial
	cfg    config.Sync
}

// New wires up the worker set.
func New(
	store storage.Store,
	jobs queue.Queue,
	hub *msghub.Hub,
	engine *sync.Engine,
	sender Sender,
	keeper *secure.Keeper,
	dial RemoteDial,
	cfg config.Sync,
) *Workers {
	return &Workers{
		store:  store,
		jobs:   jobs,
		hub:    hub,
		engine: engine,
		sender: sender,
		keeper: keeper,
		dial:   dial,
		cfg:    cfg,
	}
}

// Register installs a handler for every job type on the pool.
func (w *Workers) Register(pool *queue.Pool) {
	pool.Handle(queue.TypeMailSync, w.MailSync)
	pool.Handle(queue.TypeSendEmail, w.SendEmail)
	pool.Handle(queue.TypeUpdateFlags, w.UpdateFlags)
	pool.Handle(queue.TypeMoveToTrash, w.MoveToTrash)
	pool.Handle(queue.TypeRuleProcess, w.ProcessRules)
	pool.Handle(queue.TypeAutoResponder, w.AutoRespond)
}

// credentials loads the account and decrypts its password.  The plaintext
// lives only for the duration of the calling handler.
func (w *Workers) credentials(ctx context.Context, accountID string) (*mail.Account, string, error) {
	a, err := w.store.Account(ctx, accountID)
	if err != nil {
		return nil, "", fmt.Errorf("loading account %s: %w", accountID, err)
	}
	password, err := w.keeper.OpenString(a.SealedPassword)
	if err != nil {
		return nil, "", fmt.Errorf("unsealing credentials for %s: %w", accountID, err)
	}
	return a, password, nil
}

// MailSync runs a sync pass and fans out follow-up jobs for messages seen
// for the first time.
func (w *Workers) MailSync(ctx context.Context, j *queue.Job) error {
	var p SyncPayload
	if len(j.Payload) > 0 {
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return fmt.Errorf("%w: decoding sync payload: %v", mail.ErrDataQuality, err)
		}
	}
	a, password, err := w.credentials(ctx, j.AccountID)
	if err != nil {
		return err
	}
	var sum *sync.Summary
	if p.Full {
		sum, err = w.engine.FullSync(ctx, a, password)
	} else {
		sum, err = w.engine.IncrementalSync(ctx, a, password)
	}
	if err != nil {
		return err
	}
	if len(sum.NewMessageIDs) == 0 {
		return nil
	}
	w.enqueueFollowups(ctx, j.AccountID, sum.NewMessageIDs)
	return nil
}

// enqueueFollowups schedules rule processing, and the autoresponder when
// configured, for newly synced messages.  Enqueue failures are logged, not
// fatal; the next sync pass will not see these messages as new again, but
// rules re-run harmlessly on demand.
func (w *Workers) enqueueFollowups(ctx context.Context, accountID string, messageIDs []string) {
	logger := log.With().Str("module", "worker").Str("account", accountID).Logger()
	followups := []queue.Type{queue.TypeRuleProcess}
	if w.cfg.AutoReply != "" {
		followups = append(followups, queue.TypeAutoResponder)
	}
	for _, t := range followups {
		j, err := queue.New(t, accountID, MessagesPayload{MessageIDs: messageIDs})
		if err == nil {
			err = w.jobs.Enqueue(ctx, j)
		}
		if err != nil {
			logger.Error().Err(err).Str("type", string(t)).Msg("Failed to enqueue follow-up job")
		}
	}
}

// SendEmail submits a composed message and files a copy into Sent.  The
// append is attempted only after the submission succeeds, so a retried
// job appends at most once per accepted transmission.  Delivery is
// at-least-once: a crash after acceptance but before completion resends.
func (w *Workers) SendEmail(ctx context.Context, j *queue.Job) error {
	var p SendPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return fmt.Errorf("%w: decoding send payload: %v", mail.ErrDataQuality, err)
	}
	a, password, err := w.credentials(ctx, j.AccountID)
	if err != nil {
		return err
	}
	raw, err := w.sender.Send(a, password, &p.Outgoing)
	if err != nil {
		w.hub.Dispatch(msghub.Event{
			Type:      msghub.EventSendFailed,
			AccountID: j.AccountID,
			Date:      time.Now(),
		})
		return err
	}
	w.appendToSent(ctx, a, password, raw)
	return nil
}

// appendToSent files the transmitted bytes into the account's Sent folder.
// Failure is logged rather than returned: failing the job would resend a
// message the relay already accepted.
func (w *Workers) appendToSent(ctx context.Context, a *mail.Account, password string, raw []byte) {
	logger := log.With().Str("module", "worker").Str("account", a.ID).Logger()
	sent, err := storage.FindSpecialUse(ctx, w.store, a.ID, mail.UseSent)
	if err != nil {
		logger.Warn().Err(err).Msg("No Sent folder known; skipping append")
		return
	}
	session, err := w.dial(a, password)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not connect to file sent message")
		return
	}
	defer session.Close()
	if err := session.Append(sent.Path, raw, []string{mail.FlagSeen}); err != nil {
		logger.Warn().Err(err).Str("folder", sent.Path).Msg("Failed to append sent message")
	}
}

// UpdateFlags mirrors a local flag mutation to the remote mailbox.  The
// optimistic local update already happened in the API layer; this handler
// converges the server, re-queuing a reconciliation sync if any UID fails.
func (w *Workers) UpdateFlags(ctx context.Context, j *queue.Job) error {
	var p FlagsPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return fmt.Errorf("%w: decoding flags payload: %v", mail.ErrDataQuality, err)
	}
	return w.remoteBatch(ctx, j.AccountID, p.Messages, func(session Remote, folder string, uids []uint32) ([]mail.OpOutcome, error) {
		return session.SetFlags(folder, uids, p.Add, p.Flags)
	})
}

// MoveToTrash relocates messages remotely after the optimistic local move.
func (w *Workers) MoveToTrash(ctx context.Context, j *queue.Job) error {
	var p MovePayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return fmt.Errorf("%w: decoding move payload: %v", mail.ErrDataQuality, err)
	}
	return w.remoteBatch(ctx, j.AccountID, p.Messages, func(session Remote, folder string, uids []uint32) ([]mail.OpOutcome, error) {
		return session.Move(folder, uids, p.Dest)
	})
}

// remoteBatch groups the refs by the folder each message occupied at
// enqueue time and applies op per group.  Per-UID failures trigger a
// reconciliation sync so local and remote state converge instead of
// drifting.
func (w *Workers) remoteBatch(
	ctx context.Context,
	accountID string,
	refs []MessageRef,
	op func(session Remote, folder string, uids []uint32) ([]mail.OpOutcome, error),
) error {
	logger := log.With().Str("module", "worker").Str("account", accountID).Logger()
	a, password, err := w.credentials(ctx, accountID)
	if err != nil {
		return err
	}

	byFolder := make(map[string][]uint32)
	var order []string
	for _, ref := range refs {
		if _, err := w.store.GetEmail(ctx, accountID, ref.MessageID); err != nil {
			// Deleted locally since enqueue; nothing to mirror.
			logger.Debug().Str("messageId", ref.MessageID).Msg("Message gone before remote update")
			continue
		}
		if _, ok := byFolder[ref.Folder]; !ok {
			order = append(order, ref.Folder)
		}
		byFolder[ref.Folder] = append(byFolder[ref.Folder], ref.UID)
	}
	if len(byFolder) == 0 {
		return nil
	}

	session, err := w.dial(a, password)
	if err != nil {
		return err
	}
	defer session.Close()

	failures := 0
	for _, folder := range order {
		outcomes, err := op(session, folder, byFolder[folder])
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			if o.Err != nil {
				logger.Warn().Err(o.Err).Uint32("uid", o.UID).Str("folder", folder).
					Msg("Remote update failed for message")
				failures++
			}
		}
	}
	if failures > 0 {
		w.enqueueReconciliation(ctx, accountID)
	}
	return nil
}

// enqueueReconciliation schedules a sync pass to pull authoritative state
// after a partial remote failure.
func (w *Workers) enqueueReconciliation(ctx context.Context, accountID string) {
	j, err := queue.New(queue.TypeMailSync, accountID, nil)
	if err == nil {
		err = w.jobs.Enqueue(ctx, j)
	}
	if err != nil {
		log.Error().Str("module", "worker").Str("account", accountID).Err(err).
			Msg("Failed to enqueue reconciliation sync")
	}
}
