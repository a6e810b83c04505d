// Package sync pulls remote mailbox state into the local store.  Sync is
// idempotent: messages are keyed by their global identity, so replays and
// cross-folder moves update in place instead of duplicating.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/mail"
	"github.com/driftmail/driftmail/pkg/msghub"
	"github.com/driftmail/driftmail/pkg/storage"
)

// Adapter is the protocol session the engine drives.  Implemented by
// pkg/imap; tests substitute a fake.
type Adapter interface {
	ListMailboxes() ([]*mail.Folder, error)
	FetchRecent(folder string, n uint32) ([]*mail.RawMessage, error)
	FetchSince(folder string, sinceUID uint32) ([]*mail.RawMessage, error)
	Close() error
}

// DialFunc opens a logged-in session for an account.
type DialFunc func(a *mail.Account, password string) (Adapter, error)

// Summary reports what a sync pass did.
type Summary struct {
	Folders int
	Fetched int
	Skipped int

	// NewMessageIDs identifies messages seen for the first time, in
	// fetch order.  The caller feeds these to rule processing.
	NewMessageIDs []string
}

// Engine normalizes and persists fetched mail.
type Engine struct {
	store storage.Store
	hub   *msghub.Hub
	dial  DialFunc
	cfg   config.IMAP
}

// NewEngine builds a sync engine over the given store and hub.
func NewEngine(store storage.Store, hub *msghub.Hub, dial DialFunc, cfg config.IMAP) *Engine {
	return &Engine{store: store, hub: hub, dial: dial, cfg: cfg}
}

// FullSync enumerates every folder and fetches a bounded window of recent
// messages from each.  Used on first contact with an account.
func (e *Engine) FullSync(ctx context.Context, a *mail.Account, password string) (*Summary, error) {
	return e.sync(ctx, a, password, false)
}

// IncrementalSync fetches only messages above each folder's high-water
// mark.  Used on the periodic schedule.
func (e *Engine) IncrementalSync(ctx context.Context, a *mail.Account, password string) (*Summary, error) {
	return e.sync(ctx, a, password, true)
}

func (e *Engine) sync(ctx context.Context, a *mail.Account, password string, incremental bool) (*Summary, error) {
	logger := log.With().Str("module", "sync").Str("account", a.ID).Logger()
	session, err := e.dial(a, password)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	folders, err := session.ListMailboxes()
	if err != nil {
		return nil, err
	}
	sum := &Summary{}
	for _, f := range folders {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := e.store.UpsertFolder(ctx, f); err != nil {
			return sum, fmt.Errorf("recording folder %s: %w", f.Path, err)
		}
		sum.Folders++

		var raws []*mail.RawMessage
		if incremental {
			mark, err := e.store.HighWaterMark(ctx, a.ID, f.Path)
			if err != nil {
				return sum, err
			}
			raws, err = session.FetchSince(f.Path, mark)
			if err != nil {
				return sum, err
			}
		} else {
			raws, err = session.FetchRecent(f.Path, uint32(e.cfg.FetchWindow))
			if err != nil {
				return sum, err
			}
		}
		if err := e.ingest(ctx, a.ID, f.Path, raws, sum); err != nil {
			return sum, err
		}
	}
	logger.Info().Bool("incremental", incremental).Int("folders", sum.Folders).
		Int("fetched", sum.Fetched).Int("new", len(sum.NewMessageIDs)).
		Int("skipped", sum.Skipped).Msg("Sync pass complete")
	e.hub.Dispatch(msghub.Event{
		Type:      msghub.EventSyncComplete,
		AccountID: a.ID,
		Date:      time.Now(),
	})
	return sum, nil
}

// ingest normalizes and stores one folder's fetched messages.  A message
// that cannot be normalized is logged and skipped; one bad message must
// not abort the folder.
func (e *Engine) ingest(ctx context.Context, accountID, folder string, raws []*mail.RawMessage, sum *Summary) error {
	logger := log.With().Str("module", "sync").Str("account", accountID).
		Str("folder", folder).Logger()
	var maxUID uint32
	for _, raw := range raws {
		sum.Fetched++
		if raw.UID > maxUID {
			maxUID = raw.UID
		}
		email, err := mail.Normalize(raw)
		if errors.Is(err, mail.ErrDataQuality) {
			logger.Warn().Err(err).Uint32("uid", raw.UID).Msg("Skipping malformed message")
			sum.Skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("normalizing uid %d: %w", raw.UID, err)
		}
		created, err := e.store.UpsertEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("storing %s: %w", email.MessageID, err)
		}
		if created {
			sum.NewMessageIDs = append(sum.NewMessageIDs, email.MessageID)
			e.hub.Dispatch(msghub.Event{
				Type:           msghub.EventNewEmail,
				AccountID:      accountID,
				ConversationID: email.ConversationID,
				MessageID:      email.MessageID,
				Date:           email.Date,
			})
		}
	}
	if maxUID > 0 {
		if err := e.store.SetHighWaterMark(ctx, accountID, folder, maxUID); err != nil {
			return fmt.Errorf("recording high-water mark for %s: %w", folder, err)
		}
	}
	return nil
}
