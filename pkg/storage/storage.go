// Package storage contains implementation independent mail store logic.
//
// The store is shared between the HTTP API (optimistic reads and writes)
// and the sync workers (authoritative writes).  Upserts from sync perform a
// field-level merge so local-only state survives; see mail.MergeRemote.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/mail"
)

var (
	// ErrNotExist indicates the requested record does not exist.
	ErrNotExist = errors.New("record does not exist")
)

// Store is the local mail store.  Emails are keyed by (account, messageID);
// the provider UID is unique only within (account, folder) and is carried
// as an attribute, not an identity.
type Store interface {
	// UpsertEmail merges a synced email into the store.  Returns true
	// when a new row was created, false when an existing row was merged.
	UpsertEmail(ctx context.Context, e *mail.Email) (created bool, err error)

	// GetEmail fetches one email; ErrNotExist when absent.
	GetEmail(ctx context.Context, accountID, messageID string) (*mail.Email, error)

	// GetEmails returns all emails for an account, unordered.
	GetEmails(ctx context.Context, accountID string) ([]*mail.Email, error)

	// ApplyLocal applies an optimistic field-level mutation to the given
	// messages.  Unknown message IDs are skipped.
	ApplyLocal(ctx context.Context, accountID string, messageIDs []string, m mail.LocalMutation) error

	// DeleteEmail removes the row entirely (purge; normal deletion is a
	// move to Trash).
	DeleteEmail(ctx context.Context, accountID, messageID string) error

	UpsertFolder(ctx context.Context, f *mail.Folder) error
	Folders(ctx context.Context, accountID string) ([]*mail.Folder, error)

	// HighWaterMark returns the highest UID seen for a folder, 0 when the
	// folder has never been synced.
	HighWaterMark(ctx context.Context, accountID, folder string) (uint32, error)
	SetHighWaterMark(ctx context.Context, accountID, folder string, uid uint32) error

	UpsertAccount(ctx context.Context, a *mail.Account) error
	Account(ctx context.Context, id string) (*mail.Account, error)
	Accounts(ctx context.Context) ([]*mail.Account, error)

	UpsertRule(ctx context.Context, r *mail.Rule) error
	Rules(ctx context.Context, accountID string) ([]*mail.Rule, error)

	// AutoReplied records that an autoresponse was sent to the given
	// sender, returning true only on the first call per (account, sender).
	AutoReplied(ctx context.Context, accountID, sender string) (first bool, err error)

	Close() error
}

// Constructor builds a Store from configuration.
type Constructor func(config.Storage) (Store, error)

// Constructors tracks the registered storage implementations.
var Constructors = make(map[string]Constructor)

// FromConfig creates the Store described by the configuration.
func FromConfig(c config.Storage) (Store, error) {
	if ctor, ok := Constructors[c.Type]; ok {
		return ctor(c)
	}
	return nil, fmt.Errorf("unknown storage type %q", c.Type)
}

// FindSpecialUse locates the folder playing the given system role for an
// account, falling back to a name match when the provider did not advertise
// special-use attributes.
func FindSpecialUse(ctx context.Context, s Store, accountID, use string) (*mail.Folder, error) {
	folders, err := s.Folders(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for _, f := range folders {
		if f.SpecialUse == use {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s folder for account %s", ErrNotExist, use, accountID)
}
