// Package mem implements an in-memory mail store, suitable for tests and
// ephemeral deployments.
package mem

import (
	"context"
	"sync"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/mail"
	"github.com/driftmail/driftmail/pkg/storage"
)

// Store implements an in-memory mail store.  Locking is per account so a
// slow sync on one account does not stall reads on another.
type Store struct {
	sync.Mutex
	accounts map[string]*acct
	registry map[string]*mail.Account
}

type acct struct {
	sync.RWMutex
	emails  map[string]*mail.Email  // keyed by messageID
	folders map[string]*mail.Folder // keyed by path
	marks   map[string]uint32       // folder path -> high-water UID
	rules   map[string]*mail.Rule
	replied map[string]struct{} // autoresponder recipients
}

var _ storage.Store = &Store{}

// New returns an empty memory store.
func New(config.Storage) (storage.Store, error) {
	return &Store{
		accounts: make(map[string]*acct),
		registry: make(map[string]*mail.Account),
	}, nil
}

// UpsertEmail merges a synced email into the store, keyed by messageID so a
// message re-fetched after a move updates in place instead of duplicating.
func (s *Store) UpsertEmail(_ context.Context, e *mail.Email) (created bool, err error) {
	s.withAccount(e.AccountID, true, func(a *acct) {
		existing := a.emails[e.MessageID]
		merged := mail.MergeRemote(existing, e)
		cp := *merged
		a.emails[e.MessageID] = &cp
		created = existing == nil
	})
	return created, nil
}

// GetEmail fetches one email by messageID.
func (s *Store) GetEmail(_ context.Context, accountID, messageID string) (e *mail.Email, err error) {
	s.withAccount(accountID, false, func(a *acct) {
		if found, ok := a.emails[messageID]; ok {
			cp := *found
			e = &cp
		}
	})
	if e == nil {
		return nil, storage.ErrNotExist
	}
	return e, nil
}

// GetEmails returns copies of all emails for an account.
func (s *Store) GetEmails(_ context.Context, accountID string) (es []*mail.Email, err error) {
	s.withAccount(accountID, false, func(a *acct) {
		es = make([]*mail.Email, 0, len(a.emails))
		for _, e := range a.emails {
			cp := *e
			es = append(es, &cp)
		}
	})
	return es, nil
}

// ApplyLocal applies an optimistic mutation to the given messages.
func (s *Store) ApplyLocal(
	_ context.Context, accountID string, messageIDs []string, m mail.LocalMutation,
) error {
	s.withAccount(accountID, true, func(a *acct) {
		for _, id := range messageIDs {
			if e, ok := a.emails[id]; ok {
				m.Apply(e)
			}
		}
	})
	return nil
}

// DeleteEmail removes a row entirely.
func (s *Store) DeleteEmail(_ context.Context, accountID, messageID string) error {
	s.withAccount(accountID, true, func(a *acct) {
		delete(a.emails, messageID)
	})
	return nil
}

// UpsertFolder records a folder seen during mailbox enumeration.
func (s *Store) UpsertFolder(_ context.Context, f *mail.Folder) error {
	s.withAccount(f.AccountID, true, func(a *acct) {
		cp := *f
		a.folders[f.Path] = &cp
	})
	return nil
}

// Folders lists known folders for an account.
func (s *Store) Folders(_ context.Context, accountID string) (fs []*mail.Folder, err error) {
	s.withAccount(accountID, false, func(a *acct) {
		fs = make([]*mail.Folder, 0, len(a.folders))
		for _, f := range a.folders {
			cp := *f
			fs = append(fs, &cp)
		}
	})
	return fs, nil
}

// HighWaterMark returns the highest UID synced for a folder.
func (s *Store) HighWaterMark(_ context.Context, accountID, folder string) (uid uint32, err error) {
	s.withAccount(accountID, false, func(a *acct) {
		uid = a.marks[folder]
	})
	return uid, nil
}

// SetHighWaterMark records the sync progress for a folder.  A lower mark
// never overwrites a higher one; sync is idempotent under replays.
func (s *Store) SetHighWaterMark(_ context.Context, accountID, folder string, uid uint32) error {
	s.withAccount(accountID, true, func(a *acct) {
		if uid > a.marks[folder] {
			a.marks[folder] = uid
		}
	})
	return nil
}

// UpsertAccount registers an account.
func (s *Store) UpsertAccount(_ context.Context, a *mail.Account) error {
	s.Lock()
	defer s.Unlock()
	cp := *a
	s.registry[a.ID] = &cp
	return nil
}

// Account fetches one account.
func (s *Store) Account(_ context.Context, id string) (*mail.Account, error) {
	s.Lock()
	defer s.Unlock()
	a, ok := s.registry[id]
	if !ok {
		return nil, storage.ErrNotExist
	}
	cp := *a
	return &cp, nil
}

// Accounts lists registered accounts.
func (s *Store) Accounts(_ context.Context) ([]*mail.Account, error) {
	s.Lock()
	defer s.Unlock()
	as := make([]*mail.Account, 0, len(s.registry))
	for _, a := range s.registry {
		cp := *a
		as = append(as, &cp)
	}
	return as, nil
}

// UpsertRule stores a user rule.
func (s *Store) UpsertRule(_ context.Context, r *mail.Rule) error {
	s.withAccount(r.AccountID, true, func(a *acct) {
		cp := *r
		a.rules[r.ID] = &cp
	})
	return nil
}

// Rules lists rules for an account.
func (s *Store) Rules(_ context.Context, accountID string) (rs []*mail.Rule, err error) {
	s.withAccount(accountID, false, func(a *acct) {
		rs = make([]*mail.Rule, 0, len(a.rules))
		for _, r := range a.rules {
			cp := *r
			rs = append(rs, &cp)
		}
	})
	return rs, nil
}

// AutoReplied returns true only the first time a sender is recorded.
func (s *Store) AutoReplied(_ context.Context, accountID, sender string) (first bool, err error) {
	s.withAccount(accountID, true, func(a *acct) {
		if _, seen := a.replied[sender]; !seen {
			a.replied[sender] = struct{}{}
			first = true
		}
	})
	return first, nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() error {
	return nil
}

// withAccount gets or creates per-account state, locks it, then calls f.
func (s *Store) withAccount(accountID string, writeLock bool, f func(a *acct)) {
	s.Lock()
	a, ok := s.accounts[accountID]
	if !ok {
		a = &acct{
			emails:  make(map[string]*mail.Email),
			folders: make(map[string]*mail.Folder),
			marks:   make(map[string]uint32),
			rules:   make(map[string]*mail.Rule),
			replied: make(map[string]struct{}),
		}
		s.accounts[accountID] = a
	}
	s.Unlock()
	if writeLock {
		a.Lock()
		defer a.Unlock()
	} else {
		a.RLock()
		defer a.RUnlock()
	}
	f(a)
}
