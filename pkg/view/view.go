// Package view is the client-side read model: an explicit state store over
// the authoritative email list plus the current filter and selection.
// Mutation goes through methods; reads of the conversation list are a pure
// projection of held state, so the same inputs always render the same view.
package view

import (
	"sync"
	"time"

	"github.com/driftmail/driftmail/pkg/mail"
)

// State is a snapshot of everything the projection depends on.
type State struct {
	Emails   []*mail.Email
	Query    mail.Query
	Selected map[string]bool // conversation IDs
}

// Store holds view state and notifies subscribers on change.
type Store struct {
	mu       sync.RWMutex
	emails   map[string]*mail.Email // keyed by messageID
	query    mail.Query
	selected map[string]bool
	subs     []chan struct{}
}

// NewStore returns an empty view store.
func NewStore() *Store {
	return &Store{
		emails:   make(map[string]*mail.Email),
		selected: make(map[string]bool),
	}
}

// Subscribe returns a channel that receives a tick after every mutation.
// Notification is best-effort: a slow subscriber coalesces ticks instead
// of blocking mutations.
func (s *Store) Subscribe() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, 1)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Store) notify() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// SetEmails replaces the authoritative email list, as after a re-query
// triggered by a sync-complete event.
func (s *Store) SetEmails(emails []*mail.Email) {
	s.mu.Lock()
	s.emails = make(map[string]*mail.Email, len(emails))
	for _, e := range emails {
		cp := *e
		s.emails[e.MessageID] = &cp
	}
	s.mu.Unlock()
	s.notify()
}

// UpsertEmail merges one email into the list.
func (s *Store) UpsertEmail(e *mail.Email) {
	s.mu.Lock()
	cp := *e
	s.emails[e.MessageID] = &cp
	s.mu.Unlock()
	s.notify()
}

// RemoveEmails drops messages from the list.
func (s *Store) RemoveEmails(messageIDs ...string) {
	s.mu.Lock()
	for _, id := range messageIDs {
		delete(s.emails, id)
	}
	s.mu.Unlock()
	s.notify()
}

// SetQuery replaces the active filter.
func (s *Store) SetQuery(q mail.Query) {
	s.mu.Lock()
	s.query = q
	s.selected = make(map[string]bool)
	s.mu.Unlock()
	s.notify()
}

// ToggleSelect flips a conversation's selection.
func (s *Store) ToggleSelect(conversationID string) {
	s.mu.Lock()
	if s.selected[conversationID] {
		delete(s.selected, conversationID)
	} else {
		s.selected[conversationID] = true
	}
	s.mu.Unlock()
	s.notify()
}

// ClearSelection deselects everything.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selected = make(map[string]bool)
	s.mu.Unlock()
	s.notify()
}

// Snapshot copies the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{
		Emails:   make([]*mail.Email, 0, len(s.emails)),
		Query:    s.query,
		Selected: make(map[string]bool, len(s.selected)),
	}
	for _, e := range s.emails {
		cp := *e
		st.Emails = append(st.Emails, &cp)
	}
	for id := range s.selected {
		st.Selected[id] = true
	}
	return st
}

// Selected lists the selected conversation IDs still present in the
// displayed set.
func (s *Store) Selected(now time.Time) []string {
	var out []string
	for _, c := range s.Displayed(now) {
		s.mu.RLock()
		sel := s.selected[c.ID]
		s.mu.RUnlock()
		if sel {
			out = append(out, c.ID)
		}
	}
	return out
}

// Displayed projects the conversation list for the current state at the
// given instant.  Pure with respect to the snapshot: aggregation and
// filtering reuse the shared rules, so client and server render the same
// ordering and snooze visibility.
func (s *Store) Displayed(now time.Time) []*mail.Conversation {
	st := s.Snapshot()
	return mail.Filter(mail.Aggregate(st.Emails, now), st.Query, now)
}
