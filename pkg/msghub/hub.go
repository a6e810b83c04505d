// Package msghub relays sync and send events to connected clients.  Events
// are invalidation hints only; consumers re-query rather than trusting an
// embedded payload.
package msghub

import (
	"container/ring"
	"context"
	"time"
)

// Length of hub operation queue
const opChanLen = 100

// Event types pushed to listeners.
const (
	EventSyncComplete = "sync-complete"
	EventNewEmail     = "new-email"
	EventSendFailed   = "send-failed"
)

// Event describes a change on one account.
type Event struct {
	Type           string    `json:"type"`
	AccountID      string    `json:"accountId"`
	ConversationID string    `json:"conversationId,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
	Date           time.Time `json:"date"`
}

// Listener receives the contents of the history buffer, followed by new
// events.
type Listener interface {
	Receive(ev Event) error
}

// Hub relays events on to its listeners.
type Hub struct {
	// history buffer, points next Event to write.  Preceding non-nil entry is oldest Event.
	history   *ring.Ring
	listeners map[Listener]struct{}
	opChan    chan func(h *Hub) // operations queued for this actor
}

// New constructs a Hub which caches historyLen events in memory for
// playback to future listeners.
func New(historyLen int) *Hub {
	return &Hub{
		history:   ring.New(historyLen),
		listeners: make(map[Listener]struct{}),
		opChan:    make(chan func(h *Hub), opChanLen),
	}
}

// Start runs the Hub processing loop until the context is canceled.
func (hub *Hub) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(hub.opChan)
			return
		case op := <-hub.opChan:
			op(hub)
		}
	}
}

// Dispatch queues an event for broadcast.  The event is placed into the
// history buffer, then relayed to all registered listeners.  A listener
// returning an error is dropped; a disconnected client is not a failure.
func (hub *Hub) Dispatch(ev Event) {
	hub.opChan <- func(h *Hub) {
		// ring.New(0) is nil; a zero-history hub still broadcasts.
		if h.history != nil {
			h.history.Value = ev
			h.history = h.history.Next()
		}
		for l := range h.listeners {
			if err := l.Receive(ev); err != nil {
				delete(h.listeners, l)
			}
		}
	}
}

// AddListener registers a listener to receive broadcast events, after a
// playback of the history buffer.
func (hub *Hub) AddListener(l Listener) {
	hub.opChan <- func(h *Hub) {
		h.history.Do(func(v interface{}) {
			if v != nil {
				_ = l.Receive(v.(Event))
			}
		})
		h.listeners[l] = struct{}{}
	}
}

// RemoveListener deletes a listener registration; it ceases to receive
// events.
func (hub *Hub) RemoveListener(l Listener) {
	hub.opChan <- func(h *Hub) {
		delete(h.listeners, l)
	}
}

// Sync blocks until the hub has processed its queue up to this point,
// useful for unit tests.
func (hub *Hub) Sync() {
	done := make(chan struct{})
	hub.opChan <- func(h *Hub) {
		close(done)
	}
	<-done
}
