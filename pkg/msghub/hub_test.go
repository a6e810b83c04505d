package msghub

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// testListener implements the Listener interface, mock for unit tests
type testListener struct {
	events     []Event
	wantEvents int
	errorAfter int // when != 0, event count until Receive() begins returning error
	gotEvents  int

	done     chan struct{} // closed once we have received wantEvents
	overflow chan struct{} // closed if we receive wantEvents+1
}

func newTestListener(want int) *testListener {
	l := &testListener{
		events:     make([]Event, 0, want*2),
		wantEvents: want,
		done:       make(chan struct{}),
		overflow:   make(chan struct{}),
	}
	if want == 0 {
		close(l.done)
	}
	return l
}

func (l *testListener) Receive(ev Event) error {
	l.gotEvents++
	l.events = append(l.events, ev)
	if l.gotEvents == l.wantEvents {
		close(l.done)
	}
	if l.gotEvents == l.wantEvents+1 {
		close(l.overflow)
	}
	if l.errorAfter > 0 && l.gotEvents > l.errorAfter {
		return errors.New("too many events")
	}
	return nil
}

func (l *testListener) String() string {
	return fmt.Sprintf("got %v events, wanted %v", len(l.events), l.wantEvents)
}

func TestHubZeroHistory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := New(0)
	go hub.Start(ctx)
	for i := 0; i < 100; i++ {
		hub.Dispatch(Event{Type: EventSyncComplete})
	}
	// Ensures Hub doesn't panic
}

func TestHubOneListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := New(5)
	go hub.Start(ctx)
	l := newTestListener(1)

	hub.AddListener(l)
	hub.Dispatch(Event{Type: EventNewEmail, AccountID: "acct1"})

	select {
	case <-l.done:
	case <-time.After(time.Second):
		t.Fatal("Timeout:", l)
	}
	assert.Equal(t, EventNewEmail, l.events[0].Type)
	assert.Equal(t, "acct1", l.events[0].AccountID)
}

func TestHubHistoryPlayback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := New(3)
	go hub.Start(ctx)

	// Five events into a three slot history; late listener sees last three.
	for i := 0; i < 5; i++ {
		hub.Dispatch(Event{Type: EventSyncComplete, AccountID: strconv.Itoa(i)})
	}
	hub.Sync()

	l := newTestListener(3)
	hub.AddListener(l)
	select {
	case <-l.done:
	case <-time.After(time.Second):
		t.Fatal("Timeout:", l)
	}
	assert.Equal(t, "2", l.events[0].AccountID)
	assert.Equal(t, "4", l.events[2].AccountID)
}

func TestHubRemovesFailingListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := New(0)
	go hub.Start(ctx)

	bad := newTestListener(1)
	bad.errorAfter = 1
	good := newTestListener(3)
	hub.AddListener(bad)
	hub.AddListener(good)

	for i := 0; i < 3; i++ {
		hub.Dispatch(Event{Type: EventSyncComplete})
	}

	select {
	case <-good.done:
	case <-time.After(time.Second):
		t.Fatal("Timeout:", good)
	}
	hub.Sync()
	assert.Equal(t, 2, bad.gotEvents, "listener dropped after first error")
}

func TestHubRemoveListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := New(0)
	go hub.Start(ctx)

	l := newTestListener(1)
	hub.AddListener(l)
	hub.Dispatch(Event{Type: EventSyncComplete})
	select {
	case <-l.done:
	case <-time.After(time.Second):
		t.Fatal("Timeout:", l)
	}

	hub.RemoveListener(l)
	hub.Dispatch(Event{Type: EventSyncComplete})
	hub.Sync()

	select {
	case <-l.overflow:
		t.Fatal("Listener received event after removal")
	default:
	}
}
