package rest

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/driftmail/driftmail/pkg/msghub"
	"github.com/driftmail/driftmail/pkg/rest/model"
	"github.com/driftmail/driftmail/pkg/server/web"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// options for gorilla connection upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// eventListener relays hub events to one WebSocket client.
type eventListener struct {
	hub     *msghub.Hub                    // Global event hub.
	c       chan *model.JSONMonitorEventV1 // Queue of outgoing events.
	account string                         // Account ID to monitor, "" == all accounts.
}

// newEventListener creates a listener and registers it.  Optional account
// parameter restricts events sent to the WebSocket to that account only.
func newEventListener(hub *msghub.Hub, account string) *eventListener {
	el := &eventListener{
		hub:     hub,
		c:       make(chan *model.JSONMonitorEventV1, 100),
		account: account,
	}
	hub.AddListener(el)
	return el
}

// Receive handles an incoming event.
func (el *eventListener) Receive(ev msghub.Event) error {
	if el.account != "" && el.account != ev.AccountID {
		// Did not match the watched account.
		return nil
	}

	// Enqueue for websocket.
	el.c <- &model.JSONMonitorEventV1{
		Variant:        ev.Type,
		AccountID:      ev.AccountID,
		ConversationID: ev.ConversationID,
		MessageID:      ev.MessageID,
		Date:           ev.Date,
	}

	return nil
}

// WSReader makes sure the websocket client is still connected, discards any
// messages from the client.
func (el *eventListener) WSReader(conn *websocket.Conn) {
	slog := log.With().Str("module", "rest").Str("proto", "WebSocket").
		Str("remote", conn.RemoteAddr().String()).Logger()
	defer el.Close()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn().Err(err).Msg("Failed to setup read deadline")
	}
	conn.SetPongHandler(func(string) error {
		slog.Debug().Msg("Got pong")
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Warn().Err(err).Msg("Failed to set read deadline in pong")
		}
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				// Unexpected close code
				slog.Warn().Err(err).Msg("Socket error")
			} else {
				slog.Debug().Msg("Closing socket")
			}
			break
		}
	}
}

// WSWriter makes sure the websocket client is still connected.
func (el *eventListener) WSWriter(conn *websocket.Conn) {
	slog := log.With().Str("module", "rest").Str("proto", "WebSocket").
		Str("remote", conn.RemoteAddr().String()).Logger()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		el.Close()
	}()

	// Handle events from hub until eventListener is closed.
	for {
		select {
		case event, ok := <-el.c:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Warn().Err(err).Msg("Failed to set write deadline for event")
			}
			if !ok {
				// eventListener closed, exit.
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if conn.WriteJSON(event) != nil {
				// Write failed
				return
			}
		case <-ticker.C:
			// Send ping
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Warn().Err(err).Msg("Failed to set write deadline for ping")
			}
			if conn.WriteMessage(websocket.PingMessage, []byte{}) != nil {
				// Write error
				return
			}
			slog.Debug().Msg("Sent ping")
		}
	}
}

// Close removes the listener registration.
func (el *eventListener) Close() {
	select {
	case <-el.c:
		// Already closed
	default:
		el.hub.RemoveListener(el)
		close(el.c)
	}
}

// MonitorEventsV1 is a web handler which upgrades the connection to a
// websocket and notifies the client of events on all accounts.  The hub's
// history buffer is replayed first so a reconnecting client catches up.
func MonitorEventsV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	return monitorEvents(w, req, ctx, "")
}

// MonitorAccountEventsV1 is a web handler which upgrades the connection to
// a websocket and notifies the client of events on a single account.
func MonitorAccountEventsV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	return monitorEvents(w, req, ctx, ctx.Vars["id"])
}

func monitorEvents(
	w http.ResponseWriter, req *http.Request, ctx *web.Context, account string) error {
	// Upgrade to Websocket.
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return err
	}
	web.ExpWebSocketConnectsCurrent.Add(1)
	defer func() {
		_ = conn.Close()
		web.ExpWebSocketConnectsCurrent.Add(-1)
	}()
	log.Debug().Str("module", "rest").Str("proto", "WebSocket").
		Str("remote", conn.RemoteAddr().String()).Msg("Upgraded to WebSocket")
	// Create, register listener; then interact with conn.
	el := newEventListener(ctx.MsgHub, account)
	go el.WSWriter(conn)
	el.WSReader(conn)
	return nil
}
