// Package ws adapts chathub.WebSocketClient's read/write pump pair into the
// presence.Client interface, generalizing its hard-coded ChatMessage wire
// type into the Envelope/EventKind tagged-variant protocol and bumping the
// message cap from 512 bytes to the spec's 1 MiB frame limit.
package ws

import (
	"encoding/json"
	"time"

	"anonchat/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Dispatcher handles one decoded inbound envelope. The caller (the server's
// connection handler) wires this to the appropriate matcher/chatrouter call.
type Dispatcher interface {
	Dispatch(userID, sessionID string, env models.Envelope)
}

// Client implements presence.Client over a gorilla/websocket connection.
type Client struct {
	userID    string
	sessionID string
	conn      *websocket.Conn
	send      chan models.Envelope
	dispatch  Dispatcher
	maxBytes  int64
	// heartbeatInterval is how often the write pump sends a ping; heartbeatTimeout
	// is how long the read pump waits for the pong to a ping before it gives up
	// on the connection, per spec.md §5 ("heartbeat interval 25s, timeout 20s").
	// The read deadline is interval+timeout from connect or the last pong; only
	// a pong extends it.
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	log               *zap.Logger

	onClose func()
}

func New(userID string, conn *websocket.Conn, dispatch Dispatcher, maxBytes int64, heartbeatInterval, heartbeatTimeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		userID:            userID,
		conn:              conn,
		send:              make(chan models.Envelope, 256),
		dispatch:          dispatch,
		maxBytes:          maxBytes,
		heartbeatInterval: heartbeatInterval,
		heartbeatTimeout:  heartbeatTimeout,
		log:               log,
	}
}

func (c *Client) UserID() string { return c.userID }

// SetSessionID lets the caller bind the presence-assigned sessionID after
// Hub.Connect returns it, since the two are constructed back to back.
func (c *Client) SetSessionID(id string) { c.sessionID = id }

// OnClose registers a callback invoked once when the connection drops,
// used by the server to tell presence.Hub.Disconnect.
func (c *Client) OnClose(fn func()) { c.onClose = fn }

// Send enqueues env for delivery; never blocks the caller for long since
// the channel is buffered and the write pump drains it continuously.
func (c *Client) Send(env models.Envelope) error {
	select {
	case c.send <- env:
		return nil
	default:
		// Slow consumer: drop the oldest semantics are out of scope here;
		// surface backpressure by closing, matching the teacher's handling
		// of a full Send channel in ManagerService.Run's pubsub fan-out.
		c.Close()
		return websocket.ErrCloseSent
	}
}

func (c *Client) Close() {
	defer func() { recover() }()
	close(c.send)
}

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	}()

	c.conn.SetReadLimit(c.maxBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.heartbeatInterval + c.heartbeatTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.heartbeatInterval + c.heartbeatTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && c.log != nil {
				c.log.Debug("ws: read error", zap.String("userId", c.userID), zap.Error(err))
			}
			break
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.trySend(models.Envelope{Kind: models.EvError, Payload: models.ErrorOut{Message: "malformed frame"}})
			continue
		}

		if c.dispatch != nil {
			c.dispatch.Dispatch(c.userID, c.sessionID, env)
		}
	}
}

func (c *Client) trySend(env models.Envelope) {
	select {
	case c.send <- env:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)

			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				extra, err := json.Marshal(next)
				if err == nil {
					w.Write(extra)
				}
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
