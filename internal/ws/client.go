package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
	"github.com/zzjunior/whatsapp-checker-api/internal/instance"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBuffer     = 64
)

// Message is the wire envelope in both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client is one websocket connection. Until it authenticates it belongs to
// no room and receives nothing but auth replies.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	userID domain.UserID
	authed bool

	// mu guards send against shutdown: handle subscriptions fire from the
	// protocol layer's event goroutine and can outlive the socket.
	mu     sync.Mutex
	closed bool
	send   chan []byte
	subs   []*instance.Subscription
}

// enqueue pushes an encoded frame to the client without blocking the caller.
// Frames racing the teardown are dropped; a client too slow to drain its
// buffer is dropped entirely.
func (c *Client) enqueue(frame []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- frame:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		log.Warn().
			Int64("user_id", int64(c.userID)).
			Msg("Websocket send buffer full, dropping client")
		c.hub.unregister <- c
	}
}

// trySend offers a frame without blocking. It reports false only when the
// client is alive but its buffer is full; a client already torn down just
// swallows the frame.
func (c *Client) trySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once and releases every handle
// subscription tied to the client. Buffered frames still drain through
// writePump, which then sends the close frame.
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	close(c.send)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// trackSubscription ties a handle subscription to the client's lifetime so a
// pairing relay dies with the socket that requested it.
func (c *Client) trackSubscription(sub *instance.Subscription) {
	if sub == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Close()
		return
	}
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}

// sendEvent encodes and enqueues one typed message.
func (c *Client) sendEvent(eventType string, data interface{}) {
	frame, err := encodeMessage(eventType, data)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("Failed to encode websocket message")
		return
	}
	c.enqueue(frame)
}

func encodeMessage(eventType string, data interface{}) ([]byte, error) {
	msg := struct {
		Type string      `json:"type"`
		Data interface{} `json:"data,omitempty"`
	}{Type: eventType, Data: data}
	return json.Marshal(msg)
}

// readPump reads inbound frames and hands them to the hub's dispatcher.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Websocket closed unexpectedly")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendEvent("error", map[string]string{"message": "invalid message format"})
			continue
		}
		c.hub.dispatch(c, msg)
	}
}

// writePump drains the send buffer and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
