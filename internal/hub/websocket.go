// internal/hub/websocket.go
package hub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	webSocketReadDeadline  = 60 * time.Second
	webSocketWriteDeadline = 10 * time.Second
	webSocketPingPeriod    = (webSocketReadDeadline * 9) / 10 // must be less than the read deadline
	webSocketReadLimit     = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the frontend host is pinned down
		return true
	},
}

// ServeWs upgrades the HTTP connection and registers it with the hub.
// sessionUser is the display name resolved from the authenticated session;
// the caller is responsible for rejecting unauthenticated requests first.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, sessionUser string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("websocket upgrade failed: %v", err)
		return
	}

	client := NewClient(uuid.NewString(), sessionUser, conn)
	h.Register(client)
	go h.readPump(client)
	go h.writePump(client)
}

// readPump reads envelopes from the connection until it closes, then runs
// the disconnect path.
func (h *Hub) readPump(c *Client) {
	defer func() {
		h.HandleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(webSocketReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Errorf("websocket error on connection %s: %v", c.ID, err)
			}
			return
		}
		h.handleInbound(c, raw)
	}
}

// handleInbound decodes and routes one inbound envelope. Malformed or
// unknown events get an error reply; the connection stays open.
func (h *Hub) handleInbound(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(c, "invalid message format")
		return
	}

	switch env.Event {
	case EventUserJoin:
		// The payload username is ignored; identity is bound to the session.
		if err := h.HandleJoin(c); err != nil {
			h.sendError(c, "join failed")
		}
	case EventUserTyping:
		var p TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			h.sendError(c, "invalid typing payload")
			return
		}
		h.HandleTyping(c, p.IsTyping)
	default:
		h.sendError(c, "unknown event: "+env.Event)
	}
}

func (h *Hub) sendError(c *Client, msg string) {
	h.deliverTo(c, mustEncode(EventError, ErrorPayload{Message: msg}))
}

// writePump drains the outbound channel into the connection and keeps the
// ping/pong heartbeat going.
func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(webSocketPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
