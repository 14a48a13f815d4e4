// internal/hub/client.go
package hub

import (
	"time"

	"github.com/gorilla/websocket"
)

// Client represents one transport connection for its lifetime. The hub owns
// it exclusively from registration to disconnect; its id is assigned at
// accept time and never reused within the process.
type Client struct {
	ID       string
	Username string
	JoinedAt time.Time

	// sessionUser is the identity resolved from the authenticated session
	// at upgrade time. Join and typing events use it rather than trusting
	// client-supplied usernames.
	sessionUser string

	conn *websocket.Conn
	send chan []byte

	// guarded by the hub send mutex
	closed bool
}

const sendBuffer = 256

// NewClient builds a client for an accepted transport connection. conn may
// be nil in tests; only the pumps touch it.
func NewClient(id, sessionUser string, conn *websocket.Conn) *Client {
	return &Client{
		ID:          id,
		sessionUser: sessionUser,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
	}
}
