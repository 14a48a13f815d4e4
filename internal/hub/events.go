// internal/hub/events.go
// Closed set of event variants exchanged with clients. Every payload that
// crosses the hub boundary is one of these types; free-form maps are not
// accepted into any state transition.
package hub

import (
	"encoding/json"
	"fmt"
)

// Event names sent by the server.
const (
	EventUserJoined     = "user:joined"
	EventUserLeft       = "user:left"
	EventUserTyping     = "user:typing"
	EventActiveUsers    = "active:users"
	EventUsersList      = "users:list"
	EventCommentCreated = "comment:created"
	EventCommentUpdated = "comment:updated"
	EventCommentDeleted = "comment:deleted"
	EventError          = "error"
)

// Event names accepted from clients. user:join and user:typing carry a
// username field for wire compatibility, but the hub binds identity to the
// authenticated session and ignores it.
const (
	EventUserJoin = "user:join"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinPayload is the data of a user:join event.
type JoinPayload struct {
	Username string `json:"username"`
}

// TypingPayload is the data of a user:typing event, inbound and outbound.
// UserID is only populated on outbound events.
type TypingPayload struct {
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// UserPayload is the data of user:joined and user:left events.
type UserPayload struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

// PresenceEntry is one element of active:users and users:list payloads.
type PresenceEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Comment is the wire projection of a stored comment, shared by
// comment:created and comment:updated. Ids are strings and timestamps are
// ISO-8601, matching what browser clients expect.
type Comment struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// CommentRef is the data of a comment:deleted event.
type CommentRef struct {
	ID string `json:"id"`
}

// ErrorPayload is sent back on malformed or unknown inbound events.
type ErrorPayload struct {
	Message string `json:"message"`
}

func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	b, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", event, err)
	}
	return b, nil
}

// mustEncode is used for server-built payloads, which cannot fail to
// marshal; a failure here is a programming error.
func mustEncode(event string, data any) []byte {
	b, err := encodeEvent(event, data)
	if err != nil {
		panic(err)
	}
	return b
}
