// internal/hub/hub.go
// The presence and event-broadcast hub. It tracks connected clients, who is
// joined and who is typing, and fans comment and presence events out to the
// connected peers.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/commentboard/server/internal/logger"
)

// ErrNotRegistered is returned when an operation references a connection id
// the hub has never seen.
var ErrNotRegistered = errors.New("hub: connection not registered")

const (
	// typingTimeout is how long a typing entry survives without a refresh
	// before the sweeper evicts it.
	typingTimeout = 3000 * time.Millisecond
	// sweepInterval is the sweeper tick.
	sweepInterval = 1000 * time.Millisecond
)

type typingEntry struct {
	username   string
	lastSignal time.Time
}

// Hub is the single shared instance coordinating all connections. It is
// constructed once at startup and handed to the transport and REST layers;
// there is no ambient global.
//
// mu serializes every mutation of the presence and typing maps. Deliveries
// never happen under mu: each operation snapshots its targets while locked,
// then sends under sendMu so the per-connection receive order matches the
// order broadcasts were issued. Sends into a client buffer are non-blocking,
// so neither lock ever waits on a slow consumer.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client // every registered connection
	joined  map[string]*Client // connections that completed the join handshake
	typing  map[string]typingEntry

	sendMu sync.Mutex

	relay *Relay
	log   *logger.Logger

	typingTimeout time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

// NewHub creates a hub with empty presence state. relay may be nil when no
// NATS connection is configured.
func NewHub(relay *Relay, log *logger.Logger) *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		joined:        make(map[string]*Client),
		typing:        make(map[string]typingEntry),
		relay:         relay,
		log:           log,
		typingTimeout: typingTimeout,
		sweepInterval: sweepInterval,
		now:           time.Now,
	}
}

// Register records a freshly accepted transport connection. The client is
// not visible to peers until it joins.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Infof("connection %s registered (%d open)", c.ID, total)
}

// HandleJoin completes the join handshake for a registered connection. The
// display name comes from the authenticated session, not the client payload.
// A repeated join for the same connection refreshes the name and re-issues
// the presence list without announcing the user again.
func (h *Hub) HandleJoin(c *Client) error {
	name := c.sessionUser

	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return ErrNotRegistered
	}
	_, rejoin := h.joined[c.ID]
	c.Username = name
	if !rejoin {
		c.JoinedAt = h.now()
	}
	h.joined[c.ID] = c
	peers := h.targetsLocked(c.ID)
	everyone := h.targetsLocked("")
	snap := h.snapshotLocked()
	h.mu.Unlock()

	if !rejoin {
		h.deliver(peers, mustEncode(EventUserJoined, UserPayload{Username: name, UserID: c.ID}))
		h.deliverTo(c, mustEncode(EventUsersList, snap))
		h.log.Infof("%s joined as connection %s", name, c.ID)
	}
	h.deliver(everyone, mustEncode(EventActiveUsers, snap))
	h.relay.publishPresence("joined", UserPayload{Username: name, UserID: c.ID})
	return nil
}

// HandleTyping records or clears a typing signal. Signals for connections
// that are not joined are stale and silently dropped; clearing an entry that
// is already gone emits nothing.
func (h *Hub) HandleTyping(c *Client, isTyping bool) {
	h.mu.Lock()
	if _, ok := h.joined[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	if isTyping {
		h.typing[c.ID] = typingEntry{username: c.Username, lastSignal: h.now()}
	} else {
		if _, ok := h.typing[c.ID]; !ok {
			h.mu.Unlock()
			return
		}
		delete(h.typing, c.ID)
	}
	peers := h.targetsLocked(c.ID)
	h.mu.Unlock()

	h.deliver(peers, mustEncode(EventUserTyping, TypingPayload{
		UserID:   c.ID,
		Username: c.Username,
		IsTyping: isTyping,
	}))
}

// HandleDisconnect removes a connection from all hub state. A connection
// that never joined produces no peer-visible event. For a joined connection
// the peers get a typing stop (if one was pending), a user:left, and a fresh
// presence list. Safe to call more than once.
func (h *Hub) HandleDisconnect(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	_, wasJoined := h.joined[c.ID]
	delete(h.joined, c.ID)
	entry, wasTyping := h.typing[c.ID]
	delete(h.typing, c.ID)
	remaining := h.targetsLocked("")
	snap := h.snapshotLocked()
	h.mu.Unlock()

	h.closeClient(c)

	if !wasJoined {
		h.log.Infof("connection %s closed before joining", c.ID)
		return
	}
	if wasTyping {
		h.deliver(remaining, mustEncode(EventUserTyping, TypingPayload{
			UserID:   c.ID,
			Username: entry.username,
			IsTyping: false,
		}))
	}
	h.deliver(remaining, mustEncode(EventUserLeft, UserPayload{Username: c.Username, UserID: c.ID}))
	h.deliver(remaining, mustEncode(EventActiveUsers, snap))
	h.relay.publishPresence("left", UserPayload{Username: c.Username, UserID: c.ID})
	h.log.Infof("%s (connection %s) left", c.Username, c.ID)
}

// BroadcastCommentCreated fans a newly created comment out to every open
// connection, the author's included. The REST layer calls this after the
// store mutation succeeds.
func (h *Hub) BroadcastCommentCreated(comment Comment) {
	h.broadcastAll(EventCommentCreated, comment)
	h.relay.publishComment("created", comment)
}

// BroadcastCommentUpdated fans an edited comment out to every connection.
func (h *Hub) BroadcastCommentUpdated(comment Comment) {
	h.broadcastAll(EventCommentUpdated, comment)
	h.relay.publishComment("updated", comment)
}

// BroadcastCommentDeleted fans a deletion out to every connection.
func (h *Hub) BroadcastCommentDeleted(id string) {
	h.broadcastAll(EventCommentDeleted, CommentRef{ID: id})
	h.relay.publishComment("deleted", CommentRef{ID: id})
}

func (h *Hub) broadcastAll(event string, data any) {
	h.mu.Lock()
	targets := h.targetsLocked("")
	h.mu.Unlock()
	h.deliver(targets, mustEncode(event, data))
}

// Snapshot returns a point-in-time copy of the joined connections. Callers
// may iterate it freely while the hub keeps mutating state.
func (h *Hub) Snapshot() []PresenceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Count reports how many connections are joined.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.joined)
}

// TypingSnapshot returns a copy of the connections with a live typing entry.
func (h *Hub) TypingSnapshot() []PresenceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]PresenceEntry, 0, len(h.typing))
	for id, e := range h.typing {
		out = append(out, PresenceEntry{ID: id, Username: e.username})
	}
	return out
}

// TypingCount reports how many typing entries are live.
func (h *Hub) TypingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.typing)
}

// Run owns the hub's only background task: the typing-expiry sweeper. It
// ticks until ctx is canceled. Exactly one Run per hub.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			h.sweepExpired(h.now())
		}
	}
}

// sweepExpired evicts typing entries whose last signal is older than the
// timeout. Each eviction emits exactly one typing stop; a subsequent sweep
// finds the entry gone and emits nothing.
func (h *Hub) sweepExpired(now time.Time) {
	type eviction struct {
		id       string
		username string
	}
	h.mu.Lock()
	var evicted []eviction
	for id, e := range h.typing {
		if now.Sub(e.lastSignal) > h.typingTimeout {
			delete(h.typing, id)
			evicted = append(evicted, eviction{id: id, username: e.username})
		}
	}
	targets := h.targetsLocked("")
	h.mu.Unlock()

	for _, ev := range evicted {
		h.deliver(targets, mustEncode(EventUserTyping, TypingPayload{
			UserID:   ev.id,
			Username: ev.username,
			IsTyping: false,
		}))
		h.log.Debugf("typing entry for %s expired", ev.username)
	}
}

// targetsLocked copies the open connections, minus an optional excluded id.
// Callers must hold mu.
func (h *Hub) targetsLocked(exclude string) []*Client {
	targets := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id == exclude {
			continue
		}
		targets = append(targets, c)
	}
	return targets
}

// snapshotLocked copies the joined set. Callers must hold mu.
func (h *Hub) snapshotLocked() []PresenceEntry {
	snap := make([]PresenceEntry, 0, len(h.joined))
	for id, c := range h.joined {
		snap = append(snap, PresenceEntry{ID: id, Username: c.Username})
	}
	return snap
}

// deliver sends one message to each target. Sends are non-blocking: a full
// buffer means the consumer has stalled past its 256-message queue, so the
// message is dropped, the failure is logged, and the connection is torn down
// without holding up delivery to anyone else.
func (h *Hub) deliver(targets []*Client, msg []byte) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	for _, c := range targets {
		h.sendLocked(c, msg)
	}
}

// deliverTo sends one message to a single connection.
func (h *Hub) deliverTo(c *Client, msg []byte) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	h.sendLocked(c, msg)
}

func (h *Hub) sendLocked(c *Client, msg []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.log.Warnf("send buffer full for connection %s, dropping connection", c.ID)
		go h.dropSlow(c)
	}
}

// dropSlow tears down a connection whose consumer stopped draining. The
// write pump notices the closed transport and the read pump runs the normal
// disconnect path, which is idempotent.
func (h *Hub) dropSlow(c *Client) {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	h.HandleDisconnect(c)
}

// closeClient closes the outbound channel exactly once, under sendMu so it
// can never race an in-flight send.
func (h *Hub) closeClient(c *Client) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
