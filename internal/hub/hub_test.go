package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commentboard/server/internal/logger"
)

func newTestHub() *Hub {
	return NewHub(nil, logger.NewLogger("hub-test"))
}

func register(h *Hub, name string) *Client {
	c := NewClient(uuid.NewString(), name, nil)
	h.Register(c)
	return c
}

func joinAs(t *testing.T, h *Hub, name string) *Client {
	t.Helper()
	c := register(h, name)
	require.NoError(t, h.HandleJoin(c))
	return c
}

// drain empties a client's outbound buffer and decodes every envelope.
func drain(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return out
			}
			var env Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func eventsOf(envs []Envelope, name string) []Envelope {
	var out []Envelope
	for _, e := range envs {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func decodeTyping(t *testing.T, env Envelope) TypingPayload {
	t.Helper()
	var p TypingPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func decodePresence(t *testing.T, env Envelope) []PresenceEntry {
	t.Helper()
	var p []PresenceEntry
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func TestPresenceCountFollowsJoinsAndDisconnects(t *testing.T) {
	h := newTestHub()

	alice := joinAs(t, h, "alice")
	bob := joinAs(t, h, "bob")
	carol := joinAs(t, h, "carol")
	require.Equal(t, 3, h.Count())

	h.HandleDisconnect(bob)
	require.Equal(t, 2, h.Count())

	h.HandleDisconnect(alice)
	h.HandleDisconnect(carol)
	require.Equal(t, 0, h.Count())

	// Disconnecting again is a no-op, not an error.
	h.HandleDisconnect(alice)
	require.Equal(t, 0, h.Count())
}

func TestJoinRequiresRegistration(t *testing.T) {
	h := newTestHub()
	c := NewClient(uuid.NewString(), "ghost", nil)
	require.ErrorIs(t, h.HandleJoin(c), ErrNotRegistered)
	require.Equal(t, 0, h.Count())
}

func TestRegisteredButNotJoinedIsNotPresent(t *testing.T) {
	h := newTestHub()
	register(h, "lurker")
	require.Equal(t, 0, h.Count())
	require.Empty(t, h.Snapshot())
}

func TestJoinNotifiesPeersAndBroadcastsPresence(t *testing.T) {
	h := newTestHub()
	alice := joinAs(t, h, "alice")
	drain(t, alice)

	bob := joinAs(t, h, "bob")

	aliceGot := drain(t, alice)
	joined := eventsOf(aliceGot, EventUserJoined)
	require.Len(t, joined, 1)
	var up UserPayload
	require.NoError(t, json.Unmarshal(joined[0].Data, &up))
	assert.Equal(t, "bob", up.Username)
	assert.Equal(t, bob.ID, up.UserID)

	// Presence reaches everyone, the new member included, with one entry
	// per joined connection.
	alicePresence := eventsOf(aliceGot, EventActiveUsers)
	require.Len(t, alicePresence, 1)
	assert.Len(t, decodePresence(t, alicePresence[0]), 2)

	bobGot := drain(t, bob)
	assert.Empty(t, eventsOf(bobGot, EventUserJoined), "joiner must not be told about itself")
	require.Len(t, eventsOf(bobGot, EventUsersList), 1)
	bobPresence := eventsOf(bobGot, EventActiveUsers)
	require.Len(t, bobPresence, 1)
	assert.Len(t, decodePresence(t, bobPresence[0]), 2)
}

func TestDuplicateJoinRefreshesNameWithoutReannouncing(t *testing.T) {
	h := newTestHub()
	alice := joinAs(t, h, "alice")
	bob := joinAs(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	bob.sessionUser = "bobby"
	require.NoError(t, h.HandleJoin(bob))
	require.Equal(t, 2, h.Count())

	aliceGot := drain(t, alice)
	assert.Empty(t, eventsOf(aliceGot, EventUserJoined))
	presence := eventsOf(aliceGot, EventActiveUsers)
	require.Len(t, presence, 1)
	names := map[string]bool{}
	for _, e := range decodePresence(t, presence[0]) {
		names[e.Username] = true
	}
	assert.True(t, names["bobby"])
	assert.False(t, names["bob"])
}

func TestTypingRequiresPresence(t *testing.T) {
	h := newTestHub()
	alice := joinAs(t, h, "alice")
	drain(t, alice)

	// Registered but never joined: the signal is stale and dropped.
	lurker := register(h, "lurker")
	h.HandleTyping(lurker, true)
	require.Equal(t, 0, h.TypingCount())
	assert.Empty(t, drain(t, alice))

	// Already disconnected: same.
	bob := joinAs(t, h, "bob")
	h.HandleDisconnect(bob)
	drain(t, alice)
	h.HandleTyping(bob, true)
	require.Equal(t, 0, h.TypingCount())
	assert.Empty(t, drain(t, alice))
}

func TestTypingSignalsReachPeersNotOriginator(t *testing.T) {
	h := newTestHub()
	alice := joinAs(t, h, "alice")
	bob := joinAs(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	h.HandleTyping(alice, true)
	require.Equal(t, 1, h.TypingCount())

	bobGot := eventsOf(drain(t, bob), EventUserTyping)
	require.Len(t, bobGot, 1)
	p := decodeTyping(t, bobGot[0])
	assert.Equal(t, alice.ID, p.UserID)
	assert.Equal(t, "alice", p.Username)
	assert.True(t, p.IsTyping)

	assert.Empty(t, eventsOf(drain(t, alice), EventUserTyping))
}

func TestTypingStopIsIdempotent(t *testing.T) {
	h := newTestHub()
	alice := joinAs(t, h, "alice")
	bob := joinAs(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	h.HandleTyping(alice, true)
	h.HandleTyping(alice, false)
	h.HandleTyping(alice, false)

	got := eventsOf(drain(t, bob), EventUserTyping)
	require.Len(t, got, 2, "start plus exactly one stop")
	assert.True(t, decodeTyping(t, got[0]).IsTyping)
	assert.False(t, decodeTyping(t, got[1]).IsTyping)
}

func TestDisconnectClearsTypingEntry(t *testing.T) {
	h := newTestHub()
	alice := joinAs(t, h, "alice")
	bob := joinAs(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	h.HandleTyping(alice, true)
	drain(t, bob)
	h.HandleDisconnect(alice)

	require.Equal(t, 0, h.TypingCount())
	require.Equal(t, 1, h.Count())

	bobGot := drain(t, bob)
	stops := eventsOf(bobGot, EventUserTyping)
	require.Len(t, stops, 1)
	assert.False(t, decodeTyping(t, stops[0]).IsTyping)

	left := eventsOf(bobGot, EventUserLeft)
	require.Len(t, left, 1)
	var up UserPayload
	require.NoError(t, json.Unmarshal(left[0].Data, &up))
	assert.Equal(t, "alice", up.Username)
	assert.Equal(t, alice.ID, up.UserID)

	presence := eventsOf(bobGot, EventActiveUsers)
	require.Len(t, presence, 1)
	assert.Len(t, decodePresence(t, presence[0]), 1)
}

func TestDisconnectBeforeJoinIsSilent(t *testing.T) {
	h := newTestHub()
	alice := joinAs(t, h, "alice")
	drain(t, alice)

	lurker := register(h, "lurker")
	h.HandleDisconnect(lurker)

	assert.Empty(t, drain(t, alice))
	require.Equal(t, 1, h.Count())
}

func TestCommentBroadcastsIncludeEveryConnection(t *testing.T) {
	h := newTestHub()
	alice := joinAs(t, h, "alice")
	bob := joinAs(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	comment := Comment{
		ID:        "1",
		Content:   "hello",
		UserID:    "10",
		Username:  "alice",
		CreatedAt: "2026-01-02T15:04:05Z",
		UpdatedAt: "2026-01-02T15:04:05Z",
	}
	h.BroadcastCommentCreated(comment)
	h.BroadcastCommentUpdated(comment)
	h.BroadcastCommentDeleted("1")

	for _, c := range []*Client{alice, bob} {
		got := drain(t, c)
		require.Len(t, eventsOf(got, EventCommentCreated), 1)
		require.Len(t, eventsOf(got, EventCommentUpdated), 1)
		deleted := eventsOf(got, EventCommentDeleted)
		require.Len(t, deleted, 1)
		var ref CommentRef
		require.NoError(t, json.Unmarshal(deleted[0].Data, &ref))
		assert.Equal(t, "1", ref.ID)

		created := eventsOf(got, EventCommentCreated)
		var round Comment
		require.NoError(t, json.Unmarshal(created[0].Data, &round))
		assert.Equal(t, comment, round)
	}
}

func TestSlowConsumerDoesNotBlockOthers(t *testing.T) {
	h := newTestHub()
	slow := joinAs(t, h, "slow")
	fast := joinAs(t, h, "fast")
	drain(t, fast)

	// Stuff the slow client's buffer to capacity without draining it.
	filler := mustEncode(EventError, ErrorPayload{Message: "filler"})
	for {
		select {
		case slow.send <- filler:
			continue
		default:
		}
		break
	}

	h.BroadcastCommentDeleted("99")

	got := eventsOf(drain(t, fast), EventCommentDeleted)
	require.Len(t, got, 1, "delivery to healthy connections must not be affected")

	// The stalled connection gets torn down in the background.
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 10*time.Millisecond)
}
