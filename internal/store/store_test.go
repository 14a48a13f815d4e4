package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCommentWireProjection(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.FixedZone("CET", 3600))
	updated := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	c := Comment{
		ID:        12,
		Content:   "hello world",
		UserID:    7,
		Username:  "alice",
		CreatedAt: created,
		UpdatedAt: updated,
	}

	w := c.Wire()
	assert.Equal(t, "12", w.ID)
	assert.Equal(t, "7", w.UserID)
	assert.Equal(t, "hello world", w.Content)
	assert.Equal(t, "alice", w.Username)
	// Timestamps normalize to UTC ISO-8601.
	assert.Equal(t, "2026-03-14T08:26:53Z", w.CreatedAt)
	assert.Equal(t, "2026-03-15T10:00:00Z", w.UpdatedAt)
}
