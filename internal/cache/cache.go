// internal/cache/cache.go
// Short-TTL read cache in front of the comment list. Optional: with no
// Redis address configured every lookup is a miss and the API reads
// straight from Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/commentboard/server/internal/hub"
	"github.com/commentboard/server/internal/logger"
)

const (
	listKey = "comments:latest"
	listTTL = 10 * time.Second
)

// Cache is nil-safe: a nil *Cache never hits and never stores.
type Cache struct {
	rdb *redis.Client
	log *logger.Logger
}

// Connect builds a client for the given address. Failures surface lazily on
// first use, so a Redis that comes up after the board does is picked up
// automatically.
func Connect(addr string, log *logger.Logger) *Cache {
	if addr == "" {
		return nil
	}
	return &Cache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		log: log,
	}
}

func (c *Cache) Close() {
	if c == nil {
		return
	}
	_ = c.rdb.Close()
}

// GetList returns the cached comment list, or ok=false on a miss or any
// Redis error (errors degrade to a miss, never to a request failure).
func (c *Cache) GetList(ctx context.Context) ([]hub.Comment, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, listKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warnf("cache read failed: %v", err)
		}
		return nil, false
	}
	var comments []hub.Comment
	if err := json.Unmarshal(raw, &comments); err != nil {
		c.log.Warnf("cache entry corrupt, discarding: %v", err)
		c.InvalidateList(ctx)
		return nil, false
	}
	return comments, true
}

// SetList stores the comment list for the TTL window.
func (c *Cache) SetList(ctx context.Context, comments []hub.Comment) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(comments)
	if err != nil {
		c.log.Warnf("cache marshal failed: %v", err)
		return
	}
	if err := c.rdb.Set(ctx, listKey, raw, listTTL).Err(); err != nil {
		c.log.Warnf("cache write failed: %v", err)
	}
}

// InvalidateList drops the cached list. Called on every comment mutation,
// create, update, and delete alike.
func (c *Cache) InvalidateList(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, listKey).Err(); err != nil {
		c.log.Warnf("cache invalidate failed: %v", err)
	}
}

// Ping reports whether Redis is reachable, for the health endpoint.
func (c *Cache) Ping(ctx context.Context) bool {
	if c == nil {
		return false
	}
	return c.rdb.Ping(ctx).Err() == nil
}
