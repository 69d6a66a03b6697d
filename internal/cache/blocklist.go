package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// blockedTTL bounds how stale a cached verdict can be. A block added or
// removed in the database is visible everywhere within this window.
const blockedTTL = 30 * time.Second

// BlocklistStore is the source of truth the cache reads through to.
type BlocklistStore interface {
	IsBlocked(ctx context.Context, address string) (bool, error)
}

// BlocklistCache answers the per-login "is this IP blocked" question from
// Redis when possible, falling back to the database on miss or Redis
// trouble. The login path must never fail because the cache is down.
type BlocklistCache struct {
	client *redis.Client
	store  BlocklistStore
	logger *slog.Logger
}

// NewBlocklistCache connects to Redis and verifies the connection.
func NewBlocklistCache(addr, password string, db int, store BlocklistStore, logger *slog.Logger) (*BlocklistCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &BlocklistCache{
		client: client,
		store:  store,
		logger: logger,
	}, nil
}

func blockKey(address string) string {
	return "blocklist:" + address
}

// IsBlocked checks the cache first, then reads through to the store and
// caches the verdict. Redis errors degrade to a direct store read.
func (c *BlocklistCache) IsBlocked(ctx context.Context, address string) (bool, error) {
	val, err := c.client.Get(ctx, blockKey(address)).Result()
	if err == nil {
		return val == "1", nil
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("blocklist cache read failed, falling back to database", "error", err)
		return c.store.IsBlocked(ctx, address)
	}

	blocked, err := c.store.IsBlocked(ctx, address)
	if err != nil {
		return false, err
	}

	cached := "0"
	if blocked {
		cached = "1"
	}
	if err := c.client.Set(ctx, blockKey(address), cached, blockedTTL).Err(); err != nil {
		c.logger.Warn("blocklist cache write failed", "error", err)
	}

	return blocked, nil
}

// Invalidate drops the cached verdict after a block or unblock so the
// change takes effect without waiting for the TTL.
func (c *BlocklistCache) Invalidate(ctx context.Context, address string) {
	if err := c.client.Del(ctx, blockKey(address)).Err(); err != nil {
		c.logger.Warn("blocklist cache invalidation failed", "error", err)
	}
}

// Close releases the Redis connection.
func (c *BlocklistCache) Close() error {
	return c.client.Close()
}
