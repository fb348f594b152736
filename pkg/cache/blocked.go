package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// DefaultBlockedTTL bounds how stale a blocked-email answer can get.
const DefaultBlockedTTL = 30 * time.Second

// BlockedEmailCache stores blocked-status answers keyed by normalized
// email. It satisfies the advisory cache interface of the user service.
type BlockedEmailCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewBlockedEmailCache creates the cache. ttl <= 0 uses the default.
func NewBlockedEmailCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *BlockedEmailCache {
	if ttl <= 0 {
		ttl = DefaultBlockedTTL
	}
	return &BlockedEmailCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func blockedKey(email string) string {
	return "warden:blocked:" + email
}

// Get returns the cached answer for email. Misses and Redis failures both
// report found=false; the caller falls through to the database.
func (c *BlockedEmailCache) Get(ctx context.Context, email string) (bool, bool) {
	val, err := c.client.Get(ctx, blockedKey(email)).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		c.logger.WithError(err).Debug("blocked-email cache read failed")
		return false, false
	}
	return val == "1", true
}

// Set records the answer with the configured TTL, best-effort.
func (c *BlockedEmailCache) Set(ctx context.Context, email string, blocked bool) {
	val := "0"
	if blocked {
		val = "1"
	}
	if err := c.client.Set(ctx, blockedKey(email), val, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("blocked-email cache write failed")
	}
}
