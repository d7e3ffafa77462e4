package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/telavo/telavo/pkg/cache"
	"github.com/telavo/telavo/pkg/logger"
)

const (
	verifyCacheTTL   = 5 * time.Minute
	notifyGuardTTL   = 24 * time.Hour
	unreadCountTTL   = time.Hour
	verifyKeyPrefix  = "checkout:verify:"
	notifyKeyPrefix  = "activation:notified:"
	unreadKeyPrefix  = "inbox:unread:"
)

// CacheService wraps the shared Redis client with the key schema used
// across the checkout and inbox flows. Cache failures are logged and
// swallowed: Redis being down degrades latency, never correctness.
type CacheService struct {
	kv     KV
	logger logger.Logger
}

func NewCacheService(kv KV, log logger.Logger) *CacheService {
	return &CacheService{kv: kv, logger: log}
}

// CacheVerifyResult stores a completed verification so repeated polls
// from the success page skip the payment provider.
func (c *CacheService) CacheVerifyResult(ctx context.Context, sessionID string, result interface{}) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, verifyKeyPrefix+sessionID, data, verifyCacheTTL); err != nil {
		c.logger.Warn("failed to cache verify result", logger.Field{Key: "error", Value: err})
	}
}

// GetVerifyResult returns true and fills dest when a cached completed
// verification exists for the session.
func (c *CacheService) GetVerifyResult(ctx context.Context, sessionID string, dest interface{}) bool {
	err := c.kv.GetJSON(ctx, verifyKeyPrefix+sessionID, dest)
	if err != nil {
		if err != cache.ErrCacheMiss {
			c.logger.Warn("verify cache lookup failed", logger.Field{Key: "error", Value: err})
		}
		return false
	}
	return true
}

// ClaimActivationNotify returns true exactly once per subscription.
// Concurrent watchers for the same activation race on SetNX and only
// the winner emits the notification.
func (c *CacheService) ClaimActivationNotify(ctx context.Context, subscriptionID string) bool {
	ok, err := c.kv.SetNX(ctx, notifyKeyPrefix+subscriptionID, time.Now().Unix(), notifyGuardTTL)
	if err != nil {
		c.logger.Warn("activation notify guard failed, notifying anyway",
			logger.Field{Key: "subscription_id", Value: subscriptionID},
			logger.Field{Key: "error", Value: err})
		return true
	}
	return ok
}

func (c *CacheService) CacheUnreadCount(ctx context.Context, userID string, count int64) {
	if err := c.kv.Set(ctx, unreadKeyPrefix+userID, fmt.Sprintf("%d", count), unreadCountTTL); err != nil {
		c.logger.Warn("failed to cache unread count", logger.Field{Key: "error", Value: err})
	}
}

// UnreadCount returns the cached unread badge count, false on a miss.
func (c *CacheService) UnreadCount(ctx context.Context, userID string) (int64, bool) {
	raw, err := c.kv.Get(ctx, unreadKeyPrefix+userID)
	if err != nil {
		if err != cache.ErrCacheMiss {
			c.logger.Warn("unread cache lookup failed", logger.Field{Key: "error", Value: err})
		}
		return 0, false
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return count, true
}

// BumpUnread increments the cached badge for a fresh inbound message.
// The counter is approximate: an expired key restarts at one and is
// corrected on the next full recount.
func (c *CacheService) BumpUnread(ctx context.Context, userID string) {
	key := unreadKeyPrefix + userID
	if _, err := c.kv.Increment(ctx, key); err != nil {
		c.logger.Warn("failed to bump unread count", logger.Field{Key: "error", Value: err})
		return
	}
	if err := c.kv.Expire(ctx, key, unreadCountTTL); err != nil {
		c.logger.Warn("failed to refresh unread count ttl", logger.Field{Key: "error", Value: err})
	}
}

func (c *CacheService) InvalidateUnread(ctx context.Context, userID string) {
	if err := c.kv.Delete(ctx, unreadKeyPrefix+userID); err != nil {
		c.logger.Warn("failed to invalidate unread count", logger.Field{Key: "error", Value: err})
	}
}
