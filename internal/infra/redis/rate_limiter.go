package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"creator-paywall/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// Throttled paywall actions.
const (
	ActionIntent   = "intent"
	ActionWithdraw = "withdraw"
)

// RateLimiter throttles how often one user opens payment intents or requests
// payouts. Every window has its own counter key, so a counter whose expiry
// was never set stops counting once the window rolls over.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow counts one hit against key in the current window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, fmt.Errorf("rate limit %s: window must be positive", key)
	}
	slot := windowKey(key, r.now(), window)
	count, err := r.client.Incr(ctx, slot)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, slot, window); err != nil {
			return false, fmt.Errorf("rate limit %s: expire: %w", key, err)
		}
	}
	return count <= int64(limit), nil
}

// UserActionKey names the counters of one user for one action.
func UserActionKey(userID, action string) string {
	return "paywall:rl:" + action + ":" + userID
}

func windowKey(key string, now time.Time, window time.Duration) string {
	return key + ":" + strconv.FormatInt(now.Truncate(window).Unix(), 10)
}
