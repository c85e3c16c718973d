package adapter

import (
	"context"
	"time"

	"creator-paywall/internal/domain/model"
)

// EventPublisher emits ledger events after commit. Delivery is at least once.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.LedgerEvent) error
}

// Locker is a short-lived named mutex shared across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RateLimiter counts hits per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Sealer protects payout destinations at rest.
type Sealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}
