package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"creator-paywall/internal/domain/ports/repository"
)

var _ repository.IntentLog = (*IntentLog)(nil)

const (
	pendingIntentsKey = "intents:pending"
	intentKeyPrefix   = "intent:"
)

// IntentLog keeps created intents in a sorted set scored by when they are
// next due, creation time at first, with the details under a per-intent key
// that expires after retention.
type IntentLog struct {
	client    RedisClient
	retention time.Duration
	log       *zerolog.Logger
}

func NewIntentLog(client RedisClient, retention time.Duration, logger *zerolog.Logger) *IntentLog {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &IntentLog{client: client, retention: retention, log: logger}
}

type pendingIntentRecord struct {
	IntentRef string    `json:"intentRef"`
	BuyerID   string    `json:"buyerId"`
	ContentID string    `json:"contentId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (l *IntentLog) Track(ctx context.Context, pi repository.PendingIntent) error {
	if pi.IntentRef == "" {
		return errors.New("intent log: empty intent ref")
	}
	if pi.CreatedAt.IsZero() {
		pi.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(pendingIntentRecord(pi))
	if err != nil {
		return err
	}
	if err := l.client.Set(ctx, intentKeyPrefix+pi.IntentRef, b, l.retention); err != nil {
		return fmt.Errorf("intent log: store %s: %w", pi.IntentRef, err)
	}
	score := float64(pi.CreatedAt.UnixMilli())
	if err := l.client.ZAdd(ctx, pendingIntentsKey, score, pi.IntentRef); err != nil {
		return fmt.Errorf("intent log: index %s: %w", pi.IntentRef, err)
	}
	return nil
}

// ListStale returns intents due before olderThan, earliest first. Index entries whose
// detail key already expired are pruned on the way.
func (l *IntentLog) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]repository.PendingIntent, error) {
	if limit <= 0 {
		limit = 50
	}
	refs, err := l.client.ZRangeByScore(ctx, pendingIntentsKey, float64(olderThan.UnixMilli()), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("intent log: scan: %w", err)
	}
	out := make([]repository.PendingIntent, 0, len(refs))
	var expired []string
	for _, ref := range refs {
		raw, err := l.client.Get(ctx, intentKeyPrefix+ref)
		if errors.Is(err, redis.Nil) {
			expired = append(expired, ref)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("intent log: load %s: %w", ref, err)
		}
		var rec pendingIntentRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			l.log.Warn().Err(err).Str("intent_ref", ref).Msg("dropping unreadable intent record")
			expired = append(expired, ref)
			continue
		}
		out = append(out, repository.PendingIntent(rec))
	}
	if len(expired) > 0 {
		if err := l.client.ZRem(ctx, pendingIntentsKey, expired...); err != nil {
			l.log.Warn().Err(err).Int("count", len(expired)).Msg("prune expired intents failed")
		}
	}
	return out, nil
}

func (l *IntentLog) Forget(ctx context.Context, intentRef string) error {
	if err := l.client.ZRem(ctx, pendingIntentsKey, intentRef); err != nil {
		return err
	}
	return l.client.Del(ctx, intentKeyPrefix+intentRef)
}

// Defer moves an intent behind everything due before next so one scan batch
// cannot be filled by the same unpaid intents forever. The stored CreatedAt
// is kept. A forgotten intent is not brought back.
func (l *IntentLog) Defer(ctx context.Context, intentRef string, next time.Time) error {
	if err := l.client.ZAddXX(ctx, pendingIntentsKey, float64(next.UnixMilli()), intentRef); err != nil {
		return fmt.Errorf("intent log: defer %s: %w", intentRef, err)
	}
	return nil
}
