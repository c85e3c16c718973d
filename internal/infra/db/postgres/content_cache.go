package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/repository"
	"creator-paywall/internal/infra/metrics"
	red "creator-paywall/internal/infra/redis"
)

// CatalogStore is what the cache decorates: the content read path plus the
// writes that must invalidate it.
type CatalogStore interface {
	repository.ContentReader
	repository.CatalogWriter
}

var _ CatalogStore = (*contentCacheDecorator)(nil)

// contentCacheDecorator serves content reads for intent creation and access
// checks. Settlement never reads through it; it locks the row instead.
type contentCacheDecorator struct {
	inner CatalogStore
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewContentCacheDecorator(inner CatalogStore, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) CatalogStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &contentCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func contentKey(id string) string { return "content:id:" + id }

func (d *contentCacheDecorator) GetContent(ctx context.Context, id string) (*model.Content, error) {
	key := contentKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var c model.Content
		if json.Unmarshal([]byte(val), &c) == nil {
			metrics.IncCacheRequest("content", "hit")
			return &c, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("content cache read failed")
	}

	metrics.IncCacheRequest("content", "miss")
	c, err := d.inner.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(c); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return c, nil
}

func (d *contentCacheDecorator) SaveContent(ctx context.Context, c *model.Content) error {
	_ = d.cache.Del(ctx, contentKey(c.ID))
	return d.inner.SaveContent(ctx, c)
}

func (d *contentCacheDecorator) SaveAccount(ctx context.Context, a *model.Account) error {
	return d.inner.SaveAccount(ctx, a)
}
