//go:build !integration

package postgres

import (
	"context"
	"time"

	"creator-paywall/internal/domain/model"
	red "creator-paywall/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

type mockCatalogStore struct {
	GetContentFunc  func(ctx context.Context, id string) (*model.Content, error)
	SaveContentFunc func(ctx context.Context, c *model.Content) error
	SaveAccountFunc func(ctx context.Context, a *model.Account) error
}

func (m *mockCatalogStore) GetContent(ctx context.Context, id string) (*model.Content, error) {
	return m.GetContentFunc(ctx, id)
}
func (m *mockCatalogStore) SaveContent(ctx context.Context, c *model.Content) error {
	return m.SaveContentFunc(ctx, c)
}
func (m *mockCatalogStore) SaveAccount(ctx context.Context, a *model.Account) error {
	return m.SaveAccountFunc(ctx, a)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error                      { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return nil
}
func (m *mockRedisClient) ZAddXX(ctx context.Context, key string, score float64, member string) error {
	return nil
}
func (m *mockRedisClient) ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([]string, error) {
	return nil, nil
}
func (m *mockRedisClient) ZRem(ctx context.Context, key string, members ...string) error { return nil }
func (m *mockRedisClient) Close() error                                                  { return nil }
