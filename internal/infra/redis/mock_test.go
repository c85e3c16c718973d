//go:build !integration

package redis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// memRedis is an in-memory RedisClient. Expirations are recorded, not enforced.
type memRedis struct {
	mu      sync.Mutex
	kv      map[string]string
	ttl     map[string]time.Duration
	zsets   map[string]map[string]float64
	IncrErr error
}

var _ RedisClient = (*memRedis)(nil)

func newMemRedis() *memRedis {
	return &memRedis{
		kv:    map[string]string{},
		ttl:   map[string]time.Duration{},
		zsets: map[string]map[string]float64{},
	}
}

func (m *memRedis) Ping(ctx context.Context) error { return nil }

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.kv[key] = string(v)
	case string:
		m.kv[key] = v
	}
	m.ttl[key] = expiration
	return nil
}

func (m *memRedis) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memRedis) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IncrErr != nil {
		return 0, m.IncrErr
	}
	var n int64
	for _, c := range m.kv[key] {
		n = n*10 + int64(c-'0')
	}
	n++
	m.kv[key] = itoa(n)
	return n, nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func (m *memRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl[key] = expiration
	return nil
}

func (m *memRedis) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.kv, k)
		delete(m.ttl, k)
	}
	return nil
}

func (m *memRedis) ZAdd(ctx context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.zsets[key] == nil {
		m.zsets[key] = map[string]float64{}
	}
	m.zsets[key][member] = score
	return nil
}

func (m *memRedis) ZAddXX(ctx context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.zsets[key][member]; ok {
		m.zsets[key][member] = score
	}
	return nil
}

func (m *memRedis) ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for member, score := range m.zsets[key] {
		if score <= max {
			out = append(out, member)
		}
	}
	z := m.zsets[key]
	sort.Slice(out, func(i, j int) bool { return z[out[i]] < z[out[j]] })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRedis) ZRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range members {
		delete(m.zsets[key], member)
	}
	return nil
}

func (m *memRedis) Close() error { return nil }

func (m *memRedis) zcard(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.zsets[key])
}
