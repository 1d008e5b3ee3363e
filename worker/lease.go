package worker

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker is a short-lived processing lease. The sweep acquires one per
// enrollment before ticking it, so overlapping sweep runs (or a sweep and a
// late-running previous sweep) cannot double-process the same record.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

// RedisLocker implements Locker with SET NX, suitable for multi-node deployments
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, 1, ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) {
	l.client.Del(ctx, key)
}

// MemoryLocker implements Locker in-process, for single-node runs and tests
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time // expiry per key
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if expiry, ok := l.held[key]; ok && now.Before(expiry) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *MemoryLocker) Release(ctx context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
