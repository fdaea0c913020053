// Package lock guards single-document generation so a webhook trigger and a
// manual retry for the same document do not upload and link concurrently.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained means another run holds the key.
var ErrNotObtained = errors.New("lock held by another run")

// Release frees a held key. It is safe to call once.
type Release func(ctx context.Context)

type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Key is the lock name for one document.
func Key(docType, docID string) string {
	return fmt.Sprintf("pdf:%s:%s", docType, docID)
}

func noRelease(context.Context) {}

// Noop never blocks.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (Release, error) { return noRelease, nil }

// Redis takes leases through redislock. Redis being unreachable is not fatal:
// the caller proceeds unlocked and a warning is logged.
type Redis struct {
	locker *redislock.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedisClient returns a go-redis client for addr.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
		PoolSize:    4,
	})
}

func NewRedis(client redislock.RedisClient, ttl time.Duration, log *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Redis{locker: redislock.New(client), ttl: ttl, log: log}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	l, err := r.locker.Obtain(ctx, key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		r.log.Warn("Could not obtain document lock.", "key", key)
		return noRelease, ErrNotObtained
	}
	if err != nil {
		r.log.Warn("Error obtaining document lock; proceeding without lock.", "key", key, "error", err)
		return noRelease, nil
	}
	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() {
			if err := l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.log.Warn("Failed to release document lock.", "key", key, "error", err)
			}
		})
	}, nil
}

// Memory is an in-process Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemory() *Memory {
	return &Memory{held: map[string]bool{}}
}

func (m *Memory) Acquire(_ context.Context, key string) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return noRelease, ErrNotObtained
	}
	m.held[key] = true
	var once sync.Once
	return func(context.Context) {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}
