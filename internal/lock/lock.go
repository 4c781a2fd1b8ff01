// Package lock serializes work on a single bot across goroutines or processes.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/liliang-cn/sitebot/internal/config"
)

// Locker grants exclusive access to a key. The returned unlock function is
// idempotent.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
	Close() error
}

// New creates the locker selected by cfg.Backend
func New(ctx context.Context, cfg config.LockConfig, logger *zap.Logger) (Locker, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalLocker(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisLocker(client, RedisOptions{
			TTL:           cfg.TTL,
			RetryInterval: cfg.RetryInterval,
			Logger:        logger,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported lock backend: %s", cfg.Backend)
	}
}

// LocalLocker is an in-process Locker
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	held chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ll, ok := l.locks[key]
	if !ok {
		ll = &localLock{held: make(chan struct{}, 1)}
		l.locks[key] = ll
	}
	ll.refs++
	l.mu.Unlock()

	select {
	case ll.held <- struct{}{}:
	case <-ctx.Done():
		l.release(key, ll)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ll.held
			l.release(key, ll)
		})
	}, nil
}

func (l *LocalLocker) release(key string, ll *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ll.refs--
	if ll.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *LocalLocker) Close() error { return nil }
