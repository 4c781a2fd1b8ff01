package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const keyPrefix = "sitebot:lock:"

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions configures a RedisLocker
type RedisOptions struct {
	TTL           time.Duration
	RetryInterval time.Duration
	Logger        *zap.Logger
}

// RedisLocker is a Locker shared by every process using the same Redis. A
// lock whose holder dies expires after TTL.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

func NewRedisLocker(client *redis.Client, opts RedisOptions) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &RedisLocker{
		client: client,
		ttl:    opts.TTL,
		retry:  opts.RetryInterval,
		logger: opts.Logger.Named("lock"),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{k}, token).Err(); err != nil && err != redis.Nil {
				l.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
