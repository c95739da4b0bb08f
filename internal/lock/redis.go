package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

const retryInterval = 20 * time.Millisecond

// RedisLocker is a Locker shared by every process pointing at the same Redis.
// Each key is held with SET NX PX under a random token, so a section that
// outlives its TTL cannot be released by a later owner.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	logger *slog.Logger
}

func NewRedisLocker(client redis.UniversalClient, prefix string, ttl, wait time.Duration, logger *slog.Logger) *RedisLocker {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "transfer-engine:lock"
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
		logger: logger,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, keys ...string) (Release, error) {
	if r.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.wait)
		defer cancel()
	}

	token := uuid.NewString()
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		full := r.prefix + ":" + key
		if err := r.lock(ctx, full, token); err != nil {
			r.unlockAll(held, token)
			return nil, fmt.Errorf("RedisLocker.Acquire %s: %w", key, err)
		}
		held = append(held, full)
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.unlockAll(held, token) })
	}, nil
}

func (r *RedisLocker) lock(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return domain.ErrConcurrencyConflict
			}
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return domain.ErrConcurrencyConflict
		case <-ticker.C:
		}
	}
}

func (r *RedisLocker) unlockAll(keys []string, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := len(keys) - 1; i >= 0; i-- {
		if err := releaseScript.Run(ctx, r.client, []string{keys[i]}, token).Err(); err != nil {
			r.logger.Warn("failed to release lock", "key", keys[i], "error", err)
		}
	}
}
