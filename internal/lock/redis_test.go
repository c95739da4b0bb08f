package lock

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/testutil"
)

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := testutil.SetupTestRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("exclusive across lockers", func(t *testing.T) {
		first := NewRedisLocker(client, "test", 5*time.Second, 50*time.Millisecond, logger)
		second := NewRedisLocker(client, "test", 5*time.Second, 50*time.Millisecond, logger)

		release, err := first.Acquire(ctx, "account:1")
		require.NoError(t, err)

		_, err = second.Acquire(ctx, "account:1")
		require.ErrorIs(t, err, domain.ErrConcurrencyConflict)

		release()

		release, err = second.Acquire(ctx, "account:1")
		require.NoError(t, err)
		release()
	})

	t.Run("release only removes own token", func(t *testing.T) {
		locker := NewRedisLocker(client, "test", 50*time.Millisecond, time.Second, logger)

		release, err := locker.Acquire(ctx, "account:2")
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)
		releaseOther, err := locker.Acquire(ctx, "account:2")
		require.NoError(t, err, "expired section can be taken over")

		release()
		val, err := client.Get(ctx, "test:account:2").Result()
		require.NoError(t, err)
		assert.NotEmpty(t, val, "stale release must not delete the new owner's key")

		releaseOther()
		assert.Equal(t, int64(0), client.Exists(ctx, "test:account:2").Val())
	})

	t.Run("partial acquisition is rolled back", func(t *testing.T) {
		locker := NewRedisLocker(client, "test", 5*time.Second, 50*time.Millisecond, logger)

		release, err := locker.Acquire(ctx, "account:b")
		require.NoError(t, err)
		defer release()

		_, err = locker.Acquire(ctx, "account:a", "account:b")
		require.ErrorIs(t, err, domain.ErrConcurrencyConflict)
		assert.Equal(t, int64(0), client.Exists(ctx, "test:account:a").Val())
	})
}
