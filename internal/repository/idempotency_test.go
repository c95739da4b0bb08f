package repository_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/transfer-engine/internal/repository"
	"github.com/josh-kwaku/transfer-engine/internal/testutil"
)

func TestIdempotencyRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewIdempotencyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	complete := func(key, hash string, expires time.Time) *repository.IdempotencyEntry {
		return &repository.IdempotencyEntry{
			Key:          key,
			RequestHash:  hash,
			StatusCode:   201,
			ResponseBody: []byte(`{"success":true}`),
			ExpiresAt:    expires,
		}
	}

	t.Run("missing key", func(t *testing.T) {
		got, err := repo.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("claim then complete", func(t *testing.T) {
		ok, err := repo.Claim(ctx, "k1", "hash-a", now, now.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		got, err := repo.Get(ctx, "k1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.InProgress())

		ok, err = repo.Claim(ctx, "k1", "hash-b", now, now.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, repo.Complete(ctx, complete("k1", "hash-a", now.Add(time.Hour))))
		got, err = repo.Get(ctx, "k1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.InProgress())
		assert.Equal(t, "hash-a", got.RequestHash)
		assert.Equal(t, 201, got.StatusCode)
		assert.JSONEq(t, `{"success":true}`, string(got.ResponseBody))

		err = repo.Complete(ctx, complete("k1", "hash-a", now.Add(time.Hour)))
		assert.ErrorIs(t, err, repository.ErrNotClaimed)
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.Claim(ctx, "k-race", "hash", now, now.Add(time.Minute))
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("release frees an unfinished claim only", func(t *testing.T) {
		ok, err := repo.Claim(ctx, "k2", "hash", now, now.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, repo.Release(ctx, "k2"))

		ok, err = repo.Claim(ctx, "k2", "hash", now, now.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, repo.Complete(ctx, complete("k2", "hash", now.Add(time.Hour))))

		require.NoError(t, repo.Release(ctx, "k2"))
		got, err := repo.Get(ctx, "k2")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 201, got.StatusCode)
	})

	t.Run("expired claims are invisible and replaceable", func(t *testing.T) {
		ok, err := repo.Claim(ctx, "k3", "old", now.Add(-time.Hour), now.Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		got, err := repo.Get(ctx, "k3")
		require.NoError(t, err)
		assert.Nil(t, got)

		ok, err = repo.Claim(ctx, "k3", "new", now, now.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		got, err = repo.Get(ctx, "k3")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "new", got.RequestHash)
	})

	t.Run("clean expired", func(t *testing.T) {
		_, err := repo.Claim(ctx, "k4", "stale", now.Add(-time.Hour), now.Add(-time.Minute))
		require.NoError(t, err)

		n, err := repo.CleanExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		var remaining int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM idempotency_keys`).Scan(&remaining))
		assert.Equal(t, 4, remaining)
	})
}
