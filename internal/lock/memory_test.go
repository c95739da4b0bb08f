package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
)

func TestAccountKeys_SortedAndUnique(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000a")

	keys := AccountKeys(a, b, a)

	assert.Equal(t, []string{"account:" + b.String(), "account:" + a.String()}, keys)
}

func TestKeyedMutex_SerialisesSameKey(t *testing.T) {
	m := NewKeyedMutex(5 * time.Second)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(ctx, "account:1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, m.size(), "entries are dropped once released")
}

func TestKeyedMutex_DistinctKeysRunInParallel(t *testing.T) {
	m := NewKeyedMutex(time.Second)
	ctx := context.Background()

	releaseA, err := m.Acquire(ctx, "account:a")
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := m.Acquire(ctx, "account:b")
	require.NoError(t, err)
	releaseB()
}

func TestKeyedMutex_WaitBoundReturnsConflict(t *testing.T) {
	m := NewKeyedMutex(30 * time.Millisecond)
	ctx := context.Background()

	release, err := m.Acquire(ctx, "account:a")
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "account:b", "account:a")
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	// the partially acquired key must have been given back
	releaseB, err := m.Acquire(ctx, "account:b")
	require.NoError(t, err)
	releaseB()

	release()
	release()

	release, err = m.Acquire(ctx, "account:a")
	require.NoError(t, err)
	release()
	assert.Equal(t, 0, m.size())
}

func TestKeyedMutex_OverlappingSetsDoNotDeadlock(t *testing.T) {
	m := NewKeyedMutex(5 * time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys := []string{"account:x", "account:y"}
			if i%2 == 0 {
				keys = []string{"account:y", "account:x"}
			}
			release, err := m.Acquire(ctx, keys...)
			if err != nil {
				errs <- err
				return
			}
			release()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
}
