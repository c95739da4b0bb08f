// Package lock provides the per-account critical section that serialises
// transfers touching the same account.
package lock

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Release gives the section back. It is safe to call more than once.
type Release func()

// Locker acquires exclusive sections for a set of keys. Keys are taken in
// sorted order so two callers asking for overlapping sets cannot deadlock.
// When the section cannot be obtained within the locker's wait bound the
// returned error wraps domain.ErrConcurrencyConflict.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (Release, error)
}

// AccountKeys turns account ids into lock keys, sorted and without duplicates.
func AccountKeys(ids ...uuid.UUID) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, "account:"+id.String())
	}
	return normalize(keys)
}

func normalize(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
