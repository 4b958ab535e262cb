// Package locks provides keyed single-writer locks. Services take them on
// user:{id} and org:{id} keys around read-modify-write sequences that span
// several documents.
package locks

import (
	"context"
	"errors"
	"sort"
)

// ErrNotAcquired is returned when a lock could not be taken before the
// context or the wait budget ran out.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock. Calling it more than once is safe.
type Unlock func()

// Locker hands out exclusive locks by key
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// UserKey is the lock key guarding a user's default membership
func UserKey(userID string) string { return "user:" + userID }

// OrgKey is the lock key guarding an organization's owner and lifecycle
func OrgKey(organizationID string) string { return "org:" + organizationID }

// AcquireAll takes every key in sorted order so concurrent callers cannot
// deadlock. Duplicate and empty keys are ignored. On failure the locks
// already held are released.
func AcquireAll(ctx context.Context, l Locker, keys ...string) (Unlock, error) {
	uniq := make(map[string]struct{}, len(keys))
	sorted := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := uniq[k]; ok {
			continue
		}
		uniq[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	held := make([]Unlock, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, k := range sorted {
		unlock, err := l.Lock(ctx, k)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}
	return release, nil
}

// Nop never blocks
type Nop struct{}

func (Nop) Lock(context.Context, string) (Unlock, error) {
	return func() {}, nil
}
