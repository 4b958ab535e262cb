package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/membership/pkg/observability"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker serializes callers within one process
type MemoryLocker struct {
	metrics *observability.Metrics

	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewMemoryLocker creates an empty locker
func NewMemoryLocker(metrics *observability.Metrics) *MemoryLocker {
	return &MemoryLocker{metrics: metrics, locks: make(map[string]*keyLock)}
}

func (l *MemoryLocker) acquireRef(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *MemoryLocker) releaseRef(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	start := time.Now()
	kl := l.acquireRef(key)

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseRef(key, kl)
		err := fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		l.metrics.LockWait("memory", time.Since(start), err)
		return nil, err
	}
	l.metrics.LockWait("memory", time.Since(start), nil)

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.releaseRef(key, kl)
		})
	}, nil
}

// Held reports how many keys currently have holders or waiters
func (l *MemoryLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
