package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercisesMutualExclusion(t *testing.T, l Locker) {
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), OrgKey("org-1"))
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
}

func TestMemoryLockerMutualExclusion(t *testing.T) {
	l := NewMemoryLocker(nil)
	exercisesMutualExclusion(t, l)
	assert.Equal(t, 0, l.Held())
}

func TestMemoryLockerRespectsContext(t *testing.T) {
	l := NewMemoryLocker(nil)
	unlock, err := l.Lock(context.Background(), UserKey("u-1"))
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, UserKey("u-1"))
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := l.Lock(context.Background(), UserKey("u-2"))
	require.NoError(t, err)
	other()
}

func TestUnlockIsIdempotent(t *testing.T) {
	l := NewMemoryLocker(nil)
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestAcquireAll(t *testing.T) {
	l := NewMemoryLocker(nil)
	unlock, err := AcquireAll(context.Background(), l, OrgKey("b"), UserKey("a"), OrgKey("b"), "")
	require.NoError(t, err)
	assert.Equal(t, 2, l.Held())
	unlock()
	assert.Equal(t, 0, l.Held())
}

func TestAcquireAllReleasesOnFailure(t *testing.T) {
	l := NewMemoryLocker(nil)
	blocker, err := l.Lock(context.Background(), "z")
	require.NoError(t, err)
	defer blocker()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = AcquireAll(ctx, l, "a", "z")
	assert.ErrorIs(t, err, ErrNotAcquired)

	free, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	free()
}

func newRedisLocker(t *testing.T, cfg RedisLockerConfig) (*miniredis.Miniredis, *RedisLocker) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisLocker(client, cfg, nil, nil)
}

func TestRedisLockerMutualExclusion(t *testing.T) {
	_, l := newRedisLocker(t, RedisLockerConfig{TTL: 5 * time.Second, MaxWait: 5 * time.Second})
	exercisesMutualExclusion(t, l)
}

func TestRedisLockerTimesOut(t *testing.T) {
	mr, l := newRedisLocker(t, RedisLockerConfig{TTL: time.Minute, MaxWait: 30 * time.Millisecond})

	unlock, err := l.Lock(context.Background(), "org:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("membership:lock:org:1"))

	_, err = l.Lock(context.Background(), "org:1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
	assert.False(t, mr.Exists("membership:lock:org:1"))
}

func TestRedisLockerDoesNotReleaseForeignLease(t *testing.T) {
	mr, l := newRedisLocker(t, RedisLockerConfig{TTL: time.Second, MaxWait: time.Second})

	unlock, err := l.Lock(context.Background(), "user:1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("membership:lock:user:1", "someone-else"))

	unlock()
	got, err := mr.Get("membership:lock:user:1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockerOutage(t *testing.T) {
	mr, l := newRedisLocker(t, RedisLockerConfig{MaxWait: 50 * time.Millisecond})
	mr.Close()

	_, err := l.Lock(context.Background(), "org:1")
	assert.ErrorIs(t, err, ErrNotAcquired)
}
