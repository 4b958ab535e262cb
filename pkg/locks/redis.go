package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/platinummonkey/membership/pkg/observability"
)

var errLockHeld = errors.New("lock held")

// releaseScript deletes the key only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockerConfig configures a RedisLocker
type RedisLockerConfig struct {
	Prefix  string
	TTL     time.Duration // lease length; bounds how long a crashed holder blocks others
	MaxWait time.Duration // acquisition budget
}

// RedisLocker provides locks shared by every process using the same redis
type RedisLocker struct {
	client  *redis.Client
	cfg     RedisLockerConfig
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRedisLocker creates a locker on client
func NewRedisLocker(client *redis.Client, cfg RedisLockerConfig, logger *observability.Logger, metrics *observability.Metrics) *RedisLocker {
	if cfg.Prefix == "" {
		cfg.Prefix = "membership:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 10 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisLocker{client: client, cfg: cfg, logger: logger, metrics: metrics}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	start := time.Now()
	redisKey := l.cfg.Prefix + key
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (bool, error) {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if !ok {
			return false, errLockHeld
		}
		return true, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(l.cfg.MaxWait))

	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
		l.metrics.LockWait("redis", time.Since(start), err)
		return nil, err
	}
	l.metrics.LockWait("redis", time.Since(start), nil)

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.WithError(err).WithField("lock_key", key).Warn("failed to release lock")
			}
		})
	}, nil
}
