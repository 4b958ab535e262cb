package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/membership/pkg/observability"
)

const (
	defaultRedisPrefix = "membership:perms"

	// generationTTL keeps per-pair generation counters alive long after any
	// computation that could have read them has finished
	generationTTL = 24 * time.Hour
)

// RedisPermissionCache shares cached permission sets between processes.
// InvalidateAll bumps an epoch counter that is part of every key, so stale
// entries become unreachable and age out through their TTL. Invalidate
// bumps a per-pair counter. A generation is the pair of both counters and
// Set checks it under WATCH.
type RedisPermissionCache struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewRedisPermissionCache creates a cache on client
func NewRedisPermissionCache(client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *RedisPermissionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisPermissionCache{client: client, prefix: defaultRedisPrefix, ttl: ttl, metrics: metrics}
}

func (c *RedisPermissionCache) epochKey() string {
	return c.prefix + ":epoch"
}

func (c *RedisPermissionCache) generationKey(userID, organizationID string) string {
	return fmt.Sprintf("%s:gen:%s:%s", c.prefix, userID, organizationID)
}

func (c *RedisPermissionCache) entryKey(epoch int64, userID, organizationID string) string {
	return fmt.Sprintf("%s:%d:%s:%s", c.prefix, epoch, userID, organizationID)
}

// getter is the read side shared by *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// counter reads an integer key, treating a missing key as zero
func counter(ctx context.Context, cmd getter, key string) (int64, error) {
	n, err := cmd.Get(ctx, key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return n, nil
}

func (c *RedisPermissionCache) key(ctx context.Context, userID, organizationID string) (string, error) {
	epoch, err := counter(ctx, c.client, c.epochKey())
	if err != nil {
		return "", fmt.Errorf("failed to read cache epoch: %w", err)
	}
	return c.entryKey(epoch, userID, organizationID), nil
}

// generation reads both counters through cmd
func (c *RedisPermissionCache) generation(ctx context.Context, cmd getter, userID, organizationID string) (int64, Generation, error) {
	epoch, err := counter(ctx, cmd, c.epochKey())
	if err != nil {
		return 0, "", fmt.Errorf("failed to read cache epoch: %w", err)
	}
	gen, err := counter(ctx, cmd, c.generationKey(userID, organizationID))
	if err != nil {
		return 0, "", fmt.Errorf("failed to read cache generation: %w", err)
	}
	return epoch, Generation(fmt.Sprintf("%d:%d", epoch, gen)), nil
}

func (c *RedisPermissionCache) Get(ctx context.Context, userID, organizationID string) ([]string, bool, error) {
	key, err := c.key(ctx, userID, organizationID)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.CacheLookup("redis", false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached permissions: %w", err)
	}

	var perms []string
	if err := json.Unmarshal(raw, &perms); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached permissions: %w", err)
	}
	c.metrics.CacheLookup("redis", true)
	return perms, true, nil
}

func (c *RedisPermissionCache) Generation(ctx context.Context, userID, organizationID string) (Generation, error) {
	_, gen, err := c.generation(ctx, c.client, userID, organizationID)
	return gen, err
}

func (c *RedisPermissionCache) Set(ctx context.Context, userID, organizationID string, gen Generation, permissions []string) (bool, error) {
	if permissions == nil {
		permissions = []string{}
	}
	raw, err := json.Marshal(permissions)
	if err != nil {
		return false, err
	}

	stored := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		epoch, current, err := c.generation(ctx, tx, userID, organizationID)
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.entryKey(epoch, userID, organizationID), raw, c.ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, c.epochKey(), c.generationKey(userID, organizationID))
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to cache permissions: %w", err)
	}
	return stored, nil
}

func (c *RedisPermissionCache) Invalidate(ctx context.Context, userID, organizationID string) error {
	key, err := c.key(ctx, userID, organizationID)
	if err != nil {
		return err
	}
	genKey := c.generationKey(userID, organizationID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cached permissions: %w", err)
	}
	return nil
}

func (c *RedisPermissionCache) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.epochKey()).Err(); err != nil {
		return fmt.Errorf("failed to bump cache epoch: %w", err)
	}
	return nil
}
