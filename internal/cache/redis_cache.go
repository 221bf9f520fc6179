package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anotheregi/blastkeun/internal/model"
)

type RedisQuota struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisQuota keeps each daily counter for ttl after its last write; it
// must outlive the day it counts.
func NewRedisQuota(rdb *redis.Client, ttl time.Duration) *RedisQuota {
	if ttl < 24*time.Hour {
		ttl = 48 * time.Hour
	}
	return &RedisQuota{rdb: rdb, ttl: ttl}
}

func (c *RedisQuota) Used(ctx context.Context, ownerID string, mode model.ModeID, day time.Time) (int, error) {
	n, err := c.rdb.Get(ctx, quotaKey(ownerID, mode, day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (c *RedisQuota) Add(ctx context.Context, ownerID string, mode model.ModeID, day time.Time, n int) error {
	key := quotaKey(ownerID, mode, day)

	pipe := c.rdb.TxPipeline()
	pipe.IncrBy(ctx, key, int64(n))
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}
