package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/fedinode/fedinode/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Cache stores resolution results.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DBCache keeps results in the cache_entries table.
type DBCache struct {
	db *gorm.DB
}

func NewDBCache(db *gorm.DB) *DBCache {
	return &DBCache{
		db: db,
	}
}

func (c *DBCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return models.NewCache(c.db.WithContext(ctx)).Get(key)
}

func (c *DBCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return models.NewCache(c.db.WithContext(ctx)).Set(key, value, ttl)
}

// RedisCache keeps results in redis, shared by every process of the node.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisCache(rdb redis.UniversalClient) *RedisCache {
	return &RedisCache{
		rdb:    rdb,
		prefix: "fedinode:",
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.prefix+key, value, ttl).Err()
}
