package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the correlation map with Redis, giving entries
// cross-process visibility between the sender and the connection's error
// callback loop.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Fail fast if connection is bad
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{rdb: rdb}, nil
}

func (c *RedisCache) Put(ctx context.Context, identifier uint32, entry Entry, ttl time.Duration) error {
	bytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, Key(identifier), bytes, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, identifier uint32) (Entry, bool, error) {
	val, err := c.rdb.Get(ctx, Key(identifier)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, identifier uint32) error {
	return c.rdb.Del(ctx, Key(identifier)).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
