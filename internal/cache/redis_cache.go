package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/focus-room/internal/domain"
)

// getJSON reads key into v, mapping redis.Nil to ErrCacheMiss.
func getJSON(ctx context.Context, client redis.UniversalClient, key string, v interface{}) error {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to get from redis: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return nil
}

func setJSON(ctx context.Context, client redis.UniversalClient, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

type RedisUserCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisUserCache(client redis.UniversalClient, prefix string) *RedisUserCache {
	return &RedisUserCache{client: client, prefix: prefix + ":user"}
}

func (c *RedisUserCache) BuildKeyByID(userID string) string {
	return fmt.Sprintf("%s:id:%s", c.prefix, userID)
}

func (c *RedisUserCache) Get(ctx context.Context, key string) (*UserCacheResult, error) {
	var result UserCacheResult
	if err := getJSON(ctx, c.client, key, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RedisUserCache) Set(ctx context.Context, key string, result *UserCacheResult, ttl time.Duration) error {
	return setJSON(ctx, c.client, key, result, ttl)
}

func (c *RedisUserCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}

	return nil
}

type RedisDashboardCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisDashboardCache(client redis.UniversalClient, prefix string) *RedisDashboardCache {
	return &RedisDashboardCache{client: client, prefix: prefix + ":dashboard"}
}

func (c *RedisDashboardCache) key(userID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, userID)
}

func (c *RedisDashboardCache) Get(ctx context.Context, userID string, tzOffset int) (*domain.Dashboard, error) {
	data, err := c.client.HGet(ctx, c.key(userID), strconv.Itoa(tzOffset)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var d domain.Dashboard
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &d, nil
}

// Set stores the entry; the TTL applies to the user's whole hash.
func (c *RedisDashboardCache) Set(ctx context.Context, userID string, tzOffset int, d *domain.Dashboard, ttl time.Duration) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	key := c.key(userID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(tzOffset), data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisDashboardCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

type RedisMessageCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisMessageCache(client redis.UniversalClient, prefix string) *RedisMessageCache {
	return &RedisMessageCache{client: client, prefix: prefix + ":messages"}
}

func (c *RedisMessageCache) BuildKey(roomID string, version int64, cursor, direction string, limit int) string {
	if cursor == "" {
		cursor = "start"
	}
	return fmt.Sprintf("%s:%s:v%d:%s:%s:%d", c.prefix, roomID, version, cursor, direction, limit)
}

func (c *RedisMessageCache) versionKey(roomID string) string {
	return fmt.Sprintf("%s:%s:version", c.prefix, roomID)
}

func (c *RedisMessageCache) Get(ctx context.Context, key string) (*MessageCacheResult, error) {
	var result MessageCacheResult
	if err := getJSON(ctx, c.client, key, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RedisMessageCache) Set(ctx context.Context, key string, result *MessageCacheResult, ttl time.Duration) error {
	return setJSON(ctx, c.client, key, result, ttl)
}

// Version returns the room's current cache version, 0 when never bumped.
func (c *RedisMessageCache) Version(ctx context.Context, roomID string) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(roomID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get from redis: %w", err)
	}
	return v, nil
}

func (c *RedisMessageCache) BumpVersion(ctx context.Context, roomID string) error {
	if err := c.client.Incr(ctx, c.versionKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to bump version: %w", err)
	}
	return nil
}

var (
	_ UserCache      = (*RedisUserCache)(nil)
	_ DashboardCache = (*RedisDashboardCache)(nil)
	_ MessageCache   = (*RedisMessageCache)(nil)
)
