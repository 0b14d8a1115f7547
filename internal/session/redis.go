package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "restock:session:"

// RedisCache stores sessions in Redis with a server-side expiry set at creation.
type RedisCache struct {
	Redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewRedisCache returns a Cache backed by rdb.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Redis: rdb, ttl: ttl, now: time.Now}
}

func redisKey(token string) string { return redisKeyPrefix + token }

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *RedisCache) Create(ctx context.Context, ownerID string, draft Draft) (string, error) {
	e := Entry{
		Token:     NewToken(),
		OwnerID:   ownerID,
		Draft:     draft,
		CreatedAt: c.now(),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	if err := c.Redis.Set(ctx, redisKey(e.Token), data, c.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return e.Token, nil
}

func (c *RedisCache) Get(ctx context.Context, token, requesterID string) (Draft, error) {
	e, err := c.load(ctx, c.Redis, token, requesterID)
	if err != nil {
		return Draft{}, err
	}
	return e.Draft, nil
}

// Update merges patch under WATCH so concurrent updates to one token do not overwrite
// each other. The key keeps its original expiry.
func (c *RedisCache) Update(ctx context.Context, token, requesterID string, patch Draft) (Draft, error) {
	key := redisKey(token)
	var merged Draft
	err := c.Redis.Watch(ctx, func(tx *redis.Tx) error {
		e, err := c.load(ctx, tx, token, requesterID)
		if err != nil {
			return err
		}
		e.Draft = e.Draft.Merge(patch)
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err == nil {
			merged = e.Draft
		}
		return err
	}, key)
	if err != nil {
		return Draft{}, err
	}
	return merged, nil
}

func (c *RedisCache) Discard(ctx context.Context, token, requesterID string) error {
	key := redisKey(token)
	return c.Redis.Watch(ctx, func(tx *redis.Tx) error {
		if _, err := c.load(ctx, tx, token, requesterID); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
}

func (c *RedisCache) load(ctx context.Context, cmd getter, token, requesterID string) (*Entry, error) {
	raw, err := cmd.Get(ctx, redisKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, ErrNotFound
	}
	// Keys written without a TTL still age out here.
	if e.Expired(c.now(), c.ttl) || e.OwnerID != requesterID {
		return nil, ErrNotFound
	}
	return &e, nil
}
