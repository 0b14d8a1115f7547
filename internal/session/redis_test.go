package session_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restockbot/backend/internal/session"
)

// Runs against a real server only when REDIS_TEST_ADDR is set.
func newRedisCache(t *testing.T) *session.RedisCache {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return session.NewRedisCache(rdb, 5*time.Minute)
}

func TestRedisCache_RoundTripKeepsTTL(t *testing.T) {
	cache := newRedisCache(t)
	ctx := context.Background()

	token, err := cache.Create(ctx, "u1", session.Draft{Region: "north"})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Discard(ctx, token, "u1") })

	ttlBefore, err := cache.Redis.TTL(ctx, "restock:session:"+token).Result()
	require.NoError(t, err)

	draft, err := cache.Update(ctx, token, "u1", session.Draft{LocationKey: "store-a"})
	require.NoError(t, err)
	assert.Equal(t, "north", draft.Region)
	assert.Equal(t, "store-a", draft.LocationKey)

	ttlAfter, err := cache.Redis.TTL(ctx, "restock:session:"+token).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttlAfter, ttlBefore)
	assert.Greater(t, ttlAfter, time.Duration(0))

	_, err = cache.Get(ctx, token, "u2")
	assert.ErrorIs(t, err, session.ErrNotFound)

	assert.ErrorIs(t, cache.Discard(ctx, token, "u2"), session.ErrNotFound)
	require.NoError(t, cache.Discard(ctx, token, "u1"))
	_, err = cache.Get(ctx, token, "u1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}
