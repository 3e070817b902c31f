package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
)

func setupTestRedis(t *testing.T) (*RedisCartCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCartCache(client, 10*time.Minute), mr
}

func TestGet_Miss(t *testing.T) {
	c, _ := setupTestRedis(t)

	cart, err := c.Get(context.Background(), "acct-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, cart)
}

func TestSetGet_KeepsVersion(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	cart := models.NewCart("acct-1")
	require.NoError(t, cart.AddLine(models.CartLine{ProductID: "P1", Quantity: 2, Size: "M", Color: "Black"}))
	cart.Version = 7

	require.NoError(t, c.Set(ctx, cart))
	assert.True(t, mr.Exists(cacheKey("acct-1")))

	got, err := c.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Version)
	assert.Equal(t, cart.Items, got.Items)
}

func TestSet_TTLHasJitterBounds(t *testing.T) {
	c, mr := setupTestRedis(t)

	require.NoError(t, c.Set(context.Background(), models.NewCart("acct-1")))
	ttl := mr.TTL(cacheKey("acct-1"))
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 11*time.Minute)
}

func TestDelete(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, models.NewCart("acct-1")))
	require.NoError(t, c.Delete(ctx, "acct-1"))
	assert.False(t, mr.Exists(cacheKey("acct-1")))
}

func TestGet_CorruptEntry(t *testing.T) {
	c, mr := setupTestRedis(t)
	mr.HSet(cacheKey("acct-1"), "version", "1", "data", "{not json")

	_, err := c.Get(context.Background(), "acct-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_NeverReplacesNewerVersion(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	fresh := models.NewCart("acct-1")
	require.NoError(t, fresh.AddLine(models.CartLine{ProductID: "P1", Quantity: 5, Size: "M", Color: "Black"}))
	fresh.Version = 2
	require.NoError(t, c.Set(ctx, fresh))

	stale := models.NewCart("acct-1")
	require.NoError(t, stale.AddLine(models.CartLine{ProductID: "P1", Quantity: 1, Size: "M", Color: "Black"}))
	stale.Version = 1
	require.NoError(t, c.Set(ctx, stale))

	got, err := c.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 5, got.Items[0].Quantity)

	fresh.Items[0].Quantity = 6
	fresh.Version = 3
	require.NoError(t, c.Set(ctx, fresh))
	got, err = c.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 6, got.Items[0].Quantity)
}
