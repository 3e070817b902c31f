package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/models"
)

var ErrCacheMiss = errors.New("cache miss")

// CartCache holds copies of cart documents. Set never replaces a cached cart
// with an older version, so a slow reader cannot overwrite what a writer
// stored after it.
type CartCache interface {
	Get(ctx context.Context, accountID string) (*models.Cart, error)
	Set(ctx context.Context, cart *models.Cart) error
	Delete(ctx context.Context, accountID string) error
}

// setIfNotOlder writes the cart hash unless the cached version is newer.
// KEYS[1] cart key; ARGV[1] version, ARGV[2] payload, ARGV[3] ttl in ms.
var setIfNotOlder = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'version'))
if cur and cur > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisCartCache is a read-through copy of the Mongo cart document, stored as
// a hash of version and JSON data. Entries expire after baseTTL plus up to a
// minute of jitter so carts cached together do not expire together.
type RedisCartCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCartCache(client *redis.Client, ttl time.Duration) *RedisCartCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisCartCache{client: client, baseTTL: ttl}
}

// cachedCart keeps the version, which the JSON form of models.Cart hides.
type cachedCart struct {
	AccountID string            `json:"user_id"`
	Items     []models.CartLine `json:"items"`
	Version   int64             `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (r *RedisCartCache) Get(ctx context.Context, accountID string) (*models.Cart, error) {
	data, err := r.client.HGet(ctx, cacheKey(accountID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var c cachedCart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if c.Items == nil {
		c.Items = []models.CartLine{}
	}
	return &models.Cart{AccountID: c.AccountID, Items: c.Items, Version: c.Version, UpdatedAt: c.UpdatedAt}, nil
}

func (r *RedisCartCache) Set(ctx context.Context, cart *models.Cart) error {
	data, err := json.Marshal(cachedCart{
		AccountID: cart.AccountID,
		Items:     cart.Items,
		Version:   cart.Version,
		UpdatedAt: cart.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.Int63n(int64(time.Minute)))
	keys := []string{cacheKey(cart.AccountID)}
	if err := setIfNotOlder.Run(ctx, r.client, keys, cart.Version, data, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCartCache) Delete(ctx context.Context, accountID string) error {
	if err := r.client.Del(ctx, cacheKey(accountID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(accountID string) string {
	return fmt.Sprintf("cart:user:%s", accountID)
}
