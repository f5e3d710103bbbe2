package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/cartsync/internal/domain"
	"github.com/redis/go-redis/v9"
)

const maxJitterMinutes = 5

// setIfNewer writes the cart and its version unless the cached version is
// newer. Versions are zero-padded so Lua compares them as strings.
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur and cur > ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	return &cart, nil
}

// Set stores cart unless the cache already holds a cart with a later
// UpdatedAt. A skipped write is not an error.
func (r *RedisCache) Set(ctx context.Context, userID string, cart *domain.Cart) error {
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	// jitter spreads expirations so a burst of writes does not expire together
	jitter := time.Duration(rand.Intn(maxJitterMinutes)) * time.Minute
	ttl := r.baseTTL + jitter

	keys := []string{cacheKey(userID), versionKey(userID)}
	if err := setIfNewer.Run(ctx, r.client, keys, jsonCart, cartVersion(cart), ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cacheKey(userID), versionKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

func versionKey(userID string) string {
	return cacheKey(userID) + ":version"
}

func cartVersion(cart *domain.Cart) string {
	v := cart.UpdatedAt.UnixNano()
	if cart.UpdatedAt.IsZero() || v < 0 {
		v = 0
	}
	return fmt.Sprintf("%020d", v)
}
