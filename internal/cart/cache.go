package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache keeps a version per cart that every Delete bumps. A reader takes the
// version before loading the cart and hands it to Fill, so a cart loaded
// before a write can never be stored after that write invalidated it.
type Cache interface {
	Get(ctx context.Context, cartID string) (*domain.Cart, error)
	Version(ctx context.Context, cartID string) (int64, error)
	// Fill stores the cart only if its version is still the given one.
	Fill(ctx context.Context, cart *domain.Cart, version int64) (bool, error)
	Delete(ctx context.Context, cartID string) error
}

// versionTTL outlives any cache entry and any fill in flight.
const versionTTL = time.Hour

var fillScript = redis.NewScript(`
local v = redis.call('GET', KEYS[2])
if (v or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

type RedisCache struct {
	client  redis.Cmdable
	baseTTL time.Duration
	jitter  time.Duration
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
		jitter:  5 * time.Minute,
	}
}

func (r *RedisCache) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var c domain.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &c, nil
}

func (r *RedisCache) Version(ctx context.Context, cartID string) (int64, error) {
	v, err := r.client.Get(ctx, versionKey(cartID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version failed: %w", err)
	}
	return v, nil
}

// Fill stores the cart with a jittered TTL so entries written together do not expire together.
func (r *RedisCache) Fill(ctx context.Context, c *domain.Cart, version int64) (bool, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return false, fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL
	if r.jitter > 0 {
		ttl += rand.N(r.jitter)
	}
	keys := []string{cacheKey(c.ID), versionKey(c.ID)}
	stored, err := fillScript.Run(ctx, r.client, keys, strconv.FormatInt(version, 10), data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis fill failed: %w", err)
	}
	return stored == 1, nil
}

// Delete drops the cached cart and bumps its version.
func (r *RedisCache) Delete(ctx context.Context, cartID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cacheKey(cartID))
		pipe.Incr(ctx, versionKey(cartID))
		pipe.Expire(ctx, versionKey(cartID), versionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}

func versionKey(cartID string) string {
	return fmt.Sprintf("cart:%s:version", cartID)
}
