package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache versions every product entry. Delete bumps the version, and Fill
// only stores a product whose version is unchanged since it was read.
type Cache interface {
	Get(ctx context.Context, id int64) (*domain.Product, error)
	Version(ctx context.Context, id int64) (int64, error)
	Fill(ctx context.Context, p *domain.Product, version int64) (bool, error)
	Delete(ctx context.Context, ids ...int64) error
}

const versionTTL = time.Hour

var fillScript = redis.NewScript(`
local v = redis.call('GET', KEYS[2])
if (v or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisCache keeps product details for a fixed, short TTL. The TTL bounds how
// stale a displayed price can get.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, id int64) (*domain.Product, error) {
	data, err := r.client.Get(ctx, productKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get product %d: %w", id, err)
	}

	var p domain.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product %d: %w", id, err)
	}
	return &p, nil
}

func (r *RedisCache) Version(ctx context.Context, id int64) (int64, error) {
	v, err := r.client.Get(ctx, versionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get product %d version: %w", id, err)
	}
	return v, nil
}

func (r *RedisCache) Fill(ctx context.Context, p *domain.Product, version int64) (bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("marshal product %d: %w", p.ID, err)
	}
	keys := []string{productKey(p.ID), versionKey(p.ID)}
	stored, err := fillScript.Run(ctx, r.client, keys, strconv.FormatInt(version, 10), data, r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis fill product %d: %w", p.ID, err)
	}
	return stored == 1, nil
}

func (r *RedisCache) Delete(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, productKey(id))
			pipe.Incr(ctx, versionKey(id))
			pipe.Expire(ctx, versionKey(id), versionTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete products: %w", err)
	}
	return nil
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func versionKey(id int64) string {
	return fmt.Sprintf("product:%d:version", id)
}
