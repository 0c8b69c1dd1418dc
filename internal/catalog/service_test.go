package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls   atomic.Int32
	delay   time.Duration
	err     error
	product func(id int64) *domain.Product
}

func (f *fakeSource) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	f.calls.Add(1)
	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}
	return f.product(id), nil
}

func priced(price string) func(int64) *domain.Product {
	return func(id int64) *domain.Product {
		v := decimal.RequireFromString(price)
		return &domain.Product{ID: id, Name: "item", Price: &v, IsInStock: true}
	}
}

func setup(t *testing.T, src *fakeSource) (*Service, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewService(src, NewRedisCache(client, 30*time.Second), zerolog.Nop()), mr
}

func TestGetProduct_FillsCacheWithTTL(t *testing.T) {
	src := &fakeSource{product: priced("12.00")}
	svc, mr := setup(t, src)

	p, err := svc.GetProduct(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.ID)

	require.Eventually(t, func() bool {
		return mr.Exists(productKey(4))
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 30*time.Second, mr.TTL(productKey(4)))

	_, err = svc.GetProduct(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestGetProduct_StaleAfterTTL(t *testing.T) {
	src := &fakeSource{product: priced("12.00")}
	svc, mr := setup(t, src)

	_, err := svc.GetProduct(context.Background(), 4)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mr.Exists(productKey(4)) }, time.Second, 10*time.Millisecond)

	mr.FastForward(31 * time.Second)
	_, err = svc.GetProduct(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestGetProduct_CollapsesConcurrentMisses(t *testing.T) {
	src := &fakeSource{product: priced("1.00"), delay: 50 * time.Millisecond}
	svc, _ := setup(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetProduct(context.Background(), 9)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestGetProduct_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("backend down")}
	svc, mr := setup(t, src)

	_, err := svc.GetProduct(context.Background(), 1)
	require.ErrorContains(t, err, "backend down")
	assert.False(t, mr.Exists(productKey(1)))
}

func TestGetProduct_RedisDownStillServes(t *testing.T) {
	src := &fakeSource{product: priced("3.00")}
	svc, mr := setup(t, src)
	mr.Close()

	p, err := svc.GetProduct(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(*p.Price))
}

func TestEvict(t *testing.T) {
	src := &fakeSource{product: priced("5.00")}
	svc, mr := setup(t, src)
	require.NoError(t, mr.Set(productKey(1), `{"id":1}`))
	require.NoError(t, mr.Set(productKey(2), `{"id":2}`))

	require.NoError(t, svc.Evict(context.Background(), 1, 2))
	assert.False(t, mr.Exists(productKey(1)))
	assert.False(t, mr.Exists(productKey(2)))
	assert.NoError(t, svc.Evict(context.Background()))
}

type gatedCache struct {
	*RedisCache
	gate  chan struct{}
	fills atomic.Int32
}

func (g *gatedCache) Fill(ctx context.Context, p *domain.Product, version int64) (bool, error) {
	<-g.gate
	defer g.fills.Add(1)
	return g.RedisCache.Fill(ctx, p, version)
}

func TestGetProduct_FillAfterEvictIsDiscarded(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cache := &gatedCache{RedisCache: NewRedisCache(client, 30*time.Second), gate: make(chan struct{})}
	src := &fakeSource{product: priced("10.00")}
	svc := NewService(src, cache, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.GetProduct(ctx, 1)
	require.NoError(t, err)

	// staff changes the price while the old one is still on its way into redis
	require.NoError(t, svc.Evict(ctx, 1))
	src.product = priced("8.00")
	close(cache.gate)
	require.Eventually(t, func() bool { return cache.fills.Load() >= 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, mr.Exists(productKey(1)))

	p, err := svc.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p.Price)
	assert.True(t, decimal.RequireFromString("8.00").Equal(*p.Price))
}

func TestGetProduct_CallerLeavingDoesNotFailOthers(t *testing.T) {
	src := &fakeSource{product: priced("4.00"), delay: 100 * time.Millisecond}
	svc, _ := setup(t, src)

	leaving, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.GetProduct(leaving, 3)
		first <- err
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan *domain.Product, 1)
	go func() {
		p, err := svc.GetProduct(context.Background(), 3)
		assert.NoError(t, err)
		second <- p
	}()
	cancel()

	assert.ErrorIs(t, <-first, context.Canceled)
	p := <-second
	require.NotNil(t, p)
	assert.True(t, decimal.RequireFromString("4.00").Equal(*p.Price))
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestRedisCache_FillWithOldVersionIsDropped(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cache := NewRedisCache(client, 30*time.Second)
	ctx := context.Background()

	v, err := cache.Version(ctx, 5)
	require.NoError(t, err)
	require.NoError(t, cache.Delete(ctx, 5))

	stored, err := cache.Fill(ctx, priced("1.00")(5), v)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists(productKey(5)))

	v, err = cache.Version(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	stored, err = cache.Fill(ctx, priced("1.00")(5), v)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, 30*time.Second, mr.TTL(productKey(5)))
}
