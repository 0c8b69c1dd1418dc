package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestRedisStore_CustomerLifecycle(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.SetCustomer(ctx, "s1", "access", "refresh"))
	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "access", sess.Token)
	assert.Equal(t, "refresh", sess.Refresh)
	assert.True(t, sess.IsCustomer())
	assert.False(t, sess.IsAdmin())

	// refresh token survives an access-only update
	require.NoError(t, store.SetCustomer(ctx, "s1", "access2", ""))
	sess, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "access2", sess.Token)
	assert.Equal(t, "refresh", sess.Refresh)

	require.NoError(t, store.ClearCustomer(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, mr.Exists(sessionKey("s1")))
}

func TestRedisStore_AdminKeptApartFromCustomer(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetCustomer(ctx, "s1", "access", "refresh"))
	require.NoError(t, store.SetAdmin(ctx, "s1", "admin-tok", &domain.User{ID: 1, Username: "staff", IsStaff: true}))

	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "admin-tok", sess.AdminToken)
	require.NotNil(t, sess.AdminUser)
	assert.Equal(t, "staff", sess.AdminUser.Username)

	require.NoError(t, store.ClearAdmin(ctx, "s1"))
	sess, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sess.AdminToken)
	assert.Nil(t, sess.AdminUser)
	assert.Equal(t, "access", sess.Token)
}

func TestRedisStore_SlidingExpiry(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetCustomer(ctx, "s1", "a", "r"))

	mr.FastForward(50 * time.Minute)
	_, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL(sessionKey("s1")))

	mr.FastForward(61 * time.Minute)
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_Delete(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetAdmin(ctx, "s1", "admin-tok", nil))
	require.NoError(t, store.Delete(ctx, "s1"))
	assert.False(t, mr.Exists(sessionKey("s1")))
}

type fakeRefresher struct {
	calls  atomic.Int32
	delay  time.Duration
	tokens *domain.AuthTokens
	err    error
}

func (f *fakeRefresher) RefreshToken(context.Context, string) (*domain.AuthTokens, error) {
	f.calls.Add(1)
	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := ExpiresAt(signed(t, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = ExpiresAt("9944b09199c62bcf9418ad846dd0e4bbdfc6ee4b")
	assert.False(t, ok)
}

func TestEnsure_FreshTokenNoRefresh(t *testing.T) {
	store, _ := newStore(t)
	backend := &fakeRefresher{}
	r := NewRefresher(store, backend, 30*time.Second, zerolog.Nop())
	tok := signed(t, time.Now().Add(time.Hour))
	require.NoError(t, store.SetCustomer(context.Background(), "s1", tok, "r"))

	got, err := r.Ensure(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, tok, got)
	assert.Zero(t, backend.calls.Load())
}

func TestEnsure_OpaqueTokenPassesThrough(t *testing.T) {
	store, _ := newStore(t)
	backend := &fakeRefresher{}
	r := NewRefresher(store, backend, 30*time.Second, zerolog.Nop())
	require.NoError(t, store.SetCustomer(context.Background(), "s1", "drf-key", ""))

	got, err := r.Ensure(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "drf-key", got)
	assert.Zero(t, backend.calls.Load())
}

func TestEnsure_NotAuthenticated(t *testing.T) {
	store, _ := newStore(t)
	r := NewRefresher(store, &fakeRefresher{}, 0, zerolog.Nop())

	_, err := r.Ensure(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = r.Ensure(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, store.SetAdmin(context.Background(), "admin-only", "admin-tok", nil))
	_, err = r.Ensure(context.Background(), "admin-only")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestEnsure_RefreshesWithinSkew(t *testing.T) {
	store, _ := newStore(t)
	fresh := signed(t, time.Now().Add(time.Hour))
	backend := &fakeRefresher{tokens: &domain.AuthTokens{Access: fresh, Refresh: "r2"}}
	r := NewRefresher(store, backend, time.Minute, zerolog.Nop())
	require.NoError(t, store.SetCustomer(context.Background(), "s1", signed(t, time.Now().Add(20*time.Second)), "r1"))

	got, err := r.Ensure(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, fresh, got)

	sess, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, fresh, sess.Token)
	assert.Equal(t, "r2", sess.Refresh)
}

func TestEnsure_RefreshFailureLogsOut(t *testing.T) {
	store, _ := newStore(t)
	backend := &fakeRefresher{err: errors.New("token is blacklisted")}
	r := NewRefresher(store, backend, 30*time.Second, zerolog.Nop())
	require.NoError(t, store.SetCustomer(context.Background(), "s1", signed(t, time.Now().Add(-time.Minute)), "r1"))

	_, err := r.Ensure(context.Background(), "s1")
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(1), backend.calls.Load())

	_, err = r.Ensure(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, int32(1), backend.calls.Load(), "no second attempt")
}

func TestEnsure_ExpiredWithoutRefreshToken(t *testing.T) {
	store, _ := newStore(t)
	backend := &fakeRefresher{}
	r := NewRefresher(store, backend, 0, zerolog.Nop())
	require.NoError(t, store.SetCustomer(context.Background(), "s1", signed(t, time.Now().Add(-time.Minute)), ""))

	_, err := r.Ensure(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Zero(t, backend.calls.Load())
}

func TestEnsure_ConcurrentRefreshCollapses(t *testing.T) {
	store, _ := newStore(t)
	backend := &fakeRefresher{
		delay:  50 * time.Millisecond,
		tokens: &domain.AuthTokens{Access: signed(t, time.Now().Add(time.Hour))},
	}
	r := NewRefresher(store, backend, 30*time.Second, zerolog.Nop())
	require.NoError(t, store.SetCustomer(context.Background(), "s1", signed(t, time.Now().Add(-time.Second)), "r1"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Ensure(context.Background(), "s1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), backend.calls.Load())
}
