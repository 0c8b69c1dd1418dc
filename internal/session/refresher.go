package session

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionExpired   = errors.New("session expired")
)

type TokenRefresher interface {
	RefreshToken(ctx context.Context, refresh string) (*domain.AuthTokens, error)
}

// Refresher hands out customer access tokens, refreshing one that is about
// to expire. A failed refresh logs the customer out.
type Refresher struct {
	store   Store
	backend TokenRefresher
	skew    time.Duration
	now     func() time.Time
	sfg     singleflight.Group
	log     zerolog.Logger
}

func NewRefresher(store Store, backend TokenRefresher, skew time.Duration, log zerolog.Logger) *Refresher {
	return &Refresher{
		store:   store,
		backend: backend,
		skew:    skew,
		now:     time.Now,
		log:     log.With().Str("component", "session").Logger(),
	}
}

func (r *Refresher) Ensure(ctx context.Context, sid string) (string, error) {
	if sid == "" {
		return "", ErrNotAuthenticated
	}
	sess, err := r.store.Get(ctx, sid)
	if errors.Is(err, ErrSessionNotFound) {
		return "", ErrNotAuthenticated
	}
	if err != nil {
		return "", err
	}
	if sess.Token == "" {
		return "", ErrNotAuthenticated
	}

	exp, ok := ExpiresAt(sess.Token)
	if !ok || r.now().Add(r.skew).Before(exp) {
		return sess.Token, nil
	}

	v, err, _ := r.sfg.Do(sid, func() (interface{}, error) {
		return r.refresh(ctx, sess)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Refresher) refresh(ctx context.Context, sess *Session) (string, error) {
	if sess.Refresh == "" {
		r.logout(ctx, sess.ID)
		return "", ErrSessionExpired
	}

	tokens, err := r.backend.RefreshToken(ctx, sess.Refresh)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		r.log.Info().Err(err).Str("sid", sess.ID).Msg("token refresh failed, logging out")
		r.logout(ctx, sess.ID)
		return "", ErrSessionExpired
	}

	access := tokens.AccessValue()
	if access == "" {
		r.logout(ctx, sess.ID)
		return "", ErrSessionExpired
	}
	if err := r.store.SetCustomer(ctx, sess.ID, access, tokens.RefreshValue()); err != nil {
		return "", err
	}
	return access, nil
}

func (r *Refresher) logout(ctx context.Context, sid string) {
	if err := r.store.ClearCustomer(ctx, sid); err != nil {
		r.log.Warn().Err(err).Str("sid", sid).Msg("clear customer tokens failed")
	}
}

// ExpiresAt reads the exp claim without verifying the signature. Opaque
// tokens report false and are treated as non-expiring.
func ExpiresAt(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
