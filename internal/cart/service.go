package cart

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const loadTimeout = 10 * time.Second

// Service is the read-through cart store: reads go cache first, writes go to
// the repository and drop the cached copy.
type Service struct {
	repo  Repository
	cache Cache
	sfg   singleflight.Group
	log   zerolog.Logger
}

func NewService(repo Repository, cache Cache, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log.With().Str("component", "cart").Logger(),
	}
}

// GetCart never reports a missing cart; it returns an empty one instead.
// Concurrent reads of one cart share a single load that does not depend on
// any one caller staying connected.
func (s *Service) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	ch := s.sfg.DoChan(cartID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.load(loadCtx, cartID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Cart), nil
	}
}

func (s *Service) load(ctx context.Context, cartID string) (*domain.Cart, error) {
	c, err := s.cache.Get(ctx, cartID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.log.Warn().Err(err).Str("cart_id", cartID).Msg("cache get failed")
	}

	// taken before the read so a write racing this load voids the fill
	version, verr := s.cache.Version(ctx, cartID)
	if verr != nil {
		s.log.Warn().Err(verr).Str("cart_id", cartID).Msg("cache version failed")
	}

	c, err = s.repo.GetCart(ctx, cartID)
	if errors.Is(err, ErrCartNotFound) {
		return domain.NewCart(cartID), nil
	}
	if err != nil {
		return nil, err
	}
	if verr != nil {
		return c, nil
	}

	go func() {
		setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		stored, err := s.cache.Fill(setCtx, c, version)
		if err != nil {
			s.log.Warn().Err(err).Str("cart_id", cartID).Msg("cache set failed")
			return
		}
		if !stored {
			s.log.Debug().Str("cart_id", cartID).Msg("cart changed during load, cache fill skipped")
		}
	}()
	return c, nil
}

func (s *Service) AddItem(ctx context.Context, cartID string, item domain.CartLineItem) error {
	if !domain.ValidQuantity(item.Quantity) {
		return ErrInvalidQuantity
	}
	if err := s.repo.AddItem(ctx, cartID, item); err != nil {
		s.log.Error().Err(err).Str("cart_id", cartID).Msg("repo add item failed")
		return err
	}
	s.invalidate(cartID)
	return nil
}

func (s *Service) UpdateQuantity(ctx context.Context, cartID string, productID int64, quantity int) error {
	if !domain.ValidQuantity(quantity) {
		return ErrInvalidQuantity
	}
	if err := s.repo.UpdateItemQuantity(ctx, cartID, productID, quantity); err != nil {
		if !errors.Is(err, ErrItemNotFound) {
			s.log.Error().Err(err).Str("cart_id", cartID).Msg("repo update quantity failed")
		}
		return err
	}
	s.invalidate(cartID)
	return nil
}

func (s *Service) RemoveItem(ctx context.Context, cartID string, productID int64) error {
	if err := s.repo.RemoveItem(ctx, cartID, productID); err != nil {
		if !errors.Is(err, ErrItemNotFound) {
			s.log.Error().Err(err).Str("cart_id", cartID).Msg("repo remove item failed")
		}
		return err
	}
	s.invalidate(cartID)
	return nil
}

// Clear destroys the cart. Clearing a cart that does not exist is not an error.
func (s *Service) Clear(ctx context.Context, cartID string) error {
	if err := s.repo.DeleteCart(ctx, cartID); err != nil && !errors.Is(err, ErrCartNotFound) {
		s.log.Error().Err(err).Str("cart_id", cartID).Msg("repo delete cart failed")
		return err
	}
	s.invalidate(cartID)
	return nil
}

func (s *Service) SetCoupon(ctx context.Context, cartID string, coupon *domain.AppliedCoupon) error {
	if err := s.repo.SetCoupon(ctx, cartID, coupon); err != nil {
		s.log.Error().Err(err).Str("cart_id", cartID).Msg("repo set coupon failed")
		return err
	}
	s.invalidate(cartID)
	return nil
}

func (s *Service) ClearCoupon(ctx context.Context, cartID string) error {
	err := s.SetCoupon(ctx, cartID, nil)
	if errors.Is(err, ErrCartNotFound) {
		return nil
	}
	return err
}

func (s *Service) invalidate(cartID string) {
	// later reads must not join a load that started before this write
	s.sfg.Forget(cartID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, cartID); err != nil {
		s.log.Warn().Err(err).Str("cart_id", cartID).Msg("cache invalidate failed")
	}
}
