package catalog

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const loadTimeout = 10 * time.Second

type ProductSource interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// Service is a read-through cache of product details keyed by product id.
// Cache failures are logged and bypassed; backend failures are returned.
type Service struct {
	source ProductSource
	cache  Cache
	sfg    singleflight.Group
	log    zerolog.Logger
}

func NewService(source ProductSource, cache Cache, log zerolog.Logger) *Service {
	return &Service{
		source: source,
		cache:  cache,
		log:    log.With().Str("component", "catalog").Logger(),
	}
}

// GetProduct shares one load per product among concurrent callers. The load
// runs detached from any single caller; each caller still stops waiting when
// its own ctx is done.
func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	ch := s.sfg.DoChan(strconv.FormatInt(id, 10), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.load(loadCtx, id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Product), nil
	}
}

func (s *Service) load(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := s.cache.Get(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.log.Warn().Err(err).Int64("product_id", id).Msg("product cache get failed")
	}

	version, verr := s.cache.Version(ctx, id)
	if verr != nil {
		s.log.Warn().Err(verr).Int64("product_id", id).Msg("product cache version failed")
	}

	p, err = s.source.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		return p, nil
	}

	go func() {
		setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		stored, err := s.cache.Fill(setCtx, p, version)
		if err != nil {
			s.log.Warn().Err(err).Int64("product_id", id).Msg("product cache set failed")
			return
		}
		if !stored {
			s.log.Debug().Int64("product_id", id).Msg("product evicted during load, cache fill skipped")
		}
	}()
	return p, nil
}

// Evict drops cached details so the next read goes to the backend.
func (s *Service) Evict(ctx context.Context, ids ...int64) error {
	for _, id := range ids {
		s.sfg.Forget(strconv.FormatInt(id, 10))
	}
	if err := s.cache.Delete(ctx, ids...); err != nil {
		s.log.Warn().Err(err).Ints64("product_ids", ids).Msg("product cache evict failed")
		return err
	}
	return nil
}
