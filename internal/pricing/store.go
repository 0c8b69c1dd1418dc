package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var ErrNoLastQuote = errors.New("no last quote")

// LastQuote is the most recent reconciled subtotal of a cart and the cart
// contents it was computed for.
type LastQuote struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Fingerprint string          `json:"fingerprint"`
	ComputedAt  time.Time       `json:"computed_at"`
}

type LastQuoteStore interface {
	Get(ctx context.Context, cartID string) (*LastQuote, error)
	Save(ctx context.Context, cartID string, q LastQuote) error
	Delete(ctx context.Context, cartID string) error
}

type RedisLastQuoteStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisLastQuoteStore(client redis.Cmdable, ttl time.Duration) *RedisLastQuoteStore {
	return &RedisLastQuoteStore{client: client, ttl: ttl}
}

func (s *RedisLastQuoteStore) Get(ctx context.Context, cartID string) (*LastQuote, error) {
	data, err := s.client.Get(ctx, quoteKey(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoLastQuote
	}
	if err != nil {
		return nil, fmt.Errorf("redis get last quote: %w", err)
	}
	var q LastQuote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("unmarshal last quote: %w", err)
	}
	return &q, nil
}

func (s *RedisLastQuoteStore) Save(ctx context.Context, cartID string, q LastQuote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal last quote: %w", err)
	}
	if err := s.client.Set(ctx, quoteKey(cartID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set last quote: %w", err)
	}
	return nil
}

func (s *RedisLastQuoteStore) Delete(ctx context.Context, cartID string) error {
	if err := s.client.Del(ctx, quoteKey(cartID)).Err(); err != nil {
		return fmt.Errorf("redis delete last quote: %w", err)
	}
	return nil
}

func quoteKey(cartID string) string {
	return fmt.Sprintf("quote:%s", cartID)
}
