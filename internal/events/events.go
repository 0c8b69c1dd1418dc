package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const HeaderEventType = "event_type"

type ChangeType string

const (
	ProductChanged   ChangeType = "product_changed"
	FlashSaleChanged ChangeType = "flash_sale_changed"
)

// CatalogChange tells other gateway instances which cached product prices
// are no longer current.
type CatalogChange struct {
	Type        ChangeType `json:"type"`
	ProductIDs  []int64    `json:"product_ids"`
	FlashSaleID int64      `json:"flash_sale_id,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, change CatalogChange) error
	Close() error
}

// NopPublisher is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, CatalogChange) error { return nil }
func (NopPublisher) Close() error                                 { return nil }

type KafkaPublisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

func NewKafkaPublisher(topic string, log zerolog.Logger, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w, log: log.With().Str("component", "events").Logger()}
}

// Publish writes one message keyed by the first product id so that changes
// to a product stay ordered on its partition.
func (p *KafkaPublisher) Publish(ctx context.Context, change CatalogChange) error {
	if change.OccurredAt.IsZero() {
		change.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal catalog change: %w", err)
	}

	var key []byte
	if len(change.ProductIDs) > 0 {
		key = []byte(strconv.FormatInt(change.ProductIDs[0], 10))
	}
	msg := kafka.Message{
		Key:   key,
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(change.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish catalog change: %w", err)
	}
	p.log.Debug().Str("type", string(change.Type)).Ints64("product_ids", change.ProductIDs).Msg("catalog change published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
