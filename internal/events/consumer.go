package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Evictor interface {
	Evict(ctx context.Context, ids ...int64) error
}

// Consumer drops cached prices named by catalog-change messages.
type Consumer struct {
	evictor Evictor
	reader  *kafka.Reader
	log     zerolog.Logger
}

func NewConsumer(evictor Evictor, topic, groupID string, log zerolog.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 1e6,
	})
	return &Consumer{
		evictor: evictor,
		reader:  reader,
		log:     log.With().Str("component", "events").Logger(),
	}
}

// Run blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			// io.EOF means the reader was closed
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.log.Error().Err(err).Msg("read catalog change failed")
			continue
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Error().Err(err).Msg("close kafka reader failed")
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	var change CatalogChange
	if err := json.Unmarshal(m.Value, &change); err != nil {
		c.log.Warn().Err(err).Int64("offset", m.Offset).Msg("skipping malformed catalog change")
		return
	}
	if len(change.ProductIDs) == 0 {
		return
	}
	if err := c.evictor.Evict(ctx, change.ProductIDs...); err != nil {
		c.log.Warn().Err(err).Ints64("product_ids", change.ProductIDs).Msg("evict after catalog change failed")
		return
	}
	c.log.Debug().
		Str("event_type", eventType(m)).
		Ints64("product_ids", change.ProductIDs).
		Msg("evicted cached prices")
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == HeaderEventType {
			return string(h.Value)
		}
	}
	return ""
}
