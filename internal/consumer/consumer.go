package consumer

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CatalogInvalidator drops cached catalogs and region mappings.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context) error
	InvalidateRegions(ctx context.Context) error
}

type Consumer struct {
	reader  MessageReader
	catalog CatalogInvalidator
}

func NewConsumer(reader MessageReader, catalog CatalogInvalidator) *Consumer {
	return &Consumer{reader: reader, catalog: catalog}
}

// Run reads catalog events until ctx is cancelled and drops the cached catalog
// whenever a product or collection changes. Region events also drop the
// cached regions.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			log.Error().Msgf("Error reading message: %v", err)
			continue
		}

		c.processMessage(ctx, msg)
	}
}

// processMessage handles one catalog event.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	// key -> "product.updated.prod_01" or "collection.deleted.pcol_01"
	key := string(msg.Key)
	parts := strings.SplitN(key, ".", 3)
	if len(parts) < 2 {
		log.Error().Msgf("Malformed catalog event key: %q", key)
		return
	}

	switch parts[0] {
	case "region":
		// catalogs are resolved through regions, so both go
		if err := c.catalog.InvalidateRegions(ctx); err != nil {
			log.Error().Msgf("Error invalidating regions after %s: %v", key, err)
			return
		}
		fallthrough
	case "product", "product-variant", "collection":
		if err := c.catalog.Invalidate(ctx); err != nil {
			log.Error().Msgf("Error invalidating catalog after %s: %v", key, err)
			return
		}
		log.Info().Msgf("Catalog invalidated by %s", key)
	default:
		log.Debug().Msgf("Ignoring catalog event %s", key)
	}
}
