package service

import (
	"context"
	"sync/atomic"
	"time"

	"storefront-service/internal/debounce"
	"storefront-service/internal/entity"
)

// DefaultSyncDebounce is the quiet period before an edited line is patched.
const DefaultSyncDebounce = time.Second

const syncCallTimeout = 10 * time.Second

// MetadataUpdater patches a line item's metadata. *CartService satisfies it.
type MetadataUpdater interface {
	UpdateLineItemMetadata(ctx context.Context, cartID, lineID string, metadata map[string]interface{}) (*entity.Cart, error)
}

type SyncOptions struct {
	EditMode   bool
	AutoUpdate bool
	CartID     string
	LineID     string
	Debounce   time.Duration
}

// CartSynchronizer writes the selection of an edited line back to the cart
// after the shopper stops changing it.
type CartSynchronizer struct {
	updater   MetadataUpdater
	opts      SyncOptions
	debouncer *debounce.Debouncer
	stopped   atomic.Bool
}

func NewCartSynchronizer(updater MetadataUpdater, opts SyncOptions) *CartSynchronizer {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultSyncDebounce
	}
	return &CartSynchronizer{
		updater:   updater,
		opts:      opts,
		debouncer: debounce.New(opts.Debounce),
	}
}

// Active reports whether selection changes are written back at all.
func (c *CartSynchronizer) Active() bool {
	return c.opts.EditMode && c.opts.AutoUpdate && c.opts.LineID != "" && !c.stopped.Load()
}

// Notify records a selection change. Changes before the catalog has loaded are
// ignored. Each accepted change restarts the debounce window; only the state
// of the last change is sent.
func (c *CartSynchronizer) Notify(entries []entity.SelectionEntry, catalogLoaded bool) {
	if !c.Active() || !catalogLoaded {
		return
	}

	snapshot := make([]entity.SelectionEntry, len(entries))
	copy(snapshot, entries)

	c.debouncer.Schedule(func() {
		c.patch(snapshot)
	})
}

func (c *CartSynchronizer) patch(entries []entity.SelectionEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), syncCallTimeout)
	defer cancel()

	metadata := entity.ToppingsMetadata(entries)
	if _, err := c.updater.UpdateLineItemMetadata(ctx, c.opts.CartID, c.opts.LineID, metadata); err != nil {
		logger.Error().Err(err).Str("line_id", c.opts.LineID).Msg("Error syncing toppings to cart")
		return
	}
	logger.Info().Str("line_id", c.opts.LineID).Int("toppings", len(entries)).Msg("Synced toppings to cart")
}

// Pending reports whether a patch is waiting for the debounce window.
func (c *CartSynchronizer) Pending() bool {
	return c.debouncer.Pending()
}

// Close drops a pending patch. A patch already in flight completes.
func (c *CartSynchronizer) Close() {
	c.debouncer.Cancel()
}

// Stop drops a pending patch and turns the synchronizer off for good. It is
// called once the edited line no longer exists.
func (c *CartSynchronizer) Stop() {
	c.stopped.Store(true)
	c.debouncer.Cancel()
}
