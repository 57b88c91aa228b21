package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront-service/internal/commerce"
	"storefront-service/internal/entity"
	"storefront-service/internal/lineitem"
	"storefront-service/internal/toppings"
)

var (
	ErrLineItemNotFound = errors.New("line item not found")
	ErrMissingVariant   = errors.New("no variant selected")
	ErrBusy             = errors.New("add to cart already in progress")
)

// PageCarts is what a product page needs from the cart service.
type PageCarts interface {
	MetadataUpdater
	Retrieve(ctx context.Context, cartID string) (*entity.Cart, error)
	GetOrCreate(ctx context.Context, cartID, countryCode string) (*entity.Cart, error)
	AddLineItem(ctx context.Context, cartID, variantID string, quantity int, metadata map[string]interface{}, idempotencyKey string) (*entity.Cart, error)
	DeleteLineItem(ctx context.Context, cartID, lineID string) (*entity.Cart, error)
}

type PageOptions struct {
	CountryCode     string
	VariantID       string
	CartID          string
	EditLineID      string
	AutoUpdate      bool
	Categories      []toppings.CategoryDef
	ModalBreakpoint int
	SyncDebounce    time.Duration
}

// ProductPage ties a topping selector to the cart for one product page visit.
// It keeps the last topping list the selector emitted and sends it along with
// add-to-cart. In edit mode the selector is hydrated from the edited line and
// changes are written back through a CartSynchronizer.
type ProductPage struct {
	carts    PageCarts
	opts     PageOptions
	selector *toppings.Selector
	syncer   *CartSynchronizer
	hydrated atomic.Bool

	// guarded by selMu; written from selector callbacks
	selMu    sync.Mutex
	selected []entity.NormalizedTopping

	mu       sync.Mutex
	cartID   string
	editLine *entity.LineItem
	busy     bool
}

func NewProductPage(catalog toppings.CatalogSource, carts PageCarts, opts PageOptions) *ProductPage {
	p := &ProductPage{
		carts:    carts,
		opts:     opts,
		cartID:   opts.CartID,
		selected: []entity.NormalizedTopping{},
	}
	p.syncer = NewCartSynchronizer(carts, SyncOptions{
		EditMode:   opts.EditLineID != "",
		AutoUpdate: opts.AutoUpdate,
		CartID:     opts.CartID,
		LineID:     opts.EditLineID,
		Debounce:   opts.SyncDebounce,
	})
	p.selector = toppings.NewSelector(catalog, toppings.Options{
		CountryCode:       opts.CountryCode,
		Categories:        opts.Categories,
		ModalBreakpoint:   opts.ModalBreakpoint,
		OnChange:          p.setSelected,
		OnSelectionChange: p.selectionChanged,
	})
	return p
}

// selectionChanged forwards to the synchronizer. While editing, changes before
// the line's toppings were restored are dropped so an empty selection is never
// written over them.
func (p *ProductPage) selectionChanged(entries []entity.SelectionEntry, catalogLoaded bool) {
	if p.opts.EditLineID != "" && !p.hydrated.Load() {
		return
	}
	p.syncer.Notify(entries, catalogLoaded)
}

func (p *ProductPage) setSelected(t []entity.NormalizedTopping) {
	p.selMu.Lock()
	defer p.selMu.Unlock()
	p.selected = t
}

// Selected returns the topping list last emitted by the selector.
func (p *ProductPage) Selected() []entity.NormalizedTopping {
	p.selMu.Lock()
	defer p.selMu.Unlock()
	out := make([]entity.NormalizedTopping, len(p.selected))
	copy(out, p.selected)
	return out
}

func (p *ProductPage) Selector() *toppings.Selector {
	return p.selector
}

// Open loads the add-on catalog and, in edit mode, the edited line. Both are
// fetched concurrently; a failure of either is logged and leaves that part
// empty.
func (p *ProductPage) Open(ctx context.Context) {
	var line *entity.LineItem

	var g errgroup.Group
	g.Go(func() error {
		p.selector.Load(ctx)
		return nil
	})
	if p.opts.EditLineID != "" {
		g.Go(func() error {
			cart, err := p.carts.Retrieve(ctx, p.opts.CartID)
			if err != nil {
				return err
			}
			if line = cart.FindItem(p.opts.EditLineID); line == nil {
				return ErrLineItemNotFound
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str("line_id", p.opts.EditLineID).Msg("Error loading edited line")
		return
	}
	if line == nil {
		return
	}

	p.mu.Lock()
	p.editLine = line
	p.mu.Unlock()

	p.hydrated.Store(true)
	p.selector.Hydrate(lineitem.SelectionEntries(line))
}

// AddToCart sends the product and its toppings to the cart and returns the
// updated cart. A fresh add creates the cart when needed and clears the
// selection on success. Editing a line replaces it: the old line is deleted and
// the product is added again with the same quantity and the new toppings.
func (p *ProductPage) AddToCart(ctx context.Context, idempotencyKey string) (*entity.Cart, error) {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	p.busy = true
	editLine := p.editLine
	cartID := p.cartID
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}()

	metadata := p.metadata()

	if editLine != nil {
		return p.replaceLine(ctx, cartID, editLine, metadata, idempotencyKey)
	}

	if p.opts.VariantID == "" {
		return nil, ErrMissingVariant
	}
	cart, err := p.carts.GetOrCreate(ctx, cartID, p.opts.CountryCode)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, commerce.ErrNoCart
	}
	p.setCartID(cart.ID)

	cart, err = p.carts.AddLineItem(ctx, cart.ID, p.opts.VariantID, 1, metadata, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, commerce.ErrNoCart
	}
	p.selector.Apply(toppings.Reset{})
	return cart, nil
}

func (p *ProductPage) replaceLine(ctx context.Context, cartID string, line *entity.LineItem, metadata map[string]interface{}, idempotencyKey string) (*entity.Cart, error) {
	p.syncer.Close()

	if _, err := p.carts.DeleteLineItem(ctx, cartID, line.ID); err != nil {
		return nil, err
	}
	// the edited line is gone; its id must never be patched again
	p.syncer.Stop()

	cart, err := p.carts.AddLineItem(ctx, cartID, line.VariantID, line.Quantity, metadata, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, commerce.ErrNoCart
	}

	p.mu.Lock()
	p.editLine = nil
	p.mu.Unlock()

	p.selector.Apply(toppings.Reset{})
	return cart, nil
}

// metadata is nil when nothing is selected so the line carries no metadata.
func (p *ProductPage) metadata() map[string]interface{} {
	selected := p.Selected()
	if len(selected) == 0 {
		return nil
	}
	return entity.ToppingsMetadata(entity.EntriesFromToppings(selected))
}

func (p *ProductPage) setCartID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cartID = id
}

func (p *ProductPage) CartID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cartID
}

// Dispose drops a pending sync. The session registry calls it.
func (p *ProductPage) Dispose() {
	p.syncer.Close()
}

type PageView struct {
	toppings.View
	Selected    []entity.NormalizedTopping `json:"selected"`
	Busy        bool                       `json:"busy"`
	CartID      string                     `json:"cart_id,omitempty"`
	EditLineID  string                     `json:"edit_line_id,omitempty"`
	SyncActive  bool                       `json:"sync_active"`
	SyncPending bool                       `json:"sync_pending"`
}

func (p *ProductPage) View() PageView {
	view := PageView{
		View:        p.selector.View(),
		Selected:    p.Selected(),
		SyncActive:  p.syncer.Active(),
		SyncPending: p.syncer.Pending(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	view.Busy = p.busy
	view.CartID = p.cartID
	if p.editLine != nil {
		view.EditLineID = p.editLine.ID
	}
	return view
}
