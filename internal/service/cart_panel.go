package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront-service/internal/debounce"
	"storefront-service/internal/entity"
	"storefront-service/internal/lineitem"
)

const (
	DefaultToggleLockout = 500 * time.Millisecond
	DefaultPulseDuration = 700 * time.Millisecond
)

const (
	KeyEscape = "Escape"
	KeySpace  = " "
)

// CartStore is what the cart panel needs from the cart service.
type CartStore interface {
	Retrieve(ctx context.Context, cartID string) (*entity.Cart, error)
	UpdateLineItem(ctx context.Context, cartID, lineID string, quantity int) (*entity.Cart, error)
	DeleteLineItem(ctx context.Context, cartID, lineID string) (*entity.Cart, error)
}

type PanelOptions struct {
	CartID        string
	CountryCode   string
	ToggleLockout time.Duration
	PulseDuration time.Duration
	Now           func() time.Time
}

// CartPanel is the state of one shopper's slide-over cart.
type CartPanel struct {
	mu    sync.Mutex
	carts CartStore
	opts  PanelOptions

	cart       *entity.Cart
	mounted    bool
	path       string
	navigating bool
	open       bool
	inFlight   int
	lockout    *debounce.Lockout

	countSeen  bool
	lastCount  int
	pulseUntil time.Time
}

func NewCartPanel(carts CartStore, opts PanelOptions) *CartPanel {
	if opts.ToggleLockout <= 0 {
		opts.ToggleLockout = DefaultToggleLockout
	}
	if opts.PulseDuration <= 0 {
		opts.PulseDuration = DefaultPulseDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &CartPanel{
		carts:   carts,
		opts:    opts,
		lockout: debounce.NewLockout(opts.ToggleLockout),
	}
}

// Mount makes the panel renderable on path.
func (p *CartPanel) Mount(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mounted = true
	p.path = path
	p.navigating = false
}

// Unmount hides the panel and releases the scroll lock.
func (p *CartPanel) Unmount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mounted = false
	p.open = false
	p.lockout.Stop()
}

// BeginNavigation marks a route transition towards path. Toggles and line
// mutations are ignored until SetPath completes it.
func (p *CartPanel) BeginNavigation(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigating = true
	p.open = false
	p.path = path
}

// SetPath records the current route and ends any transition.
func (p *CartPanel) SetPath(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = path
	p.navigating = false
}

// Suppressed reports whether path is a checkout or cart page, where the
// panel is never shown.
func Suppressed(path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSuffix(path, "/")
	if strings.HasSuffix(path, "/cart") {
		return true
	}
	if strings.HasPrefix(path, "/checkout") {
		return true
	}
	// /{country}/checkout
	segments := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	return len(segments) >= 2 && segments[1] == "checkout"
}

// SetCartID points the panel at the shopper's current cart. An empty id is
// ignored. Switching carts drops the old snapshot but keeps the last item
// count, so a cart created by an add-to-cart pulses on its first refresh.
func (p *CartPanel) SetCartID(cartID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cartID == "" || cartID == p.currentCartID() {
		return
	}
	p.opts.CartID = cartID
	p.cart = nil
}

// Refresh fetches the cart from the backend. A failure is logged and keeps the
// previous snapshot. Without a cart the panel shows an empty one.
func (p *CartPanel) Refresh(ctx context.Context) {
	p.mu.Lock()
	cartID := p.currentCartID()
	if cartID == "" {
		p.observe(nil)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	cart, err := p.carts.Retrieve(ctx, cartID)
	if err != nil {
		logger.Error().Err(err).Str("cart_id", cartID).Msg("Error refreshing cart panel")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.observe(cart)
}

// SetCart replaces the displayed snapshot.
func (p *CartPanel) SetCart(cart *entity.Cart) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observe(cart)
}

// observe stores cart and starts a pulse when the item count went up since the
// last snapshot. Callers hold p.mu.
func (p *CartPanel) observe(cart *entity.Cart) {
	p.cart = cart
	count := cart.ItemCount()
	if p.countSeen && count > p.lastCount {
		p.pulseUntil = p.opts.Now().Add(p.opts.PulseDuration)
	}
	p.countSeen = true
	p.lastCount = count
}

// Toggle opens or closes the panel. It is a no-op inside the lockout window of
// the previous toggle, while hidden, or during a route transition. It returns
// the resulting open state.
func (p *CartPanel) Toggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toggle()
}

func (p *CartPanel) toggle() bool {
	if !p.visible() || p.navigating {
		return p.open
	}
	if !p.lockout.TryAcquire() {
		return p.open
	}
	p.open = !p.open
	return p.open
}

// Close closes the panel without going through the lockout.
func (p *CartPanel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
}

// HandleKey reacts to a key press and reports whether the key's default
// action must be suppressed.
func (p *CartPanel) HandleKey(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch key {
	case KeyEscape:
		if p.open {
			p.toggle()
		}
		return false
	case KeySpace:
		return p.lockout.Active()
	}
	return false
}

// ChangeQuantity sets a line's quantity. A quantity below 1 deletes the line.
// Failures are logged and leave the snapshot unchanged.
func (p *CartPanel) ChangeQuantity(ctx context.Context, lineID string, quantity int) {
	if quantity < 1 {
		p.Remove(ctx, lineID)
		return
	}
	p.mutate(ctx, func(cartID string) (*entity.Cart, error) {
		return p.carts.UpdateLineItem(ctx, cartID, lineID, quantity)
	})
}

// Remove deletes a line from the cart.
func (p *CartPanel) Remove(ctx context.Context, lineID string) {
	p.mutate(ctx, func(cartID string) (*entity.Cart, error) {
		return p.carts.DeleteLineItem(ctx, cartID, lineID)
	})
}

func (p *CartPanel) mutate(ctx context.Context, call func(cartID string) (*entity.Cart, error)) {
	p.mu.Lock()
	cartID := p.currentCartID()
	if cartID == "" || p.navigating {
		p.mu.Unlock()
		return
	}
	p.inFlight++
	p.mu.Unlock()

	cart, err := call(cartID)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight--
	if err != nil {
		logger.Error().Err(err).Str("cart_id", cartID).Msg("Error updating cart from panel")
		return
	}
	if cart != nil {
		p.observe(cart)
	}
}

func (p *CartPanel) currentCartID() string {
	if p.cart != nil && p.cart.ID != "" {
		return p.cart.ID
	}
	return p.opts.CartID
}

func (p *CartPanel) visible() bool {
	return p.mounted && !Suppressed(p.path)
}

// Dispose releases the panel's timers. The session registry calls it.
func (p *CartPanel) Dispose() {
	p.Unmount()
}

type PanelLine struct {
	entity.LineItem
	Decoration lineitem.Decoration `json:"decoration"`
}

// PanelView is a point-in-time snapshot of the panel for rendering.
type PanelView struct {
	Visible      bool        `json:"visible"`
	ShowToggle   bool        `json:"show_toggle"`
	Open         bool        `json:"open"`
	Loading      bool        `json:"loading"`
	Pulse        bool        `json:"pulse"`
	ScrollLocked bool        `json:"scroll_locked"`
	ItemCount    int         `json:"item_count"`
	Subtotal     float64     `json:"subtotal"`
	CurrencyCode string      `json:"currency_code"`
	Lines        []PanelLine `json:"lines"`
}

func (p *CartPanel) View() PanelView {
	p.mu.Lock()
	defer p.mu.Unlock()

	view := PanelView{
		Visible:   p.visible(),
		Loading:   p.inFlight > 0,
		ItemCount: p.cart.ItemCount(),
		Lines:     []PanelLine{},
	}
	if !view.Visible {
		return view
	}

	view.Open = p.open
	view.ShowToggle = !p.open && view.ItemCount > 0
	view.ScrollLocked = p.open
	view.Pulse = p.opts.Now().Before(p.pulseUntil)

	if p.cart == nil {
		return view
	}
	view.Subtotal = p.cart.Subtotal
	view.CurrencyCode = p.cart.CurrencyCode
	for _, item := range SortedLines(p.cart.Items) {
		item := item
		view.Lines = append(view.Lines, PanelLine{
			LineItem:   item,
			Decoration: lineitem.Decorate(&item, p.opts.CountryCode),
		})
	}
	return view
}

// SortedLines returns the lines newest first by created_at.
func SortedLines(items []entity.LineItem) []entity.LineItem {
	out := make([]entity.LineItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}
