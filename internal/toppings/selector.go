package toppings

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"storefront-service/internal/entity"
	"storefront-service/internal/price"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "toppings").Logger()

// DefaultModalBreakpoint is the viewport width below which the selector is
// shown as a modal instead of an inline panel.
const DefaultModalBreakpoint = 768

// CatalogSource lists the full product catalog for a country.
type CatalogSource interface {
	Products(ctx context.Context, countryCode string) ([]entity.Product, error)
}

type Presentation string

const (
	PresentationInline Presentation = "inline"
	PresentationModal  Presentation = "modal"
)

// Options configures a Selector.
//
// OnChange receives the normalized topping list whenever it differs from the
// last list delivered. OnSelectionChange receives every quantity-state change
// and the catalog load completion. Both run while the selector is locked and
// must not call back into it.
type Options struct {
	CountryCode       string
	Categories        []CategoryDef
	ModalBreakpoint   int
	OnChange          func([]entity.NormalizedTopping)
	OnSelectionChange func(entries []entity.SelectionEntry, catalogLoaded bool)
}

// Selector tracks the add-ons a shopper picks for one product.
type Selector struct {
	mu         sync.Mutex
	source     CatalogSource
	opts       Options
	categories []Category
	loaded     bool
	selection  *Selection
	toppings   []entity.NormalizedTopping
	lastSent   string
	editMode   bool
	viewport   Presentation
	open       bool
}

func NewSelector(source CatalogSource, opts Options) *Selector {
	if len(opts.Categories) == 0 {
		opts.Categories = DefaultCategories()
	}
	if opts.ModalBreakpoint <= 0 {
		opts.ModalBreakpoint = DefaultModalBreakpoint
	}
	return &Selector{
		source:    source,
		opts:      opts,
		selection: NewSelection(),
		toppings:  []entity.NormalizedTopping{},
		viewport:  PresentationInline,
	}
}

// Load fetches the catalog and partitions it into categories. A failed fetch
// is logged and leaves the categories empty.
func (s *Selector) Load(ctx context.Context) {
	products, err := s.source.Products(ctx, s.opts.CountryCode)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		logger.Error().Err(err).Str("country", s.opts.CountryCode).Msg("Error fetching add-on catalog")
		s.categories = Partition(nil, s.opts.Categories)
	} else {
		s.categories = Partition(products, s.opts.Categories)
	}
	s.loaded = true

	s.derive()
	s.notifySelection()
}

// Hydrate pre-populates the selection from an existing line item's add-ons and
// forces the panel open. Entries with a non-positive quantity are ignored; when
// none remain the selector is left untouched.
func (s *Selector) Hydrate(entries []entity.SelectionEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, e := range entries {
		if e.VariantID == "" || e.Quantity <= 0 {
			continue
		}
		if s.selection.set(e.VariantID, e.Quantity) {
			changed = true
		}
	}
	if !changed {
		return
	}
	s.editMode = true
	s.open = true

	s.derive()
	s.notifySelection()
}

// Apply runs cmd against the selection. It reports whether the selection changed.
func (s *Selector) Apply(cmd Command) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !cmd.apply(s.selection) {
		return false
	}
	s.derive()
	s.notifySelection()
	return true
}

// Emit re-derives the normalized list and delivers it if it changed since the
// last delivery.
func (s *Selector) Emit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.derive()
}

// SetViewport switches between modal and inline presentation. An open panel
// stays open under the new presentation.
func (s *Selector) SetViewport(width int) Presentation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if width > 0 && width < s.opts.ModalBreakpoint {
		s.viewport = PresentationModal
	} else {
		s.viewport = PresentationInline
	}
	return s.viewport
}

// TogglePanel opens or closes the selector and returns the new state.
func (s *Selector) TogglePanel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = !s.open
	return s.open
}

func (s *Selector) SetPanelOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = open
}

// Entries returns the current selection in first-selected order.
func (s *Selector) Entries() []entity.SelectionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Entries()
}

// Toppings returns the last derived normalized list.
func (s *Selector) Toppings() []entity.NormalizedTopping {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.NormalizedTopping, len(s.toppings))
	copy(out, s.toppings)
	return out
}

// derive rebuilds the normalized list and delivers it when its serialized form
// changed. Callers hold s.mu.
func (s *Selector) derive() {
	toppings := []entity.NormalizedTopping{}
	for _, category := range s.categories {
		for i := range category.Products {
			p := &category.Products[i]
			variant := p.FirstVariant()
			if variant == nil {
				continue
			}
			qty := s.selection.Quantity(variant.ID)
			if qty <= 0 {
				continue
			}
			toppings = append(toppings, entity.NormalizedTopping{
				VariantID: variant.ID,
				Quantity:  qty,
				Title:     p.Title,
				Price:     price.Extract(variant.CalculatedPrice),
			})
		}
	}
	s.toppings = toppings

	serialized, err := json.Marshal(toppings)
	if err != nil {
		logger.Error().Err(err).Msg("Error serializing toppings")
		return
	}
	if string(serialized) == s.lastSent {
		return
	}
	s.lastSent = string(serialized)
	if s.opts.OnChange != nil {
		s.opts.OnChange(toppings)
	}
}

func (s *Selector) notifySelection() {
	if s.opts.OnSelectionChange != nil {
		s.opts.OnSelectionChange(s.selection.Entries(), s.loaded)
	}
}

// AddOnView is one add-on as displayed in the selector.
type AddOnView struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

type CategoryView struct {
	Title  string      `json:"title"`
	Handle string      `json:"handle"`
	AddOns []AddOnView `json:"add_ons"`
}

// View is a point-in-time snapshot of the selector for rendering.
type View struct {
	Loaded       bool                       `json:"loaded"`
	Available    bool                       `json:"available"`
	EditMode     bool                       `json:"edit_mode"`
	Presentation Presentation               `json:"presentation"`
	Open         bool                       `json:"open"`
	Categories   []CategoryView             `json:"categories"`
	Selection    []entity.SelectionEntry    `json:"selection"`
	Toppings     []entity.NormalizedTopping `json:"toppings"`
}

func (s *Selector) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	categories := make([]CategoryView, 0, len(s.categories))
	for _, category := range s.categories {
		if len(category.Products) == 0 {
			continue
		}
		cv := CategoryView{Title: category.Title, Handle: category.Handle}
		for i := range category.Products {
			p := &category.Products[i]
			variant := p.FirstVariant()
			cv.AddOns = append(cv.AddOns, AddOnView{
				ProductID: p.ID,
				VariantID: variant.ID,
				Title:     p.Title,
				Price:     price.Parse(variant.CalculatedPrice).Amount,
				Quantity:  s.selection.Quantity(variant.ID),
			})
		}
		categories = append(categories, cv)
	}

	toppings := make([]entity.NormalizedTopping, len(s.toppings))
	copy(toppings, s.toppings)

	return View{
		Loaded:       s.loaded,
		Available:    s.loaded && !Empty(s.categories),
		EditMode:     s.editMode,
		Presentation: s.viewport,
		Open:         s.open,
		Categories:   categories,
		Selection:    s.selection.Entries(),
		Toppings:     toppings,
	}
}
