package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"storefront-service/internal/entity"
	"storefront-service/internal/lineitem"
	"storefront-service/internal/service"
	"storefront-service/internal/session"
	"storefront-service/internal/toppings"
)

// CartCookie carries the shopper's cart id between requests.
const CartCookie = "_medusa_cart_id"

const cartCookieMaxAge = 60 * 60 * 24 * 7

// Catalog is the catalog service as seen by the handlers.
type Catalog interface {
	toppings.CatalogSource
	PreWarmCache(ctx context.Context) (int, error)
}

// Carts is the cart service as seen by the handlers.
type Carts interface {
	service.PageCarts
	UpdateLineItem(ctx context.Context, cartID, lineID string, quantity int) (*entity.Cart, error)
}

// MutationLister reads the mutation journal.
type MutationLister interface {
	ListByCart(ctx context.Context, cartID string, limit int) ([]*entity.Mutation, error)
}

type Options struct {
	DefaultCountry  string
	Categories      []toppings.CategoryDef
	ModalBreakpoint int
	SyncDebounce    time.Duration
	ToggleLockout   time.Duration
}

type StorefrontHandler struct {
	catalog Catalog
	carts   Carts
	journal MutationLister
	pages   *session.Registry[*service.ProductPage]
	panels  *session.Registry[*service.CartPanel]
	opts    Options
}

// NewStorefrontHandler creates a new instance of StorefrontHandler. journal may be nil.
func NewStorefrontHandler(catalog Catalog, carts Carts, journal MutationLister, pages *session.Registry[*service.ProductPage], panels *session.Registry[*service.CartPanel], opts Options) *StorefrontHandler {
	if opts.DefaultCountry == "" {
		opts.DefaultCountry = "fr"
	}
	if len(opts.Categories) == 0 {
		opts.Categories = toppings.DefaultCategories()
	}
	return &StorefrontHandler{
		catalog: catalog,
		carts:   carts,
		journal: journal,
		pages:   pages,
		panels:  panels,
		opts:    opts,
	}
}

// RegisterRoutes mounts the shopper-facing routes.
func (h *StorefrontHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/toppings", h.ListToppings)
	e.GET("/cart", h.GetCart)

	e.POST("/selections", h.CreateSelection)
	e.GET("/selections/:id", h.GetSelection)
	e.DELETE("/selections/:id", h.DeleteSelection)
	e.POST("/selections/:id/commands", h.ApplyCommand)
	e.POST("/selections/:id/viewport", h.SetViewport)
	e.POST("/selections/:id/panel/toggle", h.ToggleSelector)
	e.POST("/selections/:id/cart", h.AddToCart)

	e.POST("/panels", h.CreatePanel)
	e.GET("/panels/:id", h.GetPanel)
	e.DELETE("/panels/:id", h.DeletePanel)
	e.POST("/panels/:id/path", h.SetPanelPath)
	e.POST("/panels/:id/toggle", h.TogglePanel)
	e.POST("/panels/:id/close", h.ClosePanel)
	e.POST("/panels/:id/keys", h.PanelKey)
	e.POST("/panels/:id/lines/:line/quantity", h.ChangeLineQuantity)
	e.DELETE("/panels/:id/lines/:line", h.RemoveLine)
}

// RegisterInternalRoutes mounts the operator routes on an authenticated group.
func (h *StorefrontHandler) RegisterInternalRoutes(g *echo.Group) {
	g.POST("/catalog/warmup", h.WarmCatalog)
	g.GET("/carts/:id/mutations", h.ListMutations)
}

func (h *StorefrontHandler) country(raw string) string {
	if raw == "" {
		return h.opts.DefaultCountry
	}
	return strings.ToLower(raw)
}

func cartIDFromCookie(c echo.Context) string {
	cookie, err := c.Cookie(CartCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func setCartCookie(c echo.Context, cartID string) {
	if cartID == "" || cartID == cartIDFromCookie(c) {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     CartCookie,
		Value:    cartID,
		Path:     "/",
		MaxAge:   cartCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func sessionError(c echo.Context, err error) error {
	if errors.Is(err, session.ErrSessionNotFound) {
		return c.JSON(404, map[string]string{"error": err.Error()})
	}
	return c.JSON(500, map[string]string{"error": err.Error()})
}

// ListToppings returns the add-on categories for a country --> /toppings?country=fr
func (h *StorefrontHandler) ListToppings(c echo.Context) error {
	country := h.country(c.QueryParam("country"))

	// a failed fetch is logged by the catalog and renders as no add-ons
	products, _ := h.catalog.Products(c.Request().Context(), country)
	categories := toppings.Partition(products, h.opts.Categories)

	return c.JSON(200, map[string]interface{}{
		"country":    country,
		"available":  !toppings.Empty(categories),
		"categories": categories,
	})
}

type cartLine struct {
	entity.LineItem
	Decoration lineitem.Decoration `json:"decoration"`
}

// GetCart returns the shopper's cart with decorated lines --> /cart
func (h *StorefrontHandler) GetCart(c echo.Context) error {
	country := h.country(c.QueryParam("country"))

	// a failed fetch is logged by the cart service and renders as an empty cart
	cart, _ := h.carts.Retrieve(c.Request().Context(), cartIDFromCookie(c))

	lines := []cartLine{}
	if cart != nil {
		for _, item := range service.SortedLines(cart.Items) {
			item := item
			lines = append(lines, cartLine{LineItem: item, Decoration: lineitem.Decorate(&item, country)})
		}
	}

	return c.JSON(200, map[string]interface{}{
		"cart":       cart,
		"item_count": cart.ItemCount(),
		"lines":      lines,
	})
}

// CreateSelection opens a topping selector for a product page --> /selections
func (h *StorefrontHandler) CreateSelection(c echo.Context) error {
	req := struct {
		Country       string `json:"country"`
		VariantID     string `json:"variant_id"`
		EditLineItem  string `json:"edit_line_item"`
		AutoUpdate    bool   `json:"auto_update"`
		ViewportWidth int    `json:"viewport_width"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	cartID := cartIDFromCookie(c)
	if req.EditLineItem != "" && cartID == "" {
		return c.JSON(400, map[string]string{"error": "No cart to edit"})
	}

	page := service.NewProductPage(h.catalog, h.carts, service.PageOptions{
		CountryCode:     h.country(req.Country),
		VariantID:       req.VariantID,
		CartID:          cartID,
		EditLineID:      req.EditLineItem,
		AutoUpdate:      req.AutoUpdate,
		Categories:      h.opts.Categories,
		ModalBreakpoint: h.opts.ModalBreakpoint,
		SyncDebounce:    h.opts.SyncDebounce,
	})
	page.Open(c.Request().Context())
	if req.ViewportWidth > 0 {
		page.Selector().SetViewport(req.ViewportWidth)
	}

	id := h.pages.Add(page)
	return c.JSON(201, map[string]interface{}{"id": id, "selection": page.View()})
}

func (h *StorefrontHandler) page(c echo.Context) (*service.ProductPage, error) {
	return h.pages.Get(c.Param("id"))
}

// GetSelection --> /selections/:id
func (h *StorefrontHandler) GetSelection(c echo.Context) error {
	page, err := h.page(c)
	if err != nil {
		return sessionError(c, err)
	}
	return c.JSON(200, page.View())
}

// DeleteSelection closes the selector; a pending sync is dropped --> /selections/:id
func (h *StorefrontHandler) DeleteSelection(c echo.Context) error {
	if err := h.pages.Remove(c.Param("id")); err != nil {
		return sessionError(c, err)
	}
	return c.NoContent(204)
}

// ApplyCommand changes the selection --> /selections/:id/commands
func (h *StorefrontHandler) ApplyCommand(c echo.Context) error {
	req := struct {
		Type      string `json:"type"`
		VariantID string `json:"variant_id"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}
	cmd, err := toppings.ParseCommand(req.Type, req.VariantID)
	if err != nil {
		return c.JSON(400, map[string]string{"error": err.Error()})
	}

	page, err := h.page(c)
	if err != nil {
		return sessionError(c, err)
	}
	page.Selector().Apply(cmd)
	return c.JSON(200, page.View())
}

// SetViewport --> /selections/:id/viewport
func (h *StorefrontHandler) SetViewport(c echo.Context) error {
	req := struct {
		Width int `json:"width"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	page, err := h.page(c)
	if err != nil {
		return sessionError(c, err)
	}
	page.Selector().SetViewport(req.Width)
	return c.JSON(200, page.View())
}

// ToggleSelector opens or closes the add-on panel --> /selections/:id/panel/toggle
func (h *StorefrontHandler) ToggleSelector(c echo.Context) error {
	page, err := h.page(c)
	if err != nil {
		return sessionError(c, err)
	}
	page.Selector().TogglePanel()
	return c.JSON(200, page.View())
}

// AddToCart adds the product with its toppings, or replaces the edited line --> /selections/:id/cart
func (h *StorefrontHandler) AddToCart(c echo.Context) error {
	page, err := h.page(c)
	if err != nil {
		return sessionError(c, err)
	}

	cart, err := page.AddToCart(c.Request().Context(), c.Request().Header.Get("Idempotent-Key"))
	switch {
	case errors.Is(err, service.ErrDuplicateRequest), errors.Is(err, service.ErrBusy):
		return c.JSON(409, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrMissingVariant):
		return c.JSON(400, map[string]string{"error": err.Error()})
	case err != nil:
		return c.JSON(500, map[string]string{"error": err.Error()})
	}

	setCartCookie(c, cart.ID)
	return c.JSON(200, map[string]interface{}{"cart": cart, "selection": page.View()})
}

// CreatePanel mounts a cart panel on the given route --> /panels
func (h *StorefrontHandler) CreatePanel(c echo.Context) error {
	req := struct {
		Path    string `json:"path"`
		Country string `json:"country"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	panel := service.NewCartPanel(h.carts, service.PanelOptions{
		CartID:        cartIDFromCookie(c),
		CountryCode:   h.country(req.Country),
		ToggleLockout: h.opts.ToggleLockout,
	})
	panel.Refresh(c.Request().Context())
	panel.Mount(req.Path)

	id := h.panels.Add(panel)
	return c.JSON(201, map[string]interface{}{"id": id, "panel": panel.View()})
}

func (h *StorefrontHandler) panel(c echo.Context) (*service.CartPanel, error) {
	return h.panels.Get(c.Param("id"))
}

// GetPanel refetches the cart named by the cookie and returns the panel --> /panels/:id
func (h *StorefrontHandler) GetPanel(c echo.Context) error {
	panel, err := h.panel(c)
	if err != nil {
		return sessionError(c, err)
	}
	panel.SetCartID(cartIDFromCookie(c))
	panel.Refresh(c.Request().Context())
	return c.JSON(200, panel.View())
}

// DeletePanel unmounts the panel --> /panels/:id
func (h *StorefrontHandler) DeletePanel(c echo.Context) error {
	if err := h.panels.Remove(c.Param("id")); err != nil {
		return sessionError(c, err)
	}
	return c.NoContent(204)
}

// SetPanelPath reports a route change. navigating marks the start of a
// transition; a later call without it completes the transition --> /panels/:id/path
func (h *StorefrontHandler) SetPanelPath(c echo.Context) error {
	req := struct {
		Path       string `json:"path"`
		Navigating bool   `json:"navigating"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	panel, err := h.panel(c)
	if err != nil {
		return sessionError(c, err)
	}
	if req.Navigating {
		panel.BeginNavigation(req.Path)
	} else {
		panel.SetPath(req.Path)
	}
	return c.JSON(200, panel.View())
}

// TogglePanel --> /panels/:id/toggle
func (h *StorefrontHandler) TogglePanel(c echo.Context) error {
	panel, err := h.panel(c)
	if err != nil {
		return sessionError(c, err)
	}
	panel.Toggle()
	return c.JSON(200, panel.View())
}

// ClosePanel --> /panels/:id/close
func (h *StorefrontHandler) ClosePanel(c echo.Context) error {
	panel, err := h.panel(c)
	if err != nil {
		return sessionError(c, err)
	}
	panel.Close()
	return c.JSON(200, panel.View())
}

// PanelKey forwards a key press --> /panels/:id/keys
func (h *StorefrontHandler) PanelKey(c echo.Context) error {
	req := struct {
		Key string `json:"key"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	panel, err := h.panel(c)
	if err != nil {
		return sessionError(c, err)
	}
	prevent := panel.HandleKey(req.Key)
	return c.JSON(200, map[string]interface{}{"prevent_default": prevent, "panel": panel.View()})
}

// ChangeLineQuantity --> /panels/:id/lines/:line/quantity
func (h *StorefrontHandler) ChangeLineQuantity(c echo.Context) error {
	req := struct {
		Quantity *int `json:"quantity"`
	}{}
	if err := c.Bind(&req); err != nil || req.Quantity == nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	panel, err := h.panel(c)
	if err != nil {
		return sessionError(c, err)
	}
	panel.SetCartID(cartIDFromCookie(c))
	panel.ChangeQuantity(c.Request().Context(), c.Param("line"), *req.Quantity)
	return c.JSON(200, panel.View())
}

// RemoveLine --> /panels/:id/lines/:line
func (h *StorefrontHandler) RemoveLine(c echo.Context) error {
	panel, err := h.panel(c)
	if err != nil {
		return sessionError(c, err)
	}
	panel.SetCartID(cartIDFromCookie(c))
	panel.Remove(c.Request().Context(), c.Param("line"))
	return c.JSON(200, panel.View())
}

// WarmCatalog loads every country's catalog into the cache --> /internal/catalog/warmup
func (h *StorefrontHandler) WarmCatalog(c echo.Context) error {
	warmed, err := h.catalog.PreWarmCache(c.Request().Context())
	if err != nil {
		return c.JSON(500, map[string]string{"error": err.Error()})
	}
	return c.JSON(200, map[string]int{"warmed": warmed})
}

// ListMutations returns the journal for a cart --> /internal/carts/:id/mutations?limit=50
func (h *StorefrontHandler) ListMutations(c echo.Context) error {
	if h.journal == nil {
		return c.JSON(503, map[string]string{"error": "Mutation journal disabled"})
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(400, map[string]string{"error": "Invalid limit"})
		}
		limit = n
	}

	mutations, err := h.journal.ListByCart(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return c.JSON(500, map[string]string{"error": err.Error()})
	}
	if mutations == nil {
		mutations = []*entity.Mutation{}
	}
	return c.JSON(200, mutations)
}
