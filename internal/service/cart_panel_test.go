package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/entity"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func seededCart(t *testing.T, backend *fakeCartBackend) *entity.Cart {
	t.Helper()
	svc := NewCartService(backend, staticRegions{}, nil, nil, nil)
	cart, err := svc.GetOrCreate(context.Background(), "", "fr")
	require.NoError(t, err)
	_, err = svc.AddLineItem(context.Background(), cart.ID, "var_a", 1, nil, "")
	require.NoError(t, err)
	cart, err = svc.AddLineItem(context.Background(), cart.ID, "var_b", 2, map[string]interface{}{
		"toppings": []entity.ToppingMetadata{{VariantID: "v1", Quantity: 1}},
	}, "")
	require.NoError(t, err)
	return cart
}

func newTestPanel(t *testing.T) (*CartPanel, *fakeCartBackend, *fakeClock) {
	t.Helper()
	backend := newFakeCartBackend()
	cart := seededCart(t, backend)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}

	panel := NewCartPanel(NewCartService(backend, staticRegions{}, nil, nil, nil), PanelOptions{
		CartID:        cart.ID,
		CountryCode:   "fr",
		ToggleLockout: 40 * time.Millisecond,
		Now:           clock.Now,
	})
	panel.Refresh(context.Background())
	return panel, backend, clock
}

func TestSuppressed(t *testing.T) {
	tests := map[string]bool{
		"/":                   false,
		"/fr":                 false,
		"/fr/products/reine":  false,
		"/checkout":           true,
		"/checkout/payment":   true,
		"/fr/checkout":        true,
		"/fr/checkout?step=2": true,
		"/fr/cart":            true,
		"/cart":               true,
		"/fr/cart/":           true,
		"/fr/cartography":     false,
	}
	for path, want := range tests {
		assert.Equal(t, want, Suppressed(path), path)
	}
}

func TestCartPanel_HiddenUntilMounted(t *testing.T) {
	panel, _, _ := newTestPanel(t)

	view := panel.View()
	assert.False(t, view.Visible)
	assert.False(t, view.ShowToggle)
	assert.False(t, panel.Toggle(), "toggle ignored before mount")

	panel.Mount("/fr")
	view = panel.View()
	assert.True(t, view.Visible)
	assert.True(t, view.ShowToggle)
	assert.Equal(t, 3, view.ItemCount)
}

func TestCartPanel_SuppressedRoutes(t *testing.T) {
	panel, _, _ := newTestPanel(t)
	panel.Mount("/fr/checkout")

	assert.False(t, panel.View().Visible)
	assert.False(t, panel.Toggle())

	panel.SetPath("/fr/products/reine")
	assert.True(t, panel.View().Visible)
}

func TestCartPanel_ToggleLockout(t *testing.T) {
	panel, _, _ := newTestPanel(t)
	panel.Mount("/fr")

	assert.True(t, panel.Toggle())
	assert.True(t, panel.Toggle(), "second toggle inside the window is a no-op")

	view := panel.View()
	assert.True(t, view.Open)
	assert.True(t, view.ScrollLocked)
	assert.False(t, view.ShowToggle)

	time.Sleep(80 * time.Millisecond)
	assert.False(t, panel.Toggle())
	assert.False(t, panel.View().ScrollLocked)
}

func TestCartPanel_Keys(t *testing.T) {
	panel, _, _ := newTestPanel(t)
	panel.Mount("/fr")

	assert.False(t, panel.HandleKey(KeySpace))
	panel.Toggle()
	assert.True(t, panel.HandleKey(KeySpace), "space suppressed during lockout")

	time.Sleep(80 * time.Millisecond)
	assert.False(t, panel.HandleKey(KeySpace))
	panel.HandleKey(KeyEscape)
	assert.False(t, panel.View().Open)
}

func TestCartPanel_LinesNewestFirst(t *testing.T) {
	panel, _, _ := newTestPanel(t)
	panel.Mount("/fr")

	lines := panel.View().Lines
	require.Len(t, lines, 2)
	assert.Equal(t, "var_b", lines[0].VariantID)
	assert.Equal(t, "var_a", lines[1].VariantID)

	require.Len(t, lines[0].Decoration.AddOns, 1)
	assert.Equal(t, "Ingrédient 1", lines[0].Decoration.AddOns[0].Label)
	assert.Empty(t, lines[1].Decoration.AddOns)
}

func TestCartPanel_QuantityBelowOneDeletes(t *testing.T) {
	panel, backend, _ := newTestPanel(t)
	panel.Mount("/fr")
	lineID := panel.View().Lines[1].ID

	panel.ChangeQuantity(context.Background(), lineID, 0)

	calls := backend.Calls()
	assert.Equal(t, "delete:"+lineID, calls[len(calls)-1])
	assert.Len(t, panel.View().Lines, 1)
}

func TestCartPanel_QuantityUpdateAndPulse(t *testing.T) {
	panel, backend, clock := newTestPanel(t)
	panel.Mount("/fr")
	lineID := panel.View().Lines[1].ID
	assert.False(t, panel.View().Pulse, "first snapshot does not pulse")

	panel.ChangeQuantity(context.Background(), lineID, 4)
	calls := backend.Calls()
	assert.Equal(t, "update:"+lineID+":4", calls[len(calls)-1])

	view := panel.View()
	assert.Equal(t, 6, view.ItemCount)
	assert.True(t, view.Pulse)
	assert.False(t, view.Loading)

	clock.now = clock.now.Add(DefaultPulseDuration)
	assert.False(t, panel.View().Pulse)

	panel.ChangeQuantity(context.Background(), lineID, 2)
	assert.False(t, panel.View().Pulse, "decrease does not pulse")
}

func TestCartPanel_FailedMutationKeepsSnapshot(t *testing.T) {
	panel, backend, _ := newTestPanel(t)
	panel.Mount("/fr")
	lineID := panel.View().Lines[0].ID

	backend.failNext = errors.New("backend down")
	panel.Remove(context.Background(), lineID)

	view := panel.View()
	assert.Len(t, view.Lines, 2)
	assert.False(t, view.Loading)
}

func TestCartPanel_NavigationGuard(t *testing.T) {
	panel, backend, _ := newTestPanel(t)
	panel.Mount("/fr")
	panel.Toggle()
	lineID := panel.View().Lines[0].ID
	before := len(backend.Calls())

	panel.BeginNavigation("/fr/products/reine")
	assert.False(t, panel.View().Open, "navigation closes the panel")
	panel.Remove(context.Background(), lineID)
	assert.Len(t, backend.Calls(), before, "mutations ignored mid-transition")

	panel.SetPath("/fr/products/reine")
	panel.Remove(context.Background(), lineID)
	assert.Len(t, backend.Calls(), before+1)
}

func TestCartPanel_UnmountReleasesScroll(t *testing.T) {
	panel, _, _ := newTestPanel(t)
	panel.Mount("/fr")
	panel.Toggle()
	require.True(t, panel.View().ScrollLocked)

	panel.Unmount()
	view := panel.View()
	assert.False(t, view.Visible)
	assert.False(t, view.ScrollLocked)
}

func TestCartPanel_PicksUpNewCart(t *testing.T) {
	backend := newFakeCartBackend()
	svc := NewCartService(backend, staticRegions{}, nil, nil, nil)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}

	panel := NewCartPanel(svc, PanelOptions{CountryCode: "fr", Now: clock.Now})
	panel.Refresh(context.Background())
	panel.Mount("/fr")
	assert.False(t, panel.View().ShowToggle)

	cart, err := svc.GetOrCreate(context.Background(), "", "fr")
	require.NoError(t, err)
	_, err = svc.AddLineItem(context.Background(), cart.ID, "var_a", 1, nil, "")
	require.NoError(t, err)

	panel.SetCartID("")
	panel.Refresh(context.Background())
	assert.Equal(t, 0, panel.View().ItemCount, "empty id keeps the panel cartless")

	panel.SetCartID(cart.ID)
	panel.Refresh(context.Background())
	view := panel.View()
	assert.Equal(t, 1, view.ItemCount)
	assert.True(t, view.ShowToggle)
	assert.True(t, view.Pulse, "first item pulses")
}
