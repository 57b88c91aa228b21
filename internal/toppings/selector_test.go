package toppings

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/entity"
)

type fakeCatalog struct {
	products []entity.Product
	err      error
	calls    int
}

func (f *fakeCatalog) Products(_ context.Context, _ string) ([]entity.Product, error) {
	f.calls++
	return f.products, f.err
}

func product(id, collectionHandle, collectionTitle string, priceJSON string) entity.Product {
	return entity.Product{
		ID:         id,
		Title:      "Product " + id,
		Collection: &entity.Collection{Handle: collectionHandle, Title: collectionTitle},
		Variants:   []entity.Variant{{ID: "var_" + id, CalculatedPrice: json.RawMessage(priceJSON)}},
	}
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{products: []entity.Product{
		product("olive", "toppings-ingredients", "", `{"calculated_amount":150}`),
		product("ham", "toppings-viande", "", `{"calculated_amount":250}`),
		product("margherita", "pizzas", "Pizzas", `{"calculated_amount":1100}`),
		product("bacon", "", "Suppléments Viandes", `300`),
	}}
}

type recorder struct {
	emitted    [][]entity.NormalizedTopping
	selections [][]entity.SelectionEntry
	loadedSeen []bool
}

func (r *recorder) options() Options {
	return Options{
		CountryCode: "fr",
		OnChange: func(t []entity.NormalizedTopping) {
			r.emitted = append(r.emitted, t)
		},
		OnSelectionChange: func(e []entity.SelectionEntry, loaded bool) {
			r.selections = append(r.selections, e)
			r.loadedSeen = append(r.loadedSeen, loaded)
		},
	}
}

func TestPartition(t *testing.T) {
	giftcard := product("card", "toppings-ingredients", "", `100`)
	giftcard.IsGiftcard = true
	novariant := product("empty", "toppings-viande", "", `100`)
	novariant.Variants = nil

	products := append(testCatalog().products, giftcard, novariant)
	categories := Partition(products, DefaultCategories())

	require.Len(t, categories, 2)
	assert.Equal(t, "toppings-ingredients", categories[0].Handle)
	require.Len(t, categories[0].Products, 1)
	assert.Equal(t, "olive", categories[0].Products[0].ID)

	assert.Equal(t, "toppings-viande", categories[1].Handle)
	require.Len(t, categories[1].Products, 2)
	assert.Equal(t, "ham", categories[1].Products[0].ID)
	assert.Equal(t, "bacon", categories[1].Products[1].ID, "collection title fallback")

	for _, c := range categories {
		for _, p := range c.Products {
			assert.NotEqual(t, "margherita", p.ID)
		}
	}
}

func TestSelector_QuantityMonotonicity(t *testing.T) {
	sequences := [][]string{
		{"add", "add", "remove"},
		{"add", "remove", "remove", "add"},
		{"remove", "remove"},
		{"add", "add", "add", "remove", "remove", "remove"},
		{"add", "add", "add", "add", "remove"},
	}

	for _, seq := range sequences {
		s := NewSelector(testCatalog(), Options{})
		qty := 0
		for _, op := range seq {
			cmd, err := ParseCommand(op, "var_olive")
			require.NoError(t, err)
			s.Apply(cmd)
			if op == "add" {
				qty++
			} else if qty > 0 {
				qty--
			}
		}

		entries := s.Entries()
		if qty == 0 {
			assert.Empty(t, entries, "sequence %v", seq)
			continue
		}
		require.Len(t, entries, 1, "sequence %v", seq)
		assert.Equal(t, qty, entries[0].Quantity, "sequence %v", seq)
	}
}

func TestSelector_DeleteDropsRegardlessOfQuantity(t *testing.T) {
	s := NewSelector(testCatalog(), Options{})
	s.Apply(Add{VariantID: "var_ham"})
	s.Apply(Add{VariantID: "var_ham"})
	s.Apply(Add{VariantID: "var_olive"})

	assert.True(t, s.Apply(Delete{VariantID: "var_ham"}))
	assert.False(t, s.Apply(Delete{VariantID: "var_ham"}))
	assert.Equal(t, []entity.SelectionEntry{{VariantID: "var_olive", Quantity: 1}}, s.Entries())
}

func TestSelector_EmitsNormalizedToppings(t *testing.T) {
	rec := &recorder{}
	s := NewSelector(testCatalog(), rec.options())
	s.Load(context.Background())

	s.Apply(Add{VariantID: "var_ham"})
	s.Apply(Add{VariantID: "var_olive"})
	s.Apply(Add{VariantID: "var_olive"})

	last := rec.emitted[len(rec.emitted)-1]
	assert.Equal(t, []entity.NormalizedTopping{
		{VariantID: "var_olive", Quantity: 2, Title: "Product olive", Price: 150},
		{VariantID: "var_ham", Quantity: 1, Title: "Product ham", Price: 250},
	}, last, "category order, then product order")

	s.Apply(Remove{VariantID: "var_ham"})
	last = rec.emitted[len(rec.emitted)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "var_olive", last[0].VariantID)
}

func TestSelector_EmissionStability(t *testing.T) {
	rec := &recorder{}
	s := NewSelector(testCatalog(), rec.options())
	s.Load(context.Background())
	s.Apply(Add{VariantID: "var_ham"})

	before := len(rec.emitted)
	s.Emit()
	s.Emit()
	assert.Equal(t, before, len(rec.emitted))
}

func TestSelector_UnknownVariantIsNotEmitted(t *testing.T) {
	rec := &recorder{}
	s := NewSelector(testCatalog(), rec.options())
	s.Load(context.Background())
	before := len(rec.emitted)

	assert.True(t, s.Apply(Add{VariantID: "var_gone"}))
	assert.Equal(t, before, len(rec.emitted), "list unchanged, so nothing delivered")
	assert.Len(t, s.Entries(), 1, "selection still tracks the variant")
}

func TestSelector_LoadFailureLeavesNoAddOns(t *testing.T) {
	s := NewSelector(&fakeCatalog{err: errors.New("backend down")}, Options{})
	s.Load(context.Background())

	view := s.View()
	assert.True(t, view.Loaded)
	assert.False(t, view.Available)
	assert.Empty(t, view.Categories)
}

func TestSelector_ResetClearsSelection(t *testing.T) {
	rec := &recorder{}
	s := NewSelector(testCatalog(), rec.options())
	s.Load(context.Background())
	s.Apply(Add{VariantID: "var_ham"})

	assert.True(t, s.Apply(Reset{}))
	assert.Empty(t, s.Entries())
	assert.Empty(t, rec.emitted[len(rec.emitted)-1])
	assert.False(t, s.Apply(Reset{}))
}

func TestSelector_HydrateForcesOpen(t *testing.T) {
	rec := &recorder{}
	s := NewSelector(testCatalog(), rec.options())
	s.Load(context.Background())

	s.Hydrate([]entity.SelectionEntry{
		{VariantID: "var_ham", Quantity: 2},
		{VariantID: "var_olive", Quantity: 0},
	})

	view := s.View()
	assert.True(t, view.Open)
	assert.True(t, view.EditMode)
	assert.Equal(t, []entity.SelectionEntry{{VariantID: "var_ham", Quantity: 2}}, view.Selection)
}

func TestSelector_HydrateWithoutPositiveQuantities(t *testing.T) {
	s := NewSelector(testCatalog(), Options{})
	s.Hydrate([]entity.SelectionEntry{{VariantID: "var_ham", Quantity: 0}})

	view := s.View()
	assert.False(t, view.Open)
	assert.False(t, view.EditMode)
	assert.Empty(t, view.Selection)
}

func TestSelector_SelectionChangeReportsLoadState(t *testing.T) {
	rec := &recorder{}
	s := NewSelector(testCatalog(), rec.options())

	s.Apply(Add{VariantID: "var_ham"})
	s.Load(context.Background())

	assert.Equal(t, []bool{false, true}, rec.loadedSeen)
}

func TestSelector_ViewportKeepsPanelOpen(t *testing.T) {
	s := NewSelector(testCatalog(), Options{})

	assert.Equal(t, PresentationInline, s.SetViewport(1280))
	assert.True(t, s.TogglePanel())

	assert.Equal(t, PresentationModal, s.SetViewport(375))
	view := s.View()
	assert.Equal(t, PresentationModal, view.Presentation)
	assert.True(t, view.Open)

	assert.Equal(t, PresentationInline, s.SetViewport(1024))
	assert.True(t, s.View().Open)
}

func TestParseCommand_Unknown(t *testing.T) {
	_, err := ParseCommand("double", "var_ham")
	assert.Error(t, err)
}
