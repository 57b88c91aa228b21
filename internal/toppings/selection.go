package toppings

import (
	"fmt"

	"storefront-service/internal/entity"
)

// Selection maps add-on variant ids to locally selected quantities, keeping
// the order in which variants were first selected. A variant with quantity 0
// is never present.
type Selection struct {
	order []string
	qty   map[string]int
}

func NewSelection() *Selection {
	return &Selection{qty: make(map[string]int)}
}

func (s *Selection) Quantity(variantID string) int {
	return s.qty[variantID]
}

func (s *Selection) Has(variantID string) bool {
	_, ok := s.qty[variantID]
	return ok
}

func (s *Selection) Len() int {
	return len(s.order)
}

// Entries returns the selection in first-selected order.
func (s *Selection) Entries() []entity.SelectionEntry {
	entries := make([]entity.SelectionEntry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, entity.SelectionEntry{VariantID: id, Quantity: s.qty[id]})
	}
	return entries
}

func (s *Selection) set(variantID string, quantity int) bool {
	current, ok := s.qty[variantID]
	if quantity <= 0 {
		if !ok {
			return false
		}
		s.drop(variantID)
		return true
	}
	if ok && current == quantity {
		return false
	}
	if !ok {
		s.order = append(s.order, variantID)
	}
	s.qty[variantID] = quantity
	return true
}

func (s *Selection) drop(variantID string) {
	delete(s.qty, variantID)
	for i, id := range s.order {
		if id == variantID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *Selection) reset() bool {
	if len(s.order) == 0 {
		return false
	}
	s.order = nil
	s.qty = make(map[string]int)
	return true
}

// Command is a message that changes a Selection. Apply reports whether the
// selection changed.
type Command interface {
	apply(s *Selection) bool
}

// Add increments a variant, creating it at 1.
type Add struct{ VariantID string }

// Remove decrements a variant and drops it at 0.
type Remove struct{ VariantID string }

// Delete drops a variant regardless of its quantity.
type Delete struct{ VariantID string }

// Reset clears every selected variant. The product page sends it after a
// successful add-to-cart so the next pizza starts empty.
type Reset struct{}

func (c Add) apply(s *Selection) bool {
	if c.VariantID == "" {
		return false
	}
	return s.set(c.VariantID, s.Quantity(c.VariantID)+1)
}

func (c Remove) apply(s *Selection) bool {
	if !s.Has(c.VariantID) {
		return false
	}
	return s.set(c.VariantID, s.Quantity(c.VariantID)-1)
}

func (c Delete) apply(s *Selection) bool {
	if !s.Has(c.VariantID) {
		return false
	}
	s.drop(c.VariantID)
	return true
}

func (Reset) apply(s *Selection) bool {
	return s.reset()
}

// ParseCommand builds a Command from its wire name.
func ParseCommand(kind, variantID string) (Command, error) {
	switch kind {
	case "add":
		return Add{VariantID: variantID}, nil
	case "remove":
		return Remove{VariantID: variantID}, nil
	case "delete":
		return Delete{VariantID: variantID}, nil
	case "reset":
		return Reset{}, nil
	default:
		return nil, fmt.Errorf("unknown selection command %q", kind)
	}
}
