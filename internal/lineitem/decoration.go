// Package lineitem turns a cart line's opaque metadata into display data.
package lineitem

import (
	"fmt"
	"math"
	"net/url"
	"strconv"

	"storefront-service/internal/entity"
)

// Toppings reads the persisted add-ons of a line item. A missing key, a value
// that is not an array or an empty array all yield nil. Entries without a
// variant id or with a non-positive quantity are skipped.
func Toppings(item *entity.LineItem) []entity.ToppingMetadata {
	if item == nil || item.Metadata == nil {
		return nil
	}
	raw, ok := item.Metadata[entity.MetadataToppingsKey]
	if !ok {
		return nil
	}

	var list []interface{}
	switch v := raw.(type) {
	case []interface{}:
		list = v
	case []entity.ToppingMetadata:
		return filterToppings(v)
	case []map[string]interface{}:
		for _, m := range v {
			list = append(list, m)
		}
	default:
		return nil
	}

	var toppings []entity.ToppingMetadata
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		variantID, _ := m["variant_id"].(string)
		quantity, ok := toInt(m["quantity"])
		if variantID == "" || !ok || quantity <= 0 {
			continue
		}
		toppings = append(toppings, entity.ToppingMetadata{VariantID: variantID, Quantity: quantity})
	}
	return toppings
}

// HasToppings reports whether the line carries at least one add-on.
func HasToppings(item *entity.LineItem) bool {
	return len(Toppings(item)) > 0
}

// SelectionEntries converts a line's persisted add-ons into selection entries
// for edit mode.
func SelectionEntries(item *entity.LineItem) []entity.SelectionEntry {
	toppings := Toppings(item)
	entries := make([]entity.SelectionEntry, 0, len(toppings))
	for _, t := range toppings {
		entries = append(entries, entity.SelectionEntry{VariantID: t.VariantID, Quantity: t.Quantity})
	}
	return entries
}

func filterToppings(in []entity.ToppingMetadata) []entity.ToppingMetadata {
	var out []entity.ToppingMetadata
	for _, t := range in {
		if t.VariantID != "" && t.Quantity > 0 {
			out = append(out, t)
		}
	}
	return out
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// AddOnLine is one add-on row under a cart line.
type AddOnLine struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Label     string `json:"label"`
}

// Decoration is the display data derived from a line item.
type Decoration struct {
	AddOns  []AddOnLine `json:"add_ons"`
	EditURL string      `json:"edit_url,omitempty"`
}

// Decorate builds the add-on summary for a line. Add-ons are labelled
// generically by position because the persisted metadata carries no title;
// variant ids are not resolved against the catalog, so a renamed or removed
// add-on still shows the generic label. The edit link is only offered when the
// line has add-ons and a product handle.
func Decorate(item *entity.LineItem, countryCode string) Decoration {
	toppings := Toppings(item)
	d := Decoration{AddOns: make([]AddOnLine, 0, len(toppings))}
	for i, t := range toppings {
		d.AddOns = append(d.AddOns, AddOnLine{
			VariantID: t.VariantID,
			Quantity:  t.Quantity,
			Label:     fmt.Sprintf("Ingrédient %d", i+1),
		})
	}
	if len(toppings) > 0 && item.ProductHandle != "" {
		d.EditURL = EditURL(countryCode, item)
	}
	return d
}

// EditURL links back to the product page in edit mode for the given line.
func EditURL(countryCode string, item *entity.LineItem) string {
	q := url.Values{}
	q.Set("edit_toppings", "true")
	q.Set("line_item", item.ID)
	q.Set("redirect_to", "cart")

	path := "/products/" + url.PathEscape(item.ProductHandle)
	if countryCode != "" {
		path = "/" + countryCode + path
	}
	return path + "?" + q.Encode()
}
