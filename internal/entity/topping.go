package entity

// SelectionEntry is one locally selected add-on. Quantity is always >= 1;
// an unselected add-on has no entry at all.
type SelectionEntry struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// NormalizedTopping is a selection entry enriched with display fields.
type NormalizedTopping struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
}

// ToppingMetadata is the persisted form of an add-on on a line item. Price and
// title are never stored: the backend owns pricing.
type ToppingMetadata struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// MetadataToppingsKey is the line item metadata key holding persisted add-ons.
const MetadataToppingsKey = "toppings"

// ToppingsMetadata builds the line item metadata blob for the given entries.
func ToppingsMetadata(entries []SelectionEntry) map[string]interface{} {
	toppings := make([]ToppingMetadata, 0, len(entries))
	for _, e := range entries {
		if e.Quantity <= 0 {
			continue
		}
		toppings = append(toppings, ToppingMetadata{VariantID: e.VariantID, Quantity: e.Quantity})
	}
	return map[string]interface{}{MetadataToppingsKey: toppings}
}

// EntriesFromToppings converts normalized toppings back to their persisted pairs.
func EntriesFromToppings(toppings []NormalizedTopping) []SelectionEntry {
	entries := make([]SelectionEntry, 0, len(toppings))
	for _, t := range toppings {
		entries = append(entries, SelectionEntry{VariantID: t.VariantID, Quantity: t.Quantity})
	}
	return entries
}
