package entity

import "encoding/json"

// Product is a catalog entry as returned by the commerce backend store API.
type Product struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Handle     string      `json:"handle"`
	IsGiftcard bool        `json:"is_giftcard"`
	Collection *Collection `json:"collection,omitempty"`
	Variants   []Variant   `json:"variants"`
}

type Collection struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

// Variant is a purchasable SKU. CalculatedPrice is kept raw because the backend
// has shipped several shapes for it over time; see package price.
type Variant struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	CalculatedPrice json.RawMessage `json:"calculated_price,omitempty"`
}

// FirstVariant returns the product's first variant, or nil when it has none.
func (p *Product) FirstVariant() *Variant {
	if len(p.Variants) == 0 {
		return nil
	}
	return &p.Variants[0]
}

type Region struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	CurrencyCode string          `json:"currency_code"`
	Countries    []RegionCountry `json:"countries"`
}

type RegionCountry struct {
	Iso2 string `json:"iso_2"`
}
