package entity

type Cart struct {
	ID           string     `json:"id"`
	RegionID     string     `json:"region_id"`
	CurrencyCode string     `json:"currency_code"`
	Subtotal     float64    `json:"subtotal"`
	Total        float64    `json:"total"`
	Items        []LineItem `json:"items"`
}

// ItemCount sums the quantities of every line in the cart. A nil cart counts as empty.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// FindItem returns the line with the given id, or nil.
func (c *Cart) FindItem(lineID string) *LineItem {
	if c == nil {
		return nil
	}
	for i := range c.Items {
		if c.Items[i].ID == lineID {
			return &c.Items[i]
		}
	}
	return nil
}

// LineItem is a cart entry. Metadata is free-form; persisted add-ons live under
// the "toppings" key.
type LineItem struct {
	ID            string                 `json:"id"`
	ProductHandle string                 `json:"product_handle,omitempty"`
	Title         string                 `json:"title"`
	Quantity      int                    `json:"quantity"`
	Thumbnail     string                 `json:"thumbnail,omitempty"`
	VariantID     string                 `json:"variant_id"`
	Total         float64                `json:"total"`
	CreatedAt     string                 `json:"created_at,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}
