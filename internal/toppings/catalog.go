package toppings

import "storefront-service/internal/entity"

// CategoryDef describes one add-on category. A product belongs to it when its
// collection handle equals Handle or, failing that, its collection title equals
// CollectionTitle. The title fallback breaks if the collection is renamed or
// localized.
type CategoryDef struct {
	Title           string `yaml:"title" json:"title"`
	Handle          string `yaml:"handle" json:"handle"`
	CollectionTitle string `yaml:"collection_title" json:"collection_title"`
}

// DefaultCategories are the two add-on collections configured in the backend.
func DefaultCategories() []CategoryDef {
	return []CategoryDef{
		{Title: "Ingrédients", Handle: "toppings-ingredients", CollectionTitle: "Suppléments Ingrédients"},
		{Title: "Viandes", Handle: "toppings-viande", CollectionTitle: "Suppléments Viandes"},
	}
}

func (d CategoryDef) Matches(p *entity.Product) bool {
	if p.Collection == nil {
		return false
	}
	if p.Collection.Handle != "" && p.Collection.Handle == d.Handle {
		return true
	}
	return d.CollectionTitle != "" && p.Collection.Title == d.CollectionTitle
}

// Category is a named group of add-on products ready for display.
type Category struct {
	Title    string           `json:"title"`
	Handle   string           `json:"handle"`
	Products []entity.Product `json:"products"`
}

// Partition keeps the add-on products of the catalog and groups them by
// category. Gift cards and products without a variant are skipped; products
// outside every category are dropped.
func Partition(products []entity.Product, defs []CategoryDef) []Category {
	categories := make([]Category, 0, len(defs))
	for _, def := range defs {
		category := Category{Title: def.Title, Handle: def.Handle, Products: []entity.Product{}}
		for i := range products {
			p := &products[i]
			if p.IsGiftcard || p.FirstVariant() == nil {
				continue
			}
			if def.Matches(p) {
				category.Products = append(category.Products, *p)
			}
		}
		categories = append(categories, category)
	}
	return categories
}

// Empty reports whether no category holds any product.
func Empty(categories []Category) bool {
	for _, c := range categories {
		if len(c.Products) > 0 {
			return false
		}
	}
	return true
}
