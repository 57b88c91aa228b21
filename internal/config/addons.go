package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"storefront-service/internal/toppings"
)

// AddonsConfig lists the add-on categories shown in the topping selector.
type AddonsConfig struct {
	Categories []toppings.CategoryDef `yaml:"categories"`
}

// LoadAddons reads add-on categories from a YAML file. An empty path yields
// the built-in categories.
func LoadAddons(path string) ([]toppings.CategoryDef, error) {
	if path == "" {
		return toppings.DefaultCategories(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read add-ons config: %w", err)
	}

	var cfg AddonsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse add-ons config: %w", err)
	}

	if err := validateAddons(cfg.Categories); err != nil {
		return nil, err
	}
	return cfg.Categories, nil
}

func validateAddons(categories []toppings.CategoryDef) error {
	if len(categories) == 0 {
		return fmt.Errorf("add-ons config must define at least one category")
	}
	seen := make(map[string]bool)
	for i, c := range categories {
		if c.Title == "" {
			return fmt.Errorf("category %d: title is required", i)
		}
		if c.Handle == "" && c.CollectionTitle == "" {
			return fmt.Errorf("category %q: handle or collection_title is required", c.Title)
		}
		if c.Handle != "" {
			if seen[c.Handle] {
				return fmt.Errorf("category %q: duplicate handle %q", c.Title, c.Handle)
			}
			seen[c.Handle] = true
		}
	}
	return nil
}
