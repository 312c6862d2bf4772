package enums

import (
	"fmt"
	"strings"
)

// Category is the item taxonomy used for spending breakdowns.
type Category string

const (
	CategoryGroceries     Category = "groceries"
	CategoryDining        Category = "dining"
	CategoryShopping      Category = "shopping"
	CategoryHealth        Category = "health"
	CategoryTransport     Category = "transport"
	CategoryServices      Category = "services"
	CategoryEntertainment Category = "entertainment"
	CategoryOther         Category = "other"
)

var validCategories = []Category{
	CategoryGroceries,
	CategoryDining,
	CategoryShopping,
	CategoryHealth,
	CategoryTransport,
	CategoryServices,
	CategoryEntertainment,
	CategoryOther,
}

// categoryAliases maps labels models commonly return onto the taxonomy.
var categoryAliases = map[string]Category{
	"grocery":       CategoryGroceries,
	"food":          CategoryGroceries,
	"produce":       CategoryGroceries,
	"dairy":         CategoryGroceries,
	"bakery":        CategoryGroceries,
	"meat":          CategoryGroceries,
	"beverages":     CategoryGroceries,
	"restaurant":    CategoryDining,
	"restaurants":   CategoryDining,
	"cafe":          CategoryDining,
	"coffee":        CategoryDining,
	"fast food":     CategoryDining,
	"clothing":      CategoryShopping,
	"apparel":       CategoryShopping,
	"electronics":   CategoryShopping,
	"household":     CategoryShopping,
	"home":          CategoryShopping,
	"retail":        CategoryShopping,
	"pharmacy":      CategoryHealth,
	"medical":       CategoryHealth,
	"personal care": CategoryHealth,
	"beauty":        CategoryHealth,
	"fuel":          CategoryTransport,
	"gas":           CategoryTransport,
	"parking":       CategoryTransport,
	"taxi":          CategoryTransport,
	"travel":        CategoryTransport,
	"utilities":     CategoryServices,
	"subscription":  CategoryServices,
	"fees":          CategoryServices,
	"movies":        CategoryEntertainment,
	"games":         CategoryEntertainment,
	"tickets":       CategoryEntertainment,
	"discount":      CategoryOther,
	"misc":          CategoryOther,
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

// IsValid reports whether the category belongs to the taxonomy.
func (c Category) IsValid() bool {
	for _, candidate := range validCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// Categories returns the taxonomy in display order.
func Categories() []Category {
	out := make([]Category, len(validCategories))
	copy(out, validCategories)
	return out
}

// ParseCategory converts an exact taxonomy value into a Category.
func ParseCategory(value string) (Category, error) {
	for _, candidate := range validCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid category %q", value)
}

// NormalizeCategory maps free-form labels onto the taxonomy. Unknown labels
// become CategoryOther.
func NormalizeCategory(value string) Category {
	key := strings.ToLower(strings.TrimSpace(value))
	key = strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ", "&", " ").Replace(key)), " ")
	if c, err := ParseCategory(key); err == nil {
		return c
	}
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	if c, ok := categoryAliases[strings.TrimSuffix(key, "s")]; ok {
		return c
	}
	return CategoryOther
}
