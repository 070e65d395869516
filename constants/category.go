package constants

import (
	"strings"
)

type Category string

const (
	Food          Category = "Food"
	Office        Category = "Office"
	Travel        Category = "Travel"
	Equipment     Category = "Equipment"
	Entertainment Category = "Entertainment"
	Fuel          Category = "Fuel"
	Healthcare    Category = "Healthcare"
	Other         Category = "Other"

	// Uncategorized is assigned when the model's label maps to nothing in the taxonomy.
	Uncategorized Category = "Uncategorized"
)

var allCategories = []Category{
	Food,
	Office,
	Travel,
	Equipment,
	Entertainment,
	Fuel,
	Healthcare,
	Other,
}

// synonyms maps free-text labels models tend to produce onto the taxonomy.
var synonyms = map[string]Category{
	"meals":      Food,
	"meal":       Food,
	"restaurant": Food,
	"groceries":  Food,
	"grocery":    Food,
	"dining":     Food,
	"coffee":     Food,

	"office supplies": Office,
	"stationery":      Office,
	"supplies":        Office,

	"travel expenses": Travel,
	"transport":       Travel,
	"transportation":  Travel,
	"parking":         Travel,
	"taxi":            Travel,
	"uber":            Travel,
	"lyft":            Travel,
	"hotel":           Travel,
	"airline":         Travel,
	"lodging":         Travel,

	"office equipment": Equipment,
	"hardware":         Equipment,
	"electronics":      Equipment,
	"software":         Equipment,

	"leisure": Entertainment,

	"gas":      Fuel,
	"petrol":   Fuel,
	"gasoline": Fuel,
	"diesel":   Fuel,

	"pharmacy": Healthcare,
	"medical":  Healthcare,
	"health":   Healthcare,

	"misc":          Other,
	"miscellaneous": Other,
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps a label onto the taxonomy. The bool reports whether a match was found;
// unmatched labels yield Uncategorized.
func Canonicalize(input string) (Category, bool) {
	normalized := strings.Join(strings.Fields(strings.ToLower(input)), " ")
	if normalized == "" {
		return Uncategorized, false
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}
	if normalized == strings.ToLower(string(Uncategorized)) {
		return Uncategorized, true
	}

	return Uncategorized, false
}
