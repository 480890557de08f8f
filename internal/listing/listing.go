// Package listing holds the record produced for every property found on a results page.
package listing

import (
	"fmt"
	"strings"
)

// Category selects the contract type of a crawl (sale or rent)
type Category string

const (
	// Sale lists properties for sale
	Sale Category = "venda"
	// Rent lists properties for rent
	Rent Category = "aluguel"
)

// ParseCategory validates a category name
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case Sale:
		return Sale, nil
	case Rent:
		return Rent, nil
	default:
		return "", fmt.Errorf("unknown category %q (want %q or %q)", s, Sale, Rent)
	}
}

// DefaultSearchType is the catch-all property-type segment of the listing site
const DefaultSearchType = "imoveis"

// PropertyTypes are the known property categories of the listing site.
// Order matters: resolution picks the first entry contained in the label.
var PropertyTypes = []string{
	"apartamento",
	"casa",
	"casa-condominio",
	"galpao",
	"garagem",
	"hotel-flat",
	"kitnet",
	"loja",
	"lote",
	"loteamento",
	"ponto-comercial",
	"predio",
	"rural",
	"sala",
}

// IsSearchType reports whether s is a property-type segment the site accepts
func IsSearchType(s string) bool {
	if s == DefaultSearchType {
		return true
	}
	for _, t := range PropertyTypes {
		if t == s {
			return true
		}
	}
	return false
}

// ResolveType matches a free-text type label against PropertyTypes.
// Returns fallback when the label is empty or nothing matches.
func ResolveType(label, fallback string) string {
	label = strings.ToLower(label)
	if label == "" {
		return fallback
	}
	for _, t := range PropertyTypes {
		if strings.Contains(label, t) {
			return t
		}
	}
	return fallback
}

// PropertyListing is one normalized listing. Built once by the extractor and never mutated.
type PropertyListing struct {
	Description   *string
	Address       string
	PropertyType  string
	Price         Field[float64]
	Size          Field[float64]
	Bedrooms      Field[int]
	Bathrooms     string
	ParkingSpaces Field[int]

	// Provenance: which search, page and slot on that page produced the record
	SearchType string
	Page       int
	Position   int
}

// Key identifies a listing within one crawl so sinks can drop repeats
func (l PropertyListing) Key() string {
	return fmt.Sprintf("%s/%d/%d", l.SearchType, l.Page, l.Position)
}

// DescriptionText returns the description or "" when absent
func (l PropertyListing) DescriptionText() string {
	if l.Description == nil {
		return ""
	}
	return *l.Description
}
