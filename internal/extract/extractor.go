// Package extract turns the markup of one listing into a PropertyListing.
package extract

import (
	"regexp"

	"github.com/alvmarrod/dfimoveis-crawler/internal/dom"
	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
)

// Structural queries for the listing site layout
var (
	ContainerQuery   = dom.Query{Tag: "div", Attrs: map[string]string{"class": "new-info"}}
	DescriptionQuery = dom.Query{Tag: "h2", Attrs: map[string]string{"class": "new-title phrase"}}
	TypeLabelQuery   = dom.Query{Tag: "h3", Attrs: map[string]string{"class": "new-desc phrase"}}
	PriceQuery       = dom.Query{Tag: "span", Within: &dom.Query{Tag: "div", Attrs: map[string]string{"class": "new-price"}}}
	SizeQuery        = dom.Query{Tag: "span", Text: regexp.MustCompile(`m²`)}
	BedroomsQuery    = dom.Query{Tag: "span", Text: regexp.MustCompile(`(?i)\bquartos?\b`)}
	ParkingQuery     = dom.Query{Tag: "span", Text: regexp.MustCompile(`(?i)\bvagas?\b`)}
)

// Source identifies where a fragment came from
type Source struct {
	SearchType string
	Page       int
	Position   int
}

// Extract builds a listing from one fragment. Every field is extracted
// independently; a missing or malformed field never aborts the record.
// src.SearchType doubles as the property type when the label has no known type.
func Extract(f dom.Fragment, src Source) listing.PropertyListing {
	l := listing.PropertyListing{
		PropertyType: src.SearchType,
		SearchType:   src.SearchType,
		Page:         src.Page,
		Position:     src.Position,
	}

	if text, ok := f.First(DescriptionQuery); ok {
		l.Description = &text
	}
	if label, ok := f.First(TypeLabelQuery); ok {
		l.PropertyType = listing.ResolveType(label, src.SearchType)
	}
	if text, ok := f.First(PriceQuery); ok {
		l.Price = ParsePrice(text)
	}
	if text, ok := f.First(SizeQuery); ok {
		l.Size = ParseSize(text)
	}
	if text, ok := f.First(BedroomsQuery); ok {
		l.Bedrooms = ParseCount(text)
	}
	if text, ok := f.First(ParkingQuery); ok {
		l.ParkingSpaces = ParseCount(text)
	}

	return l
}

// Page extracts every listing container of a parsed results page
func Page(doc *dom.Document, searchType string, page int) []listing.PropertyListing {
	fragments := doc.Containers(ContainerQuery)
	listings := make([]listing.PropertyListing, 0, len(fragments))
	for i, f := range fragments {
		listings = append(listings, Extract(f, Source{SearchType: searchType, Page: page, Position: i}))
	}
	return listings
}
