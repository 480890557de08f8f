// Package dom evaluates structural queries against listing pages.
package dom

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Query describes an element to look up: a tag, attribute filters and an
// optional pattern the element's trimmed text must match.
type Query struct {
	Tag   string
	Attrs map[string]string
	Text  *regexp.Regexp

	// Within restricts matches to descendants of another query's matches
	Within *Query
}

// Selector renders the structural part of the query as a CSS selector.
// The "class" attribute is split on whitespace and every class is required.
func (q Query) Selector() string {
	var b strings.Builder
	if q.Within != nil {
		b.WriteString(q.Within.Selector())
		b.WriteString(" ")
	}
	b.WriteString(q.Tag)

	keys := make([]string, 0, len(q.Attrs))
	for k := range q.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := q.Attrs[k]
		switch k {
		case "class":
			for _, class := range strings.Fields(v) {
				b.WriteString(".")
				b.WriteString(class)
			}
		case "id":
			b.WriteString("#")
			b.WriteString(v)
		default:
			fmt.Fprintf(&b, "[%s=%q]", k, v)
		}
	}
	return b.String()
}

// Document is a parsed results page
type Document struct {
	doc *goquery.Document
}

// Parse builds a Document from a raw HTML body
func Parse(body []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Containers returns one Fragment per element matching q, in document order
func (d *Document) Containers(q Query) []Fragment {
	var fragments []Fragment
	d.doc.Find(q.Selector()).Each(func(_ int, s *goquery.Selection) {
		if q.Text != nil && !q.Text.MatchString(strings.TrimSpace(s.Text())) {
			return
		}
		fragments = append(fragments, &selectionFragment{sel: s})
	})
	return fragments
}

// Fragment is the markup of a single listing
type Fragment interface {
	// First returns the trimmed text of the first descendant matching q.
	// When q has a Text pattern, only elements without child elements are
	// considered, so a wrapper never matches on its children's text.
	First(q Query) (string, bool)
}

type selectionFragment struct {
	sel *goquery.Selection
}

func (f *selectionFragment) First(q Query) (string, bool) {
	var (
		text  string
		found bool
	)
	f.sel.Find(q.Selector()).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if q.Text != nil && s.Children().Length() > 0 {
			return true
		}
		t := strings.TrimSpace(s.Text())
		if q.Text != nil && !q.Text.MatchString(t) {
			return true
		}
		text, found = t, true
		return false
	})
	return text, found
}
