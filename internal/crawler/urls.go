package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var placeholders = []string{"{category}", "{property_type}"}

// PageURLPrefix fills the {category} and {property_type} placeholders of a
// results URL template. The page number is appended to the returned prefix.
func PageURLPrefix(template, category, searchType string) (string, error) {
	prefix := strings.NewReplacer(
		placeholders[0], category,
		placeholders[1], searchType,
	).Replace(template)

	if strings.ContainsAny(prefix, "{}") {
		return "", fmt.Errorf("unresolved placeholder in base URL %q, expected only %s", template, strings.Join(placeholders, " and "))
	}

	u, err := url.Parse(PageURL(prefix, 1))
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", template, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("base URL %q must be absolute http or https", template)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("base URL %q has no host", template)
	}

	return prefix, nil
}

// PageURL returns the address of one results page
func PageURL(prefix string, page int) string {
	return prefix + strconv.Itoa(page)
}
