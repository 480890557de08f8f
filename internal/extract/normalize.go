package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
)

var (
	// Brazilian formatted number: 1.234.567,89 / 64,5 / 120
	numberPattern  = regexp.MustCompile(`\d+(?:\.\d+)*(?:,\d+)?`)
	integerPattern = regexp.MustCompile(`\d+`)
	// "64 a 219 m²", "2 até 3 quartos"
	rangeDelimiter = regexp.MustCompile(`(?i)\s+(?:a|até)\s+`)
	onRequest      = regexp.MustCompile(`(?i)sob\s+consulta`)
)

// ParsePrice normalizes a price label. "Sob Consulta" yields an explicit unset,
// a number is parsed with Brazilian separators, anything else keeps its text.
func ParsePrice(text string) listing.Field[float64] {
	text = strings.TrimSpace(text)
	if onRequest.MatchString(text) {
		return listing.Unset[float64]()
	}
	return parseDecimal(text, text)
}

// ParseSize normalizes an area label. Ranges resolve to their lower bound.
func ParseSize(text string) listing.Field[float64] {
	text = strings.TrimSpace(text)
	return parseDecimal(lowerBound(text), text)
}

// ParseCount normalizes a bedroom or parking label. Ranges resolve to their lower bound.
func ParseCount(text string) listing.Field[int] {
	text = strings.TrimSpace(text)
	m := integerPattern.FindString(lowerBound(text))
	if m == "" {
		return listing.Raw[int](text)
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return listing.Raw[int](text)
	}
	return listing.Number(n)
}

// parseDecimal parses the first number in s, falling back to raw
func parseDecimal(s, raw string) listing.Field[float64] {
	m := numberPattern.FindString(s)
	if m == "" {
		return listing.Raw[float64](raw)
	}
	v, err := strconv.ParseFloat(normalizeNumber(m), 64)
	if err != nil {
		return listing.Raw[float64](raw)
	}
	return listing.Number(v)
}

// normalizeNumber converts Brazilian notation to strconv notation.
// Periods are always thousands separators and the comma is the decimal mark,
// for prices and areas alike: "1.200" is 1200 and "1.5" is 15.
func normalizeNumber(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
}

// lowerBound keeps the text before a range delimiter
func lowerBound(s string) string {
	if loc := rangeDelimiter.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[:loc[0]])
	}
	return s
}
