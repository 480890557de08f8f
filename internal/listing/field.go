package listing

import (
	"fmt"
	"strconv"
)

// Kind identifies which variant a Field holds
type Kind int

const (
	// Absent means the source element was not found
	Absent Kind = iota
	// Numeric means the text parsed into a number
	Numeric
	// RawText means the text was found but did not parse; the trimmed text is kept
	RawText
	// ExplicitlyUnset means the source states there is no value (e.g. "Sob Consulta")
	ExplicitlyUnset
)

// String returns the variant name
func (k Kind) String() string {
	switch k {
	case Absent:
		return "absent"
	case Numeric:
		return "numeric"
	case RawText:
		return "raw_text"
	case ExplicitlyUnset:
		return "unset"
	default:
		return "unknown"
	}
}

// Field is a best-effort parsed value: a number, the raw text it came from,
// an explicit "no value" marker, or nothing at all.
// The zero value is Absent.
type Field[T int | float64] struct {
	kind  Kind
	value T
	raw   string
}

// Number builds a Numeric field
func Number[T int | float64](v T) Field[T] {
	return Field[T]{kind: Numeric, value: v}
}

// Raw builds a RawText field holding the unparsed text
func Raw[T int | float64](text string) Field[T] {
	return Field[T]{kind: RawText, raw: text}
}

// Unset builds an ExplicitlyUnset field
func Unset[T int | float64]() Field[T] {
	return Field[T]{kind: ExplicitlyUnset}
}

// Kind returns the variant held by the field
func (f Field[T]) Kind() Kind {
	return f.kind
}

// Value returns the number and true when the field is Numeric
func (f Field[T]) Value() (T, bool) {
	return f.value, f.kind == Numeric
}

// Text returns the preserved text and true when the field is RawText
func (f Field[T]) Text() (string, bool) {
	return f.raw, f.kind == RawText
}

// IsAbsent reports whether the source element was missing
func (f Field[T]) IsAbsent() bool {
	return f.kind == Absent
}

// String renders the field the way the CSV sink writes it:
// numbers in plain notation, raw text verbatim, "" for unset and absent.
func (f Field[T]) String() string {
	switch f.kind {
	case Numeric:
		switch v := any(f.value).(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return fmt.Sprint(v)
		}
	case RawText:
		return f.raw
	default:
		return ""
	}
}
