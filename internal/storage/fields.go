package storage

import (
	"database/sql"

	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
)

// fieldColumns splits a field into its kind name, numeric value and raw text.
// value and raw are nil unless the field holds that variant.
func fieldColumns[T int | float64](f listing.Field[T]) (kind string, value, raw any) {
	if v, ok := f.Value(); ok {
		value = v
	}
	if t, ok := f.Text(); ok {
		raw = t
	}
	return f.Kind().String(), value, raw
}

// fieldFromColumns rebuilds a field stored by fieldColumns
func fieldFromColumns[T int | float64](kind string, value sql.Null[T], raw sql.NullString) listing.Field[T] {
	switch kind {
	case listing.Numeric.String():
		if value.Valid {
			return listing.Number(value.V)
		}
	case listing.RawText.String():
		return listing.Raw[T](raw.String)
	case listing.ExplicitlyUnset.String():
		return listing.Unset[T]()
	}
	return listing.Field[T]{}
}
