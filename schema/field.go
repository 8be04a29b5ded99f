// Package schema describes the shape of documents stored in an index: the
// ordered field list, their types and indexing flags, and the primary-key
// invariant. A schema is immutable once an index has been created from it.
package schema

import "fmt"

// FieldType is the type of value a field holds.
type FieldType int

const (
	FieldText FieldType = iota
	FieldInteger
	FieldFloat
	FieldDate
	FieldBytes
	FieldFacet
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldInteger:
		return "integer"
	case FieldFloat:
		return "float"
	case FieldDate:
		return "date"
	case FieldBytes:
		return "bytes"
	case FieldFacet:
		return "facet"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Field describes a single named field in a Schema.
type Field struct {
	Name string
	Type FieldType

	// Indexing flags.
	Indexed   bool
	Stored    bool
	Tokenized bool
	Fast      bool

	// Boost is the per-field boost factor applied by the query builder.
	Boost float64

	// FastFuzzy marks a text field as eligible for the fast-fuzzy
	// preprocessor (§4.4). Only meaningful when Type == FieldText.
	FastFuzzy bool
}

// IsSearchable reports whether the field can be targeted by the query
// builder's default search_fields set.
func (f Field) IsSearchable() bool {
	return f.Indexed && f.Type == FieldText
}
