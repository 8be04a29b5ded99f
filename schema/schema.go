package schema

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/cespare/xxhash/v2"
)

const keywordAnalyzer = "keyword"

// Schema is the ordered, immutable field list for an index, plus the name
// of the primary-key field (§3 Schema). Two IndexContexts carrying
// schemas that disagree on any field, once an index exists on disk, is a
// fatal SchemaMismatch at open time (enforced by the index package).
type Schema struct {
	fields     []Field
	byName     map[string]int
	primaryKey string
}

// New builds a Schema from an ordered field list and a primary-key field
// name. The primary-key field must exist in fields and must not be a
// FastFuzzy field (primary keys are never fuzzy-searched).
func New(primaryKey string, fields ...Field) (*Schema, error) {
	if primaryKey == "" {
		return nil, fmt.Errorf("schema: primary key field name must not be empty")
	}

	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		if _, exists := byName[f.Name]; exists {
			return nil, fmt.Errorf("schema: duplicate field %q", f.Name)
		}
		byName[f.Name] = i
	}

	pkIdx, ok := byName[primaryKey]
	if !ok {
		return nil, fmt.Errorf("schema: primary key field %q is not declared", primaryKey)
	}
	if fields[pkIdx].FastFuzzy {
		return nil, fmt.Errorf("schema: primary key field %q must not be FastFuzzy", primaryKey)
	}

	return &Schema{
		fields:     append([]Field(nil), fields...),
		byName:     byName,
		primaryKey: primaryKey,
	}, nil
}

// Fields returns the ordered field list.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[idx], true
}

// PrimaryKey returns the name of the primary-key field.
func (s *Schema) PrimaryKey() string {
	return s.primaryKey
}

// SearchFields returns the names of every field eligible for default
// full-text search (indexed text fields).
func (s *Schema) SearchFields() []string {
	var out []string
	for _, f := range s.fields {
		if f.IsSearchable() {
			out = append(out, f.Name)
		}
	}
	return out
}

// ShadowFieldName derives the fast-fuzzy shadow field name for a given
// field, per §4.4: `_{stable_hash(field_name)}`.
func ShadowFieldName(fieldName string) string {
	return fmt.Sprintf("_%x", xxhash.Sum64String(fieldName))
}

// ShadowField returns the shadow field declaration for f, if f is a text
// field with FastFuzzy enabled. The shadow field is itself a plain,
// tokenized, indexed text field with no further fuzzy processing.
func ShadowField(f Field) (Field, bool) {
	if f.Type != FieldText || !f.FastFuzzy {
		return Field{}, false
	}
	return Field{
		Name:      ShadowFieldName(f.Name),
		Type:      FieldText,
		Indexed:   true,
		Stored:    false,
		Tokenized: true,
	}, true
}

// Equal reports whether two schemas declare the same fields in the same
// order with the same flags and the same primary key. The on-disk
// SchemaMismatch check in the index package compares Fingerprint digests
// instead.
func (s *Schema) Equal(other *Schema) bool {
	if other == nil || len(s.fields) != len(other.fields) || s.primaryKey != other.primaryKey {
		return false
	}
	for i, f := range s.fields {
		if f != other.fields[i] {
			return false
		}
	}
	return true
}

// ToBleveMapping builds the bleve index mapping equivalent to this
// schema, including derived shadow fields for any fast-fuzzy field.
func (s *Schema) ToBleveMapping() *mapping.IndexMappingImpl {
	doc := bleve.NewDocumentMapping()

	for _, f := range s.fields {
		doc.AddFieldMappingsAt(f.Name, fieldMapping(f))

		if shadow, ok := ShadowField(f); ok {
			doc.AddFieldMappingsAt(shadow.Name, fieldMapping(shadow))
		}
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

func fieldMapping(f Field) *mapping.FieldMapping {
	var fm *mapping.FieldMapping
	switch f.Type {
	case FieldText:
		fm = bleve.NewTextFieldMapping()
	case FieldDate:
		fm = bleve.NewDateTimeFieldMapping()
	case FieldInteger, FieldFloat:
		fm = bleve.NewNumericFieldMapping()
	case FieldBytes:
		fm = bleve.NewTextFieldMapping()
		fm.Analyzer = keywordAnalyzer
	case FieldFacet:
		fm = bleve.NewTextFieldMapping()
		fm.Analyzer = keywordAnalyzer
		fm.IncludeInAll = false
	}

	fm.Index = f.Indexed
	fm.Store = f.Stored
	fm.IncludeTermVectors = f.Tokenized

	return fm
}
