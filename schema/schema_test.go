package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New("id",
		Field{Name: "id", Type: FieldText, Indexed: true, Stored: true},
		Field{Name: "title", Type: FieldText, Indexed: true, Stored: true, Tokenized: true, Boost: 2, FastFuzzy: true},
		Field{Name: "body", Type: FieldText, Indexed: true, Stored: true, Tokenized: true},
	)
	require.NoError(t, err)
	return s
}

func TestNewRejectsMissingPrimaryKey(t *testing.T) {
	_, err := New("missing", Field{Name: "id", Type: FieldText})
	assert.Error(t, err)
}

func TestNewRejectsDuplicateFields(t *testing.T) {
	_, err := New("id", Field{Name: "id", Type: FieldText}, Field{Name: "id", Type: FieldInteger})
	assert.Error(t, err)
}

func TestSearchFieldsOnlyIndexedText(t *testing.T) {
	s := testSchema(t)
	assert.ElementsMatch(t, []string{"id", "title", "body"}, s.SearchFields())
}

func TestShadowFieldOnlyForFastFuzzyText(t *testing.T) {
	s := testSchema(t)

	title, _ := s.Field("title")
	shadow, ok := ShadowField(title)
	require.True(t, ok)
	assert.Equal(t, ShadowFieldName("title"), shadow.Name)
	assert.True(t, shadow.Indexed)
	assert.False(t, shadow.Stored)

	body, _ := s.Field("body")
	_, ok = ShadowField(body)
	assert.False(t, ok)
}

func TestEqualDetectsFieldDrift(t *testing.T) {
	a := testSchema(t)
	b := testSchema(t)
	assert.True(t, a.Equal(b))

	c, err := New("id", Field{Name: "id", Type: FieldText, Indexed: true})
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}

func TestToBleveMappingIncludesShadowFields(t *testing.T) {
	s := testSchema(t)
	m := s.ToBleveMapping()
	require.NotNil(t, m.DefaultMapping)

	_, ok := m.DefaultMapping.Properties[ShadowFieldName("title")]
	assert.True(t, ok, "expected shadow field mapping for fast-fuzzy field")

	_, ok = m.DefaultMapping.Properties[ShadowFieldName("body")]
	assert.False(t, ok, "body has no fast-fuzzy shadow field")
}
