package schema

import "strings"

// columnPrefix disambiguates schema field names from reserved CQL column
// names when mapping a Schema onto the durable store's document table,
// mirroring tables.rs's format_column helper.
const columnPrefix = "f_"

// ColumnName maps a schema field name to its durable-store column name.
func ColumnName(fieldName string) string {
	return columnPrefix + fieldName
}

// FromColumnName is the inverse of ColumnName.
func FromColumnName(column string) string {
	return strings.TrimPrefix(column, columnPrefix)
}
