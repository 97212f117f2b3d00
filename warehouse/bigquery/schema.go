package bigquery

import (
	gbq "cloud.google.com/go/bigquery"

	"github.com/team-blaze/target-bigquery/schema"
)

// toBigQuerySchema converts our warehouse column model into the shape
// the client library wants. schema.Type values ("STRING", "INTEGER", ...)
// are exactly the [gbq.FieldType] string constants, so the conversion is
// a straight walk, not a lookup table.
func toBigQuerySchema(cols schema.ColumnList) gbq.Schema {
	out := make(gbq.Schema, 0, len(cols))
	for _, c := range cols {
		out = append(out, toFieldSchema(c))
	}

	return out
}

func toFieldSchema(c schema.Column) *gbq.FieldSchema {
	field := &gbq.FieldSchema{
		Name:     c.Name,
		Type:     gbq.FieldType(c.Type),
		Repeated: c.Mode == schema.ModeRepeated,
		Required: c.Mode == schema.ModeRequired,
	}

	if len(c.NestedFields) > 0 {
		field.Schema = toBigQuerySchema(c.NestedFields)
	}

	return field
}

// fromBigQuerySchema is the inverse conversion, used when resolving an
// already-existing table's metadata into our column model so it can be
// compared against a freshly translated schema.
func fromBigQuerySchema(s gbq.Schema) schema.ColumnList {
	out := make(schema.ColumnList, 0, len(s))
	for _, field := range s {
		out = append(out, fromFieldSchema(field))
	}

	return out
}

func fromFieldSchema(field *gbq.FieldSchema) schema.Column {
	col := schema.Column{
		Name: field.Name,
		Type: schema.Type(field.Type),
		Mode: schema.ModeNullable,
	}

	switch {
	case field.Repeated:
		col.Mode = schema.ModeRepeated
	case field.Required:
		col.Mode = schema.ModeRequired
	}

	if len(field.Schema) > 0 {
		col.NestedFields = fromBigQuerySchema(field.Schema)
	}

	return col
}
