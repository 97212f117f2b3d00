package schema

import (
	"maps"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// FormatDateTime is the JSON-schema string format that promotes a STRING
// column to TIMESTAMP.
const FormatDateTime = "date-time"

// Translate deterministically maps a JSON-schema fragment's properties to
// a warehouse column list, ordered by property name. ignoreRequired, when
// true, keeps every column from being REQUIRED regardless of what the
// source type list says (array columns stay REPEATED) — the hybrid
// engine always passes true so that schema evolution never fails on a
// field that used to be required and no longer is.
//
// Translate is total: it never returns an error. A fragment it cannot
// make sense of degenerates to a NULLABLE STRING column, the same
// fallback the source rules use for any type tag they don't special-case.
func Translate(fragment *jsonschema.Schema, ignoreRequired bool) ColumnList {
	if fragment == nil || len(fragment.Properties) == 0 {
		return nil
	}

	cols := make(ColumnList, 0, len(fragment.Properties))
	for _, name := range slices.Sorted(maps.Keys(fragment.Properties)) {
		field := fragment.Properties[name]
		if isEmptyFragment(field) {
			continue
		}

		cols = append(cols, translateField(name, field, ignoreRequired))
	}

	return cols
}

// isEmptyFragment reports whether field carries no usable type
// information — the "falsy" child fragments that get skipped rather
// than emitted as columns.
func isEmptyFragment(field *jsonschema.Schema) bool {
	if field == nil {
		return true
	}

	return field.Type == "" && len(field.Types) == 0 && len(field.AnyOf) == 0
}

// translateField applies the seven schema-translator rules to a single
// named property and returns the resulting column.
func translateField(name string, field *jsonschema.Schema, ignoreRequired bool) Column {
	field = resolveAnyOf(field)

	tag, mode := resolveTypeTag(field, ignoreRequired)

	col := Column{Name: name, Mode: mode}

	switch tag {
	case "object":
		col.Type = TypeRecord
		col.NestedFields = Translate(field, ignoreRequired)
	case "array":
		col.Mode = ModeRepeated
		elemTag, nested := resolveArrayElement(field, ignoreRequired)
		if elemTag == "object" {
			col.Type = TypeRecord
			col.NestedFields = nested
		} else {
			col.Type = concreteType(elemTag, field)
		}
	default:
		col.Type = concreteType(tag, field)
	}

	return col
}

// resolveAnyOf implements rule 1: when a field carries no type of its own
// but offers anyOf branches, the first non-null branch stands in for it.
func resolveAnyOf(field *jsonschema.Schema) *jsonschema.Schema {
	if field.Type != "" || len(field.Types) > 0 || len(field.AnyOf) == 0 {
		return field
	}

	for _, branch := range field.AnyOf {
		if branch.Type != "null" {
			return branch
		}
	}

	return field
}

// resolveTypeTag implements rule 2: a list-valued type determines both
// the concrete type tag (its last entry) and the REQUIRED/NULLABLE mode
// (from whether the first entry is "null"); a singular type tag carries
// no nullability information of its own and is always NULLABLE.
func resolveTypeTag(field *jsonschema.Schema, ignoreRequired bool) (tag string, mode Mode) {
	if len(field.Types) > 0 {
		first, last := field.Types[0], field.Types[len(field.Types)-1]
		if first != "null" && !ignoreRequired {
			return last, ModeRequired
		}

		return last, ModeNullable
	}

	return field.Type, ModeNullable
}

// resolveArrayElement implements rule 4: the element type comes from
// items.type (flattened to its last entry if items.type is itself a
// list), and an object element recurses into items for nested fields.
func resolveArrayElement(field *jsonschema.Schema, ignoreRequired bool) (tag string, nested ColumnList) {
	items := field.Items
	if items == nil {
		return "string", nil
	}

	elemTag := items.Type
	if len(items.Types) > 0 {
		elemTag = items.Types[len(items.Types)-1]
	}

	if elemTag == "" {
		elemTag = "string"
	}

	if elemTag == "object" {
		return elemTag, Translate(items, ignoreRequired)
	}

	return elemTag, nil
}

// concreteType implements rules 5-7: a date-time-formatted string becomes
// TIMESTAMP, a number becomes FLOAT, "string" becomes STRING, "integer"
// becomes INTEGER, and "boolean" becomes BOOLEAN. An empty or otherwise
// unrecognized tag falls back to STRING.
func concreteType(tag string, field *jsonschema.Schema) Type {
	switch tag {
	case "string":
		if field != nil && field.Format == FormatDateTime {
			return TypeTimestamp
		}

		return TypeString
	case "number":
		return TypeFloat
	case "integer":
		return TypeInteger
	case "boolean":
		return TypeBoolean
	default:
		return TypeString
	}
}

// TableName sanitizes a stream name into a warehouse-safe table
// identifier: lower-cased, with every character outside [a-zA-Z0-9_]
// replaced by "_".
func TableName(stream string) string {
	var b strings.Builder
	b.Grow(len(stream))

	for _, r := range strings.ToLower(stream) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	return b.String()
}
