package schema

// Type is a warehouse column type.
type Type string

// Warehouse column types.
const (
	TypeString    Type = "STRING"
	TypeInteger   Type = "INTEGER"
	TypeFloat     Type = "FLOAT"
	TypeBoolean   Type = "BOOLEAN"
	TypeTimestamp Type = "TIMESTAMP"
	TypeRecord    Type = "RECORD"
)

// Mode is a warehouse column mode.
type Mode string

// Warehouse column modes.
const (
	ModeNullable Mode = "NULLABLE"
	ModeRequired Mode = "REQUIRED"
	ModeRepeated Mode = "REPEATED"
)

// Column is a single warehouse column: a name, type, mode, and — for
// [TypeRecord] columns — the recursively-translated nested fields.
//
// Description is always empty in this version; the field exists so a
// future annotation pass has somewhere to put one without reshaping the
// type.
type Column struct {
	Name          string   `json:"name"`
	Type          Type     `json:"type"`
	Mode          Mode     `json:"mode"`
	Description   string   `json:"description,omitempty"`
	NestedFields  []Column `json:"fields,omitempty"`
}

// Equal reports whether two columns are identical, including nested
// fields, ignoring field order among NestedFields. Used by [Translate]'s
// callers to decide whether a table needs reconciliation.
func (c Column) Equal(other Column) bool {
	if c.Name != other.Name || c.Type != other.Type || c.Mode != other.Mode {
		return false
	}

	if len(c.NestedFields) != len(other.NestedFields) {
		return false
	}

	byName := make(map[string]Column, len(other.NestedFields))
	for _, f := range other.NestedFields {
		byName[f.Name] = f
	}

	for _, f := range c.NestedFields {
		match, ok := byName[f.Name]
		if !ok || !f.Equal(match) {
			return false
		}
	}

	return true
}

// ColumnList is an ordered set of warehouse columns, as produced by
// [Translate] and as stored on a resolved table handle.
type ColumnList []Column

// Equal reports whether two column lists describe the same set of
// columns, regardless of order — table reconciliation cares about column
// identity, not positional layout.
func (cl ColumnList) Equal(other ColumnList) bool {
	if len(cl) != len(other) {
		return false
	}

	byName := make(map[string]Column, len(other))
	for _, c := range other {
		byName[c.Name] = c
	}

	for _, c := range cl {
		match, ok := byName[c.Name]
		if !ok || !c.Equal(match) {
			return false
		}
	}

	return true
}
