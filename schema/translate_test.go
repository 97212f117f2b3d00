package schema_test

import (
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-blaze/target-bigquery/schema"
)

func strField(types ...string) *jsonschema.Schema {
	if len(types) == 1 {
		return &jsonschema.Schema{Type: types[0]}
	}

	return &jsonschema.Schema{Types: types}
}

func TestTranslateScalarTypes(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		field    *jsonschema.Schema
		expected schema.Column
	}{
		"plain string": {
			field:    strField("null", "string"),
			expected: schema.Column{Name: "f", Type: schema.TypeString, Mode: schema.ModeNullable},
		},
		"integer passes through uppercased": {
			field:    strField("null", "integer"),
			expected: schema.Column{Name: "f", Type: schema.TypeInteger, Mode: schema.ModeNullable},
		},
		"boolean passes through uppercased": {
			field:    strField("null", "boolean"),
			expected: schema.Column{Name: "f", Type: schema.TypeBoolean, Mode: schema.ModeNullable},
		},
		"number becomes float": {
			field:    strField("null", "number"),
			expected: schema.Column{Name: "f", Type: schema.TypeFloat, Mode: schema.ModeNullable},
		},
		"date-time string becomes timestamp": {
			field:    &jsonschema.Schema{Types: []string{"null", "string"}, Format: "date-time"},
			expected: schema.Column{Name: "f", Type: schema.TypeTimestamp, Mode: schema.ModeNullable},
		},
		"singular type is never required": {
			field:    strField("string"),
			expected: schema.Column{Name: "f", Type: schema.TypeString, Mode: schema.ModeNullable},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := schema.Translate(&jsonschema.Schema{
				Properties: map[string]*jsonschema.Schema{"f": tc.field},
			}, true)

			require.Len(t, got, 1)
			assert.Equal(t, tc.expected, got[0])
		})
	}
}

func TestTranslateRequiredMode(t *testing.T) {
	t.Parallel()

	fragment := &jsonschema.Schema{
		Properties: map[string]*jsonschema.Schema{
			"f": {Types: []string{"string"}},
		},
	}

	ignored := schema.Translate(fragment, true)
	require.Len(t, ignored, 1)
	assert.Equal(t, schema.ModeNullable, ignored[0].Mode)

	required := schema.Translate(fragment, false)
	require.Len(t, required, 1)
	assert.Equal(t, schema.ModeRequired, required[0].Mode)
}

func TestTranslateRequiredModeNullFirstStaysNullable(t *testing.T) {
	t.Parallel()

	fragment := &jsonschema.Schema{
		Properties: map[string]*jsonschema.Schema{
			"f": {Types: []string{"null", "string"}},
		},
	}

	got := schema.Translate(fragment, false)
	require.Len(t, got, 1)
	assert.Equal(t, schema.ModeNullable, got[0].Mode)
}

func TestTranslateAnyOf(t *testing.T) {
	t.Parallel()

	fragment := &jsonschema.Schema{
		Properties: map[string]*jsonschema.Schema{
			"f": {
				AnyOf: []*jsonschema.Schema{
					{Type: "null"},
					{Type: "integer"},
				},
			},
		},
	}

	got := schema.Translate(fragment, true)
	require.Len(t, got, 1)
	assert.Equal(t, schema.TypeInteger, got[0].Type)
}

func TestTranslateObjectRecursesAndSkipsEmptyChildren(t *testing.T) {
	t.Parallel()

	fragment := &jsonschema.Schema{
		Properties: map[string]*jsonschema.Schema{
			"addr": {
				Types: []string{"null", "object"},
				Properties: map[string]*jsonschema.Schema{
					"city":    strField("null", "string"),
					"useless": {},
				},
			},
		},
	}

	got := schema.Translate(fragment, true)
	require.Len(t, got, 1)

	addr := got[0]
	assert.Equal(t, schema.TypeRecord, addr.Type)
	require.Len(t, addr.NestedFields, 1)
	assert.Equal(t, "city", addr.NestedFields[0].Name)
}

func TestTranslateArrayOfScalars(t *testing.T) {
	t.Parallel()

	fragment := &jsonschema.Schema{
		Properties: map[string]*jsonschema.Schema{
			"tags": {
				Types: []string{"null", "array"},
				Items: strField("string"),
			},
		},
	}

	got := schema.Translate(fragment, true)
	require.Len(t, got, 1)
	assert.Equal(t, schema.TypeString, got[0].Type)
	assert.Equal(t, schema.ModeRepeated, got[0].Mode)
}

func TestTranslateArrayOfObjects(t *testing.T) {
	t.Parallel()

	fragment := &jsonschema.Schema{
		Properties: map[string]*jsonschema.Schema{
			"children": {
				Types: []string{"null", "array"},
				Items: &jsonschema.Schema{
					Types: []string{"object"},
					Properties: map[string]*jsonschema.Schema{
						"id": strField("null", "integer"),
					},
				},
			},
		},
	}

	got := schema.Translate(fragment, true)
	require.Len(t, got, 1)
	assert.Equal(t, schema.TypeRecord, got[0].Type)
	assert.Equal(t, schema.ModeRepeated, got[0].Mode)
	require.Len(t, got[0].NestedFields, 1)
	assert.Equal(t, "id", got[0].NestedFields[0].Name)
}

func TestTranslateSkipsEmptyAndNilFragments(t *testing.T) {
	t.Parallel()

	fragment := &jsonschema.Schema{
		Properties: map[string]*jsonschema.Schema{
			"kept":   strField("null", "string"),
			"empty":  {},
			"absent": nil,
		},
	}

	got := schema.Translate(fragment, true)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Name)
}

func TestTranslateNilAndEmptyFragmentsReturnNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, schema.Translate(nil, true))
	assert.Nil(t, schema.Translate(&jsonschema.Schema{}, true))
}

func TestColumnListEqualIgnoresOrder(t *testing.T) {
	t.Parallel()

	a := schema.ColumnList{
		{Name: "x", Type: schema.TypeString, Mode: schema.ModeNullable},
		{Name: "y", Type: schema.TypeInteger, Mode: schema.ModeNullable},
	}
	b := schema.ColumnList{
		{Name: "y", Type: schema.TypeInteger, Mode: schema.ModeNullable},
		{Name: "x", Type: schema.TypeString, Mode: schema.ModeNullable},
	}

	assert.True(t, a.Equal(b))
}

func TestColumnListEqualDetectsTypeChange(t *testing.T) {
	t.Parallel()

	a := schema.ColumnList{{Name: "x", Type: schema.TypeString, Mode: schema.ModeNullable}}
	b := schema.ColumnList{{Name: "x", Type: schema.TypeInteger, Mode: schema.ModeNullable}}

	assert.False(t, a.Equal(b))
}

func TestTableName(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input    string
		expected string
	}{
		"already safe":       {input: "orders", expected: "orders"},
		"upper cased":        {input: "Orders", expected: "orders"},
		"dashes and dots":    {input: "my-stream.v2", expected: "my_stream_v2"},
		"leading digit kept": {input: "2024_sales", expected: "2024_sales"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, schema.TableName(tc.input))
		})
	}
}
