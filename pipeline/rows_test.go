package pipeline_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/team-blaze/target-bigquery/pipeline"
)

func TestRowID(t *testing.T) {
	t.Parallel()

	row := map[string]any{"id": json.Number("7"), "region": "eu"}
	assert.Equal(t, "7-eu", pipeline.RowID(row, []string{"id", "region"}))
}

func TestRowIDSingleKey(t *testing.T) {
	t.Parallel()

	row := map[string]any{"id": 42}
	assert.Equal(t, "42", pipeline.RowID(row, []string{"id"}))
}

func TestFixRowCoercesDecimals(t *testing.T) {
	t.Parallel()

	row := map[string]any{
		"price": json.Number("19.999999999999999999"),
		"name":  "widget",
	}

	fixed := pipeline.FixRow(row)
	assert.IsType(t, float64(0), fixed["price"])
	assert.Equal(t, "widget", fixed["name"])
}

func TestFixRowLeavesNonNumbersAlone(t *testing.T) {
	t.Parallel()

	row := map[string]any{"tags": []any{"a", "b"}}
	fixed := pipeline.FixRow(row)
	assert.Equal(t, []any{"a", "b"}, fixed["tags"])
}

func TestEncodedSize(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{{"a": 1}, {"b": 2}}
	assert.Positive(t, pipeline.EncodedSize(rows))
}
