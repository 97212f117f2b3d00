package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RowID computes the dedup token the warehouse uses to avoid double-
// inserting a row replayed after a retry: the stringified values of
// keyProperties, in order, joined with "-".
func RowID(row map[string]any, keyProperties []string) string {
	parts := make([]string, len(keyProperties))
	for i, key := range keyProperties {
		parts[i] = fmt.Sprint(row[key])
	}

	return strings.Join(parts, "-")
}

// FixRow returns a copy of row with every top-level json.Number value
// coerced to float64 (a value that does not parse as a float64, such as
// one outside its range, is kept as its decimal string) — the
// warehouse's streaming-insert transport
// accepts only double-precision floats, not the arbitrary-precision
// decimals the upstream protocol produces. The coercion is lossy and
// intentional: it happens here, explicitly, rather than being left to
// whatever the JSON encoder on the way out happens to do with a
// json.Number it doesn't recognize.
func FixRow(row map[string]any) map[string]any {
	fixed := make(map[string]any, len(row))

	for k, v := range row {
		if num, ok := v.(json.Number); ok {
			f, err := strconv.ParseFloat(num.String(), 64)
			if err != nil {
				fixed[k] = num.String()

				continue
			}

			fixed[k] = f

			continue
		}

		fixed[k] = v
	}

	return fixed
}

// EncodedSize returns the length of row's JSON encoding, used to
// pre-emptively detect an oversize batch before the warehouse ever sees
// it (see [github.com/team-blaze/target-bigquery/warehouse.MaxInsertPayloadBytes]).
func EncodedSize(rows []map[string]any) int {
	b, err := json.Marshal(rows)
	if err != nil {
		return 0
	}

	return len(b)
}
