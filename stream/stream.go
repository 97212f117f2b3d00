package stream

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/team-blaze/target-bigquery/schema"
	"github.com/team-blaze/target-bigquery/warehouse"
)

// Stream is everything the engine tracks for one upstream stream name,
// from the first Schema message it sees for that name until the process
// exits.
type Stream struct {
	Name string

	// Schema is the last accepted JSON-schema fragment; nil until the
	// first Schema message for this stream arrives.
	Schema *jsonschema.Schema

	// Resolved is Schema.Resolve()'d for record validation; nil when
	// resolution failed. Recomputed whenever Schema changes.
	Resolved *jsonschema.Resolved

	// KeyProperties is the ordered list of field names composing row
	// identity. Never empty once a schema has been accepted: the engine
	// rejects a Schema message with no key_properties before a Stream is
	// registered for it.
	KeyProperties []string

	// Columns is the warehouse column list the table is known to have: the
	// stored columns of a table that already existed, otherwise the list it
	// was last created or updated with. A fresh translation of each new
	// Schema is compared against it to decide whether reconciliation is
	// needed.
	Columns schema.ColumnList

	// Table is the resolved warehouse handle. TableResolved is false
	// until the table has been created or fetched for the first time.
	Table         warehouse.Table
	TableResolved bool

	// RowBuffer holds records awaiting the next flush, in receipt order.
	RowBuffer []map[string]any

	// Errors holds the per-row errors from the last attempted flush;
	// empty on success.
	Errors []warehouse.RowError

	// UpdatedTablesFlag is set after a table-schema update or recreate
	// and extends the next flush's retry horizon from 30s to 300s.
	// Cleared once that flush succeeds or gives up.
	UpdatedTablesFlag bool
}

// AppendRow appends a decoded record to the row buffer.
func (s *Stream) AppendRow(row map[string]any) {
	s.RowBuffer = append(s.RowBuffer, row)
}

// ClearBuffer empties the row buffer after a successful or abandoned flush.
func (s *Stream) ClearBuffer() {
	s.RowBuffer = nil
}

// Registry tracks every [Stream] seen in a run, in the order their
// first Schema message arrived. The engine is single-threaded
// cooperative: Registry has no internal locking, matching that
// invariant instead of hiding it behind a mutex nothing ever contends.
type Registry struct {
	streams map[string]*Stream
	order   []string
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*Stream)}
}

// Get returns the stream registered under name, if any.
func (r *Registry) Get(name string) (*Stream, bool) {
	s, ok := r.streams[name]

	return s, ok
}

// GetOrCreate returns the stream registered under name, creating and
// registering it (in insertion order) if this is the first time name has
// been seen.
func (r *Registry) GetOrCreate(name string) *Stream {
	if s, ok := r.streams[name]; ok {
		return s
	}

	s := &Stream{Name: name}
	r.streams[name] = s
	r.order = append(r.order, name)

	return s
}

// Names returns every registered stream name in first-seen order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}
