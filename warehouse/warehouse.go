package warehouse

import (
	"context"
	"io"

	"github.com/team-blaze/target-bigquery/schema"
)

// TableRef identifies a table within a project's dataset.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// Table is the resolved handle returned by CreateTable and GetTable. A
// [Warehouse] implementation is free to embed whatever native handle it
// needs behind Columns/Ref; the engine never inspects it beyond those
// two fields.
type Table struct {
	Ref     TableRef
	Columns schema.ColumnList
}

// RowError is one row's rejection from an InsertRowsJSON call, keyed by
// its position in the batch that was submitted.
type RowError struct {
	RowIndex int
	Message  string
}

// WriteDisposition controls how LoadTableFromFile treats existing table
// data.
type WriteDisposition int

// Load dispositions, mirroring the upstream's replication_method
// semantics: FULL_TABLE truncates, anything else appends with schema
// evolution allowed.
const (
	WriteAppend WriteDisposition = iota
	WriteTruncate
)

// Warehouse is everything the ingestion engine needs from the analytic
// backend. Every method may block for arbitrary wall-clock time; callers
// own retry and backoff policy, not this interface.
type Warehouse interface {
	// CreateDataset creates the dataset if it does not already exist.
	// location may be empty.
	CreateDataset(ctx context.Context, dataset, location string) error

	// CreateTable creates a new table with the given columns.
	CreateTable(ctx context.Context, ref TableRef, columns schema.ColumnList) (Table, error)

	// GetTable resolves an existing table handle. found is false, err is
	// nil when the table does not exist.
	GetTable(ctx context.Context, ref TableRef) (table Table, found bool, err error)

	// UpdateTable patches a table's column list in place (schema field
	// only — no ACL or partitioning changes).
	UpdateTable(ctx context.Context, ref TableRef, columns schema.ColumnList) (Table, error)

	// DeleteTable drops a table. Used only as part of reconcile-as-recreate.
	DeleteTable(ctx context.Context, ref TableRef) error

	// InsertRowsJSON performs a row-ID-keyed streaming insert. rowIDs must
	// be the same length as rows; passing the same rowID twice across
	// calls deduplicates at the warehouse. A non-nil err means the whole
	// call failed (see [Classify]); a non-empty rowErrs means the call
	// succeeded but some rows were rejected.
	InsertRowsJSON(ctx context.Context, table Table, rows []map[string]any, rowIDs []string) (rowErrs []RowError, err error)

	// LoadTableFromFile runs a load job reading newline-delimited JSON
	// from r into the table described by ref, creating or patching it
	// with columns first. Returns the number of rows the job reports
	// loaded.
	LoadTableFromFile(ctx context.Context, ref TableRef, columns schema.ColumnList, disposition WriteDisposition, r io.Reader) (rowsLoaded int64, err error)
}
