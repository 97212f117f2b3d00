package e2e_test

import (
	"context"
	"io"
	"sync"

	"github.com/team-blaze/target-bigquery/schema"
	"github.com/team-blaze/target-bigquery/warehouse"
)

// fakeWarehouse is an in-memory [warehouse.Warehouse] shared across the
// seven scenario specs in this suite, so a table created in one scenario
// is still there — with its accumulated rows and columns — for the
// next, matching the "same table, successive runs" shape of the source
// tap replays this suite works through.
type fakeWarehouse struct {
	mu sync.Mutex

	datasets map[string]bool
	tables   map[string]warehouse.Table
	rows     map[string][]map[string]any

	// updateErr, keyed by table name, is returned by UpdateTable instead
	// of applying the patch — used to simulate a backend that refuses an
	// incompatible column-type change.
	updateErr map[string]error

	// rejectRows, keyed by table name, is appended as a single row error
	// to every InsertRowsJSON call against that table instead of
	// accepting the rows — used to simulate a streaming insert rejecting
	// values that no longer match the stored column type.
	rejectRows map[string]string

	insertCalls map[string]int
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		datasets:    make(map[string]bool),
		tables:      make(map[string]warehouse.Table),
		rows:        make(map[string][]map[string]any),
		updateErr:   make(map[string]error),
		rejectRows:  make(map[string]string),
		insertCalls: make(map[string]int),
	}
}

func (f *fakeWarehouse) CreateDataset(_ context.Context, dataset, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.datasets[dataset] = true

	return nil
}

func (f *fakeWarehouse) CreateTable(_ context.Context, ref warehouse.TableRef, cols schema.ColumnList) (warehouse.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := warehouse.Table{Ref: ref, Columns: cols}
	f.tables[ref.Table] = t

	return t, nil
}

func (f *fakeWarehouse) GetTable(_ context.Context, ref warehouse.TableRef) (warehouse.Table, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tables[ref.Table]

	return t, ok, nil
}

func (f *fakeWarehouse) UpdateTable(_ context.Context, ref warehouse.TableRef, cols schema.ColumnList) (warehouse.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.updateErr[ref.Table]; ok {
		return warehouse.Table{}, err
	}

	t := warehouse.Table{Ref: ref, Columns: cols}
	f.tables[ref.Table] = t

	return t, nil
}

func (f *fakeWarehouse) DeleteTable(_ context.Context, ref warehouse.TableRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.tables, ref.Table)

	return nil
}

func (f *fakeWarehouse) InsertRowsJSON(_ context.Context, table warehouse.Table, rows []map[string]any, _ []string) ([]warehouse.RowError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.insertCalls[table.Ref.Table]++

	if msg, ok := f.rejectRows[table.Ref.Table]; ok {
		errs := make([]warehouse.RowError, len(rows))
		for i := range rows {
			errs[i] = warehouse.RowError{RowIndex: i, Message: msg}
		}

		return errs, nil
	}

	f.rows[table.Ref.Table] = append(f.rows[table.Ref.Table], rows...)

	return nil, nil
}

func (f *fakeWarehouse) LoadTableFromFile(context.Context, warehouse.TableRef, schema.ColumnList, warehouse.WriteDisposition, io.Reader) (int64, error) {
	return 0, nil
}

func (f *fakeWarehouse) rowCount(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.rows[table])
}

func (f *fakeWarehouse) insertCallCount(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.insertCalls[table]
}

func (f *fakeWarehouse) columnNames(table string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.tables[table]
	names := make([]string, len(t.Columns))

	for i, c := range t.Columns {
		names[i] = c.Name
	}

	return names
}
