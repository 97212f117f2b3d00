package bigquery

import (
	"context"
	"errors"
	"fmt"
	"io"

	gbq "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/team-blaze/target-bigquery/schema"
	"github.com/team-blaze/target-bigquery/warehouse"
)

// Client adapts a *gbq.Client to [warehouse.Warehouse].
type Client struct {
	bq      *gbq.Client
	project string
}

// New dials a BigQuery client scoped to project.
func New(ctx context.Context, project string) (*Client, error) {
	bq, err := gbq.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("dialing bigquery client: %w", err)
	}

	return &Client{bq: bq, project: project}, nil
}

// Close releases the underlying client's resources.
func (c *Client) Close() error { return c.bq.Close() }

func (c *Client) dataset(name string) *gbq.Dataset {
	return c.bq.DatasetInProject(c.project, name)
}

func (c *Client) table(ref warehouse.TableRef) *gbq.Table {
	return c.bq.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table)
}

// CreateDataset creates the dataset if it does not already exist.
func (c *Client) CreateDataset(ctx context.Context, dataset, location string) error {
	err := c.dataset(dataset).Create(ctx, &gbq.DatasetMetadata{Location: location})
	if isAlreadyExists(err) {
		return nil
	}

	return wrapErr(err)
}

// CreateTable creates a new table with the given columns.
func (c *Client) CreateTable(ctx context.Context, ref warehouse.TableRef, columns schema.ColumnList) (warehouse.Table, error) {
	tbl := c.table(ref)

	err := tbl.Create(ctx, &gbq.TableMetadata{Schema: toBigQuerySchema(columns)})
	if err != nil {
		return warehouse.Table{}, wrapErr(err)
	}

	return warehouse.Table{Ref: ref, Columns: columns}, nil
}

// GetTable resolves an existing table's metadata into a [warehouse.Table].
func (c *Client) GetTable(ctx context.Context, ref warehouse.TableRef) (warehouse.Table, bool, error) {
	meta, err := c.table(ref).Metadata(ctx)
	if isNotFound(err) {
		return warehouse.Table{}, false, nil
	}

	if err != nil {
		return warehouse.Table{}, false, wrapErr(err)
	}

	return warehouse.Table{Ref: ref, Columns: fromBigQuerySchema(meta.Schema)}, true, nil
}

// UpdateTable patches a table's schema field, leaving everything else
// untouched.
func (c *Client) UpdateTable(ctx context.Context, ref warehouse.TableRef, columns schema.ColumnList) (warehouse.Table, error) {
	update := gbq.TableMetadataToUpdate{Schema: toBigQuerySchema(columns)}

	_, err := c.table(ref).Update(ctx, update, "")
	if err != nil {
		return warehouse.Table{}, wrapErr(err)
	}

	return warehouse.Table{Ref: ref, Columns: columns}, nil
}

// DeleteTable drops a table.
func (c *Client) DeleteTable(ctx context.Context, ref warehouse.TableRef) error {
	return wrapErr(c.table(ref).Delete(ctx))
}

// jsonRow adapts a plain map plus a dedup row ID to [gbq.ValueSaver].
type jsonRow struct {
	values   map[string]gbq.Value
	insertID string
}

func (r jsonRow) Save() (map[string]gbq.Value, string, error) {
	return r.values, r.insertID, nil
}

// InsertRowsJSON performs a row-ID-keyed streaming insert.
func (c *Client) InsertRowsJSON(ctx context.Context, table warehouse.Table, rows []map[string]any, rowIDs []string) ([]warehouse.RowError, error) {
	savers := make([]gbq.ValueSaver, len(rows))
	for i, row := range rows {
		values := make(map[string]gbq.Value, len(row))
		for k, v := range row {
			values[k] = v
		}

		savers[i] = jsonRow{values: values, insertID: rowIDs[i]}
	}

	inserter := c.table(table.Ref).Inserter()

	err := inserter.Put(ctx, savers)
	if err == nil {
		return nil, nil
	}

	var multi gbq.PutMultiError
	if errors.As(err, &multi) {
		rowErrs := make([]warehouse.RowError, 0, len(multi))
		for _, rie := range multi {
			rowErrs = append(rowErrs, warehouse.RowError{
				RowIndex: rie.RowIndex,
				Message:  rie.Error(),
			})
		}

		return rowErrs, nil
	}

	return nil, wrapErr(err)
}

// LoadTableFromFile runs a load job reading newline-delimited JSON from r.
func (c *Client) LoadTableFromFile(ctx context.Context, ref warehouse.TableRef, columns schema.ColumnList, disposition warehouse.WriteDisposition, r io.Reader) (int64, error) {
	source := gbq.NewReaderSource(r)
	source.SourceFormat = gbq.JSON
	source.Schema = toBigQuerySchema(columns)

	loader := c.table(ref).LoaderFrom(source)
	loader.SchemaUpdateOptions = []string{"ALLOW_FIELD_ADDITION"}

	switch disposition {
	case warehouse.WriteTruncate:
		loader.WriteDisposition = gbq.WriteTruncate
	default:
		loader.WriteDisposition = gbq.WriteAppend
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return 0, wrapErr(err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, wrapErr(err)
	}

	if err := status.Err(); err != nil {
		return 0, wrapErr(err)
	}

	if stats, ok := status.Statistics.Details.(*gbq.LoadStatistics); ok {
		return stats.OutputRows, nil
	}

	return 0, nil
}

// wrapErr lifts a raw client error into a [*warehouse.BackendError]
// carrying whatever structured reason codes a *googleapi.Error exposes,
// so [warehouse.Classify] can inspect them without importing this
// package's dependencies.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error

	reasons := []string{}
	if errors.As(err, &gerr) {
		for _, item := range gerr.Errors {
			reasons = append(reasons, item.Reason)
		}
	}

	return &warehouse.BackendError{Err: err, Reasons: reasons}
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error

	return errors.As(err, &gerr) && gerr.Code == 404
}

func isAlreadyExists(err error) bool {
	var gerr *googleapi.Error

	return errors.As(err, &gerr) && gerr.Code == 409
}

var _ warehouse.Warehouse = (*Client)(nil)
