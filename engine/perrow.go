package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/team-blaze/target-bigquery/pipeline"
	"github.com/team-blaze/target-bigquery/protocol"
	"github.com/team-blaze/target-bigquery/schema"
	"github.com/team-blaze/target-bigquery/warehouse"
)

// perRowStream tracks one stream's table handle and row count across a
// [PerRowDriver] run.
type perRowStream struct {
	table warehouse.Table
	rows  int
}

// PerRowDriver is the "per-row-stream" replication mode (stream_data=true
// outside HYBRID): every record is inserted the moment
// it arrives, one `InsertRowsJSON` call per row, with no row-ID dedup and
// no retry loop — a record rejected by the warehouse is logged and the
// run carries on to the next line, matching the source's lack of a
// try/except around the per-row insert call for anything but an
// unrecognized message type.
type PerRowDriver struct {
	wh       warehouse.Warehouse
	project  string
	dataset  string
	location string
	logger   *slog.Logger

	streams map[string]*perRowStream
}

// NewPerRowDriver returns a [PerRowDriver] writing into project/dataset.
func NewPerRowDriver(wh warehouse.Warehouse, project, dataset, location string) *PerRowDriver {
	return &PerRowDriver{
		wh:       wh,
		project:  project,
		dataset:  dataset,
		location: location,
		logger:   slog.Default(),
		streams:  make(map[string]*perRowStream),
	}
}

// Run inserts every record as it is decoded and returns the last state
// value seen.
func (d *PerRowDriver) Run(ctx context.Context, input io.Reader) (map[string]any, error) {
	if err := d.wh.CreateDataset(ctx, d.dataset, d.location); err != nil {
		return nil, fmt.Errorf("creating dataset %s: %w", d.dataset, err)
	}

	var state map[string]any

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanBufferBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}

		msg, err := protocol.Decode(line)
		if err != nil {
			return nil, fmt.Errorf("decoding line: %w", err)
		}

		switch m := msg.(type) {
		case *protocol.Schema:
			if err := d.openStream(ctx, m); err != nil {
				return nil, err
			}
		case *protocol.Record:
			if err := d.insertRecord(ctx, m); err != nil {
				return nil, err
			}

			state = nil
		case *protocol.State:
			state = m.Value
		case *protocol.ActivateVersion:
			// experimental upstream message; no obligation here.
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	for name, s := range d.streams {
		d.logger.Info("stream insert summary", "stream", name, "rows", s.rows)
	}

	return state, nil
}

func (d *PerRowDriver) openStream(ctx context.Context, msg *protocol.Schema) error {
	ref := warehouse.TableRef{Project: d.project, Dataset: d.dataset, Table: schema.TableName(msg.Stream)}
	columns := schema.Translate(msg.Schema, false)

	table, found, err := d.wh.GetTable(ctx, ref)
	if err != nil {
		return fmt.Errorf("resolving table %s: %w", ref.Table, err)
	}

	if !found {
		table, err = d.wh.CreateTable(ctx, ref, columns)
		if err != nil {
			return fmt.Errorf("creating table %s: %w", ref.Table, err)
		}
	}

	d.streams[msg.Stream] = &perRowStream{table: table}

	return nil
}

func (d *PerRowDriver) insertRecord(ctx context.Context, msg *protocol.Record) error {
	s, ok := d.streams[msg.Stream]
	if !ok {
		return fmt.Errorf("record for stream %s encountered before its schema", msg.Stream)
	}

	row := pipeline.FixRow(msg.Record)

	rowErrs, err := d.wh.InsertRowsJSON(ctx, s.table, []map[string]any{row}, []string{""})
	if err != nil {
		return fmt.Errorf("inserting row into %s: %w", s.table.Ref.Table, err)
	}

	s.rows++

	if len(rowErrs) != 0 {
		d.logger.Error("row rejected", "stream", msg.Stream, "errors", rowErrs)
	}

	return nil
}
