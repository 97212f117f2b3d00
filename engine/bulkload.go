package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/team-blaze/target-bigquery/pipeline"
	"github.com/team-blaze/target-bigquery/protocol"
	"github.com/team-blaze/target-bigquery/schema"
	"github.com/team-blaze/target-bigquery/warehouse"
)

// bulkLoadStream tracks one stream's scratch file and translated schema
// across a [BulkLoadDriver] run.
type bulkLoadStream struct {
	ref     warehouse.TableRef
	columns schema.ColumnList
	scratch *os.File
	writer  *bufio.Writer
}

// BulkLoadDriver is the "bulk-load" replication mode: every
// record is appended to a per-table scratch file as it arrives, and a
// single load job per table runs at end-of-input. It carries no retry
// loop and no row-ID dedup — those are hybrid-mode concerns — and
// ignore_required stays false, so REQUIRED columns are preserved exactly
// as the source schema declares them.
type BulkLoadDriver struct {
	wh          warehouse.Warehouse
	project     string
	dataset     string
	location    string
	disposition warehouse.WriteDisposition
	logger      *slog.Logger

	streams map[string]*bulkLoadStream
	order   []string
}

// NewBulkLoadDriver returns a [BulkLoadDriver] writing into project/dataset
// under disposition (truncate for "FULL_TABLE", append-with-field-addition
// for anything else — the caller decides which, matching
// replication_method).
func NewBulkLoadDriver(wh warehouse.Warehouse, project, dataset, location string, disposition warehouse.WriteDisposition) *BulkLoadDriver {
	return &BulkLoadDriver{
		wh:          wh,
		project:     project,
		dataset:     dataset,
		location:    location,
		disposition: disposition,
		logger:      slog.Default(),
		streams:     make(map[string]*bulkLoadStream),
	}
}

// Run buffers every record to its stream's scratch file, then issues one
// load job per table. It returns the final state value, or nil if a load
// job failed for any table — matching the source's behavior of giving up
// on the whole batch the moment one table's load job errors.
func (d *BulkLoadDriver) Run(ctx context.Context, input io.Reader) (map[string]any, error) {
	defer d.cleanup()

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
			if err := d.openStream(m); err != nil {
				return nil, err
			}
		case *protocol.Record:
			if err := d.writeRecord(m); err != nil {
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

	if err := d.loadAll(ctx); err != nil {
		d.logger.Error("bulk load failed; suppressing final checkpoint", "error", err)

		return nil, nil //nolint:nilerr // matches the source's silent-abort-on-load-failure behavior
	}

	return state, nil
}

func (d *BulkLoadDriver) openStream(msg *protocol.Schema) error {
	f, err := os.CreateTemp("", "target-bigquery-bulk-*.json")
	if err != nil {
		return fmt.Errorf("creating scratch file for stream %s: %w", msg.Stream, err)
	}

	s := &bulkLoadStream{
		ref:     warehouse.TableRef{Project: d.project, Dataset: d.dataset, Table: schema.TableName(msg.Stream)},
		columns: schema.Translate(msg.Schema, false),
		scratch: f,
		writer:  bufio.NewWriter(f),
	}

	d.streams[msg.Stream] = s
	d.order = append(d.order, msg.Stream)

	return nil
}

func (d *BulkLoadDriver) writeRecord(msg *protocol.Record) error {
	s, ok := d.streams[msg.Stream]
	if !ok {
		return fmt.Errorf("record for stream %s encountered before its schema", msg.Stream)
	}

	enc := json.NewEncoder(s.writer)
	if err := enc.Encode(pipeline.FixRow(msg.Record)); err != nil {
		return fmt.Errorf("buffering record for stream %s: %w", msg.Stream, err)
	}

	return nil
}

func (d *BulkLoadDriver) loadAll(ctx context.Context) error {
	for _, name := range d.order {
		s := d.streams[name]

		if err := s.writer.Flush(); err != nil {
			return fmt.Errorf("flushing scratch file for stream %s: %w", name, err)
		}

		if _, err := s.scratch.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding scratch file for stream %s: %w", name, err)
		}

		rows, err := d.wh.LoadTableFromFile(ctx, s.ref, s.columns, d.disposition, s.scratch)
		if err != nil {
			return fmt.Errorf("loading table %s: %w", s.ref.Table, err)
		}

		d.logger.Info("loaded rows into table", "table", s.ref.Table, "rows", rows)
	}

	return nil
}

func (d *BulkLoadDriver) cleanup() {
	for _, s := range d.streams {
		_ = s.scratch.Close()
		_ = os.Remove(s.scratch.Name())
	}
}
