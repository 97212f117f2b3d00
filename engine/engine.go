package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/team-blaze/target-bigquery/checkpoint"
	"github.com/team-blaze/target-bigquery/metrics"
	"github.com/team-blaze/target-bigquery/pipeline"
	"github.com/team-blaze/target-bigquery/protocol"
	"github.com/team-blaze/target-bigquery/reconcile"
	"github.com/team-blaze/target-bigquery/schema"
	"github.com/team-blaze/target-bigquery/stream"
	"github.com/team-blaze/target-bigquery/warehouse"
)

// maxScanBufferBytes bounds how large a single input line may be before
// Run refuses to read it. Record payloads occasionally run large with
// wide nested objects; this is generous without being unbounded.
const maxScanBufferBytes = 64 * 1024 * 1024

// Config holds the engine's run parameters, sourced from the process
// configuration file.
type Config struct {
	Project         string
	Dataset         string
	Location        string
	ValidateRecords bool
	CanDeleteTable  bool
	MaxBatchRows    int
}

// FailedLine records one line, record, or row batch that could not be
// durably accepted: an undecodable line, a record for an unknown or
// not-yet-known stream, or rows that exhausted their flush retry budget.
// A non-empty set of these at end-of-run suppresses the final checkpoint.
type FailedLine struct {
	Stream string
	Reason string
	Raw    string
	Rows   []map[string]any
}

// ErrRecordValidation wraps a record that failed JSON-schema validation.
// Unlike [FailedLine], this aborts the run — validation failures are
// fatal when validate_records is enabled.
var ErrRecordValidation = errors.New("engine: record failed schema validation")

// Option configures an [Engine].
type Option func(*Engine)

// WithLogger overrides the engine's logger, propagating it to the
// reconciler and flusher it owns. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source and sleep function, propagated to
// both the reconciler and the flusher, for tests that can't afford real
// retry horizons.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(e *Engine) {
		e.now = now
		e.sleep = sleep
	}
}

// WithMetrics propagates m to the reconciler and flusher the engine
// owns. A nil or omitted m leaves the run unobserved.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine drives the hybrid ingestion state machine described by this
// module: decode, register/reconcile, buffer, flush, checkpoint.
type Engine struct {
	cfg Config
	wh  warehouse.Warehouse

	registry   *stream.Registry
	reconciler *reconcile.Reconciler
	flusher    *pipeline.Flusher
	checkpoint *checkpoint.Emitter
	logger     *slog.Logger
	metrics    *metrics.Metrics

	now   func() time.Time
	sleep func(time.Duration)

	lastState   map[string]any
	failedLines []FailedLine
}

// New wires a complete [Engine] around wh, emitting checkpoints through
// out and quarantining or aborting per cfg.
func New(wh warehouse.Warehouse, out interface{ Encode(v any) error }, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		wh:         wh,
		registry:   stream.NewRegistry(),
		checkpoint: checkpoint.New(out),
		logger:     slog.Default(),
		now:        time.Now,
		sleep:      time.Sleep,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.reconciler = reconcile.New(wh,
		reconcile.WithCanDeleteTable(cfg.CanDeleteTable),
		reconcile.WithLogger(e.logger),
		reconcile.WithClock(e.now, e.sleep),
		reconcile.WithMetrics(e.metrics),
	)

	e.flusher = pipeline.New(wh,
		pipeline.WithLogger(e.logger),
		pipeline.WithClock(e.now, e.sleep),
		pipeline.WithMaxBatchRows(cfg.MaxBatchRows),
		pipeline.WithMetrics(e.metrics),
	)

	return e
}

// FailedLines returns every quarantined line, record, or row batch
// accumulated so far.
func (e *Engine) FailedLines() []FailedLine {
	return e.failedLines
}

// tableRef resolves the warehouse table reference for a stream name.
func (e *Engine) tableRef(streamName string) warehouse.TableRef {
	return warehouse.TableRef{Project: e.cfg.Project, Dataset: e.cfg.Dataset, Table: schema.TableName(streamName)}
}

// Run reads newline-delimited protocol messages from input until EOF,
// driving the state machine one line at a time, and returns only on an
// unclassified/fatal error or successful completion (including the
// "rows failed, checkpoint suppressed" case, which is not an error).
func (e *Engine) Run(ctx context.Context, input io.Reader) error {
	if err := e.wh.CreateDataset(ctx, e.cfg.Dataset, e.cfg.Location); err != nil {
		return fmt.Errorf("creating dataset %s: %w", e.cfg.Dataset, err)
	}

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanBufferBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}

		// Copy: the scanner reuses its internal buffer on the next Scan.
		owned := make([]byte, len(line))
		copy(owned, line)

		if err := e.handleLine(ctx, owned); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	return e.finish(ctx)
}

func (e *Engine) handleLine(ctx context.Context, line []byte) error {
	msg, err := protocol.Decode(line)
	if err != nil {
		e.logger.Warn("unable to parse line", "error", err)
		e.failedLines = append(e.failedLines, FailedLine{Raw: string(line), Reason: err.Error()})

		return nil
	}

	switch m := msg.(type) {
	case *protocol.Schema:
		return e.handleSchema(ctx, m)
	case *protocol.Record:
		return e.handleRecord(m)
	case *protocol.State:
		return e.handleState(ctx, m)
	case *protocol.ActivateVersion:
		return nil
	default:
		return nil
	}
}

func (e *Engine) handleSchema(ctx context.Context, msg *protocol.Schema) error {
	if len(msg.KeyProperties) == 0 {
		e.logger.Error("rejecting schema with empty key_properties", "stream", msg.Stream)
		e.failedLines = append(e.failedLines, FailedLine{Stream: msg.Stream, Reason: "empty key_properties"})

		return nil
	}

	s := e.registry.GetOrCreate(msg.Stream)
	s.Schema = msg.Schema
	s.KeyProperties = msg.KeyProperties
	s.RowBuffer = nil
	s.Errors = nil

	if resolved, err := msg.Schema.Resolve(nil); err == nil {
		s.Resolved = resolved
	} else {
		e.logger.Warn("schema could not be resolved for validation", "stream", msg.Stream, "error", err)
		s.Resolved = nil
	}

	columns := schema.Translate(msg.Schema, true)
	ref := e.tableRef(msg.Stream)

	if err := e.reconciler.ReconcileAsCreate(ctx, ref, s, columns); err != nil {
		return fmt.Errorf("reconciling schema for stream %s: %w", msg.Stream, err)
	}

	return nil
}

func (e *Engine) handleRecord(msg *protocol.Record) error {
	s, ok := e.registry.Get(msg.Stream)
	if !ok || s.Schema == nil {
		e.logger.Warn("record for unknown stream", "stream", msg.Stream)
		e.failedLines = append(e.failedLines, FailedLine{
			Stream: msg.Stream,
			Reason: "record received before its schema",
			Rows:   []map[string]any{msg.Record},
		})

		return nil
	}

	if e.cfg.ValidateRecords && s.Resolved != nil {
		if err := s.Resolved.Validate(msg.Record); err != nil {
			return fmt.Errorf("%w: stream %s: %w", ErrRecordValidation, msg.Stream, err)
		}
	}

	s.AppendRow(msg.Record)
	e.lastState = nil

	return nil
}

func (e *Engine) handleState(ctx context.Context, msg *protocol.State) error {
	e.lastState = msg.Value

	streamName, ok := msg.SyncingStream()
	if ok {
		if s, known := e.registry.Get(streamName); known {
			syncing, _ := msg.CurrentlySyncing()
			if err := e.flushAndMaybeReconcile(ctx, msg, streamName, syncing, s); err != nil {
				return err
			}
		}
	}

	return nil
}

func (e *Engine) flushAndMaybeReconcile(ctx context.Context, msg *protocol.State, streamName, syncing string, s *stream.Stream) error {
	if len(s.RowBuffer) > 0 {
		outcomes := e.flusher.Flush(ctx, []*stream.Stream{s})
		if err := e.processOutcomes(outcomes); err != nil {
			return err
		}

		for _, o := range outcomes {
			if o.Succeeded && e.lastState != nil {
				if err := e.checkpoint.Emit(e.lastState); err != nil {
					return err
				}
			}
		}
	}

	if s.Schema == nil || msg.HasReplicationKeyValue(syncing) {
		return nil
	}

	newColumns := schema.Translate(s.Schema, true)
	if newColumns.Equal(s.Columns) {
		return nil
	}

	ref := e.tableRef(streamName)
	if err := e.reconciler.ReconcileAsUpdate(ctx, ref, s, newColumns); err != nil {
		if errors.Is(err, reconcile.ErrGaveUp) {
			return nil
		}

		return fmt.Errorf("reconciling update for stream %s: %w", streamName, err)
	}

	return nil
}

func (e *Engine) processOutcomes(outcomes []pipeline.Outcome) error {
	for _, o := range outcomes {
		if o.Succeeded {
			continue
		}

		if o.FailedRows != nil {
			e.logger.Error("rows exhausted retry budget", "stream", o.Stream, "error", o.Err)
			e.failedLines = append(e.failedLines, FailedLine{Stream: o.Stream, Reason: errString(o.Err), Rows: o.FailedRows})

			continue
		}

		return fmt.Errorf("flush failed for stream %s: %w", o.Stream, o.Err)
	}

	return nil
}

func (e *Engine) finish(ctx context.Context) error {
	names := e.registry.Names()

	streams := make([]*stream.Stream, 0, len(names))
	for _, name := range names {
		if s, ok := e.registry.Get(name); ok {
			streams = append(streams, s)
		}
	}

	outcomes := e.flusher.Flush(ctx, streams)
	if err := e.processOutcomes(outcomes); err != nil {
		return err
	}

	if len(e.failedLines) != 0 {
		e.logger.Error("failed lines present at end of run; suppressing checkpoint", "count", len(e.failedLines))

		return nil
	}

	return e.checkpoint.Emit(e.lastState)
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

func bytesTrimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && isSpace(b[start]) {
		start++
	}

	end := len(b)
	for end > start && isSpace(b[end-1]) {
		end--
	}

	return b[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
