package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/team-blaze/target-bigquery/metrics"
	"github.com/team-blaze/target-bigquery/stream"
	"github.com/team-blaze/target-bigquery/warehouse"
)

// NormalRetryHorizon and UpdatedRetryHorizon are the two wall-clock
// budgets a stream's flush retry loop runs under — 30s ordinarily, 300s
// right after a table create/update, because the warehouse's streaming-
// insert frontends lag its metadata store by minutes in that case.
const (
	NormalRetryHorizon  = 30 * time.Second
	UpdatedRetryHorizon = 300 * time.Second
)

// NormalRetryBackoff and UpdatedRetryBackoff are the sleeps between
// retry-loop attempts, mirroring the horizons above.
const (
	NormalRetryBackoff  = 1 * time.Second
	UpdatedRetryBackoff = 5 * time.Second
)

// DefaultMaxBatchRows is a [Flusher]'s default soft cap on rows per
// insert_rows_json call. Zero means unlimited; set a cap with
// [WithMaxBatchRows] to pre-split large buffers before they ever reach
// the byte-size oversize check, trading one extra round trip for
// avoiding BigQuery's streaming-insert row-count quota outright.
const DefaultMaxBatchRows = 0

// Outcome reports what happened when [Flusher.Flush] tried to empty one
// stream's row buffer.
type Outcome struct {
	Stream     string
	Succeeded  bool
	FailedRows []map[string]any
	Err        error
}

// Option configures a [Flusher].
type Option func(*Flusher)

// WithClock overrides the time source and sleep function, for tests
// that can't afford to wait out a real retry horizon.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(f *Flusher) {
		f.now = now
		f.sleep = sleep
	}
}

// WithLogger overrides the flusher's logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flusher) { f.logger = logger }
}

// WithMaxBatchRows sets a soft row-count cap per insert_rows_json call;
// buffers larger than n are split once at their midpoint and sent as two
// inserts, like the oversize path; the halves are not split further.
func WithMaxBatchRows(n int) Option {
	return func(f *Flusher) { f.maxBatchRows = n }
}

// WithMetrics reports flush outcomes and durations against m. A nil
// or omitted m leaves the flusher unobserved.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Flusher) { f.metrics = m }
}

// Flusher empties stream row buffers into the warehouse, handling
// dedup-by-row-ID, decimal coercion, adaptive halving, and bounded retry.
type Flusher struct {
	wh           warehouse.Warehouse
	now          func() time.Time
	sleep        func(time.Duration)
	logger       *slog.Logger
	maxBatchRows int
	metrics      *metrics.Metrics
}

// New returns a [Flusher] driving wh.
func New(wh warehouse.Warehouse, opts ...Option) *Flusher {
	f := &Flusher{
		wh:           wh,
		now:          time.Now,
		sleep:        time.Sleep,
		logger:       slog.Default(),
		maxBatchRows: DefaultMaxBatchRows,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Flush attempts to empty every stream's row buffer in order, returning
// one [Outcome] per stream that had rows to flush. It never returns an
// error itself: an unclassified warehouse error surfaces as an Outcome
// with Succeeded=false and Err set, leaving the abort decision to the
// caller, matching the "other streams still flush" containment rule.
func (f *Flusher) Flush(ctx context.Context, streams []*stream.Stream) []Outcome {
	outcomes := make([]Outcome, 0, len(streams))

	for _, s := range streams {
		if len(s.RowBuffer) == 0 {
			continue
		}

		outcomes = append(outcomes, f.flushOne(ctx, s))
	}

	return outcomes
}

func (f *Flusher) flushOne(ctx context.Context, s *stream.Stream) Outcome {
	rows := make([]map[string]any, len(s.RowBuffer))
	ids := make([]string, len(s.RowBuffer))

	for i, row := range s.RowBuffer {
		ids[i] = RowID(row, s.KeyProperties)
		rows[i] = FixRow(row)
	}

	horizon := NormalRetryHorizon
	backoff := NormalRetryBackoff

	if s.UpdatedTablesFlag {
		horizon = UpdatedRetryHorizon
		backoff = UpdatedRetryBackoff
	}

	deadline := f.now().Add(horizon)
	started := f.now()

	for {
		if f.maxBatchRows > 0 && len(rows) > f.maxBatchRows {
			return f.observe(s, started, f.halveAndFinish(ctx, s, rows, ids))
		}

		if warehouse.IsOversizeOrLarge(nil, EncodedSize(rows)) {
			return f.observe(s, started, f.halveAndFinish(ctx, s, rows, ids))
		}

		rowErrs, err := f.wh.InsertRowsJSON(ctx, s.Table, rows, ids)
		if err != nil {
			switch {
			case warehouse.IsOversizeOrLarge(err, 0):
				return f.observe(s, started, f.halveAndFinish(ctx, s, rows, ids))
			case warehouse.Classify(err) == warehouse.KindRetryable:
				if f.now().After(deadline) {
					return f.observe(s, started, f.giveUp(s, rows, err))
				}

				f.sleep(backoff)

				continue
			default:
				return f.observe(s, started, Outcome{Stream: s.Name, Succeeded: false, Err: err})
			}
		}

		if len(rowErrs) == 0 {
			f.succeed(s, len(rows))

			return f.observe(s, started, Outcome{Stream: s.Name, Succeeded: true})
		}

		if f.now().After(deadline) {
			return f.observe(s, started, f.giveUp(s, rows, nil))
		}

		s.Errors = rowErrs
		f.sleep(backoff)
	}
}

// observe records the flush's duration and row-level outcome counters
// against f.metrics, if configured, before returning outcome unchanged.
func (f *Flusher) observe(s *stream.Stream, started time.Time, outcome Outcome) Outcome {
	if f.metrics == nil {
		return outcome
	}

	f.metrics.FlushDuration.WithLabelValues(s.Name).Observe(f.now().Sub(started).Seconds())

	if !outcome.Succeeded {
		f.metrics.RowsFailed.WithLabelValues(s.Name).Add(float64(len(outcome.FailedRows)))
	}

	return outcome
}

// halveAndFinish implements the oversize recovery path: split the batch
// at its midpoint, issue one insert per half, and report the combined
// result — success only if both halves landed clean. The retry loop
// always exits after this, win or lose.
func (f *Flusher) halveAndFinish(ctx context.Context, s *stream.Stream, rows []map[string]any, ids []string) Outcome {
	mid := len(rows) / 2

	rowErrs1, err1 := f.wh.InsertRowsJSON(ctx, s.Table, rows[:mid], ids[:mid])
	rowErrs2, err2 := f.wh.InsertRowsJSON(ctx, s.Table, rows[mid:], ids[mid:])

	if err1 == nil && err2 == nil && len(rowErrs1) == 0 && len(rowErrs2) == 0 {
		f.succeed(s, len(rows))

		return Outcome{Stream: s.Name, Succeeded: true}
	}

	err := err1
	if err == nil {
		err = err2
	}

	return f.giveUp(s, rows, err)
}

func (f *Flusher) succeed(s *stream.Stream, rowCount int) {
	s.ClearBuffer()
	s.UpdatedTablesFlag = false
	s.Errors = nil

	if f.metrics != nil {
		f.metrics.RowsFlushed.WithLabelValues(s.Name).Add(float64(rowCount))
	}
}

func (f *Flusher) giveUp(s *stream.Stream, rows []map[string]any, err error) Outcome {
	if err != nil {
		f.logger.Error("error loading rows into table", "stream", s.Name, "table", s.Table.Ref.Table, "error", err)
	} else if len(s.Errors) != 0 {
		f.logger.Error("rows rejected by table", "stream", s.Name, "table", s.Table.Ref.Table, "errors", s.Errors)
	}

	s.ClearBuffer()
	s.UpdatedTablesFlag = false
	s.Errors = nil

	return Outcome{Stream: s.Name, Succeeded: false, FailedRows: rows, Err: err}
}
