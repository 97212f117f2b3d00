package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/team-blaze/target-bigquery/metrics"
	"github.com/team-blaze/target-bigquery/schema"
	"github.com/team-blaze/target-bigquery/stream"
	"github.com/team-blaze/target-bigquery/warehouse"
)

// TableCreationPause is the fixed sleep after creating a table, giving
// the warehouse time to propagate the new table to its streaming-insert
// frontends before the first flush is attempted.
const TableCreationPause = 30 * time.Second

// UpdateRetryHorizon bounds how long reconcile-as-update retries before
// giving up on a schema patch.
const UpdateRetryHorizon = 300 * time.Second

// UpdateRetryBackoff is the sleep between reconcile-as-update attempts.
const UpdateRetryBackoff = 5 * time.Second

// ErrGaveUp is returned by [Reconciler.ReconcileAsUpdate] when the retry
// horizon elapses, the backend reports schema incompatibility and table
// deletion isn't permitted, or the update error is unclassified. It is
// not fatal — the caller logs and
// lets subsequent inserts fail and land in failed_lines rather than
// blocking the whole run.
var ErrGaveUp = errors.New("reconcile: gave up on updating table schema")

// Option configures a [Reconciler].
type Option func(*Reconciler)

// WithCanDeleteTable enables reconcile-as-recreate: on a schema
// mismatch error, drop and recreate the table instead of giving up.
func WithCanDeleteTable(can bool) Option {
	return func(r *Reconciler) { r.canDeleteTable = can }
}

// WithLogger overrides the reconciler's logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithClock overrides the time source and sleep function, for tests that
// can't afford to wait 30s/300s for real.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(r *Reconciler) {
		r.now = now
		r.sleep = sleep
	}
}

// WithMetrics reports reconcile attempts against m, by stream and
// outcome. A nil or omitted m leaves the reconciler unobserved.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// Reconciler creates and updates warehouse tables to keep them in step
// with their streams' translated schemas.
type Reconciler struct {
	wh             warehouse.Warehouse
	canDeleteTable bool
	logger         *slog.Logger
	now            func() time.Time
	sleep          func(time.Duration)
	breaker        *gobreaker.CircuitBreaker
	metrics        *metrics.Metrics
}

// New returns a [Reconciler] driving wh.
func New(wh warehouse.Warehouse, opts ...Option) *Reconciler {
	r := &Reconciler{
		wh:     wh,
		logger: slog.Default(),
		now:    time.Now,
		sleep:  time.Sleep,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "table-reconcile",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     UpdateRetryBackoff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	})

	return r
}

// ReconcileAsCreate implements the On-Schema behavior: resolve the
// table, creating it with columns and pausing [TableCreationPause] if it
// does not yet exist.
func (r *Reconciler) ReconcileAsCreate(ctx context.Context, ref warehouse.TableRef, s *stream.Stream, columns schema.ColumnList) error {
	table, found, err := r.wh.GetTable(ctx, ref)
	if err != nil {
		return fmt.Errorf("resolving table %s: %w", ref.Table, err)
	}

	if found {
		s.Table = table
		s.Columns = table.Columns
		s.TableResolved = true

		return nil
	}

	table, err = r.wh.CreateTable(ctx, ref, columns)
	if err != nil {
		return fmt.Errorf("creating table %s: %w", ref.Table, err)
	}

	r.logger.Info("sleeping after creating table", "table", ref.Table, "pause", TableCreationPause)
	r.sleep(TableCreationPause)

	s.Table = table
	s.Columns = columns
	s.TableResolved = true

	return nil
}

// ReconcileAsUpdate implements the reconcile-as-update retry loop:
// patch the table's schema, retrying transient failures for up to
// [UpdateRetryHorizon], falling back to drop-and-recreate on a schema
// mismatch when deletion is permitted, and otherwise returning
// [ErrGaveUp] without touching the table.
func (r *Reconciler) ReconcileAsUpdate(ctx context.Context, ref warehouse.TableRef, s *stream.Stream, columns schema.ColumnList) error {
	deadline := r.now().Add(UpdateRetryHorizon)

	for {
		_, err := r.breaker.Execute(func() (interface{}, error) {
			_, updateErr := r.wh.UpdateTable(ctx, ref, columns)

			return nil, updateErr
		})
		if err == nil {
			table, getErr := r.wh.GetTable(ctx, ref)
			if getErr == nil {
				s.Table = table
			}

			s.Columns = columns
			s.UpdatedTablesFlag = true
			r.observe(s, "updated")

			return nil
		}

		switch warehouse.Classify(err) {
		case warehouse.KindRetryable:
			if r.now().After(deadline) {
				return r.giveUp(s, ref, err)
			}

			r.sleep(UpdateRetryBackoff)

			continue
		case warehouse.KindSchemaIncompatible:
			if !r.canDeleteTable {
				return r.giveUp(s, ref, err)
			}

			return r.recreate(ctx, ref, s, columns)
		default:
			return r.giveUp(s, ref, err)
		}
	}
}

func (r *Reconciler) recreate(ctx context.Context, ref warehouse.TableRef, s *stream.Stream, columns schema.ColumnList) error {
	if err := r.wh.DeleteTable(ctx, ref); err != nil {
		return fmt.Errorf("deleting table %s for recreate: %w", ref.Table, err)
	}

	table, err := r.wh.CreateTable(ctx, ref, columns)
	if err != nil {
		return fmt.Errorf("recreating table %s: %w", ref.Table, err)
	}

	r.sleep(TableCreationPause)

	s.Table = table
	s.Columns = columns
	s.UpdatedTablesFlag = true
	r.observe(s, "recreated")

	return nil
}

func (r *Reconciler) giveUp(s *stream.Stream, ref warehouse.TableRef, cause error) error {
	r.logger.Error("Gave up on updating table schema", "table", ref.Table, "stream", s.Name, "error", cause)
	r.observe(s, "gave_up")

	return fmt.Errorf("%w: %w", ErrGaveUp, cause)
}

// observe counts a reconcile attempt's outcome against r.metrics, if
// configured.
func (r *Reconciler) observe(s *stream.Stream, outcome string) {
	if r.metrics == nil {
		return
	}

	r.metrics.ReconcileAttempts.WithLabelValues(s.Name, outcome).Inc()
}
