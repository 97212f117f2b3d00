// Package main provides the CLI entry point for target-bigquery, a
// Singer-protocol target that loads newline-delimited JSON records into
// Google BigQuery.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/team-blaze/target-bigquery/engine"
	"github.com/team-blaze/target-bigquery/internal/config"
	"github.com/team-blaze/target-bigquery/logx"
	"github.com/team-blaze/target-bigquery/metrics"
	"github.com/team-blaze/target-bigquery/profile"
	"github.com/team-blaze/target-bigquery/telemetry"
	"github.com/team-blaze/target-bigquery/version"
	"github.com/team-blaze/target-bigquery/warehouse"
	gbq "github.com/team-blaze/target-bigquery/warehouse/bigquery"
)

func main() {
	logCfg := logx.NewConfig()
	profCfg := profile.NewConfig()

	var configPath, metricsAddr string

	rootCmd := &cobra.Command{
		Use:           "target-bigquery",
		Short:         "Load a Singer-protocol NDJSON stream into BigQuery",
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(configPath, metricsAddr, logCfg, profCfg)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path (required)")
	must(rootCmd.MarkFlagRequired("config"))

	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled if unset)")

	logCfg.RegisterFlags(rootCmd.Flags())
	profCfg.RegisterFlags(rootCmd.Flags())

	if err := logCfg.RegisterCompletions(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "register log completions: %v\n", err)
	}

	if err := profCfg.RegisterCompletions(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "register profile completions: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(configPath, metricsAddr string, logCfg *logx.Config, profCfg *profile.Config) error {
	handler, err := logCfg.NewHandler(os.Stderr)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}

	logger := slog.New(handler)

	profiler := profCfg.NewProfiler()
	if err := profiler.Start(); err != nil {
		return fmt.Errorf("starting profiler: %w", err)
	}

	defer func() {
		if stopErr := profiler.Stop(); stopErr != nil {
			logger.Error("stopping profiler", "error", stopErr)
		}
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", configPath, err)
	}

	if !cfg.DisableCollection {
		logger.Info("sending anonymous usage data; set disable_collection to true to opt out")
		telemetry.Send("target-bigquery", version.Version, logger)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	if metricsAddr != "" {
		stopMetrics := serveMetrics(metricsAddr, reg, logger)
		defer stopMetrics()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wh, err := gbq.New(ctx, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("connecting to BigQuery: %w", err)
	}
	defer wh.Close()

	if cfg.IsHybrid() {
		return runHybrid(ctx, wh, cfg, logger, m)
	}

	if cfg.StreamDataEnabled() {
		return runPerRow(ctx, wh, cfg, logger)
	}

	return runBulkLoad(ctx, wh, cfg, logger)
}

// serveMetrics starts an HTTP server exposing reg at addr and returns a
// function that shuts it down. Listen failures are logged, not fatal:
// metrics are an observability aid, not a reason to refuse to ingest.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutting down metrics server", "error", err)
		}
	}
}

func runHybrid(ctx context.Context, wh warehouse.Warehouse, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) error {
	e := engine.New(wh, json.NewEncoder(os.Stdout), engine.Config{
		Project:         cfg.ProjectID,
		Dataset:         cfg.DatasetID,
		Location:        cfg.Location,
		ValidateRecords: cfg.ValidateRecordsEnabled(),
		CanDeleteTable:  cfg.DeleteTableOnIncompatibleSchema,
		MaxBatchRows:    cfg.MaxBatchRowsOrDefault(),
	}, engine.WithLogger(logger), engine.WithMetrics(m))

	if err := e.Run(ctx, os.Stdin); err != nil {
		return fmt.Errorf("running hybrid engine: %w", err)
	}

	return nil
}

func runPerRow(ctx context.Context, wh warehouse.Warehouse, cfg *config.Config, _ *slog.Logger) error {
	d := engine.NewPerRowDriver(wh, cfg.ProjectID, cfg.DatasetID, cfg.Location)

	state, err := d.Run(ctx, os.Stdin)
	if err != nil {
		return fmt.Errorf("running per-row driver: %w", err)
	}

	return emitFinalState(state)
}

func runBulkLoad(ctx context.Context, wh warehouse.Warehouse, cfg *config.Config, _ *slog.Logger) error {
	disposition := warehouse.WriteAppend
	if cfg.ReplicationMethod == config.ReplicationFullTable {
		disposition = warehouse.WriteTruncate
	}

	d := engine.NewBulkLoadDriver(wh, cfg.ProjectID, cfg.DatasetID, cfg.Location, disposition)

	state, err := d.Run(ctx, os.Stdin)
	if err != nil {
		return fmt.Errorf("running bulk-load driver: %w", err)
	}

	return emitFinalState(state)
}

func emitFinalState(state map[string]any) error {
	if state == nil {
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("emitting final state: %w", err)
	}

	return nil
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
