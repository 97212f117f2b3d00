// Package config loads and validates the JSON configuration document
// named by the process's -c/--config flag.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
)

// ReplicationMethod selects which driver ingests the stream.
type ReplicationMethod string

// Recognized replication methods. Anything other than [ReplicationHybrid]
// or [ReplicationFullTable] selects bulk-load-with-append.
const (
	ReplicationHybrid    ReplicationMethod = "HYBRID"
	ReplicationFullTable ReplicationMethod = "FULL_TABLE"
)

// DefaultMaxBatchRows is the pre-emptive per-insert-call row cap applied
// when max_batch_rows is absent from the configuration document,
// matching the source target's fixed row-count split.
const DefaultMaxBatchRows = 10_000

// Config is the process configuration document. Unknown JSON keys are
// ignored by decoding into this named struct without
// DisallowUnknownFields — a document written for a newer or older
// version of this target is still accepted.
type Config struct {
	ProjectID                       string            `json:"project_id" validate:"required"`
	DatasetID                       string            `json:"dataset_id"`
	ReplicationMethod               ReplicationMethod `json:"replication_method"`
	StreamData                      *bool             `json:"stream_data"`
	ValidateRecords                 *bool             `json:"validate_records"`
	Location                        string            `json:"location"`
	DeleteTableOnIncompatibleSchema bool              `json:"delete_table_on_incompatible_schema"`
	DisableCollection               bool              `json:"disable_collection"`
	MaxBatchRows                    int               `json:"max_batch_rows"`
}

// MaxBatchRowsOrDefault returns the configured max_batch_rows, or
// [DefaultMaxBatchRows] when the document leaves it unset (zero).
func (c Config) MaxBatchRowsOrDefault() int {
	if c.MaxBatchRows == 0 {
		return DefaultMaxBatchRows
	}

	return c.MaxBatchRows
}

// StreamDataEnabled reports whether per-row streaming is selected for a
// non-HYBRID replication method: stream_data defaults to true, matching
// the source's permissive field handling.
func (c Config) StreamDataEnabled() bool {
	if c.StreamData == nil {
		return true
	}

	return *c.StreamData
}

// ValidateRecordsEnabled reports whether records are validated against
// their schema before being buffered; defaults to true.
func (c Config) ValidateRecordsEnabled() bool {
	if c.ValidateRecords == nil {
		return true
	}

	return *c.ValidateRecords
}

// IsHybrid reports whether the streaming hybrid engine is selected.
func (c Config) IsHybrid() bool {
	return c.ReplicationMethod == ReplicationHybrid
}

// Load reads and validates the configuration document at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path) //nolint:gosec // config path is an operator-supplied CLI flag.
	if err != nil {
		return nil, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes and validates a configuration document read from r.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
