// Package stream holds the per-stream runtime state the ingestion
// engine accumulates as it reads the protocol — one [Stream] per
// upstream stream name, tracked in insertion order by [Registry].
//
// The source this system is modeled on keeps this state as several
// side-by-side maps keyed by stream name (schemas, key_properties,
// tables, rows, errors, ...). That is an implementation artifact, not a
// requirement: this package collapses it into one entity per stream so
// a reconciler or flush pass has one thing to look up instead of five.
package stream
