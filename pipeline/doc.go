// Package pipeline flushes a stream's buffered rows to the warehouse:
// row-ID computation for dedup, decimal-to-float64 coercion, adaptive
// halving on oversize payloads, and bounded retry on classified
// transient errors.
//
// [Flusher.Flush] never aborts the run on a stream's behalf — a stream
// that exhausts its retry budget reports its rows back to the caller as
// failed rather than returning an error, except for the one case
// calls unclassified, which propagates so the caller can decide whether
// to abort.
package pipeline
