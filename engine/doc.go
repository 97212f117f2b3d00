// Package engine drives the hybrid ingestion state machine: it reads
// decoded protocol messages, registers and reconciles per-stream
// tables, buffers and flushes rows, and emits checkpoints — the
// component everything else in this module exists to support.
//
// [Engine] is single-threaded cooperative by construction: Run processes
// one input line to completion before reading the next, matching the
// concurrency model the rest of this system assumes (no locking
// anywhere below it). The fire-and-forget telemetry beacon is the only
// concurrent task in the whole process, and lives entirely outside this
// package.
package engine
