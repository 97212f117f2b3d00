// Package warehouse defines the [Warehouse] interface the ingestion
// engine drives, and the error classification ([Classify]) the insert
// pipeline and table reconciler use to decide whether a failure is
// transient, an oversize payload, a schema mismatch, or something that
// should abort the run.
//
// [github.com/team-blaze/target-bigquery/warehouse/bigquery] provides
// the concrete adapter over cloud.google.com/go/bigquery; tests in this
// module and its callers use an in-memory fake instead.
package warehouse
