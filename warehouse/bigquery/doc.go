// Package bigquery adapts [github.com/team-blaze/target-bigquery/warehouse.Warehouse]
// to cloud.google.com/go/bigquery. It is the only package in this module
// that imports the BigQuery client library directly; everything else
// talks to the [warehouse.Warehouse] interface so it can be driven
// against an in-memory fake in tests.
package bigquery
