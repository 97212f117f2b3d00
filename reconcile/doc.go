// Package reconcile creates, updates, and (optionally) drops and
// recreates warehouse tables as their streams' schemas evolve.
//
// A table-schema update is wrapped in a [github.com/sony/gobreaker]
// circuit breaker: the warehouse's streaming-insert frontends are known to
// lag its metadata store by minutes after a schema change (see
// [Reconciler]'s retry horizon), and a stream stuck retrying a broken
// update should stop hammering the backend rather than burn its retry
// budget on calls likely to fail the same way.
package reconcile
