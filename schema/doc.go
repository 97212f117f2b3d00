// Package schema translates the upstream's JSON-schema fragments (as
// decoded by [github.com/team-blaze/target-bigquery/protocol]) into the
// warehouse's column model, and compares translated schemas to detect
// evolution that requires table reconciliation.
//
// Fragments are represented with [github.com/google/jsonschema-go/jsonschema.Schema]
// rather than a bespoke type: its Type/Types/AnyOf/Format/Properties/Items
// fields already match the subset of JSON Schema the upstream protocol
// uses. [Translate] walks that tree the same way a schema generator walks
// a source tree — recursively, least-case-first — but produces [Column]
// values instead of another schema node.
package schema
