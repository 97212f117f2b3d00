// Package protocol decodes the newline-delimited JSON message stream the
// ingestion engine reads from standard input. The checkpoint lines written
// back to standard output are encoded by the checkpoint package.
//
// Each line is a JSON object carrying a "type" discriminator. [Decode]
// turns one line into one of [*Schema], [*Record], [*State], or
// [*ActivateVersion]. A line that fails to parse, or whose type is not
// one of those four, is reported as an error rather than silently
// dropped — callers are expected to route that error into their own
// failed-lines accumulator rather than abort, matching the non-fatal
// treatment protocol errors get everywhere else in this system.
package protocol
