// Package checkpoint writes the engine's most recently accepted state
// value back to the upstream on standard output, one JSON object per
// line, flushed immediately — the only output this process produces
// besides diagnostics on standard error.
package checkpoint
