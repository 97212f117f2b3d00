package warehouse

import (
	"errors"
	"strconv"
	"strings"
)

// Kind classifies a [Warehouse] call failure so the insert pipeline and
// table reconciler know how to react.
type Kind int

// Error kinds. [Classify] checks for oversize first, then schema
// incompatibility, then retryable; anything else is unclassified.
const (
	// KindUnclassified means re-raise: the caller should abort the run.
	KindUnclassified Kind = iota
	// KindRetryable means sleep and retry within the stream's horizon.
	KindRetryable
	// KindOversize means split the batch in half and retry each half once.
	KindOversize
	// KindSchemaIncompatible means the stored schema no longer accepts
	// this shape; recoverable only by dropping and recreating the table.
	KindSchemaIncompatible
)

// RetryableReasons are the structured BigQuery error reasons documented
// at https://cloud.google.com/bigquery/docs/error-messages#errortable
// that the pipeline treats as transient.
var RetryableReasons = map[string]struct{}{
	"backendError":      {},
	"blocked":           {},
	"internalError":     {},
	"quotaExceeded":     {},
	"rateLimitExceeded": {},
	"stopped":           {},
	"tableUnavailable":  {},
}

// MaxInsertPayloadBytes is the pre-emptive oversize threshold: a batch
// whose JSON encoding exceeds this size is split before it is ever sent,
// rather than waiting for the backend to reject it.
const MaxInsertPayloadBytes = 9_000_000

const (
	oversizePayloadSubstring  = "payload size exceeds the limit"
	oversizeRowCountSubstring = "too many rows present"
	schemaMismatchSubstring   = "Provided Schema does not match"
)

// Reasoner is implemented by warehouse adapter errors that can surface
// the backend's structured "reason" codes (see [RetryableReasons]).
// [Classify] falls back to substring matching on Error() when an error
// does not implement it, or when its reasons don't explain the failure —
// compatibility with error shapes the backend sends without a reason.
type Reasoner interface {
	ReasonCodes() []string
}

// BackendError wraps a warehouse client error together with whatever
// structured reason codes it exposed, so [Classify] can inspect them
// without depending on any particular client library's error type.
type BackendError struct {
	Err     error
	Reasons []string
}

func (e *BackendError) Error() string { return e.Err.Error() }
func (e *BackendError) Unwrap() error { return e.Err }

// ReasonCodes returns the structured reason codes carried in e.Reasons.
func (e *BackendError) ReasonCodes() []string { return e.Reasons }

var _ Reasoner = (*BackendError)(nil)

// Classify inspects err and returns the [Kind] that determines how the
// caller should react. Order matters: oversize and
// schema-incompatibility are recognized by message content first (the
// backend doesn't expose a structured reason for either), then
// structured reasons are checked, then — only as a last resort, for
// backend shapes that omit reason entirely — a substring fallback for
// the same retryable conditions.
func Classify(err error) Kind {
	if err == nil {
		return KindUnclassified
	}

	msg := err.Error()

	if strings.Contains(msg, oversizePayloadSubstring) || strings.Contains(msg, oversizeRowCountSubstring) {
		return KindOversize
	}

	if strings.Contains(msg, schemaMismatchSubstring) {
		return KindSchemaIncompatible
	}

	var reasoner Reasoner
	if errors.As(err, &reasoner) {
		for _, reason := range reasoner.ReasonCodes() {
			if _, ok := RetryableReasons[reason]; ok {
				return KindRetryable
			}
		}
	}

	if retryableBySubstring(msg) {
		return KindRetryable
	}

	return KindUnclassified
}

// retryableBySubstring is the documented fallback for: when
// an error carries no structured reason, fall back to matching its
// reason name, lower-cased, against the message text.
func retryableBySubstring(msg string) bool {
	lower := strings.ToLower(msg)
	for reason := range RetryableReasons {
		if strings.Contains(lower, strings.ToLower(reason)) {
			return true
		}
	}

	return false
}

// IsOversizeOrLarge reports whether either the error is already
// classified as oversize, or the pre-encoded batch size exceeds
// [MaxInsertPayloadBytes]. encodedSize is the caller's own
// len(json.Marshal(...)) — this function never encodes anything itself.
func IsOversizeOrLarge(err error, encodedSize int) bool {
	if err != nil && Classify(err) == KindOversize {
		return true
	}

	return encodedSize > MaxInsertPayloadBytes
}

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindOversize:
		return "oversize"
	case KindSchemaIncompatible:
		return "schema_incompatible"
	default:
		return "unclassified(" + strconv.Itoa(int(k)) + ")"
	}
}
