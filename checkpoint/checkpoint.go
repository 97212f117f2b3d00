package checkpoint

import "fmt"

// messageOutput represents "the thing checkpoint lines are written to".
// A *json.Encoder satisfies this in normal usage; tests substitute a
// slice-backed fake to inspect emitted values without parsing bytes.
type messageOutput interface {
	Encode(v any) error
}

// Emitter writes checkpoint lines, enforcing the one rule the rest of
// the engine relies on: a value is only ever written when the caller
// explicitly asks, never implicitly on a timer or a buffer flush.
type Emitter struct {
	out messageOutput
}

// New returns an [Emitter] writing through out.
func New(out messageOutput) *Emitter {
	return &Emitter{out: out}
}

// Emit writes value as one line if it is non-nil; a nil value (no state
// seen yet, or the run suppressed the final checkpoint) is a deliberate
// no-op, not an error.
func (e *Emitter) Emit(value map[string]any) error {
	if value == nil {
		return nil
	}

	if err := e.out.Encode(value); err != nil {
		return fmt.Errorf("checkpoint: emitting state: %w", err)
	}

	return nil
}
