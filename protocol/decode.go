package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors returned by [Decode]. Both are non-fatal: a caller
// should route the failing line into its own failed-lines accumulator
// and keep reading, never abort the run.
var (
	ErrMalformedLine    = errors.New("protocol: malformed line")
	ErrUnrecognizedType = errors.New("protocol: unrecognized message type")
)

// envelope is the shape every line shares before we know which concrete
// message it decodes to.
type envelope struct {
	Type Type `json:"type"`
}

// decodeInto unmarshals line into v using a decoder with UseNumber
// enabled, so record fields of arbitrary precision survive as
// [json.Number] instead of being silently narrowed to float64 by the
// default decoder. The pipeline package performs the float64 coercion
// explicitly, and only where the warehouse transport requires it.
func decodeInto(line []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	return dec.Decode(v)
}

// Decode parses one non-empty input line into a [*Schema], [*Record],
// [*State], or [*ActivateVersion]. A line that is not valid JSON, or
// whose "type" is absent or unrecognized, yields an error wrapping
// [ErrMalformedLine] or [ErrUnrecognizedType] — the line itself, not a
// partially-decoded message.
func Decode(line []byte) (any, error) {
	line = bytes.TrimSpace(line)

	var env envelope
	if err := decodeInto(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedLine, err)
	}

	switch env.Type {
	case TypeSchema:
		var msg Schema
		if err := decodeInto(line, &msg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedLine, err)
		}

		return &msg, nil
	case TypeRecord:
		var msg Record
		if err := decodeInto(line, &msg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedLine, err)
		}

		return &msg, nil
	case TypeState:
		var msg State
		if err := decodeInto(line, &msg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedLine, err)
		}

		return &msg, nil
	case TypeActivateVersion:
		var msg ActivateVersion
		if err := decodeInto(line, &msg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedLine, err)
		}

		return &msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedType, env.Type)
	}
}
