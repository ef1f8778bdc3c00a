package interview

import (
	"bytes"
	"fmt"
)

// Tristate is a boolean that can also be "unknown". The zero value is
// [TristateUnknown], so default-constructed criteria are unevaluated rather
// than failed.
//
// On the wire it is null / false / true, matching the scorer contract.
type Tristate int8

const (
	// TristateUnknown means the criterion could not be evaluated.
	TristateUnknown Tristate = iota

	// TristateNo means the criterion was evaluated and not met.
	TristateNo

	// TristateYes means the criterion was evaluated and met.
	TristateYes
)

// TristateOf converts a plain bool into a known Tristate.
func TristateOf(b bool) Tristate {
	if b {
		return TristateYes
	}
	return TristateNo
}

// Known reports whether the value carries an actual judgement.
func (t Tristate) Known() bool {
	return t == TristateYes || t == TristateNo
}

// Met reports whether the criterion was evaluated and met.
// Unknown is NOT met-by-default: Met returns false for it, and callers that
// need to distinguish "not met" from "unknown" must check Known first.
func (t Tristate) Met() bool {
	return t == TristateYes
}

// String returns the display token: "yes", "no", or "unknown".
func (t Tristate) String() string {
	switch t {
	case TristateYes:
		return "yes"
	case TristateNo:
		return "no"
	default:
		return "unknown"
	}
}

var (
	jsonNull  = []byte("null")
	jsonTrue  = []byte("true")
	jsonFalse = []byte("false")
)

// MarshalJSON encodes the value as true, false, or null.
func (t Tristate) MarshalJSON() ([]byte, error) {
	switch t {
	case TristateYes:
		return jsonTrue, nil
	case TristateNo:
		return jsonFalse, nil
	default:
		return jsonNull, nil
	}
}

// UnmarshalJSON accepts true, false, or null. Anything else is an error;
// defensive coercion of sloppy scorer output happens in the analysis
// package, not here.
func (t *Tristate) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, jsonTrue):
		*t = TristateYes
	case bytes.Equal(data, jsonFalse):
		*t = TristateNo
	case bytes.Equal(data, jsonNull):
		*t = TristateUnknown
	default:
		return fmt.Errorf("interview: invalid tristate %q", data)
	}
	return nil
}
