package checklist

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TriState is the outcome of a single test cell.
type TriState int8

const (
	NotTested TriState = iota
	Pass
	Fail
)

// Toggle advances the value along null -> true -> false -> null.
func (t TriState) Toggle() TriState {
	switch t {
	case NotTested:
		return Pass
	case Pass:
		return Fail
	default:
		return NotTested
	}
}

func (t TriState) String() string {
	switch t {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	default:
		return "not_tested"
	}
}

// Of converts a nullable boolean into a TriState.
func Of(v *bool) TriState {
	switch {
	case v == nil:
		return NotTested
	case *v:
		return Pass
	default:
		return Fail
	}
}

// MarshalJSON encodes as null, true or false.
func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case Pass:
		return []byte("true"), nil
	case Fail:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, true or false.
func (t *TriState) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "null":
		*t = NotTested
	case "true":
		*t = Pass
	case "false":
		*t = Fail
	default:
		return fmt.Errorf("checklist: invalid tri-state value %s", data)
	}
	return nil
}

var _ json.Marshaler = TriState(0)
