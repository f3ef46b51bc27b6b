// Package microcode decodes the InputActions attribute carried by shade
// controllers: a compact binary program describing which outgoing command
// the device emits for each physical input and press type.
//
// The record layout below is pinned from the vendor technical reference
// and guarded by golden byte vectors in the tests. Treat it as provisional
// until validated against hardware; all offset arithmetic lives in this
// file for that reason.
package microcode

import (
	"fmt"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zigbee"
)

type PressType uint8

const (
	Pressed PressType = iota
	Released
	ShortPress
	LongPress
	DoublePress
)

func (p PressType) String() string {
	switch p {
	case Pressed:
		return "Pressed"
	case Released:
		return "Released"
	case ShortPress:
		return "ShortPress"
	case LongPress:
		return "LongPress"
	case DoublePress:
		return "DoublePress"
	default:
		return fmt.Sprintf("PressType(%d)", uint8(p))
	}
}

// Rule maps one physical input and press type onto the command the device
// emits for it. Rules are immutable once parsed.
type Rule struct {
	Input    uint8
	Press    PressType
	Endpoint zigbee.Endpoint
	Cluster  zigbee.ClusterID
	Command  zcl.CommandIdentifier

	// Payload holds the single expected payload byte when the record
	// carries one; MatchAnyPayload is set when the record omits it and the
	// rule matches regardless of payload.
	Payload         uint8
	MatchAnyPayload bool
}

// TruncatedError reports a blob whose declared structure overruns the
// bytes actually present.
type TruncatedError struct {
	Declared  int
	Available int
}

func (e TruncatedError) Error() string {
	return fmt.Sprintf("microcode truncated: declared %d bytes, %d available", e.Declared, e.Available)
}

// UnknownTransitionError reports a transition code outside the known press
// type enumeration. The code is preserved for diagnostics rather than
// being coerced to a default.
type UnknownTransitionError struct {
	Code uint8
}

func (e UnknownTransitionError) Error() string {
	return fmt.Sprintf("microcode unknown transition code: 0x%02x", e.Code)
}

const (
	minimumRecordLength = 6
	maximumRecordLength = 7
)

// Parse decodes an InputActions blob into its rule sequence. It is pure:
// the same bytes always produce the same rules. An empty but well formed
// blob yields zero rules and no error.
func Parse(data []byte) ([]Rule, error) {
	if len(data) < 1 {
		return nil, TruncatedError{Declared: 1, Available: 0}
	}

	count := int(data[0])
	offset := 1

	var rules []Rule

	for i := 0; i < count; i++ {
		if offset >= len(data) {
			return nil, TruncatedError{Declared: offset + 1, Available: len(data)}
		}

		length := int(data[offset])
		offset++

		if length < minimumRecordLength || length > maximumRecordLength {
			// Malformed framing is indistinguishable from a truncation of
			// the element stream.
			return nil, TruncatedError{Declared: offset + length, Available: len(data)}
		}

		if offset+length > len(data) {
			return nil, TruncatedError{Declared: offset + length, Available: len(data)}
		}

		record := data[offset : offset+length]
		offset += length

		press, err := pressTypeFromTransition(record[1])
		if err != nil {
			return nil, err
		}

		rule := Rule{
			Input:           record[0],
			Press:           press,
			Endpoint:        zigbee.Endpoint(record[2]),
			Cluster:         zigbee.ClusterID(uint16(record[3]) | uint16(record[4])<<8),
			Command:         zcl.CommandIdentifier(record[5]),
			MatchAnyPayload: true,
		}

		if length == maximumRecordLength {
			rule.Payload = record[6]
			rule.MatchAnyPayload = false
		}

		rules = append(rules, rule)
	}

	return rules, nil
}

func pressTypeFromTransition(code uint8) (PressType, error) {
	switch code {
	case 0x00:
		return Pressed, nil
	case 0x01:
		return Released, nil
	case 0x02:
		return ShortPress, nil
	case 0x03:
		return LongPress, nil
	case 0x04:
		return DoublePress, nil
	default:
		return 0, UnknownTransitionError{Code: code}
	}
}
