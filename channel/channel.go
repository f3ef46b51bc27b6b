// Package channel provides the bounded attribute read/write and command
// invocation capability the calibration engine runs against. The rest of
// the module only ever sees the normalized Attributes map; transport
// response shapes stay behind this boundary.
package channel

import (
	"context"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zigbee"
)

// Attributes is a normalized read response. An attribute the device did
// not return is absent from the map; consumers must use the presence
// aware accessors rather than relying on zero values, as zero is a valid
// reading for status attributes.
type Attributes map[zcl.AttributeID]zcl.AttributeDataTypeValue

func (a Attributes) Value(id zcl.AttributeID) (zcl.AttributeDataTypeValue, bool) {
	v, found := a[id]
	return v, found
}

// Uint returns the attribute coerced to an unsigned integer. The boolean
// reports presence of the attribute, never truthiness of the value.
func (a Attributes) Uint(id zcl.AttributeID) (uint64, bool) {
	v, found := a[id]
	if !found {
		return 0, false
	}

	return coerceUint(v.Value)
}

// UintOr returns the attribute's value when the read response contained
// it, def otherwise. A present zero is returned as zero.
func (a Attributes) UintOr(id zcl.AttributeID, def uint64) uint64 {
	if v, found := a.Uint(id); found {
		return v
	}

	return def
}

// Bytes returns the attribute's raw octet content, tolerating the value
// shapes different transport versions produce.
func (a Attributes) Bytes(id zcl.AttributeID) ([]byte, bool) {
	v, found := a[id]
	if !found {
		return nil, false
	}

	switch b := v.Value.(type) {
	case []byte:
		return b, true
	case string:
		return []byte(b), true
	case []any:
		out := make([]byte, 0, len(b))
		for _, e := range b {
			u, ok := coerceUint(e)
			if !ok {
				return nil, false
			}
			out = append(out, byte(u))
		}
		return out, true
	default:
		return nil, false
	}
}

func coerceUint(value any) (uint64, bool) {
	switch n := value.(type) {
	case uint64:
		return n, true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Channel is the capability consumed by the calibration engine and the
// input monitor. Implementations bound every operation with a transport
// timeout. Standard attributes are addressed with zigbee.NoManufacturer;
// vendor attributes carry the manufacturer code.
type Channel interface {
	Read(ctx context.Context, attributes []zcl.AttributeID, manufacturer zigbee.ManufacturerCode) (Attributes, error)
	Write(ctx context.Context, attribute zcl.AttributeID, value zcl.AttributeDataTypeValue, manufacturer zigbee.ManufacturerCode) error
	Invoke(ctx context.Context, command interface{}) error
}
