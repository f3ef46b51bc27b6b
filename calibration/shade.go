package calibration

// ShadeType selects the device type classification written during
// preparation and whether tilt transition configuration applies.
type ShadeType uint8

const (
	RollerShade ShadeType = iota
	VenetianBlind
)

func (s ShadeType) String() string {
	switch s {
	case RollerShade:
		return "RollerShade"
	case VenetianBlind:
		return "VenetianBlind"
	default:
		return "ShadeType(?)"
	}
}

// HasTilt reports whether the shade type carries a tilt axis. Lift only
// types do not expose the tilt transition attribute at all; writing it
// yields a malformed command rejection.
func (s ShadeType) HasTilt() bool {
	return s == VenetianBlind
}

func (s ShadeType) deviceTypeCode() uint8 {
	switch s {
	case VenetianBlind:
		return 0x07
	default:
		return 0x00
	}
}
