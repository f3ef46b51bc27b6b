package calibration

import (
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zigbee"
)

// DefaultManufacturerCode qualifies the vendor specific attributes of the
// shade controllers this engine targets.
const DefaultManufacturerCode = zigbee.ManufacturerCode(0x10f2)

// Standard Window Covering cluster attributes. Mode and the device type
// MUST be written without a manufacturer code; firmware answers a vendor
// qualified write on them with an unsupported attribute status.
const (
	AttrWindowCoveringType       = zcl.AttributeID(0x0000)
	AttrConfigStatus             = zcl.AttributeID(0x0007)
	AttrOperationalStatus        = zcl.AttributeID(0x000a)
	AttrInstalledOpenLimitLift   = zcl.AttributeID(0x0010)
	AttrInstalledClosedLimitLift = zcl.AttributeID(0x0011)
	AttrInstalledOpenLimitTilt   = zcl.AttributeID(0x0012)
	AttrInstalledClosedLimitTilt = zcl.AttributeID(0x0013)
	AttrMode                     = zcl.AttributeID(0x0017)
)

// Vendor specific attributes, addressed with the manufacturer code. The
// identifiers are pinned from the vendor technical reference.
const (
	AttrTurnaroundGuardTime        = zcl.AttributeID(0x1000)
	AttrLiftToTiltTransitionSteps  = zcl.AttributeID(0x1001)
	AttrTotalSteps                 = zcl.AttributeID(0x1002)
	AttrLiftToTiltTransitionSteps2 = zcl.AttributeID(0x1003)
	AttrTotalSteps2                = zcl.AttributeID(0x1004)
	// Older firmware omits OperationalStatus and exposes motor state here
	// instead.
	AttrLegacyMotorState = zcl.AttributeID(0x100a)
)

const (
	modeNormal      = uint8(0x00)
	modeCalibration = uint8(0x02)

	limitFullyOpen   = uint16(0x0000)
	limitFullyClosed = uint16(0xffff)

	// A step count attribute at this value means the device has never
	// completed a calibration; writing it back resets the measurement.
	uncalibratedSentinel = uint64(0xffff)
)

// MotorStatus is the interpreted motor state. StatusStopped is a genuine
// zero reading; StatusUnknown is reserved for responses that carried no
// interpretable value at all.
type MotorStatus uint8

const (
	StatusStopped MotorStatus = iota
	StatusMovingUp
	StatusMovingDown
	StatusUnknown
)

func (m MotorStatus) String() string {
	switch m {
	case StatusStopped:
		return "Stopped"
	case StatusMovingUp:
		return "MovingUp"
	case StatusMovingDown:
		return "MovingDown"
	default:
		return "Unknown"
	}
}

func motorStatusFromValue(v uint64) MotorStatus {
	switch v & 0x03 {
	case 0x00:
		return StatusStopped
	case 0x01:
		return StatusMovingUp
	case 0x02:
		return StatusMovingDown
	default:
		return StatusUnknown
	}
}
