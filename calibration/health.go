package calibration

import (
	"context"
	"errors"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zigbee"
)

// ErrClusterAbsent reports a device that answered but did not present the
// window covering attributes a shade controller must have.
var ErrClusterAbsent = errors.New("window covering attributes not present on device")

// HealthReport is the outcome of a read only check.
type HealthReport struct {
	MotorStatus       MotorStatus
	Calibrated        bool
	TotalSteps        uint64
	InCalibrationMode bool
}

// HealthCheck verifies the device is reachable and carries the expected
// attributes, without commanding any movement or writing anything. It
// deliberately does not take the device lock; a check must remain
// possible while a calibration runs elsewhere.
func (e *Engine) HealthCheck(ctx context.Context) (*HealthReport, error) {
	attrs, err := e.ch.Read(ctx, []zcl.AttributeID{AttrWindowCoveringType, AttrMode}, zigbee.NoManufacturer)
	if err != nil {
		return nil, err
	}

	if _, found := attrs.Value(AttrWindowCoveringType); !found {
		return nil, ErrClusterAbsent
	}

	report := &HealthReport{}

	if mode, found := attrs.Uint(AttrMode); found {
		report.InCalibrationMode = uint8(mode)&modeCalibration != 0
	}

	status, err := e.readMotorStatus(ctx)
	if err != nil {
		return nil, err
	}

	report.MotorStatus = status

	vendor, err := e.ch.Read(ctx, []zcl.AttributeID{AttrTotalSteps}, e.cfg.Manufacturer)
	if err != nil {
		return nil, err
	}

	if v, found := vendor.Uint(AttrTotalSteps); found && v != uncalibratedSentinel {
		report.Calibrated = true
		report.TotalSteps = v
	}

	return report, nil
}
