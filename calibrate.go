package zsc

import (
	"context"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/zsc/calibration"
	"time"
)

// CalibrationFinished is delivered to subscribers after a successful run
// has been archived.
type CalibrationFinished struct {
	Device zigbee.IEEEAddress
	Result calibration.Result
}

// Calibrate runs a full travel measurement against the device, holding
// its lock for the whole run. A concurrent attempt against the same
// device fails fast with calibration.ErrLockHeld.
func (c *Controller) Calibrate(ctx context.Context, d *Device, shade calibration.ShadeType) (*calibration.Result, error) {
	d.m.RLock()
	cfg := d.calibration
	ch := d.covering
	d.m.RUnlock()

	engine := calibration.New(ch, d.ieee, cfg, c.logger)

	result, err := engine.Run(ctx, shade, c.locks)
	if err != nil {
		return nil, err
	}

	c.archiveResult(d, result)

	if err := c.events.Call(ctx, CalibrationFinished{Device: d.ieee, Result: *result}); err != nil {
		c.logger.Warn(ctx, "Calibration event delivery failed.", logwrap.Err(err), logwrap.Datum("IEEEAddress", d.ieee.String()))
	}

	return result, nil
}

// archiveResult records the outcome under the controller's persistence
// section, keyed by device, so a restart can tell calibrated devices
// apart without touching the network.
func (c *Controller) archiveResult(d *Device, r *calibration.Result) {
	s := c.section.Section("Calibration", d.ieee.String())

	s.Set("TotalSteps", int(r.TotalSteps))
	s.Set("Asymmetry", int(r.Asymmetry))
	s.Set("AsymmetryExceeded", r.AsymmetryExceeded)
	s.Set("AlreadyCalibrated", r.AlreadyCalibrated)
	s.Set("ElapsedMs", int(r.Elapsed.Milliseconds()))
	s.Set("CompletedAt", int(time.Now().Unix()))
}

// HealthCheck is read only and does not take the device lock, so it
// remains available during a calibration.
func (c *Controller) HealthCheck(ctx context.Context, d *Device) (*calibration.HealthReport, error) {
	d.m.RLock()
	cfg := d.calibration
	ch := d.covering
	d.m.RUnlock()

	return calibration.New(ch, d.ieee, cfg, c.logger).HealthCheck(ctx)
}
