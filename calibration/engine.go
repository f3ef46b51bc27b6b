// Package calibration drives a motorized cover through an end to end
// travel measurement using only attribute reads, attribute writes and
// motor commands. The device offers no trustworthy position feedback
// while calibrating; completion of each movement is detected by polling a
// status attribute until the firmware's own stall detection halts the
// motor at a physical limit.
package calibration

import (
	"context"
	"errors"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/zsc/channel"
	"github.com/shimmeringbee/zsc/commands/windowcovering"
	"github.com/shimmeringbee/zsc/lock"
	"time"
)

type Config struct {
	// Manufacturer qualifies the vendor specific attributes.
	Manufacturer zigbee.ManufacturerCode
	// PollInterval is the pause between motor status reads.
	PollInterval time.Duration
	// PhaseTimeout is the ceiling for a single movement to reach a limit.
	PhaseTimeout time.Duration
	// ClearDuration is how long the shade is driven off a possible top
	// limit before the first upward travel.
	ClearDuration time.Duration
	// TiltTransitionSteps is written for tilt capable shades on first
	// calibration.
	TiltTransitionSteps uint16
	// AsymmetryTolerance marks the result when the two travel
	// measurements diverge by more than this many steps. Zero disables
	// the check; asymmetry is always reported either way.
	AsymmetryTolerance uint64
}

func DefaultConfig() Config {
	return Config{
		Manufacturer:        DefaultManufacturerCode,
		PollInterval:        2 * time.Second,
		PhaseTimeout:        2 * time.Minute,
		ClearDuration:       2 * time.Second,
		TiltTransitionSteps: 0x000a,
	}
}

const cleanupTimeout = 10 * time.Second

var errStepsUnavailable = errors.New("step count attribute missing from response")

type Engine struct {
	ch     channel.Channel
	device zigbee.IEEEAddress
	cfg    Config
	logger logwrap.Logger
}

func New(ch channel.Channel, device zigbee.IEEEAddress, cfg Config, l logwrap.Logger) *Engine {
	return &Engine{
		ch:     ch,
		device: device,
		cfg:    cfg,
		logger: l,
	}
}

// Run executes one full calibration. The device lock is taken up front
// and held for the whole run; if another exclusive operation holds it the
// run fails fast with ErrLockHeld rather than queuing. Cancellation is
// honoured between phases and inside every poll loop.
func (e *Engine) Run(pctx context.Context, shade ShadeType, locks *lock.Registry) (*Result, error) {
	guard, ok := locks.TryAcquire(e.device)
	if !ok {
		return nil, ErrLockHeld
	}
	defer guard.Release()

	c := Context{
		Shade:     shade,
		StartedAt: time.Now(),
	}

	phases := []struct {
		phase Phase
		run   func(context.Context, Context) (Context, error)
	}{
		{PhasePrepare, e.prepare},
		{PhaseClearFromLimit, e.clearFromLimit},
		{PhaseFindTopLimit, e.findTopLimit},
		{PhaseFindBottomLimit, e.findBottomLimit},
		{PhaseVerifyTop, e.verifyTop},
		{PhaseFinalize, e.finalize},
	}

	for _, p := range phases {
		if pctx.Err() != nil {
			err := CancelledError{Phase: p.phase}
			e.cleanup(err)
			return nil, err
		}

		ctx, end := e.logger.Segment(pctx, "Calibration phase.", logwrap.Datum("Phase", p.phase.String()))
		next, err := p.run(ctx, c)
		end()

		if err != nil {
			e.logger.Error(pctx, "Calibration failed.", logwrap.Err(err), logwrap.Datum("Phase", p.phase.String()))
			e.cleanup(err)
			return nil, err
		}

		c = next
		c.Completed = append(c.Completed, p.phase)
	}

	asymmetry := c.TotalSteps - c.VerifySteps
	if c.VerifySteps > c.TotalSteps {
		asymmetry = c.VerifySteps - c.TotalSteps
	}

	result := &Result{
		TotalSteps:        c.TotalSteps,
		Asymmetry:         asymmetry,
		AsymmetryExceeded: e.cfg.AsymmetryTolerance > 0 && asymmetry > e.cfg.AsymmetryTolerance,
		AlreadyCalibrated: c.AlreadyCalibrated,
		PhasesCompleted:   c.Completed,
		Elapsed:           time.Since(c.StartedAt),
	}

	e.logger.Info(pctx, "Calibration complete.", logwrap.Datum("TotalSteps", result.TotalSteps), logwrap.Datum("Asymmetry", result.Asymmetry), logwrap.Datum("ElapsedMs", result.Elapsed.Milliseconds()))

	return result, nil
}

func (e *Engine) prepare(ctx context.Context, c Context) (Context, error) {
	attrs, err := e.ch.Read(ctx, []zcl.AttributeID{AttrTotalSteps}, e.cfg.Manufacturer)
	if err != nil {
		return c, PhaseError{Phase: PhasePrepare, Cause: err}
	}

	if v, found := attrs.Uint(AttrTotalSteps); found && v != uncalibratedSentinel {
		c.AlreadyCalibrated = true
	}

	if err := e.write8(ctx, PhasePrepare, AttrWindowCoveringType, c.Shade.deviceTypeCode(), zigbee.NoManufacturer); err != nil {
		return c, err
	}

	if err := e.write16(ctx, PhasePrepare, AttrInstalledOpenLimitLift, limitFullyOpen, zigbee.NoManufacturer); err != nil {
		return c, err
	}

	if err := e.write16(ctx, PhasePrepare, AttrInstalledClosedLimitLift, limitFullyClosed, zigbee.NoManufacturer); err != nil {
		return c, err
	}

	if c.Shade.HasTilt() {
		if err := e.write16(ctx, PhasePrepare, AttrInstalledOpenLimitTilt, limitFullyOpen, zigbee.NoManufacturer); err != nil {
			return c, err
		}

		if err := e.write16(ctx, PhasePrepare, AttrInstalledClosedLimitTilt, limitFullyClosed, zigbee.NoManufacturer); err != nil {
			return c, err
		}
	}

	if !c.AlreadyCalibrated {
		// Fresh devices need the step counters back at the sentinel before
		// they accept a new measurement; calibrated devices reject this
		// write, so it is skipped for them.
		if err := e.write16(ctx, PhasePrepare, AttrTotalSteps, uint16(uncalibratedSentinel), e.cfg.Manufacturer); err != nil {
			return c, err
		}

		if err := e.write16(ctx, PhasePrepare, AttrTotalSteps2, uint16(uncalibratedSentinel), e.cfg.Manufacturer); err != nil {
			return c, err
		}
	}

	// Mode is a standard attribute; a manufacturer qualified write is
	// answered with an unsupported attribute status.
	if err := e.write8(ctx, PhasePrepare, AttrMode, modeCalibration, zigbee.NoManufacturer); err != nil {
		return c, err
	}

	return c, nil
}

// clearFromLimit drives the shade briefly downwards regardless of where
// it rests. Stall detection during calibration needs a current draw
// transition when travel meets a limit; starting FindTopLimit already at
// the top would never produce one and the firmware would wait forever.
// Starting position cannot be read reliably in calibration mode, so this
// always runs.
func (e *Engine) clearFromLimit(ctx context.Context, c Context) (Context, error) {
	if err := e.invoke(ctx, PhaseClearFromLimit, &windowcovering.DownClose{}); err != nil {
		return c, err
	}

	select {
	case <-ctx.Done():
		return c, CancelledError{Phase: PhaseClearFromLimit}
	case <-time.After(e.cfg.ClearDuration):
	}

	if err := e.invoke(ctx, PhaseClearFromLimit, &windowcovering.Stop{}); err != nil {
		return c, err
	}

	return c, nil
}

func (e *Engine) findTopLimit(ctx context.Context, c Context) (Context, error) {
	if err := e.invoke(ctx, PhaseFindTopLimit, &windowcovering.UpOpen{}); err != nil {
		return c, err
	}

	return c, e.pollUntilStopped(ctx, PhaseFindTopLimit)
}

func (e *Engine) findBottomLimit(ctx context.Context, c Context) (Context, error) {
	if err := e.invoke(ctx, PhaseFindBottomLimit, &windowcovering.DownClose{}); err != nil {
		return c, err
	}

	if err := e.pollUntilStopped(ctx, PhaseFindBottomLimit); err != nil {
		return c, err
	}

	attrs, err := e.ch.Read(ctx, []zcl.AttributeID{AttrTotalSteps}, e.cfg.Manufacturer)
	if err != nil {
		return c, PhaseError{Phase: PhaseFindBottomLimit, Cause: err}
	}

	v, found := attrs.Uint(AttrTotalSteps)
	if !found {
		return c, PhaseError{Phase: PhaseFindBottomLimit, Cause: errStepsUnavailable}
	}

	c.TotalSteps = v

	return c, nil
}

func (e *Engine) verifyTop(ctx context.Context, c Context) (Context, error) {
	if err := e.invoke(ctx, PhaseVerifyTop, &windowcovering.UpOpen{}); err != nil {
		return c, err
	}

	if err := e.pollUntilStopped(ctx, PhaseVerifyTop); err != nil {
		return c, err
	}

	attrs, err := e.ch.Read(ctx, []zcl.AttributeID{AttrTotalSteps2}, e.cfg.Manufacturer)
	if err != nil {
		return c, PhaseError{Phase: PhaseVerifyTop, Cause: err}
	}

	v, found := attrs.Uint(AttrTotalSteps2)
	if !found {
		return c, PhaseError{Phase: PhaseVerifyTop, Cause: errStepsUnavailable}
	}

	c.VerifySteps = v

	return c, nil
}

func (e *Engine) finalize(ctx context.Context, c Context) (Context, error) {
	// The tilt transition attribute only exists on tilt capable
	// configurations, and calibrated devices have already locked it; in
	// either case the device rejects the write.
	if c.Shade.HasTilt() && !c.AlreadyCalibrated {
		if err := e.write16(ctx, PhaseFinalize, AttrLiftToTiltTransitionSteps, e.cfg.TiltTransitionSteps, e.cfg.Manufacturer); err != nil {
			return c, err
		}

		if err := e.write16(ctx, PhaseFinalize, AttrLiftToTiltTransitionSteps2, e.cfg.TiltTransitionSteps, e.cfg.Manufacturer); err != nil {
			return c, err
		}
	}

	if err := e.write8(ctx, PhaseFinalize, AttrMode, modeNormal, zigbee.NoManufacturer); err != nil {
		return c, err
	}

	return c, nil
}

func (e *Engine) pollUntilStopped(ctx context.Context, phase Phase) error {
	deadline := time.Now().Add(e.cfg.PhaseTimeout)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return CancelledError{Phase: phase}
		case <-ticker.C:
			status, err := e.readMotorStatus(ctx)
			if err != nil {
				return PhaseError{Phase: phase, Cause: err}
			}

			if status == StatusStopped {
				return nil
			}

			if time.Now().After(deadline) {
				return TimeoutError{Phase: phase}
			}
		}
	}
}

func (e *Engine) readMotorStatus(ctx context.Context) (MotorStatus, error) {
	attrs, err := e.ch.Read(ctx, []zcl.AttributeID{AttrOperationalStatus}, zigbee.NoManufacturer)
	if err != nil {
		return StatusUnknown, err
	}

	// Presence decides the fallback, never the value: a zero reading is a
	// genuine stop.
	if v, found := attrs.Uint(AttrOperationalStatus); found {
		return motorStatusFromValue(v), nil
	}

	attrs, err = e.ch.Read(ctx, []zcl.AttributeID{AttrLegacyMotorState}, e.cfg.Manufacturer)
	if err != nil {
		return StatusUnknown, err
	}

	if v, found := attrs.Uint(AttrLegacyMotorState); found {
		return motorStatusFromValue(v), nil
	}

	return StatusUnknown, nil
}

func (e *Engine) invoke(ctx context.Context, phase Phase, command interface{}) error {
	if err := e.ch.Invoke(ctx, command); err != nil {
		return PhaseError{Phase: phase, Cause: err}
	}

	return nil
}

// cleanup halts the motor and restores normal mode on a best effort
// basis after a failure or cancellation. It runs on a fresh context, as
// the caller's may already be done, and its own failures are logged but
// never allowed to displace the original error.
func (e *Engine) cleanup(cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	e.logger.Warn(ctx, "Attempting post failure cleanup.", logwrap.Err(cause))

	if err := e.ch.Invoke(ctx, &windowcovering.Stop{}); err != nil {
		e.logger.Warn(ctx, "Cleanup motor stop failed.", logwrap.Err(err))
	}

	if err := e.ch.Write(ctx, AttrMode, zcl.AttributeDataTypeValue{DataType: zcl.TypeUnsignedInt8, Value: modeNormal}, zigbee.NoManufacturer); err != nil {
		e.logger.Warn(ctx, "Cleanup mode restore failed.", logwrap.Err(err))
	}
}

func (e *Engine) write8(ctx context.Context, phase Phase, attribute zcl.AttributeID, value uint8, manufacturer zigbee.ManufacturerCode) error {
	dtv := zcl.AttributeDataTypeValue{DataType: zcl.TypeUnsignedInt8, Value: value}

	if err := e.ch.Write(ctx, attribute, dtv, manufacturer); err != nil {
		return PhaseError{Phase: phase, Cause: err}
	}

	return nil
}

func (e *Engine) write16(ctx context.Context, phase Phase, attribute zcl.AttributeID, value uint16, manufacturer zigbee.ManufacturerCode) error {
	dtv := zcl.AttributeDataTypeValue{DataType: zcl.TypeUnsignedInt16, Value: value}

	if err := e.ch.Write(ctx, attribute, dtv, manufacturer); err != nil {
		return PhaseError{Phase: phase, Cause: err}
	}

	return nil
}
