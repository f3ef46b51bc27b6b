package calibration

import (
	"context"
	"errors"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/zsc/channel"
	"github.com/shimmeringbee/zsc/commands/windowcovering"
	"github.com/shimmeringbee/zsc/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"testing"
	"time"
)

var vendor = DefaultManufacturerCode

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.PhaseTimeout = 50 * time.Millisecond
	cfg.ClearDuration = time.Millisecond

	return cfg
}

func testEngine(mc *channel.Mock, cfg Config) (*Engine, *lock.Registry) {
	device := zigbee.GenerateLocalAdministeredIEEEAddress()
	return New(mc, device, cfg, logwrap.New(discard.Discard())), lock.NewRegistry()
}

func dtv8(v uint8) zcl.AttributeDataTypeValue {
	return zcl.AttributeDataTypeValue{DataType: zcl.TypeUnsignedInt8, Value: v}
}

func dtv16(v uint16) zcl.AttributeDataTypeValue {
	return zcl.AttributeDataTypeValue{DataType: zcl.TypeUnsignedInt16, Value: v}
}

func statusAttrs(v uint64) channel.Attributes {
	return channel.Attributes{AttrOperationalStatus: {DataType: zcl.TypeUnsignedInt8, Value: v}}
}

func stepsAttrs(id zcl.AttributeID, v uint64) channel.Attributes {
	return channel.Attributes{id: {DataType: zcl.TypeUnsignedInt16, Value: v}}
}

func expectMovement(mc *channel.Mock) {
	mc.On("Invoke", mock.Anything, &windowcovering.DownClose{}).Return(nil)
	mc.On("Invoke", mock.Anything, &windowcovering.Stop{}).Return(nil)
	mc.On("Invoke", mock.Anything, &windowcovering.UpOpen{}).Return(nil)
}

func TestEngine_Run(t *testing.T) {
	t.Run("fresh roller shade completes all phases in order with no tilt writes", func(t *testing.T) {
		mc := &channel.Mock{}
		defer mc.AssertExpectations(t)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps}, vendor).Return(channel.Attributes{}, nil).Once()

		mc.On("Write", mock.Anything, AttrWindowCoveringType, dtv8(0x00), zigbee.NoManufacturer).Return(nil).Once()
		mc.On("Write", mock.Anything, AttrInstalledOpenLimitLift, dtv16(0x0000), zigbee.NoManufacturer).Return(nil).Once()
		mc.On("Write", mock.Anything, AttrInstalledClosedLimitLift, dtv16(0xffff), zigbee.NoManufacturer).Return(nil).Once()
		mc.On("Write", mock.Anything, AttrTotalSteps, dtv16(0xffff), vendor).Return(nil).Once()
		mc.On("Write", mock.Anything, AttrTotalSteps2, dtv16(0xffff), vendor).Return(nil).Once()
		mc.On("Write", mock.Anything, AttrMode, dtv8(0x02), zigbee.NoManufacturer).Return(nil).Once()

		expectMovement(mc)
		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrOperationalStatus}, zigbee.NoManufacturer).Return(statusAttrs(0), nil)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps}, vendor).Return(stepsAttrs(AttrTotalSteps, 0x2000), nil).Once()
		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps2}, vendor).Return(stepsAttrs(AttrTotalSteps2, 0x2010), nil).Once()

		mc.On("Write", mock.Anything, AttrMode, dtv8(0x00), zigbee.NoManufacturer).Return(nil).Once()

		e, locks := testEngine(mc, fastConfig())

		result, err := e.Run(context.Background(), RollerShade, locks)
		assert.NoError(t, err)

		assert.Equal(t, uint64(0x2000), result.TotalSteps)
		assert.Equal(t, uint64(0x10), result.Asymmetry)
		assert.False(t, result.AlreadyCalibrated)
		assert.False(t, result.AsymmetryExceeded)
		assert.Greater(t, result.Elapsed, time.Duration(0))

		assert.Equal(t, []Phase{PhasePrepare, PhaseClearFromLimit, PhaseFindTopLimit, PhaseFindBottomLimit, PhaseVerifyTop, PhaseFinalize}, result.PhasesCompleted)

		mc.AssertNotCalled(t, "Write", mock.Anything, AttrLiftToTiltTransitionSteps, mock.Anything, vendor)
		mc.AssertNotCalled(t, "Write", mock.Anything, AttrInstalledOpenLimitTilt, mock.Anything, zigbee.NoManufacturer)

		// A present zero status must satisfy the poll directly, with no
		// fallback attribute lookup.
		mc.AssertNotCalled(t, "Read", mock.Anything, []zcl.AttributeID{AttrLegacyMotorState}, vendor)
	})

	t.Run("already calibrated venetian blind skips sentinel reset and tilt transition writes", func(t *testing.T) {
		mc := &channel.Mock{}
		defer mc.AssertExpectations(t)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps}, vendor).Return(stepsAttrs(AttrTotalSteps, 0x1800), nil).Once()

		mc.On("Write", mock.Anything, AttrWindowCoveringType, dtv8(0x07), zigbee.NoManufacturer).Return(nil).Once()
		mc.On("Write", mock.Anything, AttrInstalledOpenLimitLift, dtv16(0x0000), zigbee.NoManufacturer).Return(nil).Once()
		mc.On("Write", mock.Anything, AttrInstalledClosedLimitLift, dtv16(0xffff), zigbee.NoManufacturer).Return(nil).Once()
		mc.On("Write", mock.Anything, AttrInstalledOpenLimitTilt, dtv16(0x0000), zigbee.NoManufacturer).Return(nil).Once()
		mc.On("Write", mock.Anything, AttrInstalledClosedLimitTilt, dtv16(0xffff), zigbee.NoManufacturer).Return(nil).Once()
		mc.On("Write", mock.Anything, AttrMode, dtv8(0x02), zigbee.NoManufacturer).Return(nil).Once()

		expectMovement(mc)
		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrOperationalStatus}, zigbee.NoManufacturer).Return(statusAttrs(0), nil)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps}, vendor).Return(stepsAttrs(AttrTotalSteps, 0x1800), nil).Once()
		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps2}, vendor).Return(stepsAttrs(AttrTotalSteps2, 0x1800), nil).Once()

		mc.On("Write", mock.Anything, AttrMode, dtv8(0x00), zigbee.NoManufacturer).Return(nil).Once()

		e, locks := testEngine(mc, fastConfig())

		result, err := e.Run(context.Background(), VenetianBlind, locks)
		assert.NoError(t, err)

		assert.True(t, result.AlreadyCalibrated)
		assert.Equal(t, uint64(0x1800), result.TotalSteps)
		assert.Equal(t, uint64(0), result.Asymmetry)

		mc.AssertNotCalled(t, "Write", mock.Anything, AttrTotalSteps, mock.Anything, vendor)
		mc.AssertNotCalled(t, "Write", mock.Anything, AttrTotalSteps2, mock.Anything, vendor)
		mc.AssertNotCalled(t, "Write", mock.Anything, AttrLiftToTiltTransitionSteps, mock.Anything, vendor)
		mc.AssertNotCalled(t, "Write", mock.Anything, AttrLiftToTiltTransitionSteps2, mock.Anything, vendor)
	})

	t.Run("motor never stopping times out with the failing phase and cleans up", func(t *testing.T) {
		mc := &channel.Mock{}

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps}, vendor).Return(channel.Attributes{}, nil).Once()
		mc.On("Write", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		expectMovement(mc)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrOperationalStatus}, zigbee.NoManufacturer).Return(statusAttrs(1), nil)

		e, locks := testEngine(mc, fastConfig())

		started := time.Now()
		_, err := e.Run(context.Background(), RollerShade, locks)

		var te TimeoutError
		assert.ErrorAs(t, err, &te)
		assert.Equal(t, PhaseFindTopLimit, te.Phase)
		assert.Less(t, time.Since(started), 5*time.Second)

		// Best effort cleanup must have stopped the motor and restored
		// normal mode.
		mc.AssertCalled(t, "Invoke", mock.Anything, &windowcovering.Stop{})
		mc.AssertCalled(t, "Write", mock.Anything, AttrMode, dtv8(0x00), zigbee.NoManufacturer)
	})

	t.Run("cancellation mid poll reports Cancelled, not Timeout", func(t *testing.T) {
		mc := &channel.Mock{}

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps}, vendor).Return(channel.Attributes{}, nil).Once()
		mc.On("Write", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		expectMovement(mc)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrOperationalStatus}, zigbee.NoManufacturer).Return(statusAttrs(1), nil)

		cfg := fastConfig()
		cfg.PhaseTimeout = 10 * time.Second

		e, locks := testEngine(mc, cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := e.Run(ctx, RollerShade, locks)

		var ce CancelledError
		assert.ErrorAs(t, err, &ce)
		assert.Equal(t, PhaseFindTopLimit, ce.Phase)

		var te TimeoutError
		assert.False(t, errors.As(err, &te))
	})

	t.Run("second run against a locked device fails fast with ErrLockHeld", func(t *testing.T) {
		mc := &channel.Mock{}
		defer mc.AssertExpectations(t)

		e, locks := testEngine(mc, fastConfig())

		guard, ok := locks.TryAcquire(e.device)
		assert.True(t, ok)
		defer guard.Release()

		started := time.Now()
		_, err := e.Run(context.Background(), RollerShade, locks)

		assert.ErrorIs(t, err, ErrLockHeld)
		assert.Less(t, time.Since(started), time.Second)
	})

	t.Run("device rejection during prepare surfaces as a rejected phase failure", func(t *testing.T) {
		mc := &channel.Mock{}

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps}, vendor).Return(channel.Attributes{}, nil).Once()
		mc.On("Write", mock.Anything, AttrWindowCoveringType, dtv8(0x00), zigbee.NoManufacturer).Return(channel.RejectedError{Attribute: 0x0000, Status: 0x86}).Once()

		// Cleanup traffic.
		mc.On("Invoke", mock.Anything, &windowcovering.Stop{}).Return(nil)
		mc.On("Write", mock.Anything, AttrMode, dtv8(0x00), zigbee.NoManufacturer).Return(nil)

		e, locks := testEngine(mc, fastConfig())

		_, err := e.Run(context.Background(), RollerShade, locks)

		var pe PhaseError
		assert.ErrorAs(t, err, &pe)
		assert.Equal(t, PhasePrepare, pe.Phase)
		assert.True(t, channel.IsRejected(err))
	})

	t.Run("absent primary status falls back to the legacy attribute", func(t *testing.T) {
		mc := &channel.Mock{}
		defer mc.AssertExpectations(t)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps}, vendor).Return(channel.Attributes{}, nil).Once()
		mc.On("Write", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		expectMovement(mc)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrOperationalStatus}, zigbee.NoManufacturer).Return(channel.Attributes{}, nil)
		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrLegacyMotorState}, vendor).Return(channel.Attributes{AttrLegacyMotorState: {DataType: zcl.TypeUnsignedInt8, Value: uint64(0)}}, nil)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps}, vendor).Return(stepsAttrs(AttrTotalSteps, 0x0900), nil).Once()
		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps2}, vendor).Return(stepsAttrs(AttrTotalSteps2, 0x0900), nil).Once()

		e, locks := testEngine(mc, fastConfig())

		result, err := e.Run(context.Background(), RollerShade, locks)
		assert.NoError(t, err)
		assert.Equal(t, uint64(0x0900), result.TotalSteps)
	})

	t.Run("asymmetry beyond the configured tolerance is flagged but not fatal", func(t *testing.T) {
		mc := &channel.Mock{}
		defer mc.AssertExpectations(t)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps}, vendor).Return(channel.Attributes{}, nil).Once()
		mc.On("Write", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		expectMovement(mc)
		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrOperationalStatus}, zigbee.NoManufacturer).Return(statusAttrs(0), nil)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps}, vendor).Return(stepsAttrs(AttrTotalSteps, 0x2000), nil).Once()
		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps2}, vendor).Return(stepsAttrs(AttrTotalSteps2, 0x2100), nil).Once()

		cfg := fastConfig()
		cfg.AsymmetryTolerance = 0x80

		e, locks := testEngine(mc, cfg)

		result, err := e.Run(context.Background(), RollerShade, locks)
		assert.NoError(t, err)
		assert.Equal(t, uint64(0x100), result.Asymmetry)
		assert.True(t, result.AsymmetryExceeded)
	})
}

func TestEngine_HealthCheck(t *testing.T) {
	t.Run("reports status and calibration state without writes or locking", func(t *testing.T) {
		mc := &channel.Mock{}
		defer mc.AssertExpectations(t)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrWindowCoveringType, AttrMode}, zigbee.NoManufacturer).
			Return(channel.Attributes{
				AttrWindowCoveringType: {DataType: zcl.TypeUnsignedInt8, Value: uint64(0)},
				AttrMode:               {DataType: zcl.TypeUnsignedInt8, Value: uint64(0)},
			}, nil).Once()
		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrOperationalStatus}, zigbee.NoManufacturer).Return(statusAttrs(0), nil).Once()
		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrTotalSteps}, vendor).Return(stepsAttrs(AttrTotalSteps, 0x2000), nil).Once()

		e, _ := testEngine(mc, fastConfig())

		report, err := e.HealthCheck(context.Background())
		assert.NoError(t, err)

		assert.Equal(t, StatusStopped, report.MotorStatus)
		assert.True(t, report.Calibrated)
		assert.Equal(t, uint64(0x2000), report.TotalSteps)
		assert.False(t, report.InCalibrationMode)

		mc.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mc.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
	})

	t.Run("missing window covering attributes reports ErrClusterAbsent", func(t *testing.T) {
		mc := &channel.Mock{}
		defer mc.AssertExpectations(t)

		mc.On("Read", mock.Anything, []zcl.AttributeID{AttrWindowCoveringType, AttrMode}, zigbee.NoManufacturer).Return(channel.Attributes{}, nil).Once()

		e, _ := testEngine(mc, fastConfig())

		_, err := e.HealthCheck(context.Background())
		assert.ErrorIs(t, err, ErrClusterAbsent)
	})
}
