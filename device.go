package zsc

import (
	"fmt"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/zsc/calibration"
	"github.com/shimmeringbee/zsc/channel"
	"github.com/shimmeringbee/zsc/commands/windowcovering"
	"github.com/shimmeringbee/zsc/profile"
	"math"
	"sync"
)

// Device is the controller's handle on one physical covering. All
// traffic to the device draws from its transaction sequence, so
// concurrent operations never reuse a ZCL sequence number.
type Device struct {
	controller *Controller
	ieee       zigbee.IEEEAddress
	sequence   chan uint8

	// Mutable data, obtain lock first.
	m            *sync.RWMutex
	address      channel.DeviceAddress
	covering     channel.Channel
	shade        calibration.ShadeType
	calibration  calibration.Config
	inputEnabled bool
	monitor      *InputMonitor
}

func (c *Controller) NewDevice(ieee zigbee.IEEEAddress, remoteEndpoint zigbee.Endpoint, localEndpoint zigbee.Endpoint, apsAck bool) *Device {
	d := &Device{
		controller: c,
		ieee:       ieee,
		sequence:   makeTransactionSequence(),

		m: &sync.RWMutex{},
		address: channel.DeviceAddress{
			IEEE:           ieee,
			RemoteEndpoint: remoteEndpoint,
			LocalEndpoint:  localEndpoint,
			UseAPSAck:      apsAck,
		},
		shade:        calibration.RollerShade,
		calibration:  calibration.DefaultConfig(),
		inputEnabled: true,
	}

	d.covering = channel.NewZCL(c.comm, windowcovering.ClusterID, d.address, d.nextTransactionSequence, c.logger)

	return d
}

func (d *Device) Identifier() zigbee.IEEEAddress {
	return d.ieee
}

// ShadeType is the device's resolved shade construction, defaulting to a
// roller shade until a profile says otherwise.
func (d *Device) ShadeType() calibration.ShadeType {
	d.m.RLock()
	defer d.m.RUnlock()

	return d.shade
}

// ApplyProfile resolves the device's settings from the controller's
// profiles. An unmatched device keeps its defaults.
func (c *Controller) ApplyProfile(d *Device, i profile.Input) error {
	p, err := c.profiles.Match(i)
	if err != nil {
		return err
	}

	if p == nil {
		return nil
	}

	d.m.Lock()
	defer d.m.Unlock()

	switch shade := p.StringSetting("calibration", "ShadeType", "roller"); shade {
	case "roller":
		d.shade = calibration.RollerShade
	case "venetian":
		d.shade = calibration.VenetianBlind
	default:
		return fmt.Errorf("profile shade type unrecognised: %s", shade)
	}

	d.calibration.Manufacturer = zigbee.ManufacturerCode(p.IntSetting("calibration", "ManufacturerCode", int(d.calibration.Manufacturer)))
	d.calibration.AsymmetryTolerance = uint64(p.IntSetting("calibration", "AsymmetryTolerance", int(d.calibration.AsymmetryTolerance)))
	d.calibration.TiltTransitionSteps = uint16(p.IntSetting("calibration", "TiltTransitionSteps", int(d.calibration.TiltTransitionSteps)))
	d.inputEnabled = p.BooleanSetting("input", "Enabled", d.inputEnabled)

	if ep := zigbee.Endpoint(p.IntSetting("calibration", "Endpoint", int(d.address.RemoteEndpoint))); ep != d.address.RemoteEndpoint {
		d.address.RemoteEndpoint = ep
		d.covering = channel.NewZCL(c.comm, windowcovering.ClusterID, d.address, d.nextTransactionSequence, c.logger)
	}

	return nil
}

func makeTransactionSequence() chan uint8 {
	ch := make(chan uint8, math.MaxUint8)

	for i := uint8(0); i < math.MaxUint8; i++ {
		ch <- i
	}

	return ch
}

func (d *Device) nextTransactionSequence() uint8 {
	nextSeq := <-d.sequence
	d.sequence <- nextSeq

	return nextSeq
}
