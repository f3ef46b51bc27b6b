package zsc

import (
	"context"
	"errors"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zcl/communicator"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/zsc/channel"
	"github.com/shimmeringbee/zsc/commands/windowcovering"
	"github.com/shimmeringbee/zsc/input"
	"github.com/shimmeringbee/zsc/microcode"
)

// DeviceSetupClusterID is the vendor cluster exposing the InputActions
// program.
const DeviceSetupClusterID = zigbee.ClusterID(0xfc00)

const AttrInputActions = zcl.AttributeID(0x0001)

var ErrInputMonitoringDisabled = errors.New("input monitoring disabled by device profile")
var ErrInputActionsUnavailable = errors.New("input actions attribute not present on device")

// InputMonitor decodes a device's InputActions program once at start and
// classifies the device's live command traffic against it until stopped.
type InputMonitor struct {
	controller   *Controller
	device       *Device
	manufacturer zigbee.ManufacturerCode
	setup        channel.Channel
	correlator   *input.Correlator
	match        communicator.Match
}

// StartInputMonitor reads and decodes the device's InputActions program,
// then registers for its incoming command traffic. An unreadable or
// undecodable program fails the start; a monitor never runs against a
// program it could not fully decode. Starting an already monitored
// device returns the running monitor.
func (c *Controller) StartInputMonitor(ctx context.Context, d *Device) (*InputMonitor, error) {
	d.m.Lock()
	defer d.m.Unlock()

	if !d.inputEnabled {
		return nil, ErrInputMonitoringDisabled
	}

	if d.monitor != nil {
		return d.monitor, nil
	}

	m := &InputMonitor{
		controller:   c,
		device:       d,
		manufacturer: d.calibration.Manufacturer,
		setup:        channel.NewZCL(c.comm, DeviceSetupClusterID, d.address, d.nextTransactionSequence, c.logger),
	}

	registry, err := m.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}

	m.correlator = input.NewCorrelator(d.ieee, registry, c.events)

	m.match = communicator.NewMatch(m.zclFilter, m.zclMessage)
	c.comm.RegisterMatch(m.match)

	d.monitor = m

	c.logger.Info(ctx, "Input monitor started.", logwrap.Datum("IEEEAddress", d.ieee.String()))

	return m, nil
}

func (m *InputMonitor) loadRegistry(ctx context.Context) (*input.Registry, error) {
	attrs, err := m.setup.Read(ctx, []zcl.AttributeID{AttrInputActions}, m.manufacturer)
	if err != nil {
		return nil, err
	}

	blob, found := attrs.Bytes(AttrInputActions)
	if !found {
		return nil, ErrInputActionsUnavailable
	}

	rules, err := microcode.Parse(blob)
	if err != nil {
		return nil, err
	}

	return input.Build(rules), nil
}

// Refresh re-reads the program and swaps the lookup table in one step;
// traffic observed during the swap classifies against the old table or
// the new one, never neither. A failed refresh leaves the old table in
// place.
func (m *InputMonitor) Refresh(ctx context.Context) error {
	registry, err := m.loadRegistry(ctx)
	if err != nil {
		return err
	}

	m.correlator.ReplaceRegistry(registry)

	return nil
}

// Stop unregisters from the device's traffic. Idempotent.
func (m *InputMonitor) Stop() {
	m.device.m.Lock()
	defer m.device.m.Unlock()

	if m.device.monitor != m {
		return
	}

	m.controller.comm.UnregisterMatch(m.match)
	m.device.monitor = nil
}

func (m *InputMonitor) zclFilter(a zigbee.IEEEAddress, _ zigbee.ApplicationMessage, msg zcl.Message) bool {
	return a == m.device.ieee && msg.Direction == zcl.ClientToServer
}

func (m *InputMonitor) zclMessage(source communicator.MessageWithSource) {
	sig, ok := signatureFromMessage(source.Message)
	if !ok {
		return
	}

	m.correlator.Observe(context.Background(), sig)
}

// signatureFromMessage flattens a decoded command back to the wire
// identity the device's microcode rules are written against.
func signatureFromMessage(msg zcl.Message) (input.Signature, bool) {
	sig := input.Signature{
		Endpoint: msg.SourceEndpoint,
		Cluster:  msg.ClusterID,
	}

	switch cmd := msg.Command.(type) {
	case *windowcovering.UpOpen:
		sig.Command = windowcovering.UpOpenId
	case *windowcovering.DownClose:
		sig.Command = windowcovering.DownCloseId
	case *windowcovering.Stop:
		sig.Command = windowcovering.StopId
	case *windowcovering.GoToLiftPercentage:
		sig.Command = windowcovering.GoToLiftPercentageId
		sig.Payload = []byte{cmd.Percentage}
	case *windowcovering.GoToTiltPercentage:
		sig.Command = windowcovering.GoToTiltPercentageId
		sig.Payload = []byte{cmd.Percentage}
	default:
		return input.Signature{}, false
	}

	return sig, true
}
