package input

import (
	"context"
	"github.com/shimmeringbee/callbacks"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/zsc/microcode"
	"sync/atomic"
	"time"
)

// Event is emitted once per qualifying observed command and never
// revised afterwards.
type Event struct {
	Device     zigbee.IEEEAddress
	Input      uint8
	Press      microcode.PressType
	ObservedAt time.Time
	Signature  Signature
}

// Correlator consumes observed command signatures in arrival order and
// emits semantic input events to its sink. It carries no ordering memory
// of its own; press sequencing (double press and friends) is resolved by
// the device's microcode, not by correlator timing.
type Correlator struct {
	device   zigbee.IEEEAddress
	registry atomic.Pointer[Registry]
	sink     callbacks.Caller
}

func NewCorrelator(device zigbee.IEEEAddress, registry *Registry, sink callbacks.Caller) *Correlator {
	c := &Correlator{
		device: device,
		sink:   sink,
	}
	c.registry.Store(registry)

	return c
}

// ReplaceRegistry atomically swaps the whole lookup table. Observations in
// flight see either the old table or the new one, never a partial update.
func (c *Correlator) ReplaceRegistry(registry *Registry) {
	c.registry.Store(registry)
}

// Observe classifies one signature, emitting at most one event
// synchronously. Unclassifiable traffic is dropped silently.
func (c *Correlator) Observe(ctx context.Context, sig Signature) {
	match, found := c.registry.Load().Classify(sig)
	if !found {
		return
	}

	_ = c.sink.Call(ctx, Event{
		Device:     c.device,
		Input:      match.Input,
		Press:      match.Press,
		ObservedAt: time.Now(),
		Signature:  sig,
	})
}
