// Package zsc controls motorized window covering devices over a Zigbee
// network. It drives travel calibration, decodes each device's
// InputActions program and correlates live command traffic back to the
// physical inputs that produced it.
package zsc

import (
	"github.com/shimmeringbee/callbacks"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/shimmeringbee/persistence"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zcl/communicator"
	"github.com/shimmeringbee/zsc/commands/windowcovering"
	"github.com/shimmeringbee/zsc/lock"
	"github.com/shimmeringbee/zsc/profile"
)

type Controller struct {
	comm     communicator.Communicator
	registry *zcl.CommandRegistry
	section  persistence.Section
	locks    *lock.Registry
	events   callbacks.AdderCaller
	profiles *profile.Engine
	logger   logwrap.Logger
}

// New wires a controller onto an existing ZCL communicator, registering
// the window covering commands the correlator needs decoded. Results and
// state are archived under the given persistence section. Logging is
// discarded until a logger is provided.
func New(comm communicator.Communicator, cr *zcl.CommandRegistry, section persistence.Section) (*Controller, error) {
	windowcovering.Register(cr)

	profiles := profile.New()

	if err := profiles.LoadFS(profile.Embedded); err != nil {
		return nil, err
	}

	if err := profiles.Compile(); err != nil {
		return nil, err
	}

	return &Controller{
		comm:     comm,
		registry: cr,
		section:  section,
		locks:    lock.NewRegistry(),
		events:   callbacks.Create(),
		profiles: profiles,
		logger:   logwrap.New(discard.Discard()),
	}, nil
}

// UseProfiles replaces the embedded default profiles. The engine must
// already be compiled.
func (c *Controller) UseProfiles(e *profile.Engine) {
	c.profiles = e
}

// OnEvent subscribes a callback for input.Event and CalibrationFinished.
func (c *Controller) OnEvent(f interface{}) {
	c.events.Add(f)
}
