// Package windowcovering provides the local commands of the Window
// Covering cluster needed to drive and observe motorized shades.
package windowcovering

import (
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zigbee"
)

const ClusterID = zigbee.ClusterID(0x0102)

const (
	UpOpenId             zcl.CommandIdentifier = 0x00
	DownCloseId          zcl.CommandIdentifier = 0x01
	StopId               zcl.CommandIdentifier = 0x02
	GoToLiftPercentageId zcl.CommandIdentifier = 0x05
	GoToTiltPercentageId zcl.CommandIdentifier = 0x08
)

type UpOpen struct{}

type DownClose struct{}

type Stop struct{}

type GoToLiftPercentage struct {
	Percentage uint8
}

type GoToTiltPercentage struct {
	Percentage uint8
}

func Register(cr *zcl.CommandRegistry) {
	cr.RegisterLocal(ClusterID, zigbee.NoManufacturer, zcl.ClientToServer, UpOpenId, &UpOpen{})
	cr.RegisterLocal(ClusterID, zigbee.NoManufacturer, zcl.ClientToServer, DownCloseId, &DownClose{})
	cr.RegisterLocal(ClusterID, zigbee.NoManufacturer, zcl.ClientToServer, StopId, &Stop{})
	cr.RegisterLocal(ClusterID, zigbee.NoManufacturer, zcl.ClientToServer, GoToLiftPercentageId, &GoToLiftPercentage{})
	cr.RegisterLocal(ClusterID, zigbee.NoManufacturer, zcl.ClientToServer, GoToTiltPercentageId, &GoToTiltPercentage{})
}
