package channel

import (
	"context"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/retry"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zcl/communicator"
	"github.com/shimmeringbee/zigbee"
	"time"
)

const DefaultNetworkTimeout = 3000 * time.Millisecond
const DefaultNetworkRetries = 5

// DeviceAddress carries everything needed to reach one endpoint of a
// physical device.
type DeviceAddress struct {
	IEEE           zigbee.IEEEAddress
	RemoteEndpoint zigbee.Endpoint
	LocalEndpoint  zigbee.Endpoint
	UseAPSAck      bool
}

// NewZCL returns a Channel speaking ZCL for a single cluster of a single
// device. Transport failures are retried with the usual network budget;
// device rejections surface as RejectedError without retry.
func NewZCL(c communicator.Communicator, cluster zigbee.ClusterID, address DeviceAddress, nextSequence func() uint8, l logwrap.Logger) Channel {
	return &zclChannel{
		communicator: c,
		cluster:      cluster,
		address:      address,
		nextSequence: nextSequence,
		logger:       l,
	}
}

type zclChannel struct {
	communicator communicator.Communicator
	cluster      zigbee.ClusterID
	address      DeviceAddress
	nextSequence func() uint8
	logger       logwrap.Logger
}

func (z *zclChannel) Read(pctx context.Context, attributes []zcl.AttributeID, manufacturer zigbee.ManufacturerCode) (Attributes, error) {
	result := Attributes{}

	err := retry.Retry(pctx, DefaultNetworkTimeout, DefaultNetworkRetries, func(ctx context.Context) error {
		records, err := z.communicator.ReadAttributes(ctx, z.address.IEEE, z.address.UseAPSAck, z.cluster, manufacturer, z.address.LocalEndpoint, z.address.RemoteEndpoint, z.nextSequence(), attributes)

		if err == nil {
			for _, record := range records {
				if record.Status == 0 && record.DataTypeValue != nil {
					result[record.Identifier] = *record.DataTypeValue
				}
			}
		}

		return err
	})

	if err != nil {
		z.logger.Error(pctx, "Failed to read attributes.", logwrap.Err(err), logwrap.Datum("ClusterID", z.cluster), logwrap.Datum("AttributeIDs", attributes))
		return nil, err
	}

	return result, nil
}

func (z *zclChannel) Write(pctx context.Context, attribute zcl.AttributeID, value zcl.AttributeDataTypeValue, manufacturer zigbee.ManufacturerCode) error {
	var rejection error

	err := retry.Retry(pctx, DefaultNetworkTimeout, DefaultNetworkRetries, func(ctx context.Context) error {
		records, err := z.communicator.WriteAttributes(ctx, z.address.IEEE, z.address.UseAPSAck, z.cluster, manufacturer, z.address.LocalEndpoint, z.address.RemoteEndpoint, z.nextSequence(), map[zcl.AttributeID]zcl.AttributeDataTypeValue{attribute: value})

		if err != nil {
			return err
		}

		rejection = nil

		for _, record := range records {
			if record.Status != 0 {
				rejection = RejectedError{Attribute: uint16(record.Identifier), Status: record.Status}
			}
		}

		return nil
	})

	if err != nil {
		z.logger.Error(pctx, "Failed to write attribute.", logwrap.Err(err), logwrap.Datum("ClusterID", z.cluster), logwrap.Datum("AttributeID", attribute))
		return err
	}

	if rejection != nil {
		z.logger.Warn(pctx, "Device rejected attribute write.", logwrap.Err(rejection), logwrap.Datum("ClusterID", z.cluster), logwrap.Datum("AttributeID", attribute))
	}

	return rejection
}

func (z *zclChannel) Invoke(pctx context.Context, command interface{}) error {
	message := zcl.Message{
		FrameType:           zcl.FrameLocal,
		Direction:           zcl.ClientToServer,
		TransactionSequence: z.nextSequence(),
		Manufacturer:        zigbee.NoManufacturer,
		ClusterID:           z.cluster,
		SourceEndpoint:      z.address.LocalEndpoint,
		DestinationEndpoint: z.address.RemoteEndpoint,
		Command:             command,
	}

	err := retry.Retry(pctx, DefaultNetworkTimeout, DefaultNetworkRetries, func(ctx context.Context) error {
		return z.communicator.Request(ctx, z.address.IEEE, z.address.UseAPSAck, message)
	})

	if err != nil {
		z.logger.Error(pctx, "Failed to invoke cluster command.", logwrap.Err(err), logwrap.Datum("ClusterID", z.cluster))
	}

	return err
}
