package channel

import (
	"context"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zigbee"
	"github.com/stretchr/testify/mock"
)

type Mock struct {
	mock.Mock
}

func (m *Mock) Read(ctx context.Context, attributes []zcl.AttributeID, manufacturer zigbee.ManufacturerCode) (Attributes, error) {
	args := m.Called(ctx, attributes, manufacturer)
	return args.Get(0).(Attributes), args.Error(1)
}

func (m *Mock) Write(ctx context.Context, attribute zcl.AttributeID, value zcl.AttributeDataTypeValue, manufacturer zigbee.ManufacturerCode) error {
	return m.Called(ctx, attribute, value, manufacturer).Error(0)
}

func (m *Mock) Invoke(ctx context.Context, command interface{}) error {
	return m.Called(ctx, command).Error(0)
}

var _ Channel = (*Mock)(nil)
