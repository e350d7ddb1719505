package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/swft/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newHostDevice

// bleCentral wraps ble.Device to implement the device.Central interface
type bleCentral struct {
	dev ble.Device
}

// NewCentral creates a device.Central backed by the host BLE adapter.
func NewCentral() (device.Central, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &bleCentral{dev: dev}, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (c *bleCentral) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	if err := c.dev.Scan(ctx, allowDup, bleHandler); err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Dial connects to the peripheral at address
func (c *bleCentral) Dial(ctx context.Context, address string) (device.Link, error) {
	client, err := c.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &bleLink{client: client, address: address}, nil
}

// Stop releases the host adapter
func (c *bleCentral) Stop() error {
	return NormalizeError(c.dev.Stop())
}

// bleLink wraps ble.Client to implement the device.Link interface
type bleLink struct {
	client  ble.Client
	address string
}

func (l *bleLink) Address() string               { return l.address }
func (l *bleLink) Disconnected() <-chan struct{} { return l.client.Disconnected() }

func (l *bleLink) CancelConnection() error {
	return NormalizeError(l.client.CancelConnection())
}
