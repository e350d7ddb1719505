package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

func newHostDevice() (ble.Device, error) {
	return darwin.NewDevice()
}
