package main

import (
	"errors"

	"github.com/srg/swft/internal/central"
	"github.com/srg/swft/internal/device"
)

// FormatUserError turns well-known failures into a hint the user can act on.
// Anything else is printed as is.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth is not supported on this platform."
	case errors.Is(err, central.ErrNotPoweredOn):
		return "Bluetooth adapter is not ready. Check that Bluetooth is on and this program is allowed to use it."
	default:
		return err.Error()
	}
}
