package goble

import (
	"errors"
	"testing"

	"github.com/srg/swft/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		input  error
		target error
	}{
		{
			name:   "darwin powered off state",
			input:  errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			target: device.ErrBluetoothOff,
		},
		{
			name:   "bluetooth turned off",
			input:  errors.New("Bluetooth is turned off"),
			target: device.ErrBluetoothOff,
		},
		{
			name:   "unsupported controller",
			input:  errors.New("can't init hci: unsupported"),
			target: device.ErrUnsupported,
		},
		{
			name:   "not connected",
			input:  errors.New("device not connected"),
			target: device.ErrNotConnected,
		},
		{
			name:   "disconnected",
			input:  errors.New("peripheral disconnected"),
			target: device.ErrNotConnected,
		},
		{
			name:   "already connected",
			input:  errors.New("device already connected"),
			target: device.ErrAlreadyConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(tt.input)

			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), tt.input.Error())
		})
	}
}

func TestNormalizeError_PassThrough(t *testing.T) {
	assert.NoError(t, NormalizeError(nil))

	other := errors.New("something else")
	assert.Same(t, other, NormalizeError(other))
}
