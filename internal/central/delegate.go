package central

import "github.com/srg/swft/internal/device"

// State is the power state of the host adapter
type State int

const (
	StateUnknown State = iota
	StateUnsupported
	StatePoweredOff
	StatePoweredOn
)

func (s State) String() string {
	switch s {
	case StateUnsupported:
		return "unsupported"
	case StatePoweredOff:
		return "powered off"
	case StatePoweredOn:
		return "powered on"
	default:
		return "unknown"
	}
}

// Delegate receives Manager events.
//
// Callbacks run synchronously on the goroutine that observed the event, one
// observer after another, so they must not block. A panicking delegate
// aborts delivery to the remaining observers.
type Delegate interface {
	DidUpdateState(state State)
	DidDiscoverPeripheral(p device.Peripheral)
	DidConnectPeripheral(p device.Peripheral)
	// DidDisconnectPeripheral reports a closed link; err is nil when the host asked for it
	DidDisconnectPeripheral(p device.Peripheral, err error)
}

// NopDelegate implements Delegate with no-op methods.
// Embed it to implement only the callbacks you need. A type embedding only
// NopDelegate is zero-sized and cannot be registered.
type NopDelegate struct{}

func (NopDelegate) DidUpdateState(State)                            {}
func (NopDelegate) DidDiscoverPeripheral(device.Peripheral)         {}
func (NopDelegate) DidConnectPeripheral(device.Peripheral)          {}
func (NopDelegate) DidDisconnectPeripheral(device.Peripheral, error) {}
