// Package device defines the Bluetooth Low Energy abstractions the rest of
// the application works against.
//
// The package is backend-agnostic:
//   - Central and Link describe the host controller and a live connection
//   - Advertisement describes one advertising report
//   - Peripheral is an immutable snapshot of a discovered device
//   - UUID helpers normalise service UUIDs for filtering and display
//
// The go-ble backed implementation lives in the go-ble subpackage.
package device
