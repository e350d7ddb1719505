// Package peripherals keeps the discovered-peripheral table shown by the scan
// command. A List is registered on a central.Manager as an ordinary delegate.
package peripherals

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/swft/internal/central"
	"github.com/srg/swft/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Entry is one row of the table
type Entry struct {
	device.Peripheral
	Connected bool `json:"connected"`
	// Sightings counts advertising reports received for the peripheral
	Sightings int `json:"sightings"`
}

// List is a central.Delegate that keeps peripherals in first-seen order.
// Re-discovered peripherals are updated in place.
type List struct {
	mu      sync.RWMutex
	entries *orderedmap.OrderedMap[string, Entry]
	state   central.State
	logger  *logrus.Logger
}

var _ central.Delegate = (*List)(nil)

// NewList creates an empty list
func NewList(logger *logrus.Logger) *List {
	if logger == nil {
		logger = logrus.New()
	}
	return &List{
		entries: orderedmap.New[string, Entry](),
		logger:  logger,
	}
}

// DidUpdateState forgets connection flags once the adapter is no longer on
func (l *List) DidUpdateState(state central.State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = state
	if state == central.StatePoweredOn {
		return
	}
	for pair := l.entries.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.Connected = false
	}
}

// DidDiscoverPeripheral adds the peripheral or refreshes its row
func (l *List) DidDiscoverPeripheral(p device.Peripheral) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries.Get(p.Address)
	if !ok {
		l.logger.WithFields(logrus.Fields{
			"device":  p.DisplayName(),
			"address": p.Address,
		}).Debug("Added peripheral")
	}
	entry.Peripheral = merge(entry.Peripheral, p)
	entry.Sightings++
	l.entries.Set(p.Address, entry)
}

// DidConnectPeripheral marks the peripheral connected, adding it if unseen
func (l *List) DidConnectPeripheral(p device.Peripheral) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries.Get(p.Address)
	if !ok {
		entry.Peripheral = p
	}
	entry.Connected = true
	l.entries.Set(p.Address, entry)
}

// DidDisconnectPeripheral clears the connected flag
func (l *List) DidDisconnectPeripheral(p device.Peripheral, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries.Get(p.Address)
	if !ok {
		return
	}
	entry.Connected = false
	l.entries.Set(p.Address, entry)

	if err != nil {
		l.logger.WithError(err).WithField("address", p.Address).Debug("Peripheral dropped")
	}
}

// State returns the last adapter state reported to the list
func (l *List) State() central.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Reset empties the list, e.g. when a new scan starts
func (l *List) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = orderedmap.New[string, Entry]()
}

// Len returns the number of rows
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries.Len()
}

// At returns the i-th row in first-seen order
func (l *List) At(i int) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i < 0 || i >= l.entries.Len() {
		return Entry{}, false
	}
	pair := l.entries.Oldest()
	for ; i > 0; i-- {
		pair = pair.Next()
	}
	return pair.Value, true
}

// Get returns the row for address
func (l *List) Get(address string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries.Get(address)
}

// Snapshot returns a copy of all rows in first-seen order
func (l *List) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Entry, 0, l.entries.Len())
	for pair := l.entries.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// merge overlays a fresh report on the previous one. Scan responses often
// carry only part of the data, so a missing name or service list keeps the
// earlier value.
func merge(prev, next device.Peripheral) device.Peripheral {
	if next.Name == "" {
		next.Name = prev.Name
	}
	if len(next.AdvertisedServices) == 0 {
		next.AdvertisedServices = prev.AdvertisedServices
	}
	if len(next.ManufacturerData) == 0 {
		next.ManufacturerData = prev.ManufacturerData
	}
	if len(next.ServiceData) == 0 {
		next.ServiceData = prev.ServiceData
	}
	if next.TxPower == nil {
		next.TxPower = prev.TxPower
	}
	return next
}
