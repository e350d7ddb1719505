package central

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/swft/internal/device"
	"github.com/srg/swft/internal/groutine"
	"github.com/srg/swft/internal/multicast"
)

var (
	// ErrNotPoweredOn is returned by operations that need a powered-on adapter
	ErrNotPoweredOn = errors.New("central is not powered on")

	// ErrConnectionLost is reported to delegates when a peripheral drops the link.
	// Host-initiated disconnects report a nil error instead.
	ErrConnectionLost = errors.New("connection lost")
)

// Options configures the Manager
type Options struct {
	// AllowDuplicates reports every advertisement instead of one per peripheral
	AllowDuplicates bool
	// Clock stamps discovered peripherals; defaults to time.Now
	Clock func() time.Time
}

// DefaultOptions returns default manager options
func DefaultOptions() *Options {
	return &Options{
		AllowDuplicates: true,
		Clock:           time.Now,
	}
}

// Manager owns the host adapter and multicasts its events to registered delegates.
//
// Delegate callbacks may call back into the Manager, except PowerOff, which
// waits for in-flight scans and link watchers to finish.
type Manager struct {
	factory   device.CentralFactory
	observers *multicast.Registry[Delegate]
	logger    *logrus.Logger
	opts      Options

	mu         sync.Mutex
	state      State
	central    device.Central
	scanCancel context.CancelFunc
	scanGen    uint64
	scanErr    error
	wg         sync.WaitGroup // scan goroutine and link watchers

	seen      *hashmap.Map[string, device.Peripheral]
	connected *hashmap.Map[string, device.Link]
	closing   *hashmap.Map[string, struct{}]
}

// New creates a powered-off manager. The adapter is created by factory on PowerOn.
func New(factory device.CentralFactory, logger *logrus.Logger, opts *Options) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Clock == nil {
		o.Clock = time.Now
	}

	return &Manager{
		factory:   factory,
		observers: multicast.New[Delegate](),
		logger:    logger,
		opts:      o,
		seen:      hashmap.New[string, device.Peripheral](),
		connected: hashmap.New[string, device.Link](),
		closing:   hashmap.New[string, struct{}](),
	}
}

// AddObserver registers a delegate. The manager does not keep it alive.
func (m *Manager) AddObserver(d Delegate) error {
	if err := m.observers.Add(d); err != nil {
		return fmt.Errorf("failed to add observer: %w", err)
	}
	return nil
}

// RemoveObserver unregisters a delegate; unknown delegates are ignored.
func (m *Manager) RemoveObserver(d Delegate) {
	m.observers.Remove(d)
}

// ObserverCount returns the number of live delegates
func (m *Manager) ObserverCount() int {
	return m.observers.Len()
}

// State returns the current adapter state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PowerOn creates the host adapter. Calling it while powered on is a no-op.
func (m *Manager) PowerOn() error {
	m.mu.Lock()
	if m.state == StatePoweredOn {
		m.mu.Unlock()
		return nil
	}

	c, err := m.factory()
	if err != nil {
		state := StateUnknown
		switch {
		case errors.Is(err, device.ErrBluetoothOff):
			state = StatePoweredOff
		case errors.Is(err, device.ErrUnsupported):
			state = StateUnsupported
		}
		changed := m.setStateLocked(state)
		m.mu.Unlock()

		m.logger.WithError(err).WithField("state", state).Warn("Failed to power on central")
		if changed {
			m.notifyState(state)
		}
		return fmt.Errorf("failed to power on central: %w", err)
	}

	m.central = c
	m.scanErr = nil
	m.setStateLocked(StatePoweredOn)
	m.mu.Unlock()

	m.logger.Info("Central powered on")
	m.notifyState(StatePoweredOn)
	return nil
}

// PowerOff stops scanning, drops all links and releases the adapter.
// It waits for pending disconnect events to be delivered, so it must not be
// called from a delegate callback.
func (m *Manager) PowerOff() error {
	m.mu.Lock()
	if m.state != StatePoweredOn {
		m.mu.Unlock()
		return nil
	}

	m.stopScanLocked()
	c := m.central
	m.central = nil
	m.setStateLocked(StatePoweredOff)
	m.mu.Unlock()

	m.connected.Range(func(address string, link device.Link) bool {
		m.closing.Set(address, struct{}{})
		if err := link.CancelConnection(); err != nil {
			m.logger.WithError(err).WithField("address", address).Warn("Failed to cancel connection")
		}
		return true
	})

	m.wg.Wait()

	err := c.Stop()
	m.logger.Info("Central powered off")
	m.notifyState(StatePoweredOff)

	if err != nil {
		return fmt.Errorf("failed to stop central: %w", err)
	}
	return nil
}

// StartScanning begins discovery. Only peripherals advertising one of
// serviceUUIDs are reported; an empty list reports everything.
// Scanning stops on StopScanning, PowerOff, or when ctx is done.
func (m *Manager) StartScanning(ctx context.Context, serviceUUIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePoweredOn {
		return ErrNotPoweredOn
	}
	if m.scanCancel != nil {
		return nil
	}

	filter := device.NormalizeUUIDs(serviceUUIDs)
	scanCtx, cancel := context.WithCancel(ctx)
	m.scanGen++
	m.scanCancel = cancel
	m.scanErr = nil
	gen := m.scanGen
	c := m.central

	m.logger.WithFields(logrus.Fields{
		"services":         filter,
		"allow_duplicates": m.opts.AllowDuplicates,
	}).Info("Starting BLE scan...")

	m.wg.Add(1)
	groutine.Go(scanCtx, "central-scan", func(ctx context.Context) {
		defer m.wg.Done()
		m.runScan(ctx, c, gen, filter)
	})

	return nil
}

// StopScanning stops discovery. It does not wait for the scan to wind down.
func (m *Manager) StopScanning() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopScanLocked() {
		m.logger.Info("BLE scan stopped")
	}
}

// IsScanning reports whether a scan is in progress
func (m *Manager) IsScanning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanCancel != nil
}

// Err returns why the last scan ended early, if it failed
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanErr
}

// Peripheral returns the last snapshot seen for address
func (m *Manager) Peripheral(address string) (device.Peripheral, bool) {
	return m.seen.Get(address)
}

// Connect dials the peripheral and reports DidConnectPeripheral.
// When the link later drops, DidDisconnectPeripheral follows.
func (m *Manager) Connect(ctx context.Context, address string) error {
	m.mu.Lock()
	if m.state != StatePoweredOn {
		m.mu.Unlock()
		return ErrNotPoweredOn
	}
	c := m.central
	m.wg.Add(1)
	m.mu.Unlock()

	watching := false
	defer func() {
		if !watching {
			m.wg.Done()
		}
	}()

	if _, ok := m.connected.Get(address); ok {
		return fmt.Errorf("%w: %s", device.ErrAlreadyConnected, address)
	}

	link, err := c.Dial(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	if !m.connected.Insert(address, link) {
		_ = link.CancelConnection()
		return fmt.Errorf("%w: %s", device.ErrAlreadyConnected, address)
	}

	// PowerOff may have swept the connected set while we were dialing
	if m.State() != StatePoweredOn {
		m.connected.Del(address)
		_ = link.CancelConnection()
		return ErrNotPoweredOn
	}

	p := m.peripheralOrAddress(address)
	m.logger.WithField("address", address).Info("Peripheral connected")
	m.observers.Broadcast(func(d Delegate) { d.DidConnectPeripheral(p) })

	watching = true
	groutine.Go(context.Background(), "central-link", func(context.Context) {
		defer m.wg.Done()
		m.watchLink(address, link, p)
	})
	return nil
}

// Disconnect cancels the link to address. DidDisconnectPeripheral is reported
// asynchronously with a nil error.
func (m *Manager) Disconnect(address string) error {
	link, ok := m.connected.Get(address)
	if !ok {
		return fmt.Errorf("%w: %s", device.ErrNotConnected, address)
	}

	m.closing.Set(address, struct{}{})
	if err := link.CancelConnection(); err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", address, err)
	}
	return nil
}

// ConnectedPeripherals returns a snapshot of currently connected peripherals
func (m *Manager) ConnectedPeripherals() []device.Peripheral {
	result := make([]device.Peripheral, 0, m.connected.Len())
	m.connected.Range(func(address string, _ device.Link) bool {
		result = append(result, m.peripheralOrAddress(address))
		return true
	})
	return result
}

func (m *Manager) runScan(ctx context.Context, c device.Central, gen uint64, filter []string) {
	err := c.Scan(ctx, m.opts.AllowDuplicates, func(adv device.Advertisement) {
		m.handleAdvertisement(ctx, adv, filter)
	})

	failed := err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)

	m.mu.Lock()
	if m.scanGen == gen {
		if m.scanCancel != nil {
			m.scanCancel()
			m.scanCancel = nil
		}
		if failed {
			m.scanErr = err
		}
	}
	m.mu.Unlock()

	if failed {
		m.logger.WithError(err).Error("BLE scan failed")
		return
	}
	m.logger.WithField("device_count", m.seen.Len()).Info("BLE scan completed")
}

// handleAdvertisement records the peripheral and multicasts the discovery
func (m *Manager) handleAdvertisement(ctx context.Context, adv device.Advertisement, filter []string) {
	// late reports from a stopped scan
	if ctx.Err() != nil {
		return
	}

	p := device.NewPeripheral(adv, m.opts.Clock())
	if len(filter) > 0 && !p.Advertises(filter...) {
		return
	}

	if _, existing := m.seen.Get(p.Address); !existing {
		m.logger.WithFields(logrus.Fields{
			"device":  p.DisplayName(),
			"address": p.Address,
			"rssi":    p.RSSI,
		}).Debug("Discovered new device")
	}
	m.seen.Set(p.Address, p)

	m.observers.Broadcast(func(d Delegate) { d.DidDiscoverPeripheral(p) })
}

func (m *Manager) watchLink(address string, link device.Link, p device.Peripheral) {
	<-link.Disconnected()

	m.connected.Del(address)
	_, requested := m.closing.Get(address)
	m.closing.Del(address)

	var reason error
	if !requested {
		reason = ErrConnectionLost
	}

	m.logger.WithFields(logrus.Fields{
		"address":   address,
		"requested": requested,
	}).Info("Peripheral disconnected")
	m.observers.Broadcast(func(d Delegate) { d.DidDisconnectPeripheral(p, reason) })
}

func (m *Manager) peripheralOrAddress(address string) device.Peripheral {
	if p, ok := m.seen.Get(address); ok {
		return p
	}
	return device.Peripheral{Address: address}
}

func (m *Manager) stopScanLocked() bool {
	if m.scanCancel == nil {
		return false
	}
	m.scanCancel()
	m.scanCancel = nil
	m.scanGen++
	return true
}

// setStateLocked records the new state and reports whether it changed
func (m *Manager) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.state = s
	return true
}

func (m *Manager) notifyState(s State) {
	m.observers.Broadcast(func(d Delegate) { d.DidUpdateState(s) })
}
