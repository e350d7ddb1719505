package testutils

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/srg/swft/internal/device"
)

// FakeCentral is an in-memory device.Central.
//
// Scan replays the configured advertisements, then keeps delivering whatever
// Emit pushes until the scan context is done.
type FakeCentral struct {
	mu       sync.Mutex
	adverts  []device.Advertisement
	handler  func(device.Advertisement)
	scanErr  error
	dialErr  error
	links    map[string]*FakeLink
	scanning chan struct{}

	scans   atomic.Int32
	stopped atomic.Bool
}

// NewFakeCentral creates a central that reports the given advertisements on every scan.
func NewFakeCentral(adverts ...device.Advertisement) *FakeCentral {
	return &FakeCentral{
		adverts:  adverts,
		links:    make(map[string]*FakeLink),
		scanning: make(chan struct{}, 16),
	}
}

// WithScanError makes Scan fail immediately with err.
func (c *FakeCentral) WithScanError(err error) *FakeCentral {
	c.scanErr = err
	return c
}

// WithDialError makes Dial fail with err.
func (c *FakeCentral) WithDialError(err error) *FakeCentral {
	c.dialErr = err
	return c
}

// Factory returns a device.CentralFactory handing out this central.
func (c *FakeCentral) Factory() device.CentralFactory {
	return func() (device.Central, error) {
		return c, nil
	}
}

// Scan implements device.Central.
func (c *FakeCentral) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	if c.scanErr != nil {
		return c.scanErr
	}
	c.scans.Add(1)

	c.mu.Lock()
	c.handler = handler
	adverts := append([]device.Advertisement(nil), c.adverts...)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.handler = nil
		c.mu.Unlock()
	}()

	seen := make(map[string]bool)
	for _, adv := range adverts {
		if !allowDup && seen[adv.Addr()] {
			continue
		}
		seen[adv.Addr()] = true
		handler(adv)
	}

	select {
	case c.scanning <- struct{}{}:
	default:
	}

	<-ctx.Done()
	return ctx.Err()
}

// Emit delivers an advertisement to the running scan. Returns false if no scan is running.
func (c *FakeCentral) Emit(adv device.Advertisement) bool {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(adv)
	return true
}

// Scanning returns a channel signalled each time a scan has replayed its advertisements.
func (c *FakeCentral) Scanning() <-chan struct{} {
	return c.scanning
}

// Scans returns how many scans were started.
func (c *FakeCentral) Scans() int {
	return int(c.scans.Load())
}

// Dial implements device.Central.
func (c *FakeCentral) Dial(ctx context.Context, address string) (device.Link, error) {
	if c.dialErr != nil {
		return nil, c.dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	link := NewFakeLink(address)

	c.mu.Lock()
	c.links[address] = link
	c.mu.Unlock()

	return link, nil
}

// Link returns the last link dialed to address.
func (c *FakeCentral) Link(address string) *FakeLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.links[address]
}

// Stop implements device.Central.
func (c *FakeCentral) Stop() error {
	c.stopped.Store(true)
	return nil
}

// Stopped reports whether Stop was called.
func (c *FakeCentral) Stopped() bool {
	return c.stopped.Load()
}

// FakeLink is an in-memory device.Link.
type FakeLink struct {
	address   string
	done      chan struct{}
	once      sync.Once
	cancelled atomic.Bool
}

// NewFakeLink creates an open link to address.
func NewFakeLink(address string) *FakeLink {
	return &FakeLink{address: address, done: make(chan struct{})}
}

func (l *FakeLink) Address() string               { return l.address }
func (l *FakeLink) Disconnected() <-chan struct{} { return l.done }

// CancelConnection implements device.Link.
func (l *FakeLink) CancelConnection() error {
	l.cancelled.Store(true)
	l.Drop()
	return nil
}

// Drop simulates the peripheral going away.
func (l *FakeLink) Drop() {
	l.once.Do(func() { close(l.done) })
}

// Cancelled reports whether the host cancelled the link.
func (l *FakeLink) Cancelled() bool {
	return l.cancelled.Load()
}
