package main

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/srg/swft/internal/central"
	"github.com/srg/swft/internal/device"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ScanProgress prints a single status line while a scan runs: the time left
// (or elapsed, for open-ended scans) and how many peripherals were found so far.
// It counts peripherals by observing the central manager.
//
// Usage:
//
//	p := NewScanProgress(w, 10*time.Second)
//	manager.AddObserver(p)
//	p.Start()
//	defer p.Stop()
//
// A ScanProgress is single-use. Stop must be called to release the ticker goroutine.
type ScanProgress struct {
	central.NopDelegate

	out      io.Writer
	duration time.Duration // zero counts up
	seen     *hashmap.Map[string, struct{}]

	startTime time.Time
	ticker    atomic.Pointer[time.Ticker]
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
}

// NewScanProgress creates a progress line for a scan lasting duration
func NewScanProgress(out io.Writer, duration time.Duration) *ScanProgress {
	return &ScanProgress{
		out:      out,
		duration: duration,
		seen:     hashmap.New[string, struct{}](),
	}
}

// DidDiscoverPeripheral counts distinct peripherals
func (p *ScanProgress) DidDiscoverPeripheral(periph device.Peripheral) {
	p.seen.Insert(periph.Address, struct{}{})
}

// Found returns the number of distinct peripherals seen
func (p *ScanProgress) Found() int {
	return p.seen.Len()
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once.
func (p *ScanProgress) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ScanProgress.Start called more than once")
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	p.print(p.seconds(0))

	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.print(p.seconds(time.Since(p.startTime)))
			}
		}
	}()
}

// Stop stops the progress display and clears the line. Safe to call more than once.
func (p *ScanProgress) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Fprint(p.out, clearLineSequence)
}

// seconds returns remaining seconds in countdown mode, elapsed seconds otherwise
func (p *ScanProgress) seconds(elapsed time.Duration) int {
	if p.duration <= 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	// round to the nearest second
	return int(remaining.Seconds() + 0.5)
}

func (p *ScanProgress) print(seconds int) {
	found := p.seen.Len()
	if p.duration > 0 {
		fmt.Fprintf(p.out, "\rScanning for BLE devices (%ds left, %d found)   ", seconds, found)
		return
	}
	fmt.Fprintf(p.out, "\rScanning for BLE devices (%ds, %d found)   ", seconds, found)
}
