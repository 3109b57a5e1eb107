// Package zcr measures mains frequency from zero-crossing edge timestamps.
//
// Capture runs in interrupt context. It touches only the timestamp ring,
// which no other code reads, and publishes a single atomic word holding the
// elapsed timer ticks across the last Depth crossings.
package zcr

import (
	"sync/atomic"

	"energymon-go/x/mathx"
)

const (
	// Capacity is the size of the timestamp ring.
	Capacity = 64
	// DefaultDepth is the number of crossings averaged when unset.
	DefaultDepth = 20
	// Decimals is the number of fixed-point decimal digits of Frequency.
	Decimals = 4

	frequencyScale = 1e4
)

// Monitor holds the capture ring and the published delta.
type Monitor struct {
	times [Capacity]uint32
	head  int // next slot written
	tail  int // slot holding the timestamp Depth captures ago

	depth   int
	clockHz uint32

	delta     atomic.Uint32
	numerator atomic.Uint64
	captures  atomic.Uint32
}

// New returns a monitor averaging over depth crossings of a timer running
// at clockHz. trim corrects the timer clock; 1.0 means nominal. depth is
// clamped to [1, Capacity].
func New(depth int, clockHz uint32, trim float32) *Monitor {
	if depth <= 0 {
		depth = DefaultDepth
	}
	depth = mathx.Clamp(depth, 1, Capacity)
	m := &Monitor{
		head:    depth % Capacity,
		depth:   depth,
		clockHz: clockHz,
	}
	m.Retune(trim)
	return m
}

// Retune recomputes the numerator for a new clock trim. It is safe to call
// while captures are running.
func (m *Monitor) Retune(trim float32) {
	if trim <= 0 {
		trim = 1
	}
	n := float64(m.depth) * float64(m.clockHz) * frequencyScale / float64(trim)
	m.numerator.Store(uint64(n))
}

// Capture records one crossing at timer value ts. It does not block and
// does not allocate.
func (m *Monitor) Capture(ts uint32) {
	last := m.times[m.tail]
	m.times[m.head] = ts
	m.tail = (m.tail + 1) % Capacity
	m.head = (m.head + 1) % Capacity
	m.delta.Store(ts - last)
	m.captures.Add(1)
}

// Depth is the number of crossings spanned by Delta.
func (m *Monitor) Depth() int { return m.depth }

// Delta is the wrapping timer difference across the last Depth crossings.
func (m *Monitor) Delta() uint32 { return m.delta.Load() }

// Numerator divided by Delta gives the frequency in units of 10^-Decimals Hz.
func (m *Monitor) Numerator() uint64 { return m.numerator.Load() }

// Captures counts edges seen since start.
func (m *Monitor) Captures() uint32 { return m.captures.Load() }

// Frequency returns the mains frequency scaled by 10^Decimals, or 0 before
// the first capture.
func (m *Monitor) Frequency() uint64 {
	d := m.Delta()
	if d == 0 {
		return 0
	}
	return m.Numerator() / uint64(d)
}
