// Package persist keeps the energy accumulators across reboots.
//
// All stores are best-effort: callers log failures and carry on with the
// in-memory value.
package persist

import (
	"sync"
	"time"

	"energymon-go/errcode"
)

// Store reads and writes the accumulator pair.
type Store interface {
	ReadAccumulator() ([2]int64, error)
	WriteAccumulator(acc [2]int64) error
}

// ErrNotFound is returned by ReadAccumulator when nothing has been stored.
var ErrNotFound = &errcode.E{C: errcode.StoreUnavailable, Msg: "no record"}

// MemStore keeps the record in memory. The zero value is empty.
type MemStore struct {
	mu     sync.Mutex
	acc    [2]int64
	ok     bool
	writes int
}

func (m *MemStore) ReadAccumulator() ([2]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ok {
		return [2]int64{}, ErrNotFound
	}
	return m.acc, nil
}

func (m *MemStore) WriteAccumulator(acc [2]int64) error {
	m.mu.Lock()
	m.acc, m.ok = acc, true
	m.writes++
	m.mu.Unlock()
	return nil
}

// Writes reports how many writes reached the store.
func (m *MemStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Throttled limits writes to the underlying store to one per Interval and
// skips writes that would store an unchanged value. Reads pass through.
type Throttled struct {
	Store    Store
	Interval time.Duration
	Now      func() time.Time

	mu      sync.Mutex
	last    time.Time
	lastAcc [2]int64
	written bool
}

func NewThrottled(s Store, interval time.Duration) *Throttled {
	return &Throttled{Store: s, Interval: interval, Now: time.Now}
}

func (t *Throttled) ReadAccumulator() ([2]int64, error) {
	acc, err := t.Store.ReadAccumulator()
	if err == nil {
		t.mu.Lock()
		t.lastAcc, t.written = acc, true
		t.mu.Unlock()
	}
	return acc, err
}

func (t *Throttled) WriteAccumulator(acc [2]int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.Now()
	if t.written && (acc == t.lastAcc || now.Sub(t.last) < t.Interval) {
		return nil
	}
	if err := t.Store.WriteAccumulator(acc); err != nil {
		return err
	}
	t.last, t.lastAcc, t.written = now, acc, true
	return nil
}
