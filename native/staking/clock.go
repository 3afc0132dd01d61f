package staking

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock supplies wall-clock time to the ledger.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time from the operating system.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a settable clock for simulations and tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock fixed at the provided instant.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t. Moving backwards is permitted; the ledger never
// observes time regressing.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// monotonic clamps a wall clock so the observed value never decreases.
type monotonic struct {
	clock Clock
	last  atomic.Uint64
}

func (m *monotonic) observe(floor uint64) {
	for {
		last := m.last.Load()
		if floor <= last || m.last.CompareAndSwap(last, floor) {
			return
		}
	}
}

func (m *monotonic) now() uint64 {
	ts := m.clock.Now().Unix()
	if ts < 0 {
		ts = 0
	}
	candidate := uint64(ts)
	for {
		last := m.last.Load()
		if candidate <= last {
			return last
		}
		if m.last.CompareAndSwap(last, candidate) {
			return candidate
		}
	}
}
