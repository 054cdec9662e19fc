// Package clock provides the monotonic time source and tick loop the engines
// are driven by.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock returns the current time with a monotonic reading.
type Clock interface {
	Now() time.Time
}

// Real is the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Manual is a controllable clock for tests and headless simulation.
type Manual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManual creates a Manual clock positioned at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Interval returns the tick period for fps, falling back to 60.
func Interval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 60
	}
	return time.Duration(float64(time.Second) / fps)
}

// Run calls fn once per tick at the given rate until ctx is cancelled.
// fn never runs after Run returns, and never runs concurrently with itself.
func Run(ctx context.Context, fps float64, clk Clock, fn func(now time.Time)) {
	if clk == nil {
		clk = Real{}
	}
	tick := time.NewTicker(Interval(fps))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			// a tick and a cancel can be ready together; cancel wins
			if ctx.Err() != nil {
				return
			}
			fn(clk.Now())
		}
	}
}
