package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreman2200/funtimes-motion/internal/clock"
)

// Driver presents frames (preview socket, trace file, etc.).
type Driver interface {
	Write(Frame) error
}

// DriverFunc adapts a func to Driver.
type DriverFunc func(Frame) error

func (f DriverFunc) Write(fr Frame) error { return f(fr) }

// Drivers fans a frame out to every non-nil driver. All drivers are written
// even when one fails; the errors are joined.
func Drivers(ds ...Driver) Driver {
	var live []Driver
	for _, d := range ds {
		if d != nil {
			live = append(live, d)
		}
	}
	return DriverFunc(func(fr Frame) error {
		var errs []error
		for _, d := range live {
			if err := d.Write(fr); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Engine ticks every registered animator into a Frame, then writes it to the
// driver. RenderOnce and Run belong to one goroutine; SetEnabled may be called
// from anywhere.
type Engine struct {
	Drv Driver
	Reg *Registry
	Clk clock.Clock

	tick uint64

	mu     sync.RWMutex
	paused map[string]bool

	// metrics (last durations in ms)
	Last struct {
		AnimateMS float64
		WriteMS   float64
		TotalMS   float64
	}
}

// NewEngine returns an Engine over reg. A nil clock means wall time.
func NewEngine(drv Driver, reg *Registry, clk clock.Clock) (*Engine, error) {
	if reg == nil {
		return nil, errors.New("registry is nil")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{
		Drv:    drv,
		Reg:    reg,
		Clk:    clk,
		paused: map[string]bool{},
	}, nil
}

// Ticks is the number of frames rendered so far.
func (e *Engine) Ticks() uint64 { return e.tick }

// SetEnabled pauses or resumes one animator. A paused animator is skipped and
// listed in Frame.Paused.
func (e *Engine) SetEnabled(name string, on bool) error {
	if _, ok := e.Reg.Get(name); !ok {
		return errors.New("animator not found: " + name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if on {
		delete(e.paused, name)
	} else {
		e.paused[name] = true
	}
	return nil
}

func (e *Engine) Enabled(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.paused[name]
}

// RenderOnce renders a single frame at now. A zero now uses the engine clock.
func (e *Engine) RenderOnce(now time.Time) (Frame, error) {
	if now.IsZero() {
		now = e.Clk.Now()
	}
	start := time.Now()

	e.tick++
	fr := Frame{Tick: e.tick, At: now}
	e.Reg.Each(func(a Animator) {
		if !e.Enabled(a.Name()) {
			fr.Paused = append(fr.Paused, a.Name())
			return
		}
		a.Animate(now, &fr)
	})
	e.Last.AnimateMS = float64(time.Since(start).Microseconds()) / 1000.0

	writeStart := time.Now()
	if e.Drv != nil {
		if err := e.Drv.Write(fr); err != nil {
			return fr, fmt.Errorf("write frame %d: %w", fr.Tick, err)
		}
	}
	e.Last.WriteMS = float64(time.Since(writeStart).Microseconds()) / 1000.0
	e.Last.TotalMS = float64(time.Since(start).Microseconds()) / 1000.0
	return fr, nil
}

// Run renders at fps until ctx is cancelled or the driver fails. It returns
// nil on cancellation.
func (e *Engine) Run(ctx context.Context, fps float64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var werr error
	clock.Run(ctx, fps, e.Clk, func(now time.Time) {
		if _, err := e.RenderOnce(now); err != nil {
			werr = err
			cancel()
		}
	})
	return werr
}
