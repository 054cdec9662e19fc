// Package layout tracks the live page measurements and pointer position the
// host reports, and serves them to the particle field once per step.
package layout

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/coreman2200/funtimes-motion/internal/particles"
)

// Page is safe for concurrent use: the host writes from its input goroutine,
// the tick loop reads.
type Page struct {
	mu      sync.RWMutex
	m       particles.Measurements
	pointer r2.Vec
	hasPtr  bool
}

func NewPage(m particles.Measurements) *Page {
	return &Page{m: m}
}

// Measure implements particles.Layout.
func (p *Page) Measure() particles.Measurements {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.m
}

// Update applies fn to the measurements under the write lock.
func (p *Page) Update(fn func(m *particles.Measurements)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.m)
}

// Bounds is the scatter area for a freshly mounted field: the viewport width
// by the full document height.
func (p *Page) Bounds() particles.Bounds {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return particles.Bounds{Width: p.m.ViewportWidth, Height: p.m.DocumentHeight}
}

// SetPointer records the pointer in page coordinates.
func (p *Page) SetPointer(x, y float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pointer = r2.Vec{X: x, Y: y}
	p.hasPtr = true
}

// SetClientPointer records a pointer given in viewport coordinates, shifting
// it by the current scroll offset.
func (p *Page) SetClientPointer(x, clientY float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pointer = r2.Vec{X: x, Y: clientY + p.m.ScrollY}
	p.hasPtr = true
}

// ClearPointer forgets the pointer, e.g. when it leaves the page.
func (p *Page) ClearPointer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasPtr = false
}

// Pointer returns a copy of the last pointer position, or nil.
func (p *Page) Pointer() *r2.Vec {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.hasPtr {
		return nil
	}
	v := p.pointer
	return &v
}
