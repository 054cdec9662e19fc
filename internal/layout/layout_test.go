package layout

import (
	"sync"
	"testing"

	"github.com/coreman2200/funtimes-motion/internal/particles"
)

func TestPagePointer(t *testing.T) {
	p := NewPage(particles.Measurements{ViewportWidth: 1200, DocumentHeight: 3000, ScrollY: 400})
	if p.Pointer() != nil {
		t.Fatalf("expected no pointer initially")
	}
	p.SetClientPointer(10, 20)
	ptr := p.Pointer()
	if ptr == nil || ptr.X != 10 || ptr.Y != 420 {
		t.Fatalf("expected scroll-adjusted pointer, got %v", ptr)
	}
	ptr.X = 999
	if p.Pointer().X != 10 {
		t.Fatalf("Pointer must return a copy")
	}
	p.ClearPointer()
	if p.Pointer() != nil {
		t.Fatalf("expected pointer cleared")
	}
}

func TestPageUpdateConcurrent(t *testing.T) {
	p := NewPage(particles.Measurements{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Update(func(m *particles.Measurements) { m.ViewportWidth = float64(i) })
			_ = p.Measure()
			p.SetPointer(float64(i), 0)
		}(i)
	}
	wg.Wait()
	p.Update(func(m *particles.Measurements) {
		m.ViewportWidth, m.DocumentHeight = 800, 2000
	})
	if b := p.Bounds(); b.Width != 800 || b.Height != 2000 {
		t.Fatalf("unexpected bounds %+v", b)
	}
}
