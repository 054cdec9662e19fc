// internal/app/conductor.go
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-motion/internal/bus"
	"github.com/coreman2200/funtimes-motion/internal/layout"
	"github.com/coreman2200/funtimes-motion/internal/particles"
	"github.com/coreman2200/funtimes-motion/internal/render"
	"github.com/coreman2200/funtimes-motion/internal/sequence"
	"github.com/coreman2200/funtimes-motion/internal/sprite"
)

// FieldAnimator is the registry name of the particle field.
const FieldAnimator = "field"

// SequenceAnimator names the animator of a flip-book.
func SequenceAnimator(name string) string { return "sequence:" + name }

// sequenceAnimator reports the player's frame every tick. Ticks on which the
// player delivered a change carry that event, so Changed reaches the driver.
type sequenceAnimator struct {
	p       *sequence.Player
	pending *sequence.FrameEvent
}

func (a *sequenceAnimator) Name() string { return SequenceAnimator(a.p.Config().Name) }

// onFrame is the player's FrameFunc. It runs inside Tick, on the render
// goroutine.
func (a *sequenceAnimator) onFrame(ev sequence.FrameEvent) { a.pending = &ev }

func (a *sequenceAnimator) Animate(now time.Time, f *render.Frame) {
	a.pending = nil
	a.p.Tick(now)
	if a.pending != nil {
		f.Sequences = append(f.Sequences, *a.pending)
		return
	}
	if ev, ok := a.p.Current(); ok {
		f.Sequences = append(f.Sequences, ev)
	}
}

type spriteAnimator struct {
	p     *sprite.Player
	image string
}

func (a spriteAnimator) Name() string { return "sprite" }

func (a spriteAnimator) Animate(now time.Time, f *render.Frame) {
	changed := a.p.Tick(now)
	i := a.p.Index()
	off := a.p.Offset(i)
	size := a.p.FrameSize()
	f.Sprite = &render.SpriteFrame{Image: a.image, Index: i, X: off.X, Y: off.Y,
		Width: size.X, Height: size.Y, Changed: changed}
}

type fieldAnimator struct {
	field *particles.Field
	page  *layout.Page
}

func (a fieldAnimator) Name() string { return FieldAnimator }

func (a fieldAnimator) Animate(now time.Time, f *render.Frame) {
	a.field.Step(now, a.page.Pointer())
	f.Bodies = a.field.Transforms()
}

// Conductor drives the engine and reacts to cross-component signals: the
// particle field is paused while the flip-book is open.
type Conductor struct {
	Eng *render.Engine
	Reg *render.Registry
	Bus *bus.Bus
	log zerolog.Logger

	unsub func()
}

func NewConductor(eng *render.Engine, reg *render.Registry, b *bus.Bus, log zerolog.Logger) *Conductor {
	c := &Conductor{Eng: eng, Reg: reg, Bus: b, log: log}
	c.unsub = b.Subscribe(bus.BookOpen, c.onBookOpen)
	if ev, ok := b.Last(bus.BookOpen); ok {
		c.onBookOpen(ev)
	}
	return c
}

func (c *Conductor) onBookOpen(ev bus.Event) {
	if _, ok := c.Reg.Get(FieldAnimator); !ok {
		return
	}
	if err := c.Eng.SetEnabled(FieldAnimator, !ev.Open); err != nil {
		c.log.Warn().Err(err).Msg("toggle field")
		return
	}
	c.log.Debug().Bool("open", ev.Open).Str("source", ev.Source).Msg("book toggled")
}

// Run renders at fps until ctx is done.
func (c *Conductor) Run(ctx context.Context, fps float64) error {
	if fps <= 0 {
		fps = 60
	}
	return c.Eng.Run(ctx, fps)
}

// Close stops reacting to signals.
func (c *Conductor) Close() {
	if c.unsub != nil {
		c.unsub()
	}
}
