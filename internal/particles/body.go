// Package particles simulates the floating icon field: equal-mass elastic
// bodies that bounce off each other and the page edges and flinch away from
// the pointer.
package particles

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// Sprite is one icon to float. Size is its edge length in px.
type Sprite struct {
	Ref  string  `yaml:"ref" json:"ref"`
	Size float64 `yaml:"size,omitempty" json:"size,omitempty"`
}

// Body is the simulated state of one sprite. Velocities are in px per tick.
type Body struct {
	ID            int
	Ref           string
	Pos           r2.Vec
	Vel           r2.Vec
	Radius        float64
	Rotation      float64 // degrees
	RotationSpeed float64 // degrees per tick
	Opacity       float64

	decaying   bool
	decayStart time.Time
	decayFrom  float64
	detached   bool
}

func (b *Body) Speed() float64 { return r2.Norm(b.Vel) }

// Decay reports the active decay window, if any.
func (b *Body) Decay() (start time.Time, from float64, ok bool) {
	return b.decayStart, b.decayFrom, b.decaying
}

// Detached reports whether the body's surface is gone.
func (b *Body) Detached() bool { return b.detached }

// Transform is what the host writes to a body's surface: a translate of the
// top-left corner plus a rotation.
type Transform struct {
	ID       int     `json:"id" csv:"id"`
	Ref      string  `json:"ref" csv:"ref"`
	X        float64 `json:"x" csv:"x"`
	Y        float64 `json:"y" csv:"y"`
	Size     float64 `json:"size" csv:"size"`
	Rotation float64 `json:"rotation" csv:"rotation"`
	Opacity  float64 `json:"opacity" csv:"opacity"`
}

func (b *Body) Transform() Transform {
	return Transform{
		ID:       b.ID,
		Ref:      b.Ref,
		X:        b.Pos.X - b.Radius,
		Y:        b.Pos.Y - b.Radius,
		Size:     2 * b.Radius,
		Rotation: math.Mod(b.Rotation, 360),
		Opacity:  b.Opacity,
	}
}

// CSS renders the transform as a style value.
func (t Transform) CSS() string {
	return fmt.Sprintf("translate(%.2fpx, %.2fpx) rotate(%.2fdeg)", t.X, t.Y, t.Rotation)
}

// withSpeed rescales v to magnitude m, keeping direction. A zero vector
// points along +X.
func withSpeed(v r2.Vec, m float64) r2.Vec {
	n := r2.Norm(v)
	if n == 0 {
		return r2.Vec{X: m}
	}
	return r2.Scale(m/n, v)
}
