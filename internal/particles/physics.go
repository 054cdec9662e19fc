package particles

import (
	"math/rand"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// Collide exchanges the normal velocity components of every pair that
// overlaps, as an elastic collision of equal masses, then separates all
// bodies. Contacts are detected on the positions the bodies had when Collide
// was called, so each pair exchanges at most once. Coincident centers have no
// normal and keep their velocities. It returns the number of exchanges.
func Collide(bodies []*Body) int {
	snap := make([]r2.Vec, len(bodies))
	for i, b := range bodies {
		snap[i] = b.Pos
	}
	hits := 0
	for i := 0; i < len(bodies); i++ {
		a := bodies[i]
		for j := i + 1; j < len(bodies); j++ {
			b := bodies[j]
			d := r2.Sub(snap[j], snap[i])
			dist := r2.Norm(d)
			if dist >= a.Radius+b.Radius || dist == 0 {
				continue
			}
			n := r2.Scale(1/dist, d)
			t := r2.Vec{X: -n.Y, Y: n.X}

			an, at := r2.Dot(a.Vel, n), r2.Dot(a.Vel, t)
			bn, bt := r2.Dot(b.Vel, n), r2.Dot(b.Vel, t)
			a.Vel = r2.Add(r2.Scale(bn, n), r2.Scale(at, t))
			b.Vel = r2.Add(r2.Scale(an, n), r2.Scale(bt, t))
			hits++
		}
	}
	Separate(bodies, nil)
	return hits
}

const (
	separatePasses = 64
	separateSlop   = 1e-9
	// separateGap is left between a pair once pushed apart, so a push that
	// nudges a neighbour does not immediately re-open a contact.
	separateGap = 0.01
)

// Separate pushes overlapping bodies apart along their line of centers,
// half the overlap each plus a hair, on their current positions. Passes repeat until no
// pair overlaps or the pass cap is hit, since moving one pair can press a
// body into a third. clamp, if non-nil, is applied to every moved body and
// may pin it against an edge. Velocities are untouched. It returns the
// number of pairs still overlapping.
func Separate(bodies []*Body, clamp func(*Body)) int {
	for pass := 0; pass < separatePasses; pass++ {
		moved := 0
		for i := 0; i < len(bodies); i++ {
			a := bodies[i]
			for j := i + 1; j < len(bodies); j++ {
				b := bodies[j]
				d := r2.Sub(b.Pos, a.Pos)
				dist := r2.Norm(d)
				overlap := a.Radius + b.Radius - dist
				if overlap <= separateSlop {
					continue
				}
				n := r2.Vec{X: 1}
				if dist > 0 {
					n = r2.Scale(1/dist, d)
				}
				push := r2.Scale((overlap+separateGap)/2, n)
				a.Pos = r2.Sub(a.Pos, push)
				b.Pos = r2.Add(b.Pos, push)
				if clamp != nil {
					clamp(a)
					clamp(b)
				}
				moved++
			}
		}
		if moved == 0 {
			return 0
		}
	}
	return overlapping(bodies)
}

func overlapping(bodies []*Body) int {
	n := 0
	for i := 0; i < len(bodies); i++ {
		for j := i + 1; j < len(bodies); j++ {
			if bodies[i].Radius+bodies[j].Radius-r2.Norm(r2.Sub(bodies[j].Pos, bodies[i].Pos)) > separateSlop {
				n++
			}
		}
	}
	return n
}

// Repel overrides b's velocity to point away from the pointer when the
// pointer is within the repel radius, and opens a decay window at now.
func Repel(b *Body, pointer r2.Vec, now time.Time, cfg Config) bool {
	d := r2.Sub(b.Pos, pointer)
	dist := r2.Norm(d)
	if dist >= b.Radius*cfg.RepelRadiusFactor {
		return false
	}
	var n r2.Vec
	switch {
	case dist > 0:
		n = r2.Scale(1/dist, d)
	case r2.Norm(b.Vel) > 0:
		n = r2.Unit(b.Vel)
	default:
		n = r2.Vec{X: 1}
	}
	speed := cfg.BaseSpeed * cfg.RepelBoost
	b.Vel = r2.Scale(speed, n)
	b.Pos = r2.Add(b.Pos, r2.Scale(cfg.RepelNudge, n))
	b.decaying = true
	b.decayStart = now
	b.decayFrom = speed
	return true
}

// DecaySpeed is the speed elapsed into a decay window that started at from
// and returns linearly to base over d.
func DecaySpeed(from, base float64, elapsed, d time.Duration) float64 {
	if elapsed <= 0 {
		return from
	}
	if d <= 0 || elapsed >= d {
		return base
	}
	t := float64(elapsed) / float64(d)
	return from + (base-from)*t
}

// decay applies an open decay window. Once it has run its course the window
// closes and the speed snaps to base.
func decay(b *Body, now time.Time, cfg Config) {
	if !b.decaying {
		return
	}
	elapsed := now.Sub(b.decayStart)
	if elapsed >= cfg.DecayDuration {
		b.Vel = withSpeed(b.Vel, cfg.BaseSpeed)
		b.decaying = false
		b.decayFrom = 0
		return
	}
	b.Vel = withSpeed(b.Vel, DecaySpeed(b.decayFrom, cfg.BaseSpeed, elapsed, cfg.DecayDuration))
}

func integrate(b *Body) {
	b.Pos = r2.Add(b.Pos, b.Vel)
	b.Rotation += b.RotationSpeed
}

// Reflect keeps b's center inside lim. A body past an edge is put back just
// inside it and, if it is still heading out, bounced with cfg.Bounce. Top and
// bottom bounces also nudge the horizontal velocity by a small random amount
// so bodies do not settle into corners. It reports whether any edge was hit.
func Reflect(b *Body, lim Limits, cfg Config, rng *rand.Rand) bool {
	hit := false
	switch {
	case b.Pos.X < lim.MinX:
		b.Pos.X = inside(lim.MinX, lim.MaxX, cfg.PushOff)
		if b.Vel.X < 0 {
			b.Vel.X *= cfg.Bounce
		}
		hit = true
	case b.Pos.X > lim.MaxX:
		b.Pos.X = inside(lim.MaxX, lim.MinX, cfg.PushOff)
		if b.Vel.X > 0 {
			b.Vel.X *= cfg.Bounce
		}
		hit = true
	}
	switch {
	case b.Pos.Y < lim.MinY:
		b.Pos.Y = inside(lim.MinY, lim.MaxY, cfg.PushOff)
		if b.Vel.Y < 0 {
			b.Vel.Y *= cfg.Bounce
		}
		b.Vel.X += jitter(rng, cfg.Jitter)
		hit = true
	case b.Pos.Y > lim.MaxY:
		b.Pos.Y = inside(lim.MaxY, lim.MinY, cfg.PushOff)
		if b.Vel.Y > 0 {
			b.Vel.Y *= cfg.Bounce
		}
		b.Vel.X += jitter(rng, cfg.Jitter)
		hit = true
	}
	return hit
}

// Clamp puts b's center back inside lim without touching its velocity.
func Clamp(b *Body, lim Limits) {
	b.Pos.X = min(max(b.Pos.X, lim.MinX), lim.MaxX)
	b.Pos.Y = min(max(b.Pos.Y, lim.MinY), lim.MaxY)
}

// inside moves from edge toward other by push, never past the midpoint.
func inside(edge, other, push float64) float64 {
	half := (other - edge) / 2
	if half < 0 {
		return edge + max(half, -push)
	}
	return edge + min(half, push)
}

func jitter(rng *rand.Rand, amount float64) float64 {
	if rng == nil || amount == 0 {
		return 0
	}
	return (rng.Float64() - 0.5) * amount
}
