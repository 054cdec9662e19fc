package particles

import (
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"

	diag "github.com/coreman2200/funtimes-motion/internal/diagnostics"
)

// Config holds the field's physical constants. Speeds are px per tick.
type Config struct {
	IconSize          float64       `yaml:"icon_size"`
	BaseSpeed         float64       `yaml:"base_speed"`
	RepelRadiusFactor float64       `yaml:"repel_radius_factor"` // fraction of body radius
	RepelBoost        float64       `yaml:"repel_boost"`         // multiple of base speed
	RepelNudge        float64       `yaml:"repel_nudge"`
	DecayDuration     time.Duration `yaml:"decay_duration"`
	Bounce            float64       `yaml:"bounce"`
	PushOff           float64       `yaml:"push_off"`
	Jitter            float64       `yaml:"jitter"`
	HeaderSlack       float64       `yaml:"header_slack"`
	FadeStep          float64       `yaml:"fade_step"`
	FadeMax           float64       `yaml:"fade_max"`
	Spin              float64       `yaml:"spin"` // max |rotation speed| is Spin/2
}

func DefaultConfig() Config {
	return Config{
		IconSize:          80,
		BaseSpeed:         2,
		RepelRadiusFactor: 0.8,
		RepelBoost:        8,
		RepelNudge:        2,
		DecayDuration:     5 * time.Second,
		Bounce:            -0.8,
		PushOff:           1,
		Jitter:            0.5,
		HeaderSlack:       50,
		FadeStep:          0.01,
		FadeMax:           0.6,
		Spin:              1,
	}
}

// WithDefaults fills the fields whose zero value would leave bodies
// invisible or motionless. Every other field is taken as given, zero included.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	set := func(v *float64, def float64) {
		if *v <= 0 {
			*v = def
		}
	}
	set(&c.IconSize, d.IconSize)
	set(&c.BaseSpeed, d.BaseSpeed)
	set(&c.FadeStep, d.FadeStep)
	set(&c.FadeMax, d.FadeMax)
	return c
}

// UnmarshalYAML decodes onto the current value, or onto DefaultConfig when
// that is zero, so keys absent from the document keep their defaults while
// an explicit 0 stays 0.
func (c *Config) UnmarshalYAML(n *yaml.Node) error {
	type plain Config
	p := plain(*c)
	if *c == (Config{}) {
		p = plain(DefaultConfig())
	}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*c = Config(p)
	return nil
}

// Presenter writes one body's transform to its surface. Returning false
// means the surface is gone; the body keeps simulating but is no longer
// presented.
type Presenter func(Transform) bool

type Option func(*Field)

func WithPresenter(p Presenter) Option { return func(f *Field) { f.present = p } }

func WithLogger(l zerolog.Logger) Option { return func(f *Field) { f.log = l } }

func WithDiagnostics(s diag.Sink) Option { return func(f *Field) { f.diag = s } }

// WithDetach registers a callback Teardown runs for every presented body.
func WithDetach(fn func(id int)) Option { return func(f *Field) { f.detach = fn } }

// Field owns its bodies. Step is meant for a single tick goroutine.
type Field struct {
	cfg     Config
	layout  Layout
	rng     *rand.Rand
	log     zerolog.Logger
	diag    diag.Sink
	present Presenter
	detach  func(id int)

	bodies   []*Body
	frame    Frame
	fallback bool
	steps    uint64
}

// NewField builds an empty field. A nil rng seeds one from the clock.
func NewField(cfg Config, layout Layout, rng *rand.Rand, opts ...Option) *Field {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	f := &Field{
		cfg:    cfg.WithDefaults(),
		layout: layout,
		rng:    rng,
		log:    zerolog.Nop(),
		diag:   diag.Discard,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Field) Config() Config { return f.cfg }

// Initialize replaces the field's bodies with one per sprite, scattered
// uniformly over bounds so each starts fully inside, moving in a random
// direction at base speed.
func (f *Field) Initialize(sprites []Sprite, bounds Bounds) {
	f.bodies = f.bodies[:0]
	f.steps = 0
	if len(sprites) == 0 {
		f.log.Debug().Msg("no sprites; field idle")
		return
	}
	for i, s := range sprites {
		size := s.Size
		if size <= 0 {
			size = f.cfg.IconSize
		}
		r := size / 2
		angle := f.rng.Float64() * 2 * math.Pi
		b := &Body{
			ID:            i,
			Ref:           s.Ref,
			Radius:        r,
			Pos:           r2.Vec{X: f.scatter(bounds.Width, r), Y: f.scatter(bounds.Height, r)},
			Vel:           r2.Vec{X: f.cfg.BaseSpeed * math.Cos(angle), Y: f.cfg.BaseSpeed * math.Sin(angle)},
			Rotation:      f.rng.Float64() * 360,
			RotationSpeed: (f.rng.Float64() - 0.5) * f.cfg.Spin,
		}
		f.bodies = append(f.bodies, b)
	}
	f.log.Debug().Int("bodies", len(f.bodies)).Float64("w", bounds.Width).Float64("h", bounds.Height).Msg("field initialized")
}

func (f *Field) scatter(extent, r float64) float64 {
	span := extent - 2*r
	if span <= 0 {
		return extent / 2
	}
	return f.rng.Float64()*span + r
}

// Step advances the simulation one tick. pointer may be nil.
//
// Order within a tick: collisions, pointer repulsion, speed decay,
// integration, boundary reflection, separation inside the frame, then
// presentation. No two bodies end a step overlapping unless the frame is
// too small to hold them apart.
func (f *Field) Step(now time.Time, pointer *r2.Vec) {
	if len(f.bodies) == 0 {
		return
	}
	f.steps++

	Collide(f.bodies)
	for _, b := range f.bodies {
		if pointer != nil {
			Repel(b, *pointer, now, f.cfg)
		}
		decay(b, now, f.cfg)
		integrate(b)
	}

	f.frame = f.measure()
	for _, b := range f.bodies {
		Reflect(b, f.frame.Inset(b.Radius), f.cfg, f.rng)
	}
	if left := Separate(f.bodies, func(b *Body) { Clamp(b, f.frame.Inset(b.Radius)) }); left > 0 {
		f.log.Debug().Int("pairs", left).Msg("frame too tight to separate every body")
	}

	for _, b := range f.bodies {
		if b.Opacity < f.cfg.FadeMax {
			b.Opacity = min(b.Opacity+f.cfg.FadeStep, f.cfg.FadeMax)
		}
		if b.detached || f.present == nil {
			continue
		}
		if !f.present(b.Transform()) {
			b.detached = true
			f.log.Debug().Int("body", b.ID).Str("ref", b.Ref).Msg("surface gone; body no longer presented")
		}
	}
}

func (f *Field) measure() Frame {
	var m Measurements
	if f.layout != nil {
		m = f.layout.Measure()
	}
	fr := Measure(m, f.cfg.HeaderSlack)
	if fr.Fallback != f.fallback {
		f.fallback = fr.Fallback
		if fr.Fallback {
			f.log.Debug().Bool("header", m.HasHeader).Bool("footer", m.HasFooter).Msg("layout incomplete; using defaults")
			f.diag.Push(diag.Diagnostic{
				Severity: diag.Info,
				Code:     diag.LayoutFallback,
				Summary:  "header or footer missing; default bounds substituted",
				Evidence: map[string]any{"header": m.HasHeader, "footer": m.HasFooter},
			})
		}
	}
	return fr
}

// Frame is the boundary frame of the last step.
func (f *Field) Frame() Frame { return f.frame }

// Steps counts steps since Initialize.
func (f *Field) Steps() uint64 { return f.steps }

// Len is the number of live bodies.
func (f *Field) Len() int { return len(f.bodies) }

// Bodies returns copies of the bodies.
func (f *Field) Bodies() []Body {
	out := make([]Body, len(f.bodies))
	for i, b := range f.bodies {
		out[i] = *b
	}
	return out
}

// Transforms snapshots every attached body's transform.
func (f *Field) Transforms() []Transform {
	out := make([]Transform, 0, len(f.bodies))
	for _, b := range f.bodies {
		if !b.detached {
			out = append(out, b.Transform())
		}
	}
	return out
}

// Teardown detaches every body and drops all state. Safe to call twice.
func (f *Field) Teardown() {
	if len(f.bodies) == 0 {
		return
	}
	for _, b := range f.bodies {
		if !b.detached && f.detach != nil {
			f.detach(b.ID)
		}
		b.detached = true
	}
	f.log.Debug().Int("bodies", len(f.bodies)).Msg("field torn down")
	f.bodies = nil
	f.frame = Frame{}
	f.fallback = false
}
