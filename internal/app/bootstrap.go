package app

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-motion/internal/assets"
	"github.com/coreman2200/funtimes-motion/internal/bus"
	"github.com/coreman2200/funtimes-motion/internal/clock"
	"github.com/coreman2200/funtimes-motion/internal/config"
	diag "github.com/coreman2200/funtimes-motion/internal/diagnostics"
	"github.com/coreman2200/funtimes-motion/internal/layout"
	"github.com/coreman2200/funtimes-motion/internal/particles"
	"github.com/coreman2200/funtimes-motion/internal/render"
	"github.com/coreman2200/funtimes-motion/internal/sequence"
	"github.com/coreman2200/funtimes-motion/internal/sprite"
)

// Options wires a Core into its host. Everything is optional.
type Options struct {
	Driver render.Driver
	Loader assets.Loader // defaults to a FileLoader over server.assets
	Clock  clock.Clock
	Logger *zerolog.Logger
	Sinks  []diag.Sink // receive every diagnostic besides the core's recorder
	Rand   *rand.Rand  // overrides particles.seed
	Bus    *bus.Bus
	Page   *layout.Page

	// Sequences limits playback to the named sequences. Empty plays all.
	Sequences []string
	// NoSequences, NoSprite and NoField leave those animators out.
	NoSequences bool
	NoSprite    bool
	NoField     bool
	// Manual skips the render loop; the host calls Eng.RenderOnce itself.
	Manual bool
}

type Core struct {
	Cfg     *config.Config
	Bus     *bus.Bus
	Diag    *diag.Recorder
	Page    *layout.Page
	Eng     *render.Engine
	Reg     *render.Registry
	Cond    *Conductor
	Players []*sequence.Player
	Sprite  *sprite.Player
	Field   *particles.Field

	log     zerolog.Logger
	ownsBus bool
	unsub   func()
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	once    sync.Once
}

// InitCore builds every animator from cfg, starts preloading and, unless
// opts.Manual is set, starts the render loop at server.fps.
func InitCore(ctx context.Context, cfg *config.Config, opts Options) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalid)
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	// 1) Shared plumbing
	c := &Core{Cfg: cfg, Bus: opts.Bus, Page: opts.Page, Diag: diag.NewRecorder(256), log: log}
	if c.Bus == nil {
		c.Bus = bus.New()
		c.ownsBus = true
	}
	if c.Page == nil {
		c.Page = layout.NewPage(cfg.Layout.Measurements())
	}
	sink := diag.Tee(append([]diag.Sink{c.Diag}, opts.Sinks...)...)
	c.unsub = c.Bus.Subscribe(bus.LoadingComplete, func(ev bus.Event) {
		sev := diag.Info
		if ev.Failed > 0 {
			sev = diag.Warn
		}
		sink.Push(diag.Diagnostic{
			Severity: sev,
			Code:     "SEQUENCE.LOADED",
			Summary:  "sequence preload settled",
			Evidence: map[string]any{"sequence": ev.Source, "loaded": ev.Loaded, "failed": ev.Failed},
		})
	})

	loader := opts.Loader
	if loader == nil {
		loader = assets.FileLoader{
			Root: cfg.Server.Assets,
			Fit:  image.Pt(cfg.Preload.FitWidth, cfg.Preload.FitHeight),
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.Reg = render.NewRegistry()

	// 2) Flip-books
	names := opts.Sequences
	if len(names) == 0 && !opts.NoSequences {
		names = cfg.Names()
	}
	for _, name := range names {
		sc, ok := cfg.Sequence(name)
		if !ok {
			c.Close()
			return nil, fmt.Errorf("%w: unknown sequence %q", config.ErrInvalid, name)
		}
		p := sequence.NewPlayer(sc.Player(), loader,
			sequence.WithClock(clk),
			sequence.WithLogger(log),
			sequence.WithBus(c.Bus),
			sequence.WithDiagnostics(sink),
			sequence.WithWorkers(cfg.Preload.Workers),
		)
		a := &sequenceAnimator{p: p}
		if err := p.Start(ctx, a.onFrame); err != nil {
			c.Close()
			return nil, fmt.Errorf("start sequence %q: %w", name, err)
		}
		c.Players = append(c.Players, p)
		c.Reg.Register(a)
	}

	// 3) Sprite sheet; a missing sheet is reported, not fatal
	if cfg.Sprite != nil && !opts.NoSprite {
		file := assets.FileLoader{Root: cfg.Server.Assets}.Path(cfg.Sprite.Meta)
		meta, err := sprite.LoadMeta(file)
		var sp *sprite.Player
		if err == nil {
			sp, err = sprite.NewPlayer(meta, cfg.Sprite.Options())
		}
		if err != nil {
			log.Warn().Err(err).Str("meta", cfg.Sprite.Meta).Msg("sprite disabled")
			sink.Push(diag.Diagnostic{Severity: diag.Warn, Code: diag.AssetLoadFailed,
				Summary: "sprite sheet unavailable", Detail: err.Error(),
				Evidence: map[string]any{"meta": cfg.Sprite.Meta}})
		} else {
			c.Sprite = sp
			c.Reg.Register(spriteAnimator{p: sp, image: meta.ImageRef(cfg.Sprite.Meta)})
		}
	}

	// 4) Particle field
	if !opts.NoField {
		rng := opts.Rand
		if rng == nil && cfg.Particles.Seed != 0 {
			rng = rand.New(rand.NewSource(cfg.Particles.Seed))
		}
		c.Field = particles.NewField(cfg.Particles.Physics, c.Page, rng,
			particles.WithLogger(log),
			particles.WithDiagnostics(sink),
		)
		c.Field.Initialize(cfg.Particles.Sprites(), c.Page.Bounds())
		c.Reg.Register(fieldAnimator{field: c.Field, page: c.Page})
	}

	// 5) Engine + conductor
	eng, err := render.NewEngine(opts.Driver, c.Reg, clk)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Eng = eng
	c.Cond = NewConductor(eng, c.Reg, c.Bus, log)

	log.Info().
		Int("sequences", len(c.Players)).
		Bool("sprite", c.Sprite != nil).
		Int("bodies", c.fieldLen()).
		Msg("core ready")

	// 6) Frame loop
	if !opts.Manual {
		c.done = make(chan struct{})
		go func() {
			defer close(c.done)
			if err := c.Cond.Run(ctx, cfg.Server.FPS); err != nil {
				c.runErr = err
				log.Error().Err(err).Msg("render loop stopped")
			}
		}()
	}
	return c, nil
}

func (c *Core) fieldLen() int {
	if c.Field == nil {
		return 0
	}
	return c.Field.Len()
}

// Player returns the player of the named sequence.
func (c *Core) Player(name string) (*sequence.Player, bool) {
	for _, p := range c.Players {
		if p.Config().Name == name {
			return p, true
		}
	}
	return nil, false
}

// Err reports why the render loop stopped early, after Close.
func (c *Core) Err() error { return c.runErr }

// Close stops the loop, then every animator, and releases what they hold.
// It is safe to call more than once.
func (c *Core) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.done != nil {
			<-c.done
		}
		if c.Cond != nil {
			c.Cond.Close()
		}
		for _, p := range c.Players {
			p.Stop()
		}
		if c.Field != nil {
			c.Field.Teardown()
		}
		if c.unsub != nil {
			c.unsub()
		}
		if c.ownsBus {
			c.Bus.Close()
		}
		c.log.Debug().Msg("core closed")
	})
}
