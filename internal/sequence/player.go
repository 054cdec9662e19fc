package sequence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-motion/internal/assets"
	"github.com/coreman2200/funtimes-motion/internal/bus"
	"github.com/coreman2200/funtimes-motion/internal/clock"
	diag "github.com/coreman2200/funtimes-motion/internal/diagnostics"
)

// Option configures a Player.
type Option func(*Player)

func WithClock(c clock.Clock) Option { return func(p *Player) { p.clk = c } }

func WithLogger(l zerolog.Logger) Option { return func(p *Player) { p.log = l } }

func WithBus(b *bus.Bus) Option { return func(p *Player) { p.bus = b } }

func WithDiagnostics(s diag.Sink) Option { return func(p *Player) { p.diag = s } }

// WithWorkers bounds concurrent asset loads.
func WithWorkers(n int) Option { return func(p *Player) { p.workers = n } }

// Player plays one Config. Tick, Advance and Stop belong to the host's tick
// goroutine; preloading runs on its own workers and only hands results over.
type Player struct {
	cfg      Config
	seq      Expanded
	interval time.Duration

	loader  assets.Loader
	clk     clock.Clock
	log     zerolog.Logger
	bus     *bus.Bus
	diag    diag.Sink
	workers int

	// owned by the tick goroutine
	cursor    Cursor
	last      time.Time
	onFrame   FrameFunc
	advances  int
	deadline  time.Time
	announced bool

	// shared with preload workers
	mu       sync.Mutex
	gen      int
	state    PlayerState
	handles  *assets.Set
	firstRef string
	gate     bool
	loaded   int
	failed   int
	settled  bool
	pending  []diag.Diagnostic // load failures, pushed from Tick
	cancel   context.CancelFunc
	ready    chan struct{}
	done     chan struct{}
}

// NewPlayer expands cfg once and returns an idle player.
func NewPlayer(cfg Config, loader assets.Loader, opts ...Option) *Player {
	p := &Player{
		cfg:      cfg,
		seq:      Expand(cfg),
		interval: cfg.Interval(),
		loader:   loader,
		clk:      clock.Real{},
		log:      zerolog.Nop(),
		diag:     diag.Discard,
		state:    Idle,
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With().Str("sequence", cfg.Name).Logger()
	return p
}

func (p *Player) Config() Config     { return p.cfg }
func (p *Player) Sequence() Expanded { return p.seq }
func (p *Player) Cursor() Cursor     { return p.cursor }

// Advances is the total number of cursor steps since Start.
func (p *Player) Advances() int { return p.advances }

func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Ready is closed once the first frame has loaded. It is nil before Start.
func (p *Player) Ready() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Done is closed once every asset has resolved or preloading was cancelled.
func (p *Player) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Loaded reports preload progress.
func (p *Player) Loaded() (loaded, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded, p.failed
}

// Start begins preloading every distinct frame and arms the tick loop.
// Playback starts on the first Tick after the first frame of the sequence
// has loaded, which also delivers that frame to onFrameChange.
//
// A config without frames makes Start a no-op.
func (p *Player) Start(ctx context.Context, onFrameChange FrameFunc) error {
	if err := p.cfg.Validate(); err != nil {
		if errors.Is(err, ErrNoFrames) {
			p.log.Debug().Msg("no frames; nothing to play")
			p.diag.Push(diag.Diagnostic{Severity: diag.Info, Code: diag.DegenerateInput,
				Summary: "sequence has no frames", Detail: p.cfg.Name})
			return nil
		}
		return err
	}
	switch p.State() {
	case Loading, Running:
		return ErrStarted
	}

	pctx, cancel := context.WithCancel(ctx)
	ready, done := make(chan struct{}), make(chan struct{})
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.state = Loading
	p.handles = assets.NewSet()
	p.firstRef = p.cfg.Frames[p.seq[0]]
	p.gate, p.settled = false, false
	p.loaded, p.failed = 0, 0
	p.pending = nil
	p.cancel = cancel
	p.ready, p.done = ready, done
	p.mu.Unlock()

	p.onFrame = onFrameChange
	p.cursor = Cursor{}
	p.last = time.Time{}
	p.advances = 0
	p.announced = false
	p.deadline = time.Time{}
	if p.cfg.FirstFrameTimeout > 0 {
		p.deadline = p.clk.Now().Add(p.cfg.FirstFrameTimeout)
	}

	p.log.Info().
		Int("frames", len(p.cfg.Frames)).
		Int("ticks", len(p.seq)).
		Dur("interval", p.interval).
		Msg("sequence preloading")

	pre := assets.NewPreloader(p.loader, p.workers, p.log)
	go func() {
		defer close(done)
		err := pre.Preload(pctx, p.cfg.Frames, func(r assets.Result) { p.onResult(gen, r) })
		p.mu.Lock()
		if p.gen == gen {
			p.settled = true
		}
		p.mu.Unlock()
		if err != nil {
			p.log.Debug().Err(err).Msg("preload cancelled")
		}
	}()
	return nil
}

func (p *Player) onResult(gen int, r assets.Result) {
	p.mu.Lock()
	if gen != p.gen || (p.state != Loading && p.state != Running) {
		p.mu.Unlock()
		return
	}
	if r.Err != nil {
		p.failed++
		p.pending = append(p.pending, diag.Diagnostic{
			Severity: diag.Warn,
			Code:     diag.AssetLoadFailed,
			Summary:  "frame failed to load",
			Detail:   r.Err.Error(),
			Evidence: map[string]any{"sequence": p.cfg.Name, "ref": r.Ref},
			At:       p.clk.Now(),
		})
		p.mu.Unlock()
		return
	}
	p.loaded++
	p.handles.Put(r.Handle)
	if r.Ref == p.firstRef && !p.gate {
		p.gate = true
		close(p.ready)
	}
	p.mu.Unlock()
}

// Tick advances playback to now and returns how many steps the cursor moved.
func (p *Player) Tick(now time.Time) int {
	p.mu.Lock()
	state, gate, settled := p.state, p.gate, p.settled
	p.mu.Unlock()

	if state != Loading && state != Running {
		return 0
	}
	p.flushDiagnostics()
	if settled && !p.announced {
		p.announced = true
		loaded, failed := p.Loaded()
		p.log.Info().Int("loaded", loaded).Int("failed", failed).Msg("sequence preload settled")
		p.bus.Publish(bus.Event{Topic: bus.LoadingComplete, Source: p.cfg.Name, Loaded: loaded, Failed: failed})
		if p.State() == Stopped {
			return 0
		}
	}

	if state == Loading {
		if !gate {
			if p.deadline.IsZero() || now.Before(p.deadline) {
				return 0
			}
			p.log.Warn().Str("ref", p.firstRef).Msg("first frame not loaded in time; starting anyway")
			p.diag.Push(diag.Diagnostic{Severity: diag.Warn, Code: diag.FirstFrameLate,
				Summary: "first frame timed out", Evidence: map[string]any{"ref": p.firstRef}})
		}
		p.mu.Lock()
		if p.state != Loading {
			p.mu.Unlock()
			return 0
		}
		p.state = Running
		p.mu.Unlock()
		p.cursor = Cursor{}
		p.last = now
		p.bus.Publish(bus.Event{Topic: bus.FirstFrame, Source: p.cfg.Name})
		p.emit()
		return 0
	}

	dt := now.Sub(p.last)
	p.last = now
	return p.step(dt)
}

// Advance moves playback forward by dt from the last tick time.
func (p *Player) Advance(dt time.Duration) int {
	now := p.last
	if now.IsZero() {
		now = p.clk.Now()
	}
	return p.Tick(now.Add(dt))
}

func (p *Player) step(dt time.Duration) int {
	if dt < 0 {
		dt = 0
	}
	p.cursor.Accumulated += dt
	if p.cursor.Accumulated < p.interval {
		return 0
	}
	steps := int(p.cursor.Accumulated / p.interval)
	p.cursor.Accumulated -= time.Duration(steps) * p.interval
	prev := p.cursor.Position
	p.cursor.Position = (prev + steps) % len(p.seq)
	p.advances += steps
	if p.cursor.Position != prev {
		p.emit()
	}
	return steps
}

func (p *Player) emit() {
	if p.onFrame == nil || p.State() != Running {
		return
	}
	frame := p.seq[p.cursor.Position]
	p.onFrame(FrameEvent{
		Sequence: p.cfg.Name,
		Position: p.cursor.Position,
		Frame:    frame,
		Ref:      p.cfg.Frames[frame],
		Changed:  true,
	})
}

// flushDiagnostics pushes the load failures queued by preload workers, so
// sinks only ever run on the tick goroutine.
func (p *Player) flushDiagnostics() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, d := range pending {
		p.diag.Push(d)
	}
}

// Current returns the frame at the cursor.
func (p *Player) Current() (FrameEvent, bool) {
	if len(p.seq) == 0 || p.State() != Running {
		return FrameEvent{}, false
	}
	frame := p.seq[p.cursor.Position]
	return FrameEvent{Sequence: p.cfg.Name, Position: p.cursor.Position, Frame: frame, Ref: p.cfg.Frames[frame]}, true
}

// Handle returns the preloaded handle for ref, if it loaded.
func (p *Player) Handle(ref string) (*assets.Handle, bool) {
	p.mu.Lock()
	h := p.handles
	p.mu.Unlock()
	if h == nil {
		return nil, false
	}
	return h.Get(ref)
}

// Stop halts playback, cancels outstanding loads and releases every handle.
// It is safe to call more than once; no callback runs after it returns.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.state == Stopped || p.state == Idle {
		p.state = Stopped
		p.mu.Unlock()
		return
	}
	p.state = Stopped
	cancel, handles := p.cancel, p.handles
	p.cancel = nil
	p.pending = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	released := 0
	if handles != nil {
		released = handles.Release()
	}
	p.onFrame = nil
	p.cursor = Cursor{}
	p.log.Debug().Int("released", released).Msg("sequence stopped")
}

// SafePlayer serializes access for hosts that drive a player from more than
// one goroutine.
type SafePlayer struct {
	mu sync.Mutex
	P  *Player
}

func NewSafePlayer(cfg Config, loader assets.Loader, opts ...Option) *SafePlayer {
	return &SafePlayer{P: NewPlayer(cfg, loader, opts...)}
}

func (s *SafePlayer) With(f func(p *Player)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s.P)
}

func (s *SafePlayer) Tick(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.P.Tick(now)
}

func (s *SafePlayer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.P.Stop()
}
