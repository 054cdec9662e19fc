package sequence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coreman2200/funtimes-motion/internal/assets"
	"github.com/coreman2200/funtimes-motion/internal/bus"
	"github.com/coreman2200/funtimes-motion/internal/clock"
	diag "github.com/coreman2200/funtimes-motion/internal/diagnostics"
)

// fakeLoader succeeds for every ref except those listed in fail.
func fakeLoader(fail ...string) assets.Loader {
	bad := map[string]bool{}
	for _, f := range fail {
		bad[f] = true
	}
	return assets.LoaderFunc(func(ctx context.Context, ref string) (*assets.Handle, error) {
		if bad[ref] {
			return nil, errors.New("404")
		}
		return &assets.Handle{Ref: ref}, nil
	})
}

func scenario() Config {
	return Config{
		Name:        "scenario",
		Frames:      []string{"A", "B", "C", "D"},
		BaseFPS:     60,
		SpeedRanges: []SpeedRange{{Start: 1, End: 2, Multiplier: 2}},
	}
}

func waitSettled(t *testing.T, p *Player) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("preload did not settle")
	}
}

func TestPlayerStartsOnFirstFrameAndCatchesUp(t *testing.T) {
	p := NewPlayer(scenario(), fakeLoader())
	var got []FrameEvent
	if err := p.Start(context.Background(), func(ev FrameEvent) { got = append(got, ev) }); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, p)

	t0 := time.Unix(0, 0)
	if n := p.Tick(t0); n != 0 {
		t.Fatalf("gate tick should not advance, moved %d", n)
	}
	if len(got) != 1 || got[0].Ref != "A" || got[0].Position != 0 {
		t.Fatalf("expected first frame A on start, got %#v", got)
	}

	// a single 100ms stall at 60fps is six internal ticks
	if n := p.Tick(t0.Add(100 * time.Millisecond)); n != 6 {
		t.Fatalf("expected 6 catch-up steps, got %d", n)
	}
	last := got[len(got)-1]
	if last.Position != 6 || last.Ref != "C" {
		t.Fatalf("expected position 6 showing C, got %#v", last)
	}
	if len(got) != 2 {
		t.Fatalf("expected one notification per tick, got %d", len(got))
	}
}

func TestPlayerCatchUpNeverLosesTime(t *testing.T) {
	p := NewPlayer(scenario(), fakeLoader())
	if err := p.Start(context.Background(), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, p)

	now := time.Unix(0, 0)
	p.Tick(now)
	var total time.Duration
	for _, dt := range []time.Duration{
		16 * time.Millisecond, 17 * time.Millisecond, 5 * time.Millisecond,
		100 * time.Millisecond, 3 * time.Millisecond, 250 * time.Millisecond,
		1 * time.Millisecond, 33 * time.Millisecond,
	} {
		now = now.Add(dt)
		total += dt
		p.Tick(now)
	}
	want := int(total / p.Config().Interval())
	if p.Advances() != want {
		t.Fatalf("expected %d advances for %v, got %d", want, total, p.Advances())
	}
	if p.Cursor().Position != want%len(p.Sequence()) {
		t.Fatalf("cursor at %d, want %d", p.Cursor().Position, want%len(p.Sequence()))
	}
}

func TestPlayerScenarioTwoPasses(t *testing.T) {
	cfg := scenario()
	p := NewPlayer(cfg, fakeLoader())
	if err := p.Start(context.Background(), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, p)

	now := time.Unix(0, 0)
	p.Tick(now)
	shown := map[string]int{}
	for i := 0; i < 2*len(p.Sequence()); i++ {
		cur, ok := p.Current()
		if !ok {
			t.Fatalf("player not running")
		}
		shown[cur.Ref]++
		now = now.Add(cfg.Interval())
		p.Tick(now)
	}
	want := map[string]int{"A": 8, "B": 4, "C": 4, "D": 8}
	for ref, n := range want {
		if shown[ref] != n {
			t.Fatalf("frame %s shown for %d ticks, want %d (all: %v)", ref, shown[ref], n, shown)
		}
	}
}

func TestPlayerFirstFrameFailureWaits(t *testing.T) {
	b := bus.New()
	var complete []bus.Event
	b.Subscribe(bus.LoadingComplete, func(ev bus.Event) { complete = append(complete, ev) })

	p := NewPlayer(scenario(), fakeLoader("A"), WithBus(b))
	calls := 0
	if err := p.Start(context.Background(), func(FrameEvent) { calls++ }); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, p)

	now := time.Unix(0, 0)
	for i := 0; i < 100; i++ {
		now = now.Add(time.Second)
		p.Tick(now)
	}
	if calls != 0 {
		t.Fatalf("expected no frames without the first frame, got %d", calls)
	}
	if p.State() != Loading {
		t.Fatalf("expected to keep waiting, state %s", p.State())
	}
	if len(complete) != 1 || complete[0].Failed != 1 || complete[0].Loaded != 3 {
		t.Fatalf("expected one loading-complete event, got %#v", complete)
	}
}

func TestPlayerFirstFrameTimeout(t *testing.T) {
	cfg := scenario()
	cfg.FirstFrameTimeout = time.Second
	clk := clock.NewManual(time.Unix(100, 0))
	rec := diag.NewRecorder(8)

	p := NewPlayer(cfg, fakeLoader("A"), WithClock(clk), WithDiagnostics(rec))
	var got []FrameEvent
	if err := p.Start(context.Background(), func(ev FrameEvent) { got = append(got, ev) }); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, p)

	p.Tick(clk.Advance(500 * time.Millisecond))
	if len(got) != 0 {
		t.Fatalf("started before timeout")
	}
	p.Tick(clk.Advance(500 * time.Millisecond))
	if len(got) != 1 || got[0].Ref != "A" {
		t.Fatalf("expected playback to start on timeout, got %#v", got)
	}
	if rec.Count(diag.FirstFrameLate) != 1 || rec.Count(diag.AssetLoadFailed) != 1 {
		t.Fatalf("unexpected diagnostics: %#v", rec.Snapshot())
	}
}

func TestPlayerAssetFailureNotFatal(t *testing.T) {
	rec := diag.NewRecorder(8)
	p := NewPlayer(scenario(), fakeLoader("B"), WithDiagnostics(rec))
	var refs []string
	if err := p.Start(context.Background(), func(ev FrameEvent) { refs = append(refs, ev.Ref) }); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, p)
	if rec.Count(diag.AssetLoadFailed) != 0 {
		t.Fatalf("load failures must wait for the tick goroutine")
	}

	now := time.Unix(0, 0)
	p.Tick(now)
	if rec.Count(diag.AssetLoadFailed) != 1 {
		t.Fatalf("expected the first tick to report the load failure")
	}
	for i := 0; i < 12; i++ {
		now = now.Add(p.Config().Interval())
		p.Tick(now)
	}
	sawB := false
	for _, r := range refs {
		if r == "B" {
			sawB = true
		}
	}
	if !sawB {
		t.Fatalf("failed frame should still be selected, got %v", refs)
	}
	if _, ok := p.Handle("B"); ok {
		t.Fatalf("failed frame should have no handle")
	}
	if _, ok := p.Handle("C"); !ok {
		t.Fatalf("loaded frame should have a handle")
	}
	if rec.Count(diag.AssetLoadFailed) != 1 {
		t.Fatalf("expected one load failure diagnostic")
	}
}

func TestPlayerStop(t *testing.T) {
	p := NewPlayer(scenario(), fakeLoader())
	calls := 0
	if err := p.Start(context.Background(), func(FrameEvent) { calls++ }); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, p)
	now := time.Unix(0, 0)
	p.Tick(now)

	p.Stop()
	p.Stop()
	before := calls
	if n := p.Tick(now.Add(time.Second)); n != 0 {
		t.Fatalf("stopped player advanced %d", n)
	}
	if calls != before {
		t.Fatalf("callback ran after stop")
	}
	if _, ok := p.Handle("A"); ok {
		t.Fatalf("handles should be released")
	}
	if p.State() != Stopped {
		t.Fatalf("expected stopped, got %s", p.State())
	}
}

func TestPlayerStopFromCallback(t *testing.T) {
	p := NewPlayer(scenario(), fakeLoader())
	calls := 0
	if err := p.Start(context.Background(), func(FrameEvent) {
		calls++
		p.Stop()
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, p)
	now := time.Unix(0, 0)
	p.Tick(now)
	p.Tick(now.Add(time.Second))
	if calls != 1 {
		t.Fatalf("expected exactly one callback, got %d", calls)
	}
}

func TestPlayerDegenerateAndInvalid(t *testing.T) {
	p := NewPlayer(Config{BaseFPS: 60}, fakeLoader())
	if err := p.Start(context.Background(), func(FrameEvent) { t.Fatal("no frames to show") }); err != nil {
		t.Fatalf("empty config should be a no-op, got %v", err)
	}
	if p.Tick(time.Unix(1, 0)) != 0 || p.State() != Idle {
		t.Fatalf("empty config should do no work")
	}

	bad := NewPlayer(Config{Frames: []string{"A"}}, fakeLoader())
	if err := bad.Start(context.Background(), nil); !errors.Is(err, ErrBadFPS) {
		t.Fatalf("expected ErrBadFPS, got %v", err)
	}
}

func TestPlayerStartTwice(t *testing.T) {
	p := NewPlayer(scenario(), fakeLoader())
	if err := p.Start(context.Background(), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(context.Background(), nil); !errors.Is(err, ErrStarted) {
		t.Fatalf("expected ErrStarted, got %v", err)
	}
	p.Stop()
	if err := p.Start(context.Background(), nil); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	waitSettled(t, p)
	p.Stop()
}
