package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-motion/internal/assets"
	"github.com/coreman2200/funtimes-motion/internal/bus"
	"github.com/coreman2200/funtimes-motion/internal/clock"
	"github.com/coreman2200/funtimes-motion/internal/config"
	diag "github.com/coreman2200/funtimes-motion/internal/diagnostics"
	"github.com/coreman2200/funtimes-motion/internal/render"
)

var okLoader = assets.LoaderFunc(func(ctx context.Context, ref string) (*assets.Handle, error) {
	return &assets.Handle{Ref: ref}, nil
})

func testConfig(t *testing.T, withMeta bool) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	if withMeta {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "animation6"), 0755))
		meta := `{"width":10,"height":8,"fps":10,"frames":4,"frames_per_row":2,"rows":2,"image":"sprite.webp"}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "animation6", "meta.json"), []byte(meta), 0644))
	}
	cfg.Server.Assets = dir
	cfg.Particles.Seed = 7
	return cfg
}

func waitReady(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for preload")
	}
}

func TestCoreRendersEveryAnimator(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	core, err := InitCore(context.Background(), testConfig(t, true), Options{
		Loader:    okLoader,
		Clock:     clk,
		Manual:    true,
		Sequences: []string{"gallery"},
	})
	require.NoError(t, err)
	defer core.Close()

	p, ok := core.Player("gallery")
	require.True(t, ok)
	waitReady(t, p.Ready())

	fr, err := core.Eng.RenderOnce(clk.Now())
	require.NoError(t, err)
	require.Len(t, fr.Sequences, 1)
	assert.Equal(t, 0, fr.Sequences[0].Position)
	assert.Equal(t, "/animation4/IMG_6664.PNG", fr.Sequences[0].Ref)
	assert.True(t, fr.Sequences[0].Changed, "first frame is delivered as a change")
	require.NotNil(t, fr.Sprite)
	assert.Equal(t, "/animation6/sprite.webp", fr.Sprite.Image)
	assert.Equal(t, 500, fr.Sprite.Width)
	assert.Len(t, fr.Bodies, 13)

	// 43.2 fps: 100ms is four whole ticks
	fr, err = core.Eng.RenderOnce(clk.Advance(100 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 4, fr.Sequences[0].Position)
	assert.Equal(t, 1, fr.Sequences[0].Frame)
	assert.True(t, fr.Sequences[0].Changed)

	fr, err = core.Eng.RenderOnce(clk.Advance(time.Millisecond))
	require.NoError(t, err)
	require.Len(t, fr.Sequences, 1)
	assert.Equal(t, 4, fr.Sequences[0].Position)
	assert.False(t, fr.Sequences[0].Changed, "no step, no change")
}

func TestBookOpenPausesField(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	core, err := InitCore(context.Background(), testConfig(t, false), Options{
		Loader:    okLoader,
		Clock:     clk,
		Manual:    true,
		Sequences: []string{"hero"},
		NoSprite:  true,
	})
	require.NoError(t, err)
	defer core.Close()

	core.Bus.Publish(bus.Event{Topic: bus.BookOpen, Open: true})
	fr, err := core.Eng.RenderOnce(clk.Advance(16 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, []string{FieldAnimator}, fr.Paused)
	assert.Empty(t, fr.Bodies)
	assert.Equal(t, uint64(0), core.Field.Steps())

	core.Bus.Publish(bus.Event{Topic: bus.BookOpen, Open: false})
	fr, err = core.Eng.RenderOnce(clk.Advance(16 * time.Millisecond))
	require.NoError(t, err)
	assert.Empty(t, fr.Paused)
	assert.Len(t, fr.Bodies, 13)
}

func TestBookAlreadyOpen(t *testing.T) {
	b := bus.New()
	b.Publish(bus.Event{Topic: bus.BookOpen, Open: true})
	core, err := InitCore(context.Background(), testConfig(t, false), Options{
		Loader: okLoader, Manual: true, Bus: b, Sequences: []string{"loading"},
	})
	require.NoError(t, err)
	defer core.Close()
	assert.False(t, core.Eng.Enabled(FieldAnimator))
}

func TestCoreDiagnostics(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	var extra atomic.Int32
	core, err := InitCore(context.Background(), testConfig(t, false), Options{
		Loader:    okLoader,
		Clock:     clk,
		Manual:    true,
		Sequences: []string{"loading"},
		Sinks:     []diag.Sink{diag.SinkFunc(func(diag.Diagnostic) { extra.Add(1) })},
	})
	require.NoError(t, err)
	defer core.Close()

	assert.Nil(t, core.Sprite, "missing meta.json disables the sprite")
	assert.Equal(t, 1, core.Diag.Count(diag.AssetLoadFailed))

	p, _ := core.Player("loading")
	waitReady(t, p.Done())
	_, err = core.Eng.RenderOnce(clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, core.Diag.Count("SEQUENCE.LOADED"))
	assert.Equal(t, int32(2), extra.Load())
}

func TestUnknownSequence(t *testing.T) {
	_, err := InitCore(context.Background(), testConfig(t, false), Options{
		Loader: okLoader, Manual: true, Sequences: []string{"nope"},
	})
	assert.True(t, errors.Is(err, config.ErrInvalid))
}

func TestCoreRunLoop(t *testing.T) {
	frames := make(chan render.Frame, 64)
	drv := render.DriverFunc(func(fr render.Frame) error {
		select {
		case frames <- fr:
		default:
		}
		return nil
	})
	cfg := testConfig(t, false)
	cfg.Server.FPS = 200
	core, err := InitCore(context.Background(), cfg, Options{Loader: okLoader, Driver: drv, NoSprite: true})
	require.NoError(t, err)

	select {
	case fr := <-frames:
		assert.NotZero(t, fr.Tick)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame rendered")
	}
	core.Close()
	core.Close()
	assert.NoError(t, core.Err())
	for _, p := range core.Players {
		assert.Equal(t, "stopped", string(p.State()))
	}
}
