package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-motion/internal/app"
	"github.com/coreman2200/funtimes-motion/internal/bus"
	"github.com/coreman2200/funtimes-motion/internal/clock"
	"github.com/coreman2200/funtimes-motion/internal/config"
	"github.com/coreman2200/funtimes-motion/internal/driver/fake"
	"github.com/coreman2200/funtimes-motion/internal/particles"
	"github.com/coreman2200/funtimes-motion/internal/render"
	"github.com/coreman2200/funtimes-motion/internal/trace"
)

// fieldsim steps the floating-icon field headless with a scripted pointer and
// reports whether every body stayed inside the page.
func main() {
	var (
		configPath = flag.String("config", "", "path to scene.yaml (embedded defaults when empty)")
		ticks      = flag.Int("ticks", 600, "steps to simulate")
		fps        = flag.Float64("fps", 60, "simulated step rate")
		seed       = flag.Int64("seed", 1, "particle seed")
		pointer    = flag.String("pointer", "orbit", "pointer script: none | orbit | sweep")
		scroll     = flag.Float64("scroll", 0, "scroll offset applied halfway through")
		bookAt     = flag.Int("book-open-at", -1, "tick at which the book opens for one second (-1 = never)")
		traceDir   = flag.String("trace", "", "write bodies.csv and scene.yaml here")
		verbose    = flag.Bool("v", false, "print a summary line per tick")
		logLevel   = flag.String("log-level", "info", "zerolog level")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	if lvl, err := zerolog.ParseLevel(*logLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	cfg.Particles.Seed = *seed

	rec, err := trace.NewDir(*traceDir)
	if err != nil {
		log.Fatal().Err(err).Msg("trace")
	}
	defer rec.Close()
	if err := rec.WriteConfig(cfg); err != nil {
		log.Warn().Err(err).Msg("write scene")
	}

	escapes := 0
	var checkFrame particles.Frame
	var core *app.Core
	check := render.DriverFunc(func(fr render.Frame) error {
		f := core.Field.Frame()
		checkFrame = f
		for _, b := range core.Field.Bodies() {
			if !f.Inset(b.Radius).Contains(b.Pos.X, b.Pos.Y) {
				escapes++
			}
		}
		return nil
	})
	drivers := []render.Driver{check, rec}
	if *verbose {
		drivers = append(drivers, &fake.Driver{})
	}

	clk := clock.NewManual(time.Unix(0, 0))
	logger := log.Logger
	core, err = app.InitCore(context.Background(), cfg, app.Options{
		Driver:      render.Drivers(drivers...),
		Clock:       clk,
		Logger:      &logger,
		NoSequences: true,
		NoSprite:    true,
		Manual:      true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("core init failed")
	}
	defer core.Close()

	m := core.Page.Measure()
	cx, cy := m.ViewportWidth/2, m.DocumentHeight/2
	step := clock.Interval(*fps)
	bookClose := -1
	for i := 0; i < *ticks; i++ {
		phase := float64(i) / float64(*ticks)
		switch *pointer {
		case "orbit":
			a := phase * 8 * math.Pi
			core.Page.SetPointer(cx+math.Cos(a)*cx*0.6, cy+math.Sin(a)*cy*0.6)
		case "sweep":
			core.Page.SetPointer(phase*m.ViewportWidth, cy)
		}
		if i == *ticks/2 && *scroll != 0 {
			core.Page.Update(func(m *particles.Measurements) { m.ScrollY = *scroll })
		}
		if i == *bookAt {
			core.Bus.Publish(bus.Event{Topic: bus.BookOpen, Source: "fieldsim", Open: true})
			bookClose = i + int(*fps)
		}
		if i == bookClose {
			core.Bus.Publish(bus.Event{Topic: bus.BookOpen, Source: "fieldsim", Open: false})
		}
		if _, err := core.Eng.RenderOnce(clk.Advance(step)); err != nil {
			log.Fatal().Err(err).Msg("render")
		}
	}

	rows := 0
	if rec != nil {
		rows = rec.BodyRows
	}
	fmt.Printf("%d bodies, %d steps over %d ticks, frame %+v, %d escapes, %d trace rows\n",
		core.Field.Len(), core.Field.Steps(), *ticks, checkFrame, escapes, rows)
	for _, d := range core.Diag.Snapshot() {
		fmt.Printf("diag %s %s: %s\n", d.Severity, d.Code, d.Summary)
	}
	if escapes > 0 {
		os.Exit(1)
	}
}
