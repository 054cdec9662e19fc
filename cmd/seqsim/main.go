package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-motion/internal/app"
	"github.com/coreman2200/funtimes-motion/internal/assets"
	"github.com/coreman2200/funtimes-motion/internal/clock"
	"github.com/coreman2200/funtimes-motion/internal/config"
	"github.com/coreman2200/funtimes-motion/internal/render"
	"github.com/coreman2200/funtimes-motion/internal/sequence"
	"github.com/coreman2200/funtimes-motion/internal/trace"
)

// seqsim plays one flip-book on a simulated clock and prints every frame
// change. Without -assets no files are read; -fail marks refs as missing.
func main() {
	var (
		configPath = flag.String("config", "", "path to scene.yaml (embedded defaults when empty)")
		name       = flag.String("sequence", "hero", "sequence to play")
		dt         = flag.Duration("dt", time.Second/60, "simulated time per host tick")
		duration   = flag.Duration("duration", 5*time.Second, "simulated run length")
		assetsDir  = flag.String("assets", "", "decode frames from this directory instead of a dry run")
		fail       = flag.String("fail", "", "comma-separated refs the dry loader reports missing")
		traceDir   = flag.String("trace", "", "write frames.csv and scene.yaml here")
		quiet      = flag.Bool("q", false, "only print the summary")
		logLevel   = flag.String("log-level", "warn", "zerolog level")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	if lvl, err := zerolog.ParseLevel(*logLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if *dt <= 0 {
		log.Fatal().Dur("dt", *dt).Msg("dt must be positive")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	sc, ok := cfg.Sequence(*name)
	if !ok {
		log.Fatal().Str("sequence", *name).Strs("have", cfg.Names()).Msg("unknown sequence")
	}

	var loader assets.Loader
	if *assetsDir != "" {
		loader = assets.FileLoader{Root: *assetsDir}
	} else {
		missing := map[string]bool{}
		for _, ref := range strings.Split(*fail, ",") {
			if ref != "" {
				missing[ref] = true
			}
		}
		loader = assets.LoaderFunc(func(ctx context.Context, ref string) (*assets.Handle, error) {
			if missing[ref] {
				return nil, os.ErrNotExist
			}
			return &assets.Handle{Ref: ref}, nil
		})
	}

	rec, err := trace.NewDir(*traceDir)
	if err != nil {
		log.Fatal().Err(err).Msg("trace")
	}
	if rec != nil {
		rec.OnlyChanges = true
		defer rec.Close()
		if err := rec.WriteConfig(cfg); err != nil {
			log.Warn().Err(err).Msg("write scene")
		}
	}

	changes := 0
	printer := render.DriverFunc(func(fr render.Frame) error {
		for _, ev := range fr.Sequences {
			if !ev.Changed {
				continue
			}
			changes++
			if !*quiet {
				fmt.Printf("t=%7.3fs pos=%4d frame=%3d %s\n", fr.At.Sub(time.Unix(0, 0)).Seconds(), ev.Position, ev.Frame, ev.Ref)
			}
		}
		return nil
	})

	clk := clock.NewManual(time.Unix(0, 0))
	logger := log.Logger
	core, err := app.InitCore(context.Background(), cfg, app.Options{
		Driver:    render.Drivers(printer, rec),
		Loader:    loader,
		Clock:     clk,
		Logger:    &logger,
		Sequences: []string{*name},
		NoSprite:  true,
		NoField:   true,
		Manual:    true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("core init failed")
	}
	defer core.Close()

	p, _ := core.Player(*name)
	pc := sc.Player()
	expanded := sequence.Expand(pc)
	if len(expanded) > 0 {
		select {
		case <-p.Ready():
		case <-p.Done():
			select {
			case <-p.Ready():
			default:
				log.Warn().Msg("first frame never loaded; playback waits on first_frame_timeout")
			}
		}
	}
	for elapsed := time.Duration(0); elapsed <= *duration; elapsed += *dt {
		if _, err := core.Eng.RenderOnce(clk.Now()); err != nil {
			log.Fatal().Err(err).Msg("render")
		}
		clk.Advance(*dt)
	}

	loaded, failed := p.Loaded()
	fmt.Printf("%s: %d frames, %d ticks of %v (%v per pass); %d changes, %d advances; loaded %d failed %d\n",
		*name, len(pc.Frames), len(expanded), pc.Interval(), expanded.Duration(pc.Interval()),
		changes, p.Advances(), loaded, failed)
	for _, d := range core.Diag.Snapshot() {
		fmt.Printf("diag %s %s: %s %s\n", d.Severity, d.Code, d.Summary, d.Detail)
	}
}
