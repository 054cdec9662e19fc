package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-motion/internal/app"
	"github.com/coreman2200/funtimes-motion/internal/bus"
	"github.com/coreman2200/funtimes-motion/internal/config"
	diag "github.com/coreman2200/funtimes-motion/internal/diagnostics"
	"github.com/coreman2200/funtimes-motion/internal/layout"
	"github.com/coreman2200/funtimes-motion/internal/ws"
)

func main() {
	// ---- Flags (override scene.yaml where given) ----
	var (
		configPath = flag.String("config", "", "path to scene.yaml (embedded defaults when empty)")
		addr       = flag.String("addr", ":8080", "HTTP listen address")
		fps        = flag.Float64("fps", 60, "render loop frames per second")
		logLevel   = flag.String("log-level", "info", "trace | debug | info | warn | error")
		seed       = flag.Int64("seed", 0, "particle seed (0 = from clock)")
		assetsDir  = flag.String("assets", "public", "directory frame refs resolve against")
		only       = flag.String("sequences", "", "comma-separated sequences to play (default all)")
		throttle   = flag.Duration("throttle", 0, "minimum gap between frames sent to preview clients")
	)
	flag.Parse()
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Scene ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; using embedded defaults")
		if cfg, err = config.Defaults(); err != nil {
			log.Fatal().Err(err).Msg("embedded defaults")
		}
	}
	if set["addr"] || cfg.Server.Addr == "" {
		cfg.Server.Addr = *addr
	}
	if set["fps"] || cfg.Server.FPS == 0 {
		cfg.Server.FPS = *fps
	}
	if set["log-level"] || cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = *logLevel
	}
	if set["assets"] || cfg.Server.Assets == "" {
		cfg.Server.Assets = *assetsDir
	}
	if set["seed"] {
		cfg.Particles.Seed = *seed
	}
	if lvl, err := zerolog.ParseLevel(cfg.Server.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.Server.LogLevel).Msg("unknown log level; keeping info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// ---- Preview server ----
	b := bus.New()
	page := layout.NewPage(cfg.Layout.Measurements())
	state := ws.NewState(page, b, cfg.Server.FPS)
	state.Throttle = *throttle
	state.Config = cfg
	state.ConfigPath = *configPath

	// ---- Core ----
	var names []string
	if *only != "" {
		names = strings.Split(*only, ",")
	}
	logger := log.Logger
	core, err := app.InitCore(context.Background(), cfg, app.Options{
		Driver:    state,
		Sinks:     []diag.Sink{state},
		Logger:    &logger,
		Bus:       b,
		Page:      page,
		Sequences: names,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("core init failed")
	}

	// ---- HTTP routes ----
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", state.HandleFramesWS)
	mux.HandleFunc("/diag", state.HandleDiagWS)
	mux.HandleFunc("/control", state.HandleControlWS)
	mux.HandleFunc("/health", state.HandleHealth)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      withCORS(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Float64("fps", cfg.Server.FPS).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	// ---- Graceful shutdown ----
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	log.Info().Str("signal", s.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	core.Close()
	state.Close()
	b.Close()
	if err := core.Err(); err != nil {
		log.Error().Err(err).Msg("render loop had stopped early")
	}
	log.Info().Int("diagnostics", len(core.Diag.Snapshot())).Msg("bye")
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
