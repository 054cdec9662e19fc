// Package config loads the scene file: server settings, named frame
// sequences, the sprite sheet, the particle field and a static page layout.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/funtimes-motion/internal/particles"
	"github.com/coreman2200/funtimes-motion/internal/sequence"
	"github.com/coreman2200/funtimes-motion/internal/sprite"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var ErrInvalid = errors.New("invalid config")

type Server struct {
	Addr     string  `yaml:"addr"`
	FPS      float64 `yaml:"fps"`
	LogLevel string  `yaml:"log_level"`
	Assets   string  `yaml:"assets"` // root directory for frame refs
}

type Preload struct {
	Workers   int `yaml:"workers"`
	FitWidth  int `yaml:"fit_width"` // 0 keeps decoded size
	FitHeight int `yaml:"fit_height"`
}

// FrameSet lists frame refs either explicitly or as a printf pattern over an
// inclusive number range, e.g. "/animation4/IMG_%d.PNG" from 6664 to 6714.
type FrameSet struct {
	List    []string `yaml:"list,omitempty"`
	Pattern string   `yaml:"pattern,omitempty"`
	From    int      `yaml:"from,omitempty"`
	To      int      `yaml:"to,omitempty"`
	Skip    []int    `yaml:"skip,omitempty"`
}

// Refs expands the set. An explicit List wins over Pattern.
func (f FrameSet) Refs() []string {
	if len(f.List) > 0 {
		return append([]string(nil), f.List...)
	}
	if f.Pattern == "" || f.To < f.From {
		return nil
	}
	skip := make(map[int]bool, len(f.Skip))
	for _, n := range f.Skip {
		skip[n] = true
	}
	out := make([]string, 0, f.To-f.From+1)
	for n := f.From; n <= f.To; n++ {
		if skip[n] {
			continue
		}
		out = append(out, fmt.Sprintf(f.Pattern, n))
	}
	return out
}

// Sequence is one flip-book. Range and segment ends may be negative to count
// from the last frame: -1 is the last frame.
type Sequence struct {
	Name              string                 `yaml:"name"`
	Frames            FrameSet               `yaml:"frames"`
	BaseFPS           float64                `yaml:"base_fps"`
	SpeedRanges       []sequence.SpeedRange  `yaml:"speed_ranges,omitempty"`
	LoopSegments      []sequence.LoopSegment `yaml:"loop_segments,omitempty"`
	FirstFrameTimeout time.Duration          `yaml:"first_frame_timeout,omitempty"`
}

// Player resolves the sequence into a player config.
func (s Sequence) Player() sequence.Config {
	frames := s.Frames.Refs()
	n := len(frames)
	fromEnd := func(i int) int {
		if i < 0 {
			return n + i
		}
		return i
	}
	c := sequence.Config{
		Name:              s.Name,
		Frames:            frames,
		BaseFPS:           s.BaseFPS,
		FirstFrameTimeout: s.FirstFrameTimeout,
	}
	for _, r := range s.SpeedRanges {
		r.Start, r.End = fromEnd(r.Start), fromEnd(r.End)
		c.SpeedRanges = append(c.SpeedRanges, r)
	}
	for _, g := range s.LoopSegments {
		g.Start, g.End = fromEnd(g.Start), fromEnd(g.End)
		c.LoopSegments = append(c.LoopSegments, g)
	}
	return c
}

type Sprite struct {
	Meta            string        `yaml:"meta"` // site ref of meta.json, below server.assets
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	HoldFirst       time.Duration `yaml:"hold_first,omitempty"`
	HoldLast        time.Duration `yaml:"hold_last,omitempty"`
	SpeedMultiplier float64       `yaml:"speed_multiplier,omitempty"`
}

// Options converts to player options.
func (s Sprite) Options() sprite.Options {
	return sprite.Options{
		Width:           s.Width,
		Height:          s.Height,
		HoldFirst:       s.HoldFirst,
		HoldLast:        s.HoldLast,
		SpeedMultiplier: s.SpeedMultiplier,
	}
}

type Icon struct {
	Ref  string  `yaml:"ref"`
	Size float64 `yaml:"size,omitempty"`
}

type Particles struct {
	Icons   []Icon           `yaml:"icons"`
	Seed    int64            `yaml:"seed,omitempty"` // 0 seeds from the clock
	Physics particles.Config `yaml:"physics"`
}

// Sprites converts icons to field sprites.
func (p Particles) Sprites() []particles.Sprite {
	out := make([]particles.Sprite, len(p.Icons))
	for i, ic := range p.Icons {
		out[i] = particles.Sprite{Ref: ic.Ref, Size: ic.Size}
	}
	return out
}

// Layout is the page geometry used until a host reports its own.
type Layout struct {
	ViewportWidth  float64 `yaml:"viewport_width"`
	DocumentHeight float64 `yaml:"document_height"`
	ScrollY        float64 `yaml:"scroll_y,omitempty"`
	HeaderHeight   float64 `yaml:"header_height,omitempty"`
	FooterTop      float64 `yaml:"footer_top,omitempty"`
	HasHeader      bool    `yaml:"has_header"`
	HasFooter      bool    `yaml:"has_footer"`
}

func (l Layout) Measurements() particles.Measurements {
	return particles.Measurements{
		ViewportWidth:  l.ViewportWidth,
		DocumentHeight: l.DocumentHeight,
		ScrollY:        l.ScrollY,
		HeaderHeight:   l.HeaderHeight,
		FooterTop:      l.FooterTop,
		HasHeader:      l.HasHeader,
		HasFooter:      l.HasFooter,
	}
}

type Config struct {
	Server    Server     `yaml:"server"`
	Preload   Preload    `yaml:"preload"`
	Sequences []Sequence `yaml:"sequences"`
	Sprite    *Sprite    `yaml:"sprite,omitempty"`
	Particles Particles  `yaml:"particles"`
	Layout    Layout     `yaml:"layout"`
}

// Defaults returns the embedded scene.
func Defaults() (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, c); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return c, nil
}

// Load overlays the file at path on the embedded defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	c, err := Defaults()
	if err != nil {
		return nil, err
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Validate rejects configs no player could run. Sequences without frames are
// allowed; their players do nothing.
func (c *Config) Validate() error {
	if c.Server.FPS < 0 {
		return fmt.Errorf("%w: server.fps %v", ErrInvalid, c.Server.FPS)
	}
	if c.Preload.Workers < 0 {
		return fmt.Errorf("%w: preload.workers %d", ErrInvalid, c.Preload.Workers)
	}
	seen := map[string]bool{}
	for i, s := range c.Sequences {
		if s.Name == "" {
			return fmt.Errorf("%w: sequences[%d] has no name", ErrInvalid, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate sequence %q", ErrInvalid, s.Name)
		}
		seen[s.Name] = true
		if s.BaseFPS <= 0 {
			return fmt.Errorf("%w: sequence %q: base_fps must be positive", ErrInvalid, s.Name)
		}
		if s.Frames.Pattern != "" && !strings.Contains(s.Frames.Pattern, "%") {
			return fmt.Errorf("%w: sequence %q: pattern %q has no verb", ErrInvalid, s.Name, s.Frames.Pattern)
		}
	}
	if c.Sprite != nil && c.Sprite.Meta == "" {
		return fmt.Errorf("%w: sprite.meta is required", ErrInvalid)
	}
	return nil
}

// Sequence looks a sequence up by name.
func (c *Config) Sequence(name string) (Sequence, bool) {
	for _, s := range c.Sequences {
		if s.Name == name {
			return s, true
		}
	}
	return Sequence{}, false
}

// Names lists sequence names in file order.
func (c *Config) Names() []string {
	out := make([]string, len(c.Sequences))
	for i, s := range c.Sequences {
		out[i] = s.Name
	}
	return out
}
