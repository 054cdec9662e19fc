// Package sprite plays animations packed into a single sprite sheet.
package sprite

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path"
	"time"
)

var ErrBadMeta = errors.New("invalid sprite meta")

// Meta describes a sheet, as written next to it in meta.json.
type Meta struct {
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	FPS          float64 `json:"fps"`
	Frames       int     `json:"frames"`
	FramesPerRow int     `json:"frames_per_row"`
	Rows         int     `json:"rows"`
	Image        string  `json:"image"`
}

// LoadMeta reads and validates a meta.json file.
func LoadMeta(file string) (Meta, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, fmt.Errorf("parse %s: %w", file, err)
	}
	return m, m.Validate()
}

func (m Meta) Validate() error {
	switch {
	case m.Width <= 0 || m.Height <= 0:
		return fmt.Errorf("%w: frame size %dx%d", ErrBadMeta, m.Width, m.Height)
	case m.Frames <= 0 || m.FramesPerRow <= 0:
		return fmt.Errorf("%w: %d frames, %d per row", ErrBadMeta, m.Frames, m.FramesPerRow)
	case m.FPS <= 0:
		return fmt.Errorf("%w: fps %v", ErrBadMeta, m.FPS)
	}
	return nil
}

// ImageRef resolves the sheet image relative to the meta reference.
func (m Meta) ImageRef(metaRef string) string {
	return path.Join(path.Dir("/"+metaRef), m.Image)
}

// Options tune playback. Zero Width/Height use the sheet's frame size.
type Options struct {
	Width           int           `yaml:"width,omitempty"`
	Height          int           `yaml:"height,omitempty"`
	HoldFirst       time.Duration `yaml:"hold_first,omitempty"`
	HoldLast        time.Duration `yaml:"hold_last,omitempty"`
	SpeedMultiplier float64       `yaml:"speed_multiplier,omitempty"`
}

// Player loops through a sheet, optionally pausing on the first and last
// frames. It is driven by Tick like the sequence player.
type Player struct {
	meta     Meta
	opts     Options
	interval time.Duration

	index   int
	acc     time.Duration
	holding time.Duration
	held    bool
	last    time.Time
}

func NewPlayer(m Meta, opts Options) (*Player, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if opts.Width <= 0 {
		opts.Width = m.Width
	}
	if opts.Height <= 0 {
		opts.Height = m.Height
	}
	if opts.SpeedMultiplier <= 0 {
		opts.SpeedMultiplier = 1
	}
	fps := max(0.0001, m.FPS*opts.SpeedMultiplier)
	return &Player{
		meta:     m,
		opts:     opts,
		interval: time.Duration(float64(time.Second) / fps),
	}, nil
}

func (p *Player) Meta() Meta              { return p.meta }
func (p *Player) Index() int              { return p.index }
func (p *Player) Interval() time.Duration { return p.interval }

// FrameSize is the displayed size of one frame.
func (p *Player) FrameSize() image.Point { return image.Pt(p.opts.Width, p.opts.Height) }

// SheetSize is the displayed size of the whole sheet.
func (p *Player) SheetSize() image.Point {
	rows := p.meta.Rows
	if rows <= 0 {
		rows = (p.meta.Frames + p.meta.FramesPerRow - 1) / p.meta.FramesPerRow
	}
	return image.Pt(p.opts.Width*p.meta.FramesPerRow, p.opts.Height*rows)
}

// Offset is the background position that shows frame i.
func (p *Player) Offset(i int) image.Point {
	col := i % p.meta.FramesPerRow
	row := i / p.meta.FramesPerRow
	return image.Pt(-col*p.opts.Width, -row*p.opts.Height)
}

// Tick advances to now and reports whether the frame changed.
func (p *Player) Tick(now time.Time) bool {
	if p.last.IsZero() {
		p.last = now
		return false
	}
	dt := now.Sub(p.last)
	p.last = now
	return p.Advance(dt)
}

// Advance moves playback by dt and reports whether the frame changed.
func (p *Player) Advance(dt time.Duration) bool {
	if dt < 0 {
		dt = 0
	}
	if hold := p.holdFor(p.index); hold > 0 && !p.held {
		p.holding += dt
		if p.holding < hold {
			return false
		}
		p.holding = 0
		p.held = true
	}

	p.acc += dt
	if p.acc < p.interval {
		return false
	}
	steps := int(p.acc / p.interval)
	p.acc -= time.Duration(steps) * p.interval
	prev := p.index
	// a catch-up stops on the first hold frame it reaches and drops the rest
	for ; steps > 0; steps-- {
		p.index = (p.index + 1) % p.meta.Frames
		if p.holdFor(p.index) > 0 {
			p.acc = 0
			break
		}
	}
	if p.index != prev {
		p.held = false
		return true
	}
	return false
}

func (p *Player) holdFor(i int) time.Duration {
	switch {
	case i == 0 && p.opts.HoldFirst > 0:
		return p.opts.HoldFirst
	case i == p.meta.Frames-1 && p.opts.HoldLast > 0:
		return p.opts.HoldLast
	}
	return 0
}
