package sequence

import (
	"errors"
	"time"
)

var (
	// ErrNoFrames marks a degenerate config. Players built from it do nothing.
	ErrNoFrames = errors.New("sequence has no frames")
	ErrBadFPS   = errors.New("base fps must be positive")
	ErrStarted  = errors.New("player already started")
)

// SpeedRange plays raw frames Start..End (inclusive, zero-based) Multiplier
// times faster. Values below 1 slow the range down.
type SpeedRange struct {
	Start      int     `yaml:"start" json:"start"`
	End        int     `yaml:"end" json:"end"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

// LoopSegment replays raw frames Start..End so they play Times times in
// total, the extra passes starting as soon as End has played.
type LoopSegment struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
	Times int `yaml:"times" json:"times"`
}

// Config is immutable for the life of a player.
type Config struct {
	Name         string        `yaml:"name" json:"name"`
	Frames       []string      `yaml:"frames" json:"frames"`
	BaseFPS      float64       `yaml:"base_fps" json:"base_fps"`
	SpeedRanges  []SpeedRange  `yaml:"speed_ranges,omitempty" json:"speed_ranges,omitempty"`
	LoopSegments []LoopSegment `yaml:"loop_segments,omitempty" json:"loop_segments,omitempty"`

	// FirstFrameTimeout bounds the wait for the first frame. Zero waits
	// forever; on expiry playback starts anyway and the host decides what to
	// show for frames that never loaded.
	FirstFrameTimeout time.Duration `yaml:"first_frame_timeout,omitempty" json:"first_frame_timeout,omitempty"`
}

// Expanded is the precomputed raw-frame index for every internal tick.
type Expanded []int

// Run is a stretch of consecutive ticks showing the same raw frame.
type Run struct {
	Frame int
	Ticks int
}

// Cursor is the playback position of a running player.
type Cursor struct {
	Position    int
	Accumulated time.Duration
}

// PlayerState enumerates player states.
type PlayerState string

const (
	Idle    PlayerState = "idle"
	Loading PlayerState = "loading"
	Running PlayerState = "running"
	Stopped PlayerState = "stopped"
)

// FrameEvent is delivered whenever the displayed frame changes. Changed is
// set on delivered events and clear on Current snapshots.
type FrameEvent struct {
	Sequence string `json:"sequence"`
	Position int    `json:"position"` // index into the expanded sequence
	Frame    int    `json:"frame"`    // raw frame index
	Ref      string `json:"ref"`
	Changed  bool   `json:"changed,omitempty"`
}

// FrameFunc receives frame changes. It runs on the goroutine calling Tick.
type FrameFunc func(FrameEvent)
