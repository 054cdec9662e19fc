package diagnostics

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Codes raised by the engines.
const (
	AssetLoadFailed = "ASSET.LOAD_FAILED"
	FirstFrameLate  = "ASSET.FIRST_FRAME_TIMEOUT"
	LayoutFallback  = "LAYOUT.FALLBACK"
	DegenerateInput = "CONFIG.DEGENERATE"
)

type Diagnostic struct {
	ID             string         `json:"id"`
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
	At             time.Time      `json:"at"`
}

// Sink receives diagnostics. Implementations must not block.
type Sink interface {
	Push(Diagnostic)
}

// SinkFunc adapts a func to Sink.
type SinkFunc func(Diagnostic)

func (f SinkFunc) Push(d Diagnostic) { f(d) }

// Discard drops everything.
var Discard Sink = SinkFunc(func(Diagnostic) {})

// Recorder keeps the most recent diagnostics in a bounded ring.
type Recorder struct {
	mu   sync.Mutex
	max  int
	list []Diagnostic
}

func NewRecorder(max int) *Recorder {
	if max <= 0 {
		max = 64
	}
	return &Recorder{max: max}
}

func (r *Recorder) Push(d Diagnostic) {
	d = stamp(d)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, d)
	if len(r.list) > r.max {
		r.list = append(r.list[:0:0], r.list[len(r.list)-r.max:]...)
	}
}

// Snapshot returns a copy, oldest first.
func (r *Recorder) Snapshot() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Diagnostic(nil), r.list...)
}

// Count returns how many recorded diagnostics carry code.
func (r *Recorder) Count(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.list {
		if d.Code == code {
			n++
		}
	}
	return n
}

// stamp fills ID and At when the producer left them blank.
func stamp(d Diagnostic) Diagnostic {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.At.IsZero() {
		d.At = time.Now()
	}
	return d
}

// Tee fans a diagnostic out to several sinks. Every sink sees the same ID.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(d Diagnostic) {
		d = stamp(d)
		for _, s := range sinks {
			if s != nil {
				s.Push(d)
			}
		}
	})
}
