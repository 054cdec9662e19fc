package render

import (
	"sort"
	"time"

	"github.com/coreman2200/funtimes-motion/internal/particles"
	"github.com/coreman2200/funtimes-motion/internal/sequence"
)

// Frame is one tick's worth of presentation state for every animator.
type Frame struct {
	Tick      uint64                `json:"tick"`
	At        time.Time             `json:"at"`
	Sequences []sequence.FrameEvent `json:"sequences,omitempty"`
	Sprite    *SpriteFrame          `json:"sprite,omitempty"`
	Bodies    []particles.Transform `json:"bodies,omitempty"`
	Paused    []string              `json:"paused,omitempty"`
}

// SpriteFrame positions a sprite sheet so that one cell shows through a
// Width x Height window.
type SpriteFrame struct {
	Image  string `json:"image"`
	Index  int    `json:"index"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	// Changed is set when this tick moved to a new frame.
	Changed bool `json:"changed,omitempty"`
}

// Animator advances itself to now and writes its state into f.
type Animator interface {
	Name() string
	Animate(now time.Time, f *Frame)
}

// Registry keeps animators in registration order, which is the order they
// animate in.
type Registry struct {
	m     map[string]Animator
	order []string
}

func NewRegistry() *Registry { return &Registry{m: map[string]Animator{}} }

// Register adds a or replaces the animator of the same name in place.
func (r *Registry) Register(a Animator) {
	if a == nil {
		return
	}
	if _, ok := r.m[a.Name()]; !ok {
		r.order = append(r.order, a.Name())
	}
	r.m[a.Name()] = a
}

func (r *Registry) Get(name string) (Animator, bool) {
	a, ok := r.m[name]
	return a, ok
}

// List returns the registered names sorted.
func (r *Registry) List() []string {
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Each calls fn for every animator in registration order.
func (r *Registry) Each(fn func(Animator)) {
	for _, name := range r.order {
		fn(r.m[name])
	}
}
