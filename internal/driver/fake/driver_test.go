package fake

import (
	"bytes"
	"testing"

	"github.com/coreman2200/funtimes-motion/internal/particles"
	"github.com/coreman2200/funtimes-motion/internal/render"
	"github.com/coreman2200/funtimes-motion/internal/sequence"
)

func TestDriverSummary(t *testing.T) {
	var buf bytes.Buffer
	d := &Driver{Out: &buf}
	err := d.Write(render.Frame{
		Sequences: []sequence.FrameEvent{{Sequence: "hero", Position: 9, Frame: 2, Changed: true}},
		Sprite:    &render.SpriteFrame{Index: 3},
		Bodies:    []particles.Transform{{Opacity: 0.2}, {Opacity: 0.4}},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "[frame 0001] hero=9(2)* sprite=3 bodies=2 opacity=0.30\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
	if d.Count != 1 {
		t.Fatalf("count %d", d.Count)
	}
}
