package fake

import (
	"fmt"
	"io"
	"os"

	"github.com/coreman2200/funtimes-motion/internal/render"
)

// Driver prints a compact summary of each frame (sequence positions, body
// count and mean opacity), useful for headless runs.
type Driver struct {
	Out   io.Writer // defaults to stdout
	Count int
	Last  render.Frame
}

func (d *Driver) Write(fr render.Frame) error {
	d.Count++
	d.Last = fr
	out := d.Out
	if out == nil {
		out = os.Stdout
	}
	var op float64
	for _, b := range fr.Bodies {
		op += b.Opacity
	}
	n := float64(len(fr.Bodies))
	if n == 0 {
		n = 1
	}
	_, err := fmt.Fprintf(out, "[frame %04d]", d.Count)
	if err != nil {
		return err
	}
	for _, ev := range fr.Sequences {
		mark := ""
		if ev.Changed {
			mark = "*"
		}
		fmt.Fprintf(out, " %s=%d(%d)%s", ev.Sequence, ev.Position, ev.Frame, mark)
	}
	if fr.Sprite != nil {
		fmt.Fprintf(out, " sprite=%d", fr.Sprite.Index)
	}
	_, err = fmt.Fprintf(out, " bodies=%d opacity=%.2f\n", len(fr.Bodies), op/n)
	return err
}
