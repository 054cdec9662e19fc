// Package trace records rendered frames as CSV timelines for offline
// inspection: one file for flip-book frames, one for particle transforms.
package trace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/coreman2200/funtimes-motion/internal/config"
	"github.com/coreman2200/funtimes-motion/internal/render"
)

// FrameRow is one displayed flip-book or sprite frame.
type FrameRow struct {
	Tick     uint64 `csv:"tick"`
	AtMS     int64  `csv:"at_ms"` // since the first recorded frame
	Kind     string `csv:"kind"`  // sequence | sprite
	Name     string `csv:"name"`
	Position int    `csv:"position"`
	Frame    int    `csv:"frame"`
	Ref      string `csv:"ref"`
}

// BodyRow is one particle transform.
type BodyRow struct {
	Tick     uint64  `csv:"tick"`
	AtMS     int64   `csv:"at_ms"`
	ID       int     `csv:"id"`
	Ref      string  `csv:"ref"`
	X        float64 `csv:"x"`
	Y        float64 `csv:"y"`
	Size     float64 `csv:"size"`
	Rotation float64 `csv:"rotation"`
	Opacity  float64 `csv:"opacity"`
}

// Recorder implements render.Driver. A nil *Recorder records nothing.
type Recorder struct {
	frames io.Writer
	bodies io.Writer
	files  []*os.File

	// OnlyChanges drops frame rows whose position did not move since the
	// previous row for the same name.
	OnlyChanges bool

	t0          time.Time
	last        map[string]int
	frameHeader bool
	bodyHeader  bool
	FrameRows   int
	BodyRows    int
}

// New records to the given writers; either may be nil to skip that table.
func New(frames, bodies io.Writer) *Recorder {
	return &Recorder{frames: frames, bodies: bodies, last: map[string]int{}}
}

// NewDir creates dir and records into frames.csv and bodies.csv inside it.
// Returns nil if dir is empty (recording disabled).
func NewDir(dir string) (*Recorder, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}
	ff, err := os.Create(filepath.Join(dir, "frames.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating frames.csv: %w", err)
	}
	bf, err := os.Create(filepath.Join(dir, "bodies.csv"))
	if err != nil {
		ff.Close()
		return nil, fmt.Errorf("creating bodies.csv: %w", err)
	}
	r := New(ff, bf)
	r.files = []*os.File{ff, bf}
	return r, nil
}

// WriteConfig saves the scene next to the trace. Only recorders made by
// NewDir have a directory.
func (r *Recorder) WriteConfig(cfg *config.Config) error {
	if r == nil || len(r.files) == 0 {
		return nil
	}
	return config.Save(filepath.Join(filepath.Dir(r.files[0].Name()), "scene.yaml"), cfg)
}

// Write implements render.Driver.
func (r *Recorder) Write(fr render.Frame) error {
	if r == nil {
		return nil
	}
	if r.t0.IsZero() {
		r.t0 = fr.At
	}
	at := fr.At.Sub(r.t0).Milliseconds()

	var rows []FrameRow
	for _, ev := range fr.Sequences {
		rows = r.appendFrame(rows, ev.Changed, FrameRow{Tick: fr.Tick, AtMS: at, Kind: "sequence",
			Name: ev.Sequence, Position: ev.Position, Frame: ev.Frame, Ref: ev.Ref})
	}
	if s := fr.Sprite; s != nil {
		rows = r.appendFrame(rows, s.Changed, FrameRow{Tick: fr.Tick, AtMS: at, Kind: "sprite",
			Name: s.Image, Position: s.Index, Frame: s.Index, Ref: s.Image})
	}
	if err := r.flush(r.frames, rows, &r.frameHeader); err != nil {
		return fmt.Errorf("writing frames: %w", err)
	}
	r.FrameRows += len(rows)

	if r.bodies == nil || len(fr.Bodies) == 0 {
		return nil
	}
	bodies := make([]BodyRow, len(fr.Bodies))
	for i, b := range fr.Bodies {
		bodies[i] = BodyRow{Tick: fr.Tick, AtMS: at, ID: b.ID, Ref: b.Ref,
			X: b.X, Y: b.Y, Size: b.Size, Rotation: b.Rotation, Opacity: b.Opacity}
	}
	if err := r.flush(r.bodies, bodies, &r.bodyHeader); err != nil {
		return fmt.Errorf("writing bodies: %w", err)
	}
	r.BodyRows += len(bodies)
	return nil
}

// appendFrame keeps the first row of each animator and, with OnlyChanges,
// only the rows its animator flagged as changed after that.
func (r *Recorder) appendFrame(rows []FrameRow, changed bool, row FrameRow) []FrameRow {
	if r.OnlyChanges {
		key := row.Kind + ":" + row.Name
		if _, seen := r.last[key]; seen && !changed {
			return rows
		}
		r.last[key] = row.Position
	}
	return append(rows, row)
}

func (r *Recorder) flush(w io.Writer, records any, header *bool) error {
	if w == nil {
		return nil
	}
	switch v := records.(type) {
	case []FrameRow:
		if len(v) == 0 {
			return nil
		}
	case []BodyRow:
		if len(v) == 0 {
			return nil
		}
	}
	if !*header {
		if err := gocsv.Marshal(records, w); err != nil {
			return err
		}
		*header = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, w)
}

// Close closes files opened by NewDir.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var firstErr error
	for _, f := range r.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
