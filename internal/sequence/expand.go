package sequence

import (
	"fmt"
	"math"
	"time"
)

// BaseRepeat is how many internal ticks a frame at multiplier 1 occupies.
const BaseRepeat = 4

// Validate reports whether cfg can be played.
func (c Config) Validate() error {
	if len(c.Frames) == 0 {
		return ErrNoFrames
	}
	if !(c.BaseFPS > 0) || math.IsInf(c.BaseFPS, 0) {
		return fmt.Errorf("%w: %v", ErrBadFPS, c.BaseFPS)
	}
	return nil
}

// Interval is the duration of one internal tick, 1/BaseFPS.
func (c Config) Interval() time.Duration {
	if !(c.BaseFPS > 0) {
		return 0
	}
	iv := time.Duration(float64(time.Second) / c.BaseFPS)
	if iv < time.Microsecond {
		iv = time.Microsecond
	}
	return iv
}

// Multiplier returns the speed multiplier of raw frame i. The first range
// containing i wins; frames outside every range play at 1.
func (c Config) Multiplier(i int) float64 {
	for _, r := range c.SpeedRanges {
		if i >= r.Start && i <= r.End {
			if r.Multiplier > 0 && !math.IsInf(r.Multiplier, 0) {
				return r.Multiplier
			}
			return 1
		}
	}
	return 1
}

// Repeats is how many ticks raw frame i occupies per pass.
func (c Config) Repeats(i int) int {
	return max(1, int(math.Round(BaseRepeat/c.Multiplier(i))))
}

// Segments returns the loop segments that take effect: Times >= 2, indices
// clamped into the frame range, and Start <= End after clamping.
func (c Config) Segments() []LoopSegment {
	n := len(c.Frames)
	if n == 0 {
		return nil
	}
	out := make([]LoopSegment, 0, len(c.LoopSegments))
	for _, s := range c.LoopSegments {
		if s.Times < 2 {
			continue
		}
		s.Start = clampIndex(s.Start, n)
		s.End = clampIndex(s.End, n)
		if s.End < s.Start {
			continue
		}
		out = append(out, s)
	}
	return out
}

func clampIndex(i, n int) int {
	return max(0, min(n-1, i))
}

// Expand builds the tick-by-tick raw frame sequence for c. It is pure: equal
// configs expand to equal sequences. An empty frame list expands to nil.
func Expand(c Config) Expanded {
	n := len(c.Frames)
	if n == 0 {
		return nil
	}
	repeats := make([]int, n)
	for i := range repeats {
		repeats[i] = c.Repeats(i)
	}
	endingAt := map[int][]LoopSegment{}
	for _, s := range c.Segments() {
		endingAt[s.End] = append(endingAt[s.End], s)
	}

	seq := make(Expanded, 0, n*BaseRepeat)
	emit := func(i int) {
		for k := 0; k < repeats[i]; k++ {
			seq = append(seq, i)
		}
	}
	for i := 0; i < n; i++ {
		emit(i)
		for _, s := range endingAt[i] {
			for rep := 1; rep < s.Times; rep++ {
				for j := s.Start; j <= s.End; j++ {
					emit(j)
				}
			}
		}
	}
	return seq
}

// Runs decodes the sequence into consecutive same-frame runs.
func (e Expanded) Runs() []Run {
	var runs []Run
	for _, f := range e {
		if len(runs) > 0 && runs[len(runs)-1].Frame == f {
			runs[len(runs)-1].Ticks++
			continue
		}
		runs = append(runs, Run{Frame: f, Ticks: 1})
	}
	return runs
}

// Ticks counts how many ticks each raw frame occupies in one pass.
func (e Expanded) Ticks() map[int]int {
	out := map[int]int{}
	for _, f := range e {
		out[f]++
	}
	return out
}

// Duration is the wall-clock length of one pass at interval per tick.
func (e Expanded) Duration(interval time.Duration) time.Duration {
	return time.Duration(len(e)) * interval
}
