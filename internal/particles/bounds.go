package particles

// Measurements is a snapshot of the page as the host lays it out. Header and
// footer may be missing while the page is still mounting.
type Measurements struct {
	ViewportWidth  float64 `json:"viewport_width" yaml:"viewport_width"`
	DocumentHeight float64 `json:"document_height" yaml:"document_height"`
	ScrollY        float64 `json:"scroll_y" yaml:"scroll_y"`
	HeaderHeight   float64 `json:"header_height" yaml:"header_height"`
	FooterTop      float64 `json:"footer_top" yaml:"footer_top"`
	HasHeader      bool    `json:"has_header" yaml:"has_header"`
	HasFooter      bool    `json:"has_footer" yaml:"has_footer"`
}

// Layout supplies live measurements. It is read once per step.
type Layout interface {
	Measure() Measurements
}

// StaticLayout always reports the same measurements.
type StaticLayout Measurements

func (s StaticLayout) Measure() Measurements { return Measurements(s) }

// Bounds is the area bodies are scattered over on Initialize.
type Bounds struct {
	Width  float64
	Height float64
}

// Frame is the container for one step, in page coordinates.
type Frame struct {
	Top, Bottom, Left, Right float64
	// Fallback is set when header or footer was missing and a default was
	// substituted.
	Fallback bool
}

// Limits bound a body's center.
type Limits struct {
	MinX, MaxX, MinY, MaxY float64
}

// Measure derives the step's frame. The header only fences the top while it
// is on screen, i.e. scrolled less than its height plus slack.
func Measure(m Measurements, headerSlack float64) Frame {
	f := Frame{Left: 0, Right: m.ViewportWidth, Bottom: m.DocumentHeight}
	if m.HasHeader {
		if m.ScrollY < m.HeaderHeight+headerSlack {
			f.Top = m.HeaderHeight
		}
	} else {
		f.Fallback = true
	}
	if m.HasFooter {
		f.Bottom = min(m.FooterTop, m.DocumentHeight)
	} else {
		f.Fallback = true
	}
	return f
}

// Inset returns the limits for a body of radius r. A frame too small for the
// body collapses to its midpoint on that axis.
func (f Frame) Inset(r float64) Limits {
	l := Limits{MinX: f.Left + r, MaxX: f.Right - r, MinY: f.Top + r, MaxY: f.Bottom - r}
	if l.MaxX < l.MinX {
		mid := (f.Left + f.Right) / 2
		l.MinX, l.MaxX = mid, mid
	}
	if l.MaxY < l.MinY {
		mid := (f.Top + f.Bottom) / 2
		l.MinY, l.MaxY = mid, mid
	}
	return l
}

// Contains reports whether (x, y) lies within the limits.
func (l Limits) Contains(x, y float64) bool {
	return x >= l.MinX && x <= l.MaxX && y >= l.MinY && y <= l.MaxY
}
