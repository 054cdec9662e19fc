// Package assets resolves image references into decoded handles.
package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path"
	"path/filepath"
	"sync"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrEmptyRef is returned for a blank reference.
var ErrEmptyRef = errors.New("empty asset reference")

// Handle is a loaded asset. It is owned by whoever requested the load.
type Handle struct {
	Ref    string
	Format string
	Image  image.Image
	Size   image.Point
}

// Loader makes a single attempt at loading ref.
type Loader interface {
	Load(ctx context.Context, ref string) (*Handle, error)
}

// LoaderFunc adapts a func to Loader.
type LoaderFunc func(ctx context.Context, ref string) (*Handle, error)

func (f LoaderFunc) Load(ctx context.Context, ref string) (*Handle, error) { return f(ctx, ref) }

// LoadError reports a failed asset. It is never fatal to the engines.
type LoadError struct {
	Ref string
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %q: %v", e.Ref, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// FileLoader decodes png, jpeg, gif and webp files below Root. References are
// site paths such as "/animation4/IMG_6664.PNG" and cannot escape Root.
type FileLoader struct {
	Root string
	// Fit, when non-zero, downscales decoded images to fit inside it while
	// keeping aspect ratio. Images already inside Fit are kept as is.
	Fit image.Point
	// Scaler resamples fitted images. Nil means draw.CatmullRom.
	Scaler draw.Scaler
}

func (l FileLoader) scaler() draw.Scaler {
	if l.Scaler == nil {
		return draw.CatmullRom
	}
	return l.Scaler
}

func (l FileLoader) Path(ref string) string {
	return filepath.Join(l.Root, filepath.FromSlash(path.Clean("/"+ref)))
}

func (l FileLoader) Load(ctx context.Context, ref string) (*Handle, error) {
	if ref == "" {
		return nil, ErrEmptyRef
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.Path(ref))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	img = fit(img, l.Fit, l.scaler())
	return &Handle{Ref: ref, Format: format, Image: img, Size: img.Bounds().Size()}, nil
}

func fit(src image.Image, box image.Point, s draw.Scaler) image.Image {
	if box.X <= 0 || box.Y <= 0 {
		return src
	}
	sz := src.Bounds().Size()
	if sz.X <= box.X && sz.Y <= box.Y {
		return src
	}
	scale := min(float64(box.X)/float64(sz.X), float64(box.Y)/float64(sz.Y))
	w := max(1, int(float64(sz.X)*scale))
	h := max(1, int(float64(sz.Y)*scale))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	s.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// Set holds the handles one owner preloaded.
type Set struct {
	mu sync.Mutex
	m  map[string]*Handle
}

func NewSet() *Set { return &Set{m: map[string]*Handle{}} }

func (s *Set) Put(h *Handle) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m != nil {
		s.m[h.Ref] = h
	}
}

func (s *Set) Get(ref string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.m[ref]
	return h, ok
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Release drops every handle and returns how many were held. Puts after
// Release are ignored.
func (s *Set) Release() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.m)
	s.m = nil
	return n
}
