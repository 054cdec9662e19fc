package assets

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one load attempt.
type Result struct {
	Index  int // position in the deduplicated ref list
	Ref    string
	Handle *Handle
	Err    error // *LoadError when non-nil
}

// Preloader loads a batch of references on a bounded worker pool.
type Preloader struct {
	loader  Loader
	workers int
	log     zerolog.Logger
}

func NewPreloader(l Loader, workers int, log zerolog.Logger) *Preloader {
	if workers <= 0 {
		workers = 4
	}
	return &Preloader{loader: l, workers: workers, log: log}
}

// Distinct returns refs without duplicates, keeping first occurrence order.
func Distinct(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Preload makes one attempt per distinct ref and reports each outcome to
// onResult as it resolves. onResult is called from worker goroutines.
//
// Individual failures are reported, not returned. The only error returned is
// the context's, when it is cancelled before every ref resolved.
func (p *Preloader) Preload(ctx context.Context, refs []string, onResult func(Result)) error {
	refs = Distinct(refs)
	if len(refs) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, ref := range refs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := p.loader.Load(gctx, ref)
			if err != nil {
				if errors.Is(err, context.Canceled) && gctx.Err() != nil {
					return err
				}
				err = &LoadError{Ref: ref, Err: err}
				p.log.Warn().Err(err).Str("ref", ref).Msg("asset load failed")
				h = nil
			}
			if onResult != nil {
				onResult(Result{Index: i, Ref: ref, Handle: h, Err: err})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
