package candidate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/registry"
)

// thresholds are the tried-version counts at which the batch prefetcher
// kicks in (spec.md §4.8: "whenever it has tried {5, 10, 20, 40, …}
// versions... without converging").
var thresholds = []int{5, 10, 20, 40}

// ShouldPrefetch reports whether triedCount has just crossed a threshold,
// so the resolver knows to call Prefetch for the next batch.
func ShouldPrefetch(triedCount int) bool {
	for _, t := range thresholds {
		if triedCount == t {
			return true
		}
	}
	return triedCount > thresholds[len(thresholds)-1] && triedCount%40 == 0
}

// Capabilities is re-exported from registry so callers configuring a
// prefetcher don't need both package imports for this one type.
type Capabilities = registry.Capabilities

// MetadataFetcher fetches parsed wheel metadata for one candidate,
// implemented by internal/distdb in terms of get_or_build_wheel_metadata.
type MetadataFetcher func(ctx context.Context, e Entry) error

// Prefetcher speculatively warms the metadata cache for probable
// candidates while the resolver is still working through a package's
// version list (spec.md §4.8).
type Prefetcher struct {
	Caps        Capabilities
	Fetch       MetadataFetcher
	BinaryPolicy distpkg.BinaryPolicy
	MaxBatch    int
}

// NewPrefetcher returns a Prefetcher with the spec's default batch size.
func NewPrefetcher(caps Capabilities, fetch MetadataFetcher) *Prefetcher {
	return &Prefetcher{Caps: caps, Fetch: fetch, MaxBatch: 50}
}

// Prefetch schedules metadata fetches for up to MaxBatch candidates, split
// between compatible (next-best within the current incompatibility range)
// and in-order (next lower/higher ignoring the range) candidates (spec.md
// §4.8). Candidates whose index lacks both range requests and PEP 658, and
// which are built (not source), are dropped rather than speculatively
// downloading a full wheel (spec.md §4.8 "capability-gated prefetch
// abandonment").
func (p *Prefetcher) Prefetch(ctx context.Context, compatible, inOrder []Entry, packageName string) error {
	batch := make([]Entry, 0, p.MaxBatch)
	batch = appendUpTo(batch, compatible, p.MaxBatch)
	batch = appendUpTo(batch, inOrder, p.MaxBatch)

	eligible := batch[:0:0]
	for _, e := range batch {
		if p.abandonPrefetch(e, packageName) {
			continue
		}
		eligible = append(eligible, e)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range eligible {
		e := e
		g.Go(func() error {
			return p.Fetch(gctx, e)
		})
	}
	return g.Wait()
}

func (p *Prefetcher) abandonPrefetch(e Entry, packageName string) bool {
	isBuilt := e.WheelCompat > 0
	if !isBuilt {
		return false
	}
	if !p.BinaryPolicy.AllowsWheel(packageName) {
		return true
	}
	if p.Caps.PEP658 && e.File.CoreMetadata {
		return false
	}
	if p.Caps.RangeRequests {
		return false
	}
	// Neither a sidecar nor range requests are available: the only way to
	// learn this wheel's metadata is a full download, which defeats the
	// point of speculative prefetching.
	return true
}

func appendUpTo(dst, src []Entry, limit int) []Entry {
	for _, e := range src {
		if len(dst) >= limit {
			break
		}
		dst = append(dst, e)
	}
	return dst
}
