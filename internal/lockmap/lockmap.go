// Package lockmap provides in-process single-flight coordination keyed by
// distribution identifiers, so that two goroutines resolving the same
// Dist concurrently within one process perform the work once (spec.md §4
// "Concurrency", §7 "Concurrent resolution"). This is distinct from the
// cross-process advisory locking in internal/cache (theckman/go-flock)
// and from HTTP-level request coalescing in internal/registry — three
// independent layers per the DOMAIN STACK ledger (SPEC_FULL.md §3),
// matching golang-dep's layering of its own SourceManager locking
// (sm.go) over a per-process cache.
package lockmap

import (
	"golang.org/x/sync/singleflight"
)

// Group guards a family of keyed operations so that concurrent callers
// requesting the same key block on a single in-flight call instead of
// duplicating work (e.g. building the same wheel twice, or fetching the
// same git commit twice within one resolve).
type Group struct {
	g singleflight.Group
}

// New returns an empty Group.
func New() *Group {
	return &Group{}
}

// Do executes fn for key, coalescing concurrent callers. Shared is true
// when the result was handed to more than one caller, including the caller
// whose fn computed it.
func (g *Group) Do(key string, fn func() (interface{}, error)) (v interface{}, shared bool, err error) {
	return g.g.Do(key, fn)
}

// Forget removes key from the in-flight/cached bookkeeping, so a
// subsequent Do for the same key is guaranteed to invoke fn again. Used
// after a build failure so a retry is not served a cached error (spec.md
// §7 "Transient I/O": retry, don't cache failures).
func (g *Group) Forget(key string) {
	g.g.Forget(key)
}
