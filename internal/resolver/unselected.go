package resolver

import (
	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/version"
)

// unselectedEntry accumulates everything known about a not-yet-selected
// package: the conjunction of all specifiers requiring it, and the
// pending edges waiting on its selection.
type unselectedEntry struct {
	pkg        Package
	specifiers version.Specifiers
	edges      []pendingEdge
	deferCount int
	// source is the first non-registry-sourced requirement seen for pkg,
	// if any; its zero value is SrcRegistry, meaning no direct source was
	// recorded. Carried into the version queue so the selected node's
	// Requirement reflects a git/url/path root requirement's actual
	// source instead of always being a synthesized registry stub.
	source distpkg.Requirement
}

// unselected tracks packages waiting to be satisfied. Unlike golang-dep's
// container/heap-backed priority queue (which orders by estimated
// likelihood of inducing a conflict), this queue processes packages in
// deterministic first-in, first-out insertion order and never re-sorts
// them, which satisfies spec.md §5's determinism requirement
// without needing speculative candidate counts ahead of the provider
// calls that would supply them.
type unselected struct {
	queue   []string // package keys, FIFO
	queued  map[string]bool
	entries map[string]*unselectedEntry
}

func (u *unselected) ensure(pkg Package) *unselectedEntry {
	if u.entries == nil {
		u.entries = make(map[string]*unselectedEntry)
		u.queued = make(map[string]bool)
	}
	e, ok := u.entries[pkg.Key()]
	if !ok {
		e = &unselectedEntry{pkg: pkg}
		u.entries[pkg.Key()] = e
	}
	return e
}

func (u *unselected) merge(pkg Package, specs version.Specifiers) {
	e := u.ensure(pkg)
	e.specifiers = append(e.specifiers, specs...)
	if !u.queued[pkg.Key()] {
		u.queue = append(u.queue, pkg.Key())
		u.queued[pkg.Key()] = true
	}
}

// setSource records r as pkg's explicit source the first time a
// non-registry-sourced requirement for pkg is seen, so that source
// survives into the node the version queue eventually selects.
func (u *unselected) setSource(pkg Package, r distpkg.Requirement) {
	if r.Source == distpkg.SrcRegistry {
		return
	}
	e := u.ensure(pkg)
	if e.source.Source == distpkg.SrcRegistry {
		e.source = r
	}
}

func (u *unselected) addEdge(pkg Package, edge pendingEdge) {
	e := u.ensure(pkg)
	e.edges = append(e.edges, edge)
}

// next pops the front of the queue, or reports false when empty.
func (u *unselected) next() (Package, bool) {
	for len(u.queue) > 0 {
		key := u.queue[0]
		u.queue = u.queue[1:]
		u.queued[key] = false
		e, ok := u.entries[key]
		if !ok {
			continue
		}
		return e.pkg, true
	}
	return Package{}, false
}

// requeue pushes pkg back onto the queue, e.g. after backtracking
// invalidated its selection, or while deferring a virtual node whose base
// package isn't selected yet.
func (u *unselected) requeue(pkg Package) {
	if u.entries == nil {
		return
	}
	if _, ok := u.entries[pkg.Key()]; !ok {
		return
	}
	if u.queued[pkg.Key()] {
		return
	}
	u.queue = append(u.queue, pkg.Key())
	u.queued[pkg.Key()] = true
}

// deferredTooManyTimes increments and checks a virtual node's defer
// counter, guarding against an unsatisfiable base-package dependency
// looping forever (spec.md §4.10 "Termination").
func (u *unselected) deferredTooManyTimes(pkg Package) bool {
	e := u.ensure(pkg)
	e.deferCount++
	return e.deferCount > 10000
}
