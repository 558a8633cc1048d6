// Package resolver implements the universal PubGrub-style resolver of
// spec.md §4.10: a package universe augmented with virtual
// extra/group/marker nodes, forked into disjoint sub-problems by
// environment marker, each solved independently and unioned into one
// graph. Grounded on golang-dep's backtracking solver (solver.go,
// selection.go, version_queue.go): a selection stack, a priority queue of
// unselected work, and a per-package version queue that advances past
// failed candidates and backtracks the selection stack on exhaustion.
// golang-dep's solver is itself a backtracking CDCL-flavored search
// rather than incompatibility-learning PubGrub; this resolver keeps that
// shape and generalizes it to the richer candidate/marker model spec.md
// requires.
package resolver

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/sdboyer/univ/internal/candidate"
	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/marker"
	"github.com/sdboyer/univ/internal/version"
)

// Package is a virtual node in the universal resolver's package universe
// (spec.md §4.10): the base package when Extra and Group are both empty,
// or a virtual extra/group-activation node otherwise.
type Package struct {
	Name  string
	Extra string
	Group string
}

// Base returns the non-virtual package node backing p.
func (p Package) Base() Package { return Package{Name: p.Name} }

// IsVirtual reports whether p represents an extra or group activation
// rather than the base package.
func (p Package) IsVirtual() bool { return p.Extra != "" || p.Group != "" }

// Key returns a stable identity string for use as a map/queue key.
func (p Package) Key() string { return p.Selector().String() }

// Selector converts p to the marker package's Selector shape, bridging
// the resolver's virtual-node vocabulary with the conflict-marker algebra
// (spec.md §3 UniversalMarker).
func (p Package) Selector() marker.Selector {
	return marker.Selector{Package: p.Name, Extra: p.Extra, Group: p.Group}
}

func (p Package) String() string { return p.Key() }

// Provider is the seam through which the resolver obtains candidate
// versions and their dependencies; implemented by internal/distdb in
// terms of the registry client and distribution database. Kept abstract
// here so the solver's search logic can be tested without real network
// or filesystem I/O (mirroring golang-dep's sourceBridge abstraction over
// its SourceManager).
type Provider interface {
	// ListCandidates returns the available (version, file) candidates for
	// pkg's base package, already filtered to env's requires-python
	// compatibility and any exclude-newer cutoff the provider applies.
	ListCandidates(ctx context.Context, pkg Package, env marker.Env) ([]candidate.Entry, error)
	// Dependencies returns the requirements declared by pkg at v, under
	// env (e.g. a source distribution may declare different build
	// requirements than its wheel; env disambiguates extras/groups
	// already baked into pkg).
	Dependencies(ctx context.Context, pkg Package, v version.Version, env marker.Env) ([]distpkg.Requirement, error)
}

// Options parameterizes one single-environment solve (spec.md §4.8,
// §4.10).
type Options struct {
	Mode         candidate.ResolutionMode
	Prerelease   candidate.PrereleaseMode
	BinaryPolicy distpkg.BinaryPolicy
	ExcludeNewer time.Time
	Environment  marker.Env
	// MaxAttempts bounds backtracking attempts, the termination guarantee
	// of spec.md §4.10/§8.6 made concrete as a finite ceiling so a
	// programming defect in the search can never hang the process.
	MaxAttempts int
}

// RootName is the synthetic root package name (spec.md §4.11 "Root").
const RootName = "<root>"

// Node is one resolved (package, version) pair in the graph.
type Node struct {
	Package Package
	Version version.Version
	// Requirement is the Requirement whose Source determined how this
	// node is fetched (registry/url/path/git); for a virtual extra/group
	// node this mirrors its base package's Requirement.
	Requirement distpkg.Requirement
}

// Edge is a dependency edge carrying the UniversalMarker that gates it
// (spec.md §3, §4.9, §4.11).
type Edge struct {
	From, To int
	Marker   marker.Universal
}

// Graph is the result of one single-environment solve.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// NodeIndex returns the index of the node for pkg at v, or -1.
func (g *Graph) NodeIndex(pkg Package, v version.Version) int {
	for i, n := range g.Nodes {
		if n.Package == pkg && n.Version.Equal(v) {
			return i
		}
	}
	return -1
}

// Solve runs one single-environment resolve of rootRequirements under
// opts.Environment, returning the resulting Graph or a *NoSolutionError
// (spec.md §4.10).
func Solve(ctx context.Context, provider Provider, rootRequirements []distpkg.Requirement, opts Options) (*Graph, error) {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 4096
	}
	s := &solver{
		provider: provider,
		opts:     opts,
		g:        &Graph{Nodes: []Node{{Package: Package{Name: RootName}}}},
	}
	for _, r := range rootRequirements {
		s.enqueueRequirement(0, r)
	}
	if err := s.run(ctx); err != nil {
		return nil, err
	}
	return s.g, nil
}

// solver holds one single-environment backtracking search in progress.
type solver struct {
	provider Provider
	opts     Options
	g        *Graph

	sel   selection
	unsel unselected

	attempts int
}

// pendingEdge records an edge waiting to be materialized once its target
// package is selected.
type pendingEdge struct {
	from         int
	requirement  distpkg.Requirement
	conflict     marker.ConflictTree
	extraOrGroup Package // the virtual node this edge targets, if any
}

func (s *solver) enqueueRequirement(fromNode int, r distpkg.Requirement) {
	if !r.Marker.Evaluate(s.opts.Environment) {
		// Marker barrier closed for this fork's environment (spec.md
		// §4.10 "Marker(m)... dependencies only pull if the environment
		// satisfies m"). The zero Tree value behaves as TRUE, so an
		// unconditional requirement is never skipped here.
		return
	}

	base := Package{Name: r.Name}
	s.unsel.merge(base, r.Specifiers)
	s.unsel.setSource(base, r)

	edge := pendingEdge{from: fromNode, requirement: r, conflict: marker.ConflictTrue()}
	s.unsel.addEdge(base, edge)

	for _, extra := range r.Extras {
		virt := Package{Name: r.Name, Extra: extra}
		s.unsel.merge(virt, r.Specifiers)
		s.unsel.addEdge(virt, pendingEdge{
			from:        fromNode,
			requirement: r,
			conflict:    marker.Active(marker.Selector{Package: r.Name, Extra: extra}),
		})
	}
	for _, group := range r.Groups {
		virt := Package{Name: r.Name, Group: group}
		s.unsel.merge(virt, r.Specifiers)
		s.unsel.addEdge(virt, pendingEdge{
			from:        fromNode,
			requirement: r,
			conflict:    marker.Active(marker.Selector{Package: r.Name, Group: group}),
		})
	}
}

func (s *solver) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.attempts++
		if s.attempts > s.opts.MaxAttempts {
			return errors.New("resolver: exceeded maximum backtracking attempts without converging")
		}

		pkg, ok := s.unsel.next()
		if !ok {
			return nil // converged: nothing left to satisfy
		}

		if pkg.IsVirtual() {
			if idx := s.sel.indexOf(pkg.Base()); idx < 0 {
				// Base package not selected yet; defer this virtual node.
				if s.unsel.deferredTooManyTimes(pkg) {
					return newNoSolution(pkg, errors.New("base package never became available for its extra/group"))
				}
				s.unsel.requeue(pkg)
				continue
			}
		}

		if err := s.satisfy(ctx, pkg); err != nil {
			if !s.backtrack() {
				return newNoSolutionFromErr(pkg, err)
			}
		}
	}
}

// satisfy attempts to select a version for pkg consistent with its
// merged specifiers, or reuse an already-selected compatible version.
func (s *solver) satisfy(ctx context.Context, pkg Package) error {
	entry := s.unsel.entries[pkg.Key()]

	if pkg.IsVirtual() {
		baseIdx := s.sel.indexOf(pkg.Base())
		baseNode := s.g.Nodes[baseIdx]
		if !entry.specifiers.Matches(baseNode.Version) {
			return errors.Errorf("%s: extra/group activation incompatible with selected base version %s", pkg, baseNode.Version)
		}
		idx := s.g.upsertVirtualNode(pkg, baseNode.Version, baseNode.Requirement)
		s.materializeEdges(pkg, idx, entry.edges)
		deps, err := s.provider.Dependencies(ctx, pkg, baseNode.Version, s.opts.Environment)
		if err != nil {
			return err
		}
		for _, d := range deps {
			s.enqueueRequirement(idx, d)
		}
		return nil
	}

	if existingIdx := s.sel.indexOf(pkg); existingIdx >= 0 {
		existing := s.g.Nodes[existingIdx]
		if !entry.specifiers.Matches(existing.Version) {
			return errors.Errorf("%s: no version satisfies both %s and the already-selected %s", pkg, entry.specifiers, existing.Version)
		}
		s.materializeEdges(pkg, existingIdx, entry.edges)
		return nil
	}

	vq, err := newVersionQueue(ctx, s.provider, pkg, entry.specifiers, entry.source, s.opts)
	if err != nil {
		return err
	}
	if vq.empty() {
		return errors.Errorf("%s: no candidate version satisfies %s", pkg, entry.specifiers)
	}

	v, req := vq.current()
	idx := len(s.g.Nodes)
	s.g.Nodes = append(s.g.Nodes, Node{Package: pkg, Version: v, Requirement: req})
	s.sel.push(selEntry{pkg: pkg, nodeIdx: idx, vq: vq})
	s.materializeEdges(pkg, idx, entry.edges)

	deps, err := s.provider.Dependencies(ctx, pkg, v, s.opts.Environment)
	if err != nil {
		return err
	}
	for _, d := range deps {
		s.enqueueRequirement(idx, d)
	}
	return nil
}

func (s *solver) materializeEdges(pkg Package, toIdx int, edges []pendingEdge) {
	for _, e := range edges {
		s.g.Edges = append(s.g.Edges, Edge{
			From: e.from,
			To:   toIdx,
			Marker: marker.Universal{
				Env:      e.requirement.Marker,
				Conflict: e.conflict,
			},
		})
	}
}

// backtrack pops the most recently selected package, advances its
// version queue to the next candidate, and re-seeds the unselected queue
// with its package so satisfy is retried. Returns false if the selection
// stack is exhausted (true NoSolution).
func (s *solver) backtrack() bool {
	for {
		top, ok := s.sel.pop()
		if !ok {
			return false
		}
		// Discard everything this node introduced: its own graph node,
		// any nodes/edges added transitively while it was selected.
		s.g.truncateFrom(top.nodeIdx)
		s.unsel.requeue(top.pkg)

		if top.vq.advance() {
			return true
		}
		// This package's version queue is exhausted; keep unwinding.
	}
}

func (g *Graph) truncateFrom(idx int) {
	g.Nodes = g.Nodes[:idx]
	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if e.From < idx && e.To < idx {
			kept = append(kept, e)
		}
	}
	g.Edges = kept
}

func (g *Graph) upsertVirtualNode(pkg Package, v version.Version, req distpkg.Requirement) int {
	if idx := g.NodeIndex(pkg, v); idx >= 0 {
		return idx
	}
	idx := len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{Package: pkg, Version: v, Requirement: req})
	return idx
}
