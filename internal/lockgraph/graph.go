// Package lockgraph implements the ResolutionGraph and Lock of spec.md
// §4.11: the directed, synthetic-rooted graph the resolver produces, and
// its canonical TOML serialization. Grounded on golang-dep's lock.go and
// manifest.go (raw<->domain mapping, SortedLockedProjects for
// deterministic output), serialized as TOML via go-toml/v2 per the DOMAIN
// STACK ledger (SPEC_FULL.md §3).
package lockgraph

import (
	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/marker"
	"github.com/sdboyer/univ/internal/resolver"
	"github.com/sdboyer/univ/internal/version"
)

// EdgeKind classifies a ResolutionGraph edge by what activates it
// (spec.md §4.11: "edges labelled Prod | Optional(extra) | Dev(group)").
type EdgeKind int

const (
	Prod EdgeKind = iota
	Optional
	Dev
)

// Node is one (package, version) pair in the graph, synthetic Root
// excepted.
type Node struct {
	Package     resolver.Package
	Version     version.Version
	Requirement distpkg.Requirement
}

func (n Node) baseKey() string {
	return n.Package.Name + "@" + n.Version.String()
}

// Edge carries the UniversalMarker gating it plus which extra/group (if
// any) the edge belongs to, derived from the destination node's
// virtuality.
type Edge struct {
	From, To int
	Kind     EdgeKind
	Extra    string
	Group    string
	Marker   marker.Universal
}

// Graph is the merged union of every fork's single-environment Graph
// (spec.md §4.11: "the final graph is the union of all forks' graphs").
// Node 0 is always the synthetic Root.
type Graph struct {
	Nodes       []Node
	Edges       []Edge
	ForkMarkers []marker.Tree
}

const rootIndex = 0

// FromForkedResult merges every fork's resolver.Graph into one Graph,
// deduplicating nodes that resolved identically across forks (the common
// case: most packages aren't touched by the dividing marker at all).
func FromForkedResult(result *resolver.ForkedResult) *Graph {
	g := &Graph{Nodes: []Node{{Package: resolver.Package{Name: resolver.RootName}}}}

	for _, fork := range result.Forks {
		g.ForkMarkers = append(g.ForkMarkers, fork.ForkMarker)
		localToGlobal := make([]int, len(fork.Graph.Nodes))

		for i, n := range fork.Graph.Nodes {
			if i == rootIndex {
				localToGlobal[i] = rootIndex
				continue
			}
			key := Node{Package: n.Package, Version: n.Version}.baseKey() + "/" + n.Package.Extra + "/" + n.Package.Group
			if idx, ok := g.indexByKey(key); ok {
				localToGlobal[i] = idx
				continue
			}
			idx := len(g.Nodes)
			g.Nodes = append(g.Nodes, Node{Package: n.Package, Version: n.Version, Requirement: n.Requirement})
			localToGlobal[i] = idx
		}

		for _, e := range fork.Graph.Edges {
			to := localToGlobal[e.To]
			toPkg := g.Nodes[to].Package
			kind, extra, group := Prod, "", ""
			if toPkg.Extra != "" {
				kind, extra = Optional, toPkg.Extra
			} else if toPkg.Group != "" {
				kind, group = Dev, toPkg.Group
			}
			g.addEdge(Edge{
				From:   localToGlobal[e.From],
				To:     to,
				Kind:   kind,
				Extra:  extra,
				Group:  group,
				Marker: e.Marker,
			})
		}
	}
	return g
}

func (g *Graph) indexByKey(key string) (int, bool) {
	for i, n := range g.Nodes {
		if i == rootIndex {
			continue
		}
		if n.baseKey()+"/"+n.Package.Extra+"/"+n.Package.Group == key {
			return i, true
		}
	}
	return 0, false
}

// addEdge appends e unless an equal edge (same endpoints, kind and
// extra/group) is already present, in which case the two markers are
// unioned (spec.md §4.9: reachability only ever grows toward a safe upper
// bound across forks that both reach the same edge).
func (g *Graph) addEdge(e Edge) {
	for i, existing := range g.Edges {
		if existing.From == e.From && existing.To == e.To && existing.Kind == e.Kind &&
			existing.Extra == e.Extra && existing.Group == e.Group {
			g.Edges[i].Marker = existing.Marker.Or(e.Marker)
			return
		}
	}
	g.Edges = append(g.Edges, e)
}

// basePackages returns the indices of every non-virtual, non-root node.
func (g *Graph) basePackages() []int {
	var out []int
	for i, n := range g.Nodes {
		if i == rootIndex || n.Package.IsVirtual() {
			continue
		}
		out = append(out, i)
	}
	return out
}

// virtualIndexFor returns the index of the virtual node for base's
// package at the given extra or group, if one was created.
func (g *Graph) virtualIndexFor(base Node, extra, group string) (int, bool) {
	for i, n := range g.Nodes {
		if n.Package.Name == base.Package.Name && n.Version.Equal(base.Version) &&
			n.Package.Extra == extra && n.Package.Group == group {
			return i, true
		}
	}
	return 0, false
}
