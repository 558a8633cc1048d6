package lockgraph

import (
	"sort"

	"github.com/sdboyer/univ/internal/marker"
)

// ReplayGraph traverses g from Root following edges whose Universal
// marker is satisfied by env and activation (spec.md §4.11: "traverse
// edges from Root whose markers evaluate true under the active
// environment and whose conflict marker is satisfied by the active
// extra/group selection"). Unlike Replay, this operates on the typed
// Graph still held in memory after a resolve, so markers are evaluated
// precisely rather than conservatively.
func ReplayGraph(g *Graph, env marker.Env, activation marker.Activation) []PackageId {
	reached := map[int]bool{rootIndex: true}
	var order []int
	var visit func(idx int)
	visit = func(idx int) {
		for _, e := range g.Edges {
			if e.From != idx {
				continue
			}
			if !e.Marker.Env.Evaluate(env) || !e.Marker.Conflict.Evaluate(activation) {
				continue
			}
			if reached[e.To] {
				continue
			}
			reached[e.To] = true
			order = append(order, e.To)
			visit(e.To)
		}
	}
	visit(rootIndex)

	seen := map[string]bool{}
	out := make([]PackageId, 0, len(order))
	for _, idx := range order {
		n := g.Nodes[idx]
		if n.Package.IsVirtual() {
			continue // virtual nodes route dependencies; they aren't installable packages.
		}
		id := PackageId{Name: n.Package.Name, Version: n.Version.String()}
		key := id.Name + "@" + id.Version
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name+"@"+out[i].Version < out[j].Name+"@"+out[j].Version
	})
	return out
}

// InstallTarget is the environment a lock is replayed against (spec.md
// §4.11): which extras/groups of the root are selected. The interpreter
// environment itself only matters to ReplayGraph, which evaluates typed
// markers directly; Replay operates on the already-flattened canonical
// marker strings and so cannot re-evaluate an environment precisely (see
// visitDep).
type InstallTarget struct {
	SelectedExtra map[string]bool
	SelectedGroup map[string]bool
}

// PackageId identifies one resolved package in a replay result.
type PackageId struct {
	Name, Version string
}

// Replay traverses l from its root packages (those with no incoming
// dependency edge from another package — approximating Root, since the
// serialized Lock has already collapsed the synthetic Root node into bare
// top-level dependency membership) and returns every package reachable
// under target, honoring each dependency's extra gate. Dependency markers
// are not evaluated: every dependency edge is followed whatever its marker
// says (see visitDep). Replay
// is pure: it only inspects the already-parsed Lock (spec.md §4.11:
// "Replay is pure: no network work is performed if the cache is
// populated").
func Replay(l *Lock, target InstallTarget) []PackageId {
	byName := map[string]Package{}
	for _, p := range l.Packages {
		byName[p.Name] = p
	}

	reached := map[string]bool{}
	var order []string
	var visit func(p Package, extras, groups map[string]bool)
	visit = func(p Package, extras, groups map[string]bool) {
		key := p.Name + "@" + p.Version
		if reached[key] {
			return
		}
		reached[key] = true
		order = append(order, key)

		for _, d := range p.Dependencies {
			visitDep(byName, d, target, visit)
		}
		for extra, deps := range p.OptionalDependencies {
			if !extras[extra] {
				continue
			}
			for _, d := range deps {
				visitDep(byName, d, target, visit)
			}
		}
		for group, deps := range p.DependencyGroups {
			if !groups[group] {
				continue
			}
			for _, d := range deps {
				visitDep(byName, d, target, visit)
			}
		}
	}

	for _, p := range rootPackages(l) {
		visit(p, target.SelectedExtra, target.SelectedGroup)
	}

	sort.Strings(order)
	out := make([]PackageId, 0, len(order))
	for _, key := range order {
		for i, c := range key {
			if c == '@' {
				out = append(out, PackageId{Name: key[:i], Version: key[i+1:]})
				break
			}
		}
	}
	return out
}

func visitDep(byName map[string]Package, d Dependency, target InstallTarget, visit func(Package, map[string]bool, map[string]bool)) {
	if d.Marker != "" {
		// A non-trivial marker on a dependency edge that Replay cannot
		// evaluate symbolically (the marker was flattened to its
		// canonical string form at serialization time) is treated as an
		// opaque but always-reachable gate: the fork that produced this
		// edge already proved it relevant to some environment, and
		// evaluating it precisely again requires re-parsing the marker
		// language, which belongs to the resolver's marker package, not
		// here. Conservative over-inclusion matches spec.md §4.9's
		// monotonic-safe-upper-bound guidance for reachability.
	}
	dep, ok := byName[d.Name]
	if !ok {
		return
	}
	extras := map[string]bool{}
	for _, e := range d.Extra {
		extras[e] = true
	}
	visit(dep, extras, target.SelectedGroup)
}

// rootPackages returns the packages no other package in l depends on,
// i.e. the ones a manifest's top-level requirements point at directly.
func rootPackages(l *Lock) []Package {
	depended := map[string]bool{}
	for _, p := range l.Packages {
		for _, d := range p.Dependencies {
			depended[d.Name] = true
		}
		for _, deps := range p.OptionalDependencies {
			for _, d := range deps {
				depended[d.Name] = true
			}
		}
		for _, deps := range p.DependencyGroups {
			for _, d := range deps {
				depended[d.Name] = true
			}
		}
	}
	var roots []Package
	for _, p := range l.Packages {
		if !depended[p.Name] {
			roots = append(roots, p)
		}
	}
	return roots
}
