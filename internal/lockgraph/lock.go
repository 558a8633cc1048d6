package lockgraph

import (
	"fmt"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/marker"
)

// LockVersion is the current lock-file schema version (spec.md §6: "Lock
// file format... version (integer, current = 1)").
const LockVersion = 1

// Lock is the canonical on-disk serialization of a Graph (spec.md §4.11,
// §6).
type Lock struct {
	Version           int      `toml:"version"`
	RequiresPython    string   `toml:"requires-python,omitempty"`
	ResolutionMarkers []string `toml:"resolution-markers,omitempty"`
	Packages          []Package `toml:"package"`
}

// Package is one [[package]] table.
type Package struct {
	Name                  string                      `toml:"name"`
	Version               string                      `toml:"version,omitempty"`
	Source                Source                      `toml:"source"`
	Dependencies          []Dependency                `toml:"dependencies,omitempty"`
	OptionalDependencies  map[string][]Dependency     `toml:"optional-dependencies,omitempty"`
	DependencyGroups      map[string][]Dependency     `toml:"dependency-groups,omitempty"`
	Wheels                []Wheel                     `toml:"wheels,omitempty"`
	Sdist                 *Sdist                      `toml:"sdist,omitempty"`
}

// Source is the tagged `source = {registry|url|git|path|directory|editable|virtual}`
// table of spec.md §6, flattened to one struct with exactly one kind of
// field populated.
type Source struct {
	Registry  string `toml:"registry,omitempty"`
	URL       string `toml:"url,omitempty"`
	Git       string `toml:"git,omitempty"`
	Path      string `toml:"path,omitempty"`
	Directory string `toml:"directory,omitempty"`
	Editable  bool   `toml:"editable,omitempty"`
	Virtual   bool   `toml:"virtual,omitempty"`
}

// Dependency is one `dep = {package_id, extra[], complexified_marker}`
// entry (spec.md §3).
type Dependency struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version,omitempty"`
	Extra   []string `toml:"extra,omitempty"`
	Marker  string   `toml:"marker,omitempty"`
}

// Wheel and Sdist record the downloadable artifacts backing a package,
// each with at least one hash (spec.md §6: "at least one sha256 is
// required per remote artifact").
type Wheel struct {
	URL    string   `toml:"url"`
	Hashes []string `toml:"hashes"`
}

type Sdist struct {
	URL    string   `toml:"url"`
	Hashes []string `toml:"hashes"`
}

// ToLock converts a merged resolution Graph into its canonical Lock form.
// Every serialized dependency marker is run through the reachability pass
// (spec.md §4.9) first, so it reflects the full chain of ancestor
// conditions rather than only the one-hop requirement that produced the
// edge.
func ToLock(g *Graph, requiresPython string) *Lock {
	l := &Lock{Version: LockVersion, RequiresPython: requiresPython}
	reach := Reachability(g)

	for _, idx := range g.basePackages() {
		l.Packages = append(l.Packages, buildPackage(g, idx, reach))
	}

	sort.Slice(l.Packages, func(i, j int) bool {
		return packageSortKey(l.Packages[i]) < packageSortKey(l.Packages[j])
	})
	for i := range l.Packages {
		sortDependencies(l.Packages[i].Dependencies)
		for k := range l.Packages[i].OptionalDependencies {
			sortDependencies(l.Packages[i].OptionalDependencies[k])
		}
		for k := range l.Packages[i].DependencyGroups {
			sortDependencies(l.Packages[i].DependencyGroups[k])
		}
	}

	for _, fm := range g.ForkMarkers {
		if !fm.IsTrue() {
			l.ResolutionMarkers = append(l.ResolutionMarkers, fm.String())
		}
	}
	sort.Strings(l.ResolutionMarkers)

	return l
}

func buildPackage(g *Graph, idx int, reach []marker.Universal) Package {
	n := g.Nodes[idx]
	p := Package{
		Name:    n.Package.Name,
		Version: n.Version.String(),
		Source:  sourceOf(n.Requirement),
	}

	for _, e := range g.Edges {
		if e.From != idx || e.Kind != Prod {
			continue
		}
		p.Dependencies = append(p.Dependencies, dependencyFor(g, e, reach))
	}

	for _, extra := range extrasOf(g, n) {
		vidx, ok := g.virtualIndexFor(n, extra, "")
		if !ok {
			continue
		}
		if p.OptionalDependencies == nil {
			p.OptionalDependencies = map[string][]Dependency{}
		}
		for _, e := range g.Edges {
			if e.From != vidx {
				continue
			}
			p.OptionalDependencies[extra] = append(p.OptionalDependencies[extra], dependencyFor(g, e, reach))
		}
	}
	for _, group := range groupsOf(g, n) {
		vidx, ok := g.virtualIndexFor(n, "", group)
		if !ok {
			continue
		}
		if p.DependencyGroups == nil {
			p.DependencyGroups = map[string][]Dependency{}
		}
		for _, e := range g.Edges {
			if e.From != vidx {
				continue
			}
			p.DependencyGroups[group] = append(p.DependencyGroups[group], dependencyFor(g, e, reach))
		}
	}

	return p
}

// dependencyFor renders e as a Dependency, specializing its marker to
// reach[e.From] ∧ e.Marker: the full condition under which this specific
// edge fires, rather than only the local one-hop requirement marker the
// solver recorded (spec.md §4.9 reachability/conflict-marker
// specialization).
func dependencyFor(g *Graph, e Edge, reach []marker.Universal) Dependency {
	to := g.Nodes[e.To]
	specialized := reach[e.From].And(e.Marker).Simplify()
	d := Dependency{
		Name:    to.Package.Name,
		Version: to.Version.String(),
		Marker:  canonicalMarker(specialized),
	}
	if to.Package.Extra != "" {
		d.Extra = []string{to.Package.Extra}
	}
	return d
}

// extrasOf and groupsOf enumerate the distinct extra/group names a
// virtual node exists for, keyed to n's (name, version).
func extrasOf(g *Graph, n Node) []string {
	seen := map[string]bool{}
	for _, other := range g.Nodes {
		if other.Package.Name == n.Package.Name && other.Version.Equal(n.Version) && other.Package.Extra != "" {
			seen[other.Package.Extra] = true
		}
	}
	return sortedKeys(seen)
}

func groupsOf(g *Graph, n Node) []string {
	seen := map[string]bool{}
	for _, other := range g.Nodes {
		if other.Package.Name == n.Package.Name && other.Version.Equal(n.Version) && other.Package.Group != "" {
			seen[other.Package.Group] = true
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]bool) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sourceOf(r distpkg.Requirement) Source {
	switch r.Source {
	case distpkg.SrcUrl:
		return Source{URL: r.URL}
	case distpkg.SrcPath:
		return Source{Path: r.Path, Editable: r.Editable}
	case distpkg.SrcDirectory:
		return Source{Directory: r.Path, Editable: r.Editable}
	case distpkg.SrcGit:
		ref := r.GitReference
		if ref == "" {
			ref = "HEAD"
		}
		return Source{Git: r.GitURL + "@" + ref}
	default:
		index := r.Index
		if index == "" {
			index = "default"
		}
		return Source{Registry: index}
	}
}

// canonicalMarker renders a UniversalMarker's env and conflict components
// as a single canonical string (spec.md §4.11: "markers serialized via a
// stable canonical form (disjunctive normal form with sorted
// conjunctions)"); both Tree.String and ConflictTree.String already sort
// their conjuncts/disjuncts, so this only needs to join the two
// components when both are non-trivial.
func canonicalMarker(u marker.Universal) string {
	env, conflict := "", ""
	if !u.Env.IsTrue() {
		env = u.Env.String()
	}
	if !u.Conflict.IsTrue() {
		conflict = u.Conflict.String()
	}
	switch {
	case env != "" && conflict != "":
		return env + " and " + conflict
	case env != "":
		return env
	default:
		return conflict
	}
}

func packageSortKey(p Package) string {
	return fmt.Sprintf("%s\x00%s\x00%s", p.Name, p.Version, sourceKey(p.Source))
}

func sourceKey(s Source) string {
	switch {
	case s.Registry != "":
		return "registry:" + s.Registry
	case s.URL != "":
		return "url:" + s.URL
	case s.Git != "":
		return "git:" + s.Git
	case s.Path != "":
		return "path:" + s.Path
	case s.Directory != "":
		return "directory:" + s.Directory
	case s.Virtual:
		return "virtual"
	default:
		return ""
	}
}

func sortDependencies(deps []Dependency) {
	sort.Slice(deps, func(i, j int) bool {
		return deps[i].Name+"\x00"+deps[i].Version < deps[j].Name+"\x00"+deps[j].Version
	})
}

// Marshal renders l as canonical TOML. Re-marshaling a parsed Lock
// produces byte-identical output (spec.md §4.11), since ToLock already
// sorts every list before this is ever called.
func (l *Lock) Marshal() ([]byte, error) {
	b, err := toml.Marshal(l)
	if err != nil {
		return nil, errors.Wrap(err, "lockgraph: encoding lock as TOML")
	}
	return b, nil
}

// Parse reads a Lock from its canonical TOML form.
func Parse(data []byte) (*Lock, error) {
	var l Lock
	if err := toml.Unmarshal(data, &l); err != nil {
		return nil, errors.Wrap(err, "lockgraph: parsing lock TOML")
	}
	return &l, nil
}
