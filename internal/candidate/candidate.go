// Package candidate ranks versions under the active resolution mode and
// drives batch prefetching of probable candidates (spec.md §4.8).
// Grounded on golang-dep's versionQueue (gps/version_queue.go), which
// ranks and lazily unspools a package's version list in priority order
// for the solver to try; this package generalizes that idea to the
// richer (mode, prerelease policy, wheel priority, build tag) tie-break
// chain spec.md demands.
package candidate

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/sdboyer/univ/internal/registry"
	"github.com/sdboyer/univ/internal/version"
)

// ResolutionMode selects the overall version-ranking direction (spec.md
// §4.8).
type ResolutionMode int

const (
	Highest ResolutionMode = iota
	Lowest
	LowestDirect
)

// PrereleaseMode controls whether pre-release/dev versions are eligible
// (spec.md §4.8).
type PrereleaseMode int

const (
	PrereleaseDisallow PrereleaseMode = iota
	PrereleaseIfNecessary
	PrereleaseAllow
)

// Entry pairs a parsed Version with the index File it came from, the unit
// candidate selection ranks (spec.md §4.8: "lazy sequence of (Version,
// File) pairs").
type Entry struct {
	Version      version.Version
	File         registry.File
	WheelCompat  int // higher is more specific/preferred; 0 for non-wheel (sdist)
	IsDirectDep  bool
}

// Selector ranks a package's candidate list under one (mode, prerelease
// policy) pair.
type Selector struct {
	Mode        ResolutionMode
	Prerelease  PrereleaseMode
	Compatible  version.Specifiers
}

// Rank filters entries to those compatible with the Selector's
// specifiers and pre-release policy, then sorts them so entries[0] is the
// resolver's first choice (spec.md §4.8, §4.9 tie-break chain: pre-release
// policy, version, wheel-compat priority, build tag, then filename).
func (s Selector) Rank(entries []Entry) []Entry {
	filtered := make([]Entry, 0, len(entries))
	anyStable := false
	for _, e := range entries {
		if !e.Version.IsPreRelease() {
			anyStable = true
		}
	}
	for _, e := range entries {
		if len(s.Compatible) > 0 && !s.Compatible.Matches(e.Version) {
			continue
		}
		if e.Version.IsPreRelease() {
			switch s.Prerelease {
			case PrereleaseDisallow:
				continue
			case PrereleaseIfNecessary:
				if anyStable {
					continue
				}
			case PrereleaseAllow:
				// always eligible
			}
		}
		filtered = append(filtered, e)
	}

	ascending := s.Mode == Lowest || s.Mode == LowestDirect
	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if !a.Version.Equal(b.Version) {
			if ascending {
				return a.Version.Less(b.Version)
			}
			return b.Version.Less(a.Version)
		}
		if a.WheelCompat != b.WheelCompat {
			return a.WheelCompat > b.WheelCompat
		}
		if c := compareBuildTag(buildTagOf(a.File.Filename), buildTagOf(b.File.Filename)); c != 0 {
			return c > 0
		}
		return a.File.Filename < b.File.Filename
	})
	return filtered
}

// buildTagOf extracts the optional numeric build tag segment from a wheel
// filename, per the wheel filename convention
// `{name}-{version}(-{build tag})?-{python tag}-{abi tag}-{platform tag}.whl`
// (spec.md §4.8 "build tag" tie-break).
func buildTagOf(filename string) string {
	parts := splitWheelName(filename)
	if len(parts) == 6 {
		return parts[2]
	}
	return ""
}

func splitWheelName(filename string) []string {
	name := filename
	for _, suffix := range []string{".whl", ".tar.gz", ".zip"} {
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	var parts []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '-' {
			parts = append(parts, name[start:i])
			start = i + 1
		}
	}
	parts = append(parts, name[start:])
	return parts
}

// compareBuildTag orders two build-tag strings numerically when both
// parse as a semantic version (build tags are conventionally a leading
// integer, sometimes followed by an arbitrary string suffix, e.g. "2" or
// "3post1"); ties or unparsable tags fall back to lexicographic order so
// the overall tie-break chain always produces a total order.
func compareBuildTag(a, b string) int {
	if a == "" && b == "" {
		return 0
	}
	av, aerr := semver.NewVersion(normalizeBuildTag(a))
	bv, berr := semver.NewVersion(normalizeBuildTag(b))
	if aerr == nil && berr == nil {
		if c := av.Compare(bv); c != 0 {
			return c
		}
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// normalizeBuildTag coerces a bare leading-integer build tag ("2",
// "3post1") into something semver.NewVersion accepts ("2.0.0"); a tag that
// still doesn't parse falls through to the lexicographic fallback above.
func normalizeBuildTag(tag string) string {
	if tag == "" {
		return tag
	}
	i := 0
	for i < len(tag) && tag[i] >= '0' && tag[i] <= '9' {
		i++
	}
	if i == 0 {
		return tag
	}
	return tag[:i] + ".0.0"
}

// FilterCompatiblePython drops entries whose requires-python excludes the
// active interpreter (spec.md §4.3, §4.8: "requires-python filtering is
// applied before scheduling a prefetch").
func FilterCompatiblePython(entries []Entry, interpreter version.Version) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.File.RequiresPython == "" {
			out = append(out, e)
			continue
		}
		spec, err := version.ParseSpecifiers(e.File.RequiresPython)
		if err != nil || spec.Matches(interpreter) {
			out = append(out, e)
		}
	}
	return out
}
