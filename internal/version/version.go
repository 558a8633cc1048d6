// Package version implements the canonical, totally ordered version scheme
// described in spec.md §3 ("Version"): major.minor.patch with optional
// pre/post/dev segments, a local segment, and an epoch. It is grounded on
// golang-dep's own version type (gps/version.go, constraints.go), but this
// package is a hand-rolled comparator rather than a wrapper around
// github.com/Masterminds/semver/v3: that library's type can't represent an
// epoch or a post/dev/local segment, so it isn't suitable here. Only
// internal/candidate reaches for it, to break build-tag ties.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version is a single, totally ordered version value. The zero Version is
// not meaningful; construct with Parse or Lowest.
type Version struct {
	epoch    int
	release  []int // major, minor, patch, ... (arbitrary length, like PEP 440)
	pre      *preRelease
	post     *int
	dev      *int
	local    string
	original string
}

type preRelease struct {
	label string // "a", "b", "rc"
	num   int
}

// Lowest returns the designated lowest version: epoch 0, release 0, with
// no pre/post/dev/local segment. It sorts before every final release Parse
// produces from non-negative components (such as 0.0.1); pre-release and
// dev versions of 0 (such as 0a1 or 0.dev0) sort below it.
func Lowest() Version {
	return Version{release: []int{0}, original: "0"}
}

// Parse parses a canonical version string. Invariant (spec.md §3):
// parse ∘ display = identity for canonical forms, i.e. Parse(v.String()) == v.
func Parse(s string) (Version, error) {
	orig := s
	v := Version{original: orig}

	if i := strings.Index(s, "!"); i >= 0 {
		e, err := strconv.Atoi(s[:i])
		if err != nil {
			return Version{}, errors.Wrapf(err, "invalid epoch in version %q", orig)
		}
		v.epoch = e
		s = s[i+1:]
	}

	if i := strings.Index(s, "+"); i >= 0 {
		v.local = s[i+1:]
		s = s[:i]
	}

	// dev segment: ".devN"
	if i := strings.Index(s, ".dev"); i >= 0 {
		n, err := parseTrailingInt(s[i+4:])
		if err != nil {
			return Version{}, errors.Wrapf(err, "invalid dev segment in version %q", orig)
		}
		v.dev = &n
		s = s[:i]
	}

	// post segment: ".postN" or "-N" (legacy)
	if i := strings.Index(s, ".post"); i >= 0 {
		n, err := parseTrailingInt(s[i+5:])
		if err != nil {
			return Version{}, errors.Wrapf(err, "invalid post segment in version %q", orig)
		}
		v.post = &n
		s = s[:i]
	}

	// pre-release segment: a/b/rcN, possibly preceded by a separator.
	if idx, label := findPreReleaseLabel(s); idx >= 0 {
		n, err := parseTrailingInt(s[idx+len(label):])
		if err != nil {
			return Version{}, errors.Wrapf(err, "invalid pre-release segment in version %q", orig)
		}
		v.pre = &preRelease{label: normalizePreLabel(label), num: n}
		s = s[:idx]
	}

	if s == "" {
		return Version{}, errors.Errorf("version %q has no release segment", orig)
	}
	parts := strings.Split(s, ".")
	rel := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, errors.Wrapf(err, "invalid release segment %q in version %q", p, orig)
		}
		rel = append(rel, n)
	}
	v.release = rel
	return v, nil
}

func parseTrailingInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func findPreReleaseLabel(s string) (int, string) {
	for _, label := range []string{"alpha", "beta", "rc", "a", "b", "c"} {
		if i := strings.LastIndex(s, label); i > 0 {
			// require the label to be immediately followed by digits or end
			rest := s[i+len(label):]
			if rest == "" || isDigits(rest) {
				return i, label
			}
		}
	}
	return -1, ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalizePreLabel(label string) string {
	switch label {
	case "alpha":
		return "a"
	case "beta":
		return "b"
	case "c":
		return "rc"
	default:
		return label
	}
}

// String renders the canonical display form.
func (v Version) String() string {
	var b strings.Builder
	if v.epoch != 0 {
		fmt.Fprintf(&b, "%d!", v.epoch)
	}
	for i, r := range v.release {
		if i > 0 {
			b.WriteByte('.')
		}
		fmt.Fprintf(&b, "%d", r)
	}
	if v.pre != nil {
		fmt.Fprintf(&b, "%s%d", v.pre.label, v.pre.num)
	}
	if v.post != nil {
		fmt.Fprintf(&b, ".post%d", *v.post)
	}
	if v.dev != nil {
		fmt.Fprintf(&b, ".dev%d", *v.dev)
	}
	if v.local != "" {
		fmt.Fprintf(&b, "+%s", v.local)
	}
	return b.String()
}

// IsPreRelease reports whether this version carries a pre-release or dev
// segment, i.e. whether the pre-release policy (spec.md §4.8) applies to it.
func (v Version) IsPreRelease() bool {
	return v.pre != nil || v.dev != nil
}

// Bump returns the next representable version after v: the release segment's
// final component is incremented and any pre/post/dev/local segment is
// dropped. This matches the teacher's treatment of "next version" bounds used
// to turn an exclusive upper bound into an inclusive comparison internally.
func (v Version) Bump() Version {
	rel := make([]int, len(v.release))
	copy(rel, v.release)
	rel[len(rel)-1]++
	nv := Version{epoch: v.epoch, release: rel}
	nv.original = nv.String()
	return nv
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than o,
// per the totally-ordered comparison rules (epoch, release, pre/post/dev,
// local segment as final tiebreak).
func (v Version) Compare(o Version) int {
	if c := intCmp(v.epoch, o.epoch); c != 0 {
		return c
	}
	if c := compareReleases(v.release, o.release); c != 0 {
		return c
	}
	// A dev release of a final version (1.0.0.dev1) sorts before every
	// pre-release of that version (1.0.0a1).
	if v.pre == nil && v.post == nil && v.dev != nil && o.pre != nil {
		return -1
	}
	if o.pre == nil && o.post == nil && o.dev != nil && v.pre != nil {
		return 1
	}
	if c := comparePre(v.pre, o.pre); c != 0 {
		return c
	}
	if c := compareOptInt(v.post, o.post, true); c != 0 {
		return c
	}
	if c := compareOptInt(v.dev, o.dev, false); c != 0 {
		return c
	}
	return strings.Compare(v.local, o.local)
}

func compareReleases(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if c := intCmp(av, bv); c != 0 {
			return c
		}
	}
	return 0
}

// comparePre orders: no pre-release > any pre-release (a 1.0 release is
// newer than any 1.0 pre-release), and among pre-releases, by label then num.
func comparePre(a, b *preRelease) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	if c := strings.Compare(preRank(a.label), preRank(b.label)); c != 0 {
		return c
	}
	return intCmp(a.num, b.num)
}

func preRank(label string) string {
	switch label {
	case "a":
		return "0"
	case "b":
		return "1"
	case "rc":
		return "2"
	default:
		return "9" + label
	}
}

// compareOptInt compares optional trailing segments. When presentIsGreater is
// true (post-release), having the segment sorts higher; otherwise (dev
// release) having the segment sorts lower.
func compareOptInt(a, b *int, presentIsGreater bool) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		if presentIsGreater {
			return -1
		}
		return 1
	}
	if b == nil {
		if presentIsGreater {
			return 1
		}
		return -1
	}
	return intCmp(*a, *b)
}

func intCmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Equal reports exact version equality (not semantic set membership).
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }
