package version

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Op is a specifier comparison operator (spec.md §3).
type Op string

const (
	OpEq      Op = "=="
	OpNe      Op = "!="
	OpLt      Op = "<"
	OpLe      Op = "<="
	OpGt      Op = ">"
	OpGe      Op = ">="
	OpCompat  Op = "~="
	OpArbitEq Op = "==="
)

// Specifier is a single (op, version) comparison clause.
type Specifier struct {
	Op      Op
	Version Version
}

// Matches reports whether v satisfies this single clause. Grounded on the
// teacher's semverConstraint.Matches (constraints.go), generalized from
// semver's fixed operator set to the richer PEP 440-shaped Op set.
func (s Specifier) Matches(v Version) bool {
	switch s.Op {
	case OpEq:
		return v.Equal(s.Version)
	case OpNe:
		return !v.Equal(s.Version)
	case OpLt:
		return v.Less(s.Version)
	case OpLe:
		return v.Less(s.Version) || v.Equal(s.Version)
	case OpGt:
		return s.Version.Less(v)
	case OpGe:
		return s.Version.Less(v) || v.Equal(s.Version)
	case OpCompat:
		// ~=X.Y means >=X.Y, ==X.*; ~=X.Y.Z means >=X.Y.Z, ==X.Y.* (lock
		// everything but the last release segment given).
		lower := s.Version
		upper := compatUpperBound(s.Version)
		return (lower.Less(v) || lower.Equal(v)) && v.Less(upper)
	case OpArbitEq:
		return v.original == s.Version.original
	default:
		return false
	}
}

// compatUpperBound computes the exclusive upper bound for ~=, which bumps
// the second-to-last release component and truncates the rest (mirrors the
// teacher's Bump-based exclusive-upper-bound handling for caret-like ranges).
func compatUpperBound(v Version) Version {
	rel := make([]int, len(v.release))
	copy(rel, v.release)
	if len(rel) < 2 {
		rel = append(rel, 0)
	}
	rel = rel[:len(rel)-1]
	rel[len(rel)-1]++
	nv := Version{epoch: v.epoch, release: rel}
	nv.original = nv.String()
	return nv
}

func (s Specifier) String() string {
	return fmt.Sprintf("%s%s", s.Op, s.Version.String())
}

// Specifiers is a conjunction of Specifier clauses (spec.md §3:
// "A Version satisfies a VersionSpecifiers iff it satisfies every clause").
type Specifiers []Specifier

// Matches reports whether v satisfies every clause.
func (ss Specifiers) Matches(v Version) bool {
	for _, s := range ss {
		if !s.Matches(v) {
			return false
		}
	}
	return true
}

func (ss Specifiers) String() string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

var opOrder = []Op{OpArbitEq, OpCompat, OpEq, OpNe, OpLe, OpGe, OpLt, OpGt}

// ParseSpecifiers parses a comma-separated conjunction of clauses, e.g.
// ">=1.0,<2.0,!=1.5".
func ParseSpecifiers(s string) (Specifiers, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out Specifiers
	for _, clause := range strings.Split(s, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		spec, err := parseOneSpecifier(clause)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing specifier set %q", s)
		}
		out = append(out, spec)
	}
	return out, nil
}

func parseOneSpecifier(clause string) (Specifier, error) {
	for _, op := range opOrder {
		if strings.HasPrefix(clause, string(op)) {
			rest := strings.TrimSpace(clause[len(op):])
			v, err := Parse(rest)
			if err != nil {
				return Specifier{}, errors.Wrapf(err, "invalid version in clause %q", clause)
			}
			return Specifier{Op: op, Version: v}, nil
		}
	}
	return Specifier{}, errors.Errorf("unrecognized specifier clause %q", clause)
}
