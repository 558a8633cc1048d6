package resolver

import (
	"context"
	"sort"

	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/marker"
)

// ForkKeys are the environment variables the resolver partitions on when
// markers divide the candidate space (spec.md §4.10: "When an environment
// marker divides the candidate space... the resolver forks into disjoint
// sub-problems parameterised by ResolverEnvironment"). sys_platform is
// the dividing key in the spec's own worked example (§4.10, §8 scenario
// S1); python_version and os_name are the other two PEP 508 keys common
// enough in practice to warrant always checking.
var ForkKeys = []string{marker.KeySysPlatform, marker.KeyPythonVersion, marker.KeyOSName}

// Fork is one resolved sub-problem: a concrete environment assignment,
// the marker distinguishing it from its sibling forks, and the resulting
// graph.
type Fork struct {
	Environment marker.Env
	ForkMarker  marker.Tree
	Graph       *Graph
}

// ForkedResult is the union of every fork's graph (spec.md §4.10: "the
// final graph is the union of all forks' graphs, with fork markers
// recorded on the resulting edges").
type ForkedResult struct {
	Forks []Fork
}

// ForkAndSolve partitions rootRequirements' markers into disjoint
// environment assignments, solves each independently, and returns their
// union. When no marker divides the candidate space, this degenerates to
// a single fork with baseOpts.Environment unchanged.
func ForkAndSolve(ctx context.Context, provider Provider, rootRequirements []distpkg.Requirement, baseOpts Options) (*ForkedResult, error) {
	partitions := partitionEnvironments(rootRequirements, baseOpts.Environment)

	result := &ForkedResult{}
	for _, part := range partitions {
		opts := baseOpts
		opts.Environment = part.env
		g, err := Solve(ctx, provider, rootRequirements, opts)
		if err != nil {
			return nil, err
		}
		result.Forks = append(result.Forks, Fork{
			Environment: part.env,
			ForkMarker:  part.marker,
			Graph:       g,
		})
	}
	return result, nil
}

type envPartition struct {
	env    marker.Env
	marker marker.Tree
}

// partitionEnvironments discovers every distinct value each ForkKeys
// member is compared against across rootRequirements' markers, picks the
// first key (in ForkKeys order) with more than one distinct value, and
// builds one concrete environment per value of that key (merged with
// base's existing assignments); the other keys are not split. When no key
// has more than one distinct value, it returns base as given.
func partitionEnvironments(reqs []distpkg.Requirement, base marker.Env) []envPartition {
	values := map[string]map[string]bool{}
	for _, key := range ForkKeys {
		values[key] = map[string]bool{}
	}
	for _, r := range reqs {
		for _, key := range ForkKeys {
			for _, v := range r.Marker.CollectEqualityValues(key) {
				values[key][v] = true
			}
		}
	}

	dividingKey := ""
	for _, key := range ForkKeys {
		if len(values[key]) > 1 {
			dividingKey = key
			break
		}
	}
	if dividingKey == "" {
		return []envPartition{{env: base, marker: marker.True()}}
	}

	var vals []string
	for v := range values[dividingKey] {
		vals = append(vals, v)
	}
	sort.Strings(vals)

	partitions := make([]envPartition, 0, len(vals))
	for _, v := range vals {
		env := make(marker.Env, len(base)+1)
		for k, bv := range base {
			env[k] = bv
		}
		env[dividingKey] = v
		partitions = append(partitions, envPartition{
			env:    env,
			marker: marker.Compare(dividingKey, "==", v),
		})
	}
	return partitions
}
