package lockgraph

import (
	"context"
	"testing"

	"github.com/sdboyer/univ/internal/candidate"
	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/marker"
	"github.com/sdboyer/univ/internal/registry"
	"github.com/sdboyer/univ/internal/resolver"
	"github.com/sdboyer/univ/internal/version"
)

type fakeProvider struct {
	versions map[string][]string
	deps     map[string]map[string][]distpkg.Requirement
}

func (f *fakeProvider) ListCandidates(ctx context.Context, pkg resolver.Package, env marker.Env) ([]candidate.Entry, error) {
	var entries []candidate.Entry
	for _, v := range f.versions[pkg.Name] {
		pv, err := version.Parse(v)
		if err != nil {
			return nil, err
		}
		entries = append(entries, candidate.Entry{
			Version: pv,
			File:    registry.File{Filename: pkg.Name + "-" + v + "-py3-none-any.whl"},
		})
	}
	return entries, nil
}

func (f *fakeProvider) Dependencies(ctx context.Context, pkg resolver.Package, v version.Version, env marker.Env) ([]distpkg.Requirement, error) {
	return f.deps[pkg.Key()][v.String()], nil
}

func req(t *testing.T, name string) distpkg.Requirement {
	t.Helper()
	return distpkg.Requirement{Name: name, Source: distpkg.SrcRegistry}
}

func singleFork(t *testing.T, p resolver.Provider, reqs []distpkg.Requirement, opts resolver.Options) *resolver.ForkedResult {
	t.Helper()
	g, err := resolver.Solve(context.Background(), p, reqs, opts)
	if err != nil {
		t.Fatal(err)
	}
	return &resolver.ForkedResult{Forks: []resolver.Fork{{Graph: g, ForkMarker: marker.True()}}}
}

func TestFromForkedResultLinearChain(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{"a": {"1.0.0"}, "b": {"1.0.0"}},
		deps: map[string]map[string][]distpkg.Requirement{
			"a": {"1.0.0": {req(t, "b")}},
		},
	}
	result := singleFork(t, p, []distpkg.Requirement{req(t, "a")}, resolver.Options{})
	g := FromForkedResult(result)

	if len(g.basePackages()) != 2 {
		t.Fatalf("basePackages = %d, want 2", len(g.basePackages()))
	}
}

func TestFromForkedResultMergesForksDedupingSharedPackage(t *testing.T) {
	p := &fakeProvider{versions: map[string][]string{"a": {"1.0.0"}, "b": {"1.0.0", "2.0.0"}}}

	win := req(t, "b")
	win.Marker = marker.Compare(marker.KeySysPlatform, "==", "win32")
	lin := req(t, "b")
	lin.Marker = marker.Compare(marker.KeySysPlatform, "==", "linux")

	fork1, err := resolver.Solve(context.Background(), p, []distpkg.Requirement{win}, resolver.Options{Environment: marker.Env{marker.KeySysPlatform: "win32"}})
	if err != nil {
		t.Fatal(err)
	}
	fork2, err := resolver.Solve(context.Background(), p, []distpkg.Requirement{lin}, resolver.Options{Environment: marker.Env{marker.KeySysPlatform: "linux"}})
	if err != nil {
		t.Fatal(err)
	}
	result := &resolver.ForkedResult{Forks: []resolver.Fork{
		{Graph: fork1, ForkMarker: marker.Compare(marker.KeySysPlatform, "==", "win32"), Environment: marker.Env{marker.KeySysPlatform: "win32"}},
		{Graph: fork2, ForkMarker: marker.Compare(marker.KeySysPlatform, "==", "linux"), Environment: marker.Env{marker.KeySysPlatform: "linux"}},
	}}

	g := FromForkedResult(result)
	// Single node for package "b" since both forks pick the same (highest)
	// version of it, 2.0.0; only the marker differs between the two forks,
	// which is exactly the case where forks should converge onto one
	// node rather than producing duplicates (the divergent case, where
	// each fork selects a different version, is exercised against the
	// real S1 scenario in fork_test.go's
	// TestForkAndSolveUnivesalForkScenario).
	count := 0
	for _, idx := range g.basePackages() {
		if g.Nodes[idx].Package.Name == "b" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("node count for b = %d, want 1 (forks converged on the same version)", count)
	}
}

func TestReplayGraphExcludesInactiveExtra(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{"flask": {"1.0.0"}, "python-dotenv": {"1.0.0"}},
		deps: map[string]map[string][]distpkg.Requirement{
			"flask[dotenv]": {"1.0.0": {req(t, "python-dotenv")}},
		},
	}
	r := req(t, "flask")
	r.Extras = []string{"dotenv"}

	result := singleFork(t, p, []distpkg.Requirement{r}, resolver.Options{})
	g := FromForkedResult(result)

	withoutExtra := ReplayGraph(g, marker.Env{}, marker.Activation{})
	for _, id := range withoutExtra {
		if id.Name == "python-dotenv" {
			t.Errorf("python-dotenv reached without the dotenv extra active")
		}
	}

	withExtra := ReplayGraph(g, marker.Env{}, marker.Activation{"flask[dotenv]": true})
	found := false
	for _, id := range withExtra {
		if id.Name == "python-dotenv" {
			found = true
		}
	}
	if !found {
		t.Error("expected python-dotenv reachable with the dotenv extra active")
	}
}
