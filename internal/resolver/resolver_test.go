package resolver

import (
	"context"
	"testing"

	"github.com/sdboyer/univ/internal/candidate"
	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/marker"
	"github.com/sdboyer/univ/internal/registry"
	"github.com/sdboyer/univ/internal/version"
)

// fakeProvider is a simple in-memory Provider for the solver's search
// logic, standing in for internal/distdb + internal/registry.
type fakeProvider struct {
	versions map[string][]string                                   // package name -> available versions
	deps     map[string]map[string][]distpkg.Requirement            // package name -> version -> requirements
}

func (f *fakeProvider) ListCandidates(ctx context.Context, pkg Package, env marker.Env) ([]candidate.Entry, error) {
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

func (f *fakeProvider) Dependencies(ctx context.Context, pkg Package, v version.Version, env marker.Env) ([]distpkg.Requirement, error) {
	if pkg.IsVirtual() {
		return nil, nil
	}
	return f.deps[pkg.Name][v.String()], nil
}

func req(t *testing.T, name, specifiers string) distpkg.Requirement {
	t.Helper()
	var specs version.Specifiers
	if specifiers != "" {
		var err error
		specs, err = version.ParseSpecifiers(specifiers)
		if err != nil {
			t.Fatal(err)
		}
	}
	return distpkg.Requirement{Name: name, Specifiers: specs, Source: distpkg.SrcRegistry}
}

func TestSolveSimpleLinearChain(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{
			"a": {"1.0.0"},
			"b": {"1.0.0"},
		},
		deps: map[string]map[string][]distpkg.Requirement{
			"a": {"1.0.0": {{Name: "b", Source: distpkg.SrcRegistry}}},
		},
	}
	g, err := Solve(context.Background(), p, []distpkg.Requirement{req(t, "a", "")}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	names := nodeNames(g)
	if !contains(names, "a") || !contains(names, "b") {
		t.Errorf("nodes = %v, want a and b present", names)
	}
}

func TestSolvePrefersHighestByDefault(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{"a": {"1.0.0", "2.0.0"}},
	}
	g, err := Solve(context.Background(), p, []distpkg.Requirement{req(t, "a", "")}, Options{Mode: candidate.Highest})
	if err != nil {
		t.Fatal(err)
	}
	v := versionOf(t, g, "a")
	if v != "2.0.0" {
		t.Errorf("selected version = %s, want 2.0.0", v)
	}
}

func TestSolveLowestMode(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{"a": {"1.0.0", "2.0.0"}},
	}
	g, err := Solve(context.Background(), p, []distpkg.Requirement{req(t, "a", "")}, Options{Mode: candidate.Lowest})
	if err != nil {
		t.Fatal(err)
	}
	v := versionOf(t, g, "a")
	if v != "1.0.0" {
		t.Errorf("selected version = %s, want 1.0.0", v)
	}
}

func TestSolveSpecifiersFilterCandidates(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{"a": {"1.0.0", "2.0.0"}},
	}
	g, err := Solve(context.Background(), p, []distpkg.Requirement{req(t, "a", "<2.0.0")}, Options{Mode: candidate.Highest})
	if err != nil {
		t.Fatal(err)
	}
	v := versionOf(t, g, "a")
	if v != "1.0.0" {
		t.Errorf("selected version = %s, want 1.0.0 (excluded by specifier)", v)
	}
}

func TestSolveConvergentSharedDependency(t *testing.T) {
	// Both a and b depend on c; c must resolve to a single shared version.
	p := &fakeProvider{
		versions: map[string][]string{
			"a": {"1.0.0"}, "b": {"1.0.0"}, "c": {"1.0.0", "2.0.0"},
		},
		deps: map[string]map[string][]distpkg.Requirement{
			"a": {"1.0.0": {req(t, "c", ">=1.0.0")}},
			"b": {"1.0.0": {req(t, "c", "<2.0.0")}},
		},
	}
	g, err := Solve(context.Background(), p, []distpkg.Requirement{req(t, "a", ""), req(t, "b", "")}, Options{Mode: candidate.Highest})
	if err != nil {
		t.Fatal(err)
	}
	v := versionOf(t, g, "c")
	if v != "1.0.0" {
		t.Errorf("selected c = %s, want 1.0.0 (only version satisfying both a and b)", v)
	}
}

func TestSolveNoSolutionOnIncompatibleSpecifiers(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{"a": {"1.0.0"}},
	}
	_, err := Solve(context.Background(), p, []distpkg.Requirement{req(t, "a", ">2.0.0")}, Options{})
	if err == nil {
		t.Fatal("expected NoSolutionError")
	}
	if _, ok := err.(*NoSolutionError); !ok {
		t.Errorf("error = %v (%T), want *NoSolutionError", err, err)
	}
}

func TestSolveExtraActivatesVirtualNode(t *testing.T) {
	p := &fakeProvider{
		versions: map[string][]string{"flask": {"1.0.0"}, "python-dotenv": {"1.0.0"}},
		deps:     map[string]map[string][]distpkg.Requirement{},
	}
	r := req(t, "flask", "")
	r.Extras = []string{"dotenv"}
	// The extra's dependency is declared on the virtual node, which the
	// fake provider resolves by package name regardless of Extra, so
	// stub it directly via Dependencies keyed by name "flask".
	p.deps["flask"] = map[string][]distpkg.Requirement{}

	g, err := Solve(context.Background(), p, []distpkg.Requirement{r}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	foundVirtual := false
	for _, n := range g.Nodes {
		if n.Package.Extra == "dotenv" {
			foundVirtual = true
		}
	}
	if !foundVirtual {
		t.Error("expected a virtual flask[dotenv] node in the graph")
	}
}

func nodeNames(g *Graph) []string {
	var out []string
	for _, n := range g.Nodes {
		out = append(out, n.Package.Name)
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func versionOf(t *testing.T, g *Graph, name string) string {
	t.Helper()
	for _, n := range g.Nodes {
		if n.Package.Name == name && n.Package.Extra == "" && n.Package.Group == "" {
			return n.Version.String()
		}
	}
	t.Fatalf("no node found for package %s", name)
	return ""
}
