package distpkg

import (
	"testing"

	"github.com/sdboyer/univ/internal/version"
)

func digestOf(s string) string { return "digest:" + s }

func mustVersion(t *testing.T, s string) version.Version {
	t.Helper()
	v, err := version.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestDistIdRegistry(t *testing.T) {
	d := Dist{Kind: SourceRegistry, Name: "widget", Version: mustVersion(t, "1.0.0")}
	id := d.DistId(digestOf)
	if id.Name != "widget" || id.Suffix != "1.0.0" {
		t.Errorf("DistId = %+v", id)
	}
}

func TestDistIdGitPrefersPreciseOID(t *testing.T) {
	d := Dist{Kind: SourceGit, Name: "widget", GitURL: "https://example.test/widget.git", Reference: "main", PreciseOID: "deadbeef"}
	id := d.DistId(digestOf)
	want := DistId{Name: "widget", Suffix: digestOf("https://example.test/widget.git@deadbeef")}
	if id != want {
		t.Errorf("DistId = %+v, want %+v", id, want)
	}
}

func TestDistIdGitFallsBackToReference(t *testing.T) {
	d := Dist{Kind: SourceGit, Name: "widget", GitURL: "https://example.test/widget.git", Reference: "main"}
	id := d.DistId(digestOf)
	want := DistId{Name: "widget", Suffix: digestOf("https://example.test/widget.git@main")}
	if id != want {
		t.Errorf("DistId = %+v, want %+v", id, want)
	}
}

func TestVersionIdAddsFileDigestForRegistry(t *testing.T) {
	d := Dist{Kind: BuiltRegistry, Name: "widget", Version: mustVersion(t, "1.0.0"), File: "widget-1.0.0-py3-none-any.whl"}
	vid := d.VersionId(digestOf)
	if vid.FileDigest != digestOf("widget-1.0.0-py3-none-any.whl") {
		t.Errorf("FileDigest = %q", vid.FileDigest)
	}
}

func TestVersionIdOmitsFileDigestForPath(t *testing.T) {
	d := Dist{Kind: SourcePath, Name: "widget", Path: "/tmp/widget"}
	vid := d.VersionId(digestOf)
	if vid.FileDigest != "" {
		t.Errorf("FileDigest = %q, want empty for path source", vid.FileDigest)
	}
}

func TestSourceKindIsSource(t *testing.T) {
	cases := []struct {
		k    SourceKind
		want bool
	}{
		{BuiltRegistry, false},
		{BuiltDirectUrl, false},
		{BuiltPath, false},
		{SourceRegistry, true},
		{SourceDirectUrl, true},
		{SourcePath, true},
		{SourceDirectory, true},
		{SourceGit, true},
	}
	for _, c := range cases {
		if got := c.k.IsSource(); got != c.want {
			t.Errorf("SourceKind(%d).IsSource() = %v, want %v", c.k, got, c.want)
		}
		if got := c.k.IsBuilt(); got == c.want {
			t.Errorf("SourceKind(%d).IsBuilt() = %v, want %v", c.k, got, !c.want)
		}
	}
}

func TestBinaryPolicyBlanketOnlyBinary(t *testing.T) {
	p := BinaryPolicy{BlanketOnlyBinary: true}
	if p.AllowsSource("widget") {
		t.Error("blanket only-binary should disallow source")
	}
	if !p.AllowsWheel("widget") {
		t.Error("blanket only-binary should allow wheel")
	}
}

func TestBinaryPolicyPerPackageOverridesBlanket(t *testing.T) {
	p := BinaryPolicy{
		BlanketOnlyBinary: true,
		NoBinaryFor:       map[string]bool{"widget": true},
	}
	// widget is excluded from the blanket only-binary rule via NoBinaryFor.
	if !p.AllowsSource("widget") {
		t.Error("per-package no-binary override should allow source for widget")
	}
	if p.AllowsWheel("widget") {
		t.Error("per-package no-binary override should disallow wheel for widget")
	}
	// Unaffected package still follows the blanket rule.
	if p.AllowsSource("other") {
		t.Error("blanket only-binary should still apply to unlisted packages")
	}
}

func TestBinaryPolicyDefaultAllowsBoth(t *testing.T) {
	p := BinaryPolicy{}
	if !p.AllowsSource("widget") || !p.AllowsWheel("widget") {
		t.Error("default policy should allow both source and wheel")
	}
}
