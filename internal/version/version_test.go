package version

import "testing"

func TestParseDisplayIdentity(t *testing.T) {
	cases := []string{
		"1.0.0",
		"2!1.0.0",
		"1.0.0a1",
		"1.0.0rc2",
		"1.0.0.post1",
		"1.0.0.dev1",
		"1.0.0+local.1",
		"1.0.0a1.post2.dev3+deadbeef",
	}
	for _, c := range cases {
		v, err := Parse(c)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c, err)
		}
		if got := v.String(); got != c {
			t.Errorf("Parse(%q).String() = %q, want %q", c, got, c)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	ordered := []string{
		"1.0.0.dev1",
		"1.0.0a1",
		"1.0.0a2",
		"1.0.0b1",
		"1.0.0rc1",
		"1.0.0",
		"1.0.0.post1",
		"1.0.1",
		"2!0.0.1",
	}
	for i := 0; i < len(ordered)-1; i++ {
		a, err := Parse(ordered[i])
		if err != nil {
			t.Fatal(err)
		}
		b, err := Parse(ordered[i+1])
		if err != nil {
			t.Fatal(err)
		}
		if !a.Less(b) {
			t.Errorf("expected %s < %s", ordered[i], ordered[i+1])
		}
		if b.Less(a) {
			t.Errorf("expected !(%s < %s)", ordered[i+1], ordered[i])
		}
	}
}

func TestBump(t *testing.T) {
	v, _ := Parse("1.2.3")
	b := v.Bump()
	if b.String() != "1.2.4" {
		t.Errorf("Bump(1.2.3) = %s, want 1.2.4", b.String())
	}
}

func TestLowestSortsFirst(t *testing.T) {
	v, _ := Parse("0.0.1")
	if !Lowest().Less(v) {
		t.Errorf("Lowest() should sort before 0.0.1")
	}
}

func TestSpecifiersMatch(t *testing.T) {
	specs, err := ParseSpecifiers(">=1.0,<2.0,!=1.5")
	if err != nil {
		t.Fatal(err)
	}
	yes, _ := Parse("1.4")
	no, _ := Parse("1.5")
	tooHigh, _ := Parse("2.0")
	if !specs.Matches(yes) {
		t.Errorf("expected 1.4 to match %s", specs)
	}
	if specs.Matches(no) {
		t.Errorf("expected 1.5 to be excluded by %s", specs)
	}
	if specs.Matches(tooHigh) {
		t.Errorf("expected 2.0 to be excluded by %s", specs)
	}
}

func TestCompatibleRelease(t *testing.T) {
	specs, err := ParseSpecifiers("~=2.2")
	if err != nil {
		t.Fatal(err)
	}
	in, _ := Parse("2.3")
	out, _ := Parse("3.0")
	if !specs.Matches(in) {
		t.Errorf("expected 2.3 to match ~=2.2")
	}
	if specs.Matches(out) {
		t.Errorf("expected 3.0 to be excluded by ~=2.2")
	}
}

func TestIsPreRelease(t *testing.T) {
	p, _ := Parse("1.0.0a1")
	if !p.IsPreRelease() {
		t.Errorf("1.0.0a1 should be a pre-release")
	}
	r, _ := Parse("1.0.0")
	if r.IsPreRelease() {
		t.Errorf("1.0.0 should not be a pre-release")
	}
}
