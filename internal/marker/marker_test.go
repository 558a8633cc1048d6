package marker

import "testing"

func TestEvaluate(t *testing.T) {
	m := And(
		Compare(KeySysPlatform, "==", "linux"),
		Or(Compare(KeyPythonVersion, ">=", "3.8"), Compare(KeyPythonVersion, "==", "3.7")),
	)
	env := Env{KeySysPlatform: "linux", KeyPythonVersion: "3.9"}
	if !m.Evaluate(env) {
		t.Errorf("expected marker to match env %v", env)
	}
	env2 := Env{KeySysPlatform: "win32", KeyPythonVersion: "3.9"}
	if m.Evaluate(env2) {
		t.Errorf("expected marker not to match env %v", env2)
	}
}

func TestNegateDeMorgan(t *testing.T) {
	m := And(Compare("a", "==", "1"), Compare("b", "==", "2"))
	neg := m.Negate()
	want := Or(Compare("a", "!=", "1"), Compare("b", "!=", "2"))
	if !neg.Equal(want) {
		t.Errorf("Negate() = %s, want %s", neg, want)
	}
	if !m.Negate().Negate().Equal(m) {
		t.Errorf("double negation should be identity")
	}
}

func TestTrueFalseIdentities(t *testing.T) {
	leaf := Compare("a", "==", "1")
	if !And(leaf, True()).Equal(leaf) {
		t.Errorf("AND with TRUE should be identity")
	}
	if !And(leaf, False()).IsFalse() {
		t.Errorf("AND with FALSE should be FALSE")
	}
	if !Or(leaf, True()).IsTrue() {
		t.Errorf("OR with TRUE should be TRUE")
	}
	if !Or(leaf, False()).Equal(leaf) {
		t.Errorf("OR with FALSE should be identity")
	}
}

func TestTopLevelExtraName(t *testing.T) {
	m := Compare(KeyExtra, "==", "dotenv")
	name, ok := m.TopLevelExtraName()
	if !ok || name != "dotenv" {
		t.Errorf("TopLevelExtraName() = %q, %v; want dotenv, true", name, ok)
	}
	if _, ok := True().TopLevelExtraName(); ok {
		t.Errorf("TRUE should not have a top-level extra name")
	}
}

func TestConflictActivation(t *testing.T) {
	sel := Selector{Package: "flask", Extra: "dotenv"}
	c := Active(sel)
	if !c.Evaluate(Activation{sel.String(): true}) {
		t.Errorf("expected active selector to satisfy conflict marker")
	}
	if c.Evaluate(Activation{}) {
		t.Errorf("expected missing selector to default to inactive")
	}
}

func TestUniversalMonotoneOr(t *testing.T) {
	u1 := Universal{Env: Compare(KeySysPlatform, "==", "linux"), Conflict: ConflictTrue()}
	u2 := Universal{Env: Compare(KeySysPlatform, "==", "win32"), Conflict: ConflictTrue()}
	u3 := u1.Or(u2)
	if !u3.Env.Evaluate(Env{KeySysPlatform: "linux"}) {
		t.Errorf("union should match linux")
	}
	if !u3.Env.Evaluate(Env{KeySysPlatform: "win32"}) {
		t.Errorf("union should match win32")
	}
}
