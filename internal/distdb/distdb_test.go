package distdb

import (
	"context"
	"testing"

	"github.com/sdboyer/univ/internal/cache"
	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/lockmap"
)

func newTestCache(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGetOrBuildWheelBuiltPathIsDiskImmediately(t *testing.T) {
	db := &DB{Cache: newTestCache(t), Locks: lockmap.New()}
	dist := distpkg.Dist{Kind: distpkg.BuiltPath, Name: "widget", Path: "/local/widget.whl"}

	w, err := db.GetOrBuildWheel(context.Background(), dist)
	if err != nil {
		t.Fatal(err)
	}
	if w.Kind != Disk || w.Path != "/local/widget.whl" {
		t.Errorf("w = %+v", w)
	}
}

func TestGetOrBuildWheelSourceWithNoBuildFails(t *testing.T) {
	db := &DB{Cache: newTestCache(t), Locks: lockmap.New(), NoBuild: true}
	dist := distpkg.Dist{Kind: distpkg.SourcePath, Name: "widget", Path: "/local/widget-src"}

	_, err := db.GetOrBuildWheel(context.Background(), dist)
	if err == nil {
		t.Fatal("expected NoBuildError")
	}
	if _, ok := errCause(err).(*NoBuildError); !ok {
		t.Errorf("error = %v, want *NoBuildError", err)
	}
}

func TestGetOrBuildWheelSourceWithoutBuildEnvironmentFails(t *testing.T) {
	db := &DB{Cache: newTestCache(t), Locks: lockmap.New()}
	dist := distpkg.Dist{Kind: distpkg.SourcePath, Name: "widget", Path: "/local/widget-src"}

	_, err := db.GetOrBuildWheel(context.Background(), dist)
	if err == nil {
		t.Fatal("expected error when BuildEnvironment is unset")
	}
}

func TestLastURLSegment(t *testing.T) {
	cases := map[string]string{
		"https://example.test/pkgs/widget-1.0.whl": "widget-1.0.whl",
		"widget-1.0.whl":                            "widget-1.0.whl",
		"":                                           "",
	}
	for in, want := range cases {
		if got := lastURLSegment(in); got != want {
			t.Errorf("lastURLSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

// errCause unwraps a github.com/pkg/errors-wrapped error to compare against
// a concrete sentinel type, mirroring the teacher's own test helper idiom
// for asserting on wrapped error causes.
func errCause(err error) error {
	type causer interface{ Cause() error }
	for {
		c, ok := err.(causer)
		if !ok {
			return err
		}
		err = c.Cause()
	}
}
