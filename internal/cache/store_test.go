package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAtomicThenRead(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	e := s.Entry(BucketWheels, "idx-digest/pkg-1.0", "pkg-1.0-py3-none-any.whl")
	if err := s.WriteAtomic(e, []byte("wheel-bytes")); err != nil {
		t.Fatal(err)
	}
	data, ok, err := s.Read(e, Fresh)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(data) != "wheel-bytes" {
		t.Errorf("Read() = %q, %v; want wheel-bytes, true", data, ok)
	}
}

func TestReadMissingIsNotOK(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	_, ok, err := s.Read(s.Entry(BucketWheels, "x", "y"), Fresh)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("expected ok=false for missing entry")
	}
}

func TestRefreshPolicyIgnoresCache(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	e := s.Entry(BucketSimple, "idx", "page.json")
	if err := s.WriteAtomic(e, []byte("stale")); err != nil {
		t.Fatal(err)
	}
	_, ok, err := s.Read(e, Refresh)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("Refresh policy should never report a cache hit")
	}
}

func TestNoTornWritesUnderConcurrency(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	e := s.Entry(BucketArchives, "x", "archive.tar.gz")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			s.WriteAtomic(e, []byte("version-a-with-some-length"))
		}
	}()
	for i := 0; i < 20; i++ {
		data, ok, err := s.Read(e, Fresh)
		if err != nil {
			t.Fatal(err)
		}
		if ok && string(data) != "version-a-with-some-length" {
			t.Fatalf("observed torn write: %q", data)
		}
	}
	<-done
}

func TestQuarantineRenamesEntry(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	e := s.Entry(BucketWheels, "idx", "pkg.whl")
	if err := s.WriteAtomic(e, []byte("corrupt")); err != nil {
		t.Fatal(err)
	}
	if err := s.Quarantine(e, "hash mismatch"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Read(e, Fresh); ok {
		t.Errorf("quarantined entry should no longer be readable at its original path")
	}
	matches, _ := filepath.Glob(e.Path(dir) + ".corrupt-*")
	if len(matches) != 1 {
		t.Errorf("expected exactly one quarantined sibling file, got %v", matches)
	}
}

func TestListFilesSkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	e1 := s.Entry(BucketWheels, "idx", "a.whl")
	e2 := s.Entry(BucketWheels, "idx", "b.whl")
	if err := s.WriteAtomic(e1, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteAtomic(e2, []byte("b")); err != nil {
		t.Fatal(err)
	}
	// Leave a stray dot-prefixed temp file behind, simulating an aborted write.
	if err := os.WriteFile(filepath.Join(e1.Dir(dir), ".c.whl.tmp-orphan"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := s.ListFiles(BucketWheels, "idx")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("ListFiles() = %v, want exactly 2 entries (temp file should be skipped)", files)
	}
}
