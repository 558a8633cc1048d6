package cache

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	"github.com/theckman/go-flock"
)

// Policy controls whether a read is allowed to reuse an existing cache
// entry (spec.md §4.2).
type Policy int

const (
	// Fresh unconditionally reuses whatever is on disk.
	Fresh Policy = iota
	// NeedsRevalidation means the caller must perform an HTTP conditional
	// request (registry client concern) before trusting the cached bytes.
	NeedsRevalidation
	// Refresh forces a re-fetch, ignoring any cached bytes.
	Refresh
)

// Store is a filesystem-backed, bucketed cache rooted at Root. It performs
// no in-memory caching of its own (that's internal/distdb's concern);
// Store only guarantees atomic, torn-write-free persistence.
type Store struct {
	Root string
}

// New returns a Store rooted at root, creating the root directory if
// necessary.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o777); err != nil {
		return nil, errors.Wrapf(err, "creating cache root %s", root)
	}
	return &Store{Root: root}, nil
}

// Entry constructs a CacheEntry without performing any I/O.
func (s *Store) Entry(bucket Bucket, subdir, file string) Entry {
	return Entry{Bucket: bucket, Subdir: subdir, File: file}
}

// Read returns the entry's bytes if present and the policy admits reuse.
// Refresh always yields ok=false so the caller re-fetches.
func (s *Store) Read(e Entry, policy Policy) (data []byte, ok bool, err error) {
	if policy == Refresh {
		return nil, false, nil
	}
	p := e.Path(s.Root)
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "reading cache entry %s", p)
	}
	return b, true, nil
}

// WriteAtomic durably persists data to e via a sibling temp file + rename,
// so concurrent readers only ever observe the previous committed value or
// the new one, never a torn file (spec.md §4.2, §5). A cross-process
// go-flock advisory lock on the entry's directory additionally serializes
// concurrent writers from distinct OS processes, supplementing the
// in-process single-flight lock map (internal/lockmap) which only covers
// goroutines within one process.
func (s *Store) WriteAtomic(e Entry, data []byte) error {
	dir := e.Dir(s.Root)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return errors.Wrapf(err, "creating cache directory %s", dir)
	}

	lockPath := filepath.Join(dir, ".lock")
	fl := flock.NewFlock(lockPath)
	if err := fl.Lock(); err != nil {
		return errors.Wrapf(err, "acquiring cache directory lock %s", lockPath)
	}
	defer fl.Unlock()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(e.File)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "writing temp file %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "closing temp file %s", tmpName)
	}

	dst := e.Path(s.Root)
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "renaming %s to %s", tmpName, dst)
	}
	return nil
}

// WriteAtomicStream is like WriteAtomic but copies from an io.Reader,
// suitable for streamed archive/wheel downloads (spec.md §4.3
// stream_external) without buffering the whole body in memory.
func (s *Store) WriteAtomicStream(e Entry, r io.Reader) error {
	dir := e.Dir(s.Root)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return errors.Wrapf(err, "creating cache directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(e.File)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "streaming into temp file %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "closing temp file %s", tmpName)
	}
	dst := e.Path(s.Root)
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "renaming %s to %s", tmpName, dst)
	}
	return nil
}

// Quarantine renames a corrupted entry to a sibling path instead of
// deleting it (spec.md §7 "Cache corruption": "quarantine the entry
// (rename to sibling path), retry once from source"), so a human can
// inspect the bad bytes later. Resolves the PEP 658 sidecar truncation
// open question (spec.md §9) the same way: quarantine rather than silently
// discard.
func (s *Store) Quarantine(e Entry, reason string) error {
	src := e.Path(s.Root)
	dst := src + ".corrupt-" + sanitizeReason(reason)
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "quarantining cache entry %s", src)
	}
	return nil
}

func sanitizeReason(reason string) string {
	reason = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, reason)
	if len(reason) > 32 {
		reason = reason[:32]
	}
	if reason == "" {
		reason = time.Now().UTC().Format("20060102T150405")
	}
	return reason
}

// ListFiles enumerates the files directly within a bucket/subdir tree,
// skipping partially-written temp files (dot-prefixed names), tolerating
// concurrent additions (spec.md §4.2). Uses godirwalk for allocation-light
// directory traversal, per the DOMAIN STACK ledger.
func (s *Store) ListFiles(bucket Bucket, subdir string) ([]string, error) {
	root := Entry{Bucket: bucket, Subdir: subdir}.Dir(s.Root)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var out []string
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			base := filepath.Base(osPathname)
			if strings.HasPrefix(base, ".") {
				return nil
			}
			rel, err := filepath.Rel(root, osPathname)
			if err != nil {
				return err
			}
			out = append(out, rel)
			return nil
		},
		ErrorCallback: func(_ string, err error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scanning cache bucket %s", root)
	}
	return out, nil
}
