// Package cache implements the typed, content-addressed filesystem cache
// store of spec.md §4.2: CacheEntry derivation, atomic writes, and
// per-call freshness policy.
//
// Grounded on golang-dep's internal/fs package (RenameWithFallback,
// HasFilepathPrefix) for the temp+rename durability pattern, and on
// source_cache_bolt.go for the idea of a typed, bucketed on-disk store
// keyed by a digest. Directory scans use github.com/karrick/godirwalk (as
// the DOMAIN STACK ledger requires), and the atomic write path is guarded
// additionally by a cross-process github.com/theckman/go-flock advisory
// lock, supplementing the in-process lock map (internal/lockmap) for
// multi-process installs.
package cache

import (
	"path/filepath"
	"strconv"
)

// Bucket names a typed subtree of the cache (spec.md §3, §4.2).
type Bucket string

const (
	BucketWheels      Bucket = "wheels"
	BucketArchives    Bucket = "archives"
	BucketGit         Bucket = "git"
	BucketInterpreter Bucket = "interpreter"
	BucketSimple      Bucket = "simple"
	BucketBuilds      Bucket = "builds"
)

// schemaVersions pins each bucket's on-disk schema version (spec.md §4.2:
// "N is the bucket's schema version; a format-incompatible change bumps
// it, orphaning the old directory"). Bumping an entry here is additive:
// the old `<bucket>-v<N-1>` directory is simply abandoned, never migrated.
var schemaVersions = map[Bucket]int{
	BucketWheels:      2,
	BucketArchives:    1,
	BucketGit:         1,
	BucketInterpreter: 1,
	BucketSimple:      1,
	BucketBuilds:      1,
}

// Entry identifies one cache file: root/<bucket>-vN/<subdir>/<file>.
type Entry struct {
	Bucket Bucket
	Subdir string
	File   string
}

// Path computes the on-disk path for e rooted at root. This performs no I/O.
func (e Entry) Path(root string) string {
	n := schemaVersions[e.Bucket]
	if n == 0 {
		n = 1
	}
	dir := filepath.Join(root, bucketDirName(e.Bucket, n))
	if e.Subdir != "" {
		dir = filepath.Join(dir, e.Subdir)
	}
	return filepath.Join(dir, e.File)
}

// Dir is Path without the trailing file component.
func (e Entry) Dir(root string) string {
	n := schemaVersions[e.Bucket]
	if n == 0 {
		n = 1
	}
	dir := filepath.Join(root, bucketDirName(e.Bucket, n))
	if e.Subdir != "" {
		dir = filepath.Join(dir, e.Subdir)
	}
	return dir
}

func bucketDirName(b Bucket, n int) string {
	return string(b) + "-v" + strconv.Itoa(n)
}
