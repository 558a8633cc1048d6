// Package distdb is the distribution database orchestrator of spec.md
// §4.7: given a Dist, return a locally usable wheel (from cache, or by
// downloading, or by building from source), dispatching on the Dist's
// variant. Grounded on golang-dep's SourceManager (sm.go) — the
// corresponding "everything funnels through one coordinating object with
// its own cache and lock map" component in the teacher.
package distdb

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/sdboyer/univ/internal/buildpipeline"
	"github.com/sdboyer/univ/internal/cache"
	"github.com/sdboyer/univ/internal/cachekey"
	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/gitsource"
	"github.com/sdboyer/univ/internal/lockmap"
	"github.com/sdboyer/univ/internal/registry"
)

// WheelKind discriminates the three shapes get_or_build_wheel may return
// (spec.md §4.7: "one of {Disk(path), Unzipped(dir), Built(path)}").
type WheelKind int

const (
	Disk WheelKind = iota
	Unzipped
	Built
)

// LocalWheel is the result of get_or_build_wheel.
type LocalWheel struct {
	Kind WheelKind
	Path string
}

// Metadata is the parsed core metadata of a distribution, opaque to
// distdb itself (spec.md §4.7 scopes metadata parsing to the caller of
// get_or_build_wheel_metadata; distdb only plumbs bytes through).
type Metadata struct {
	Raw []byte
}

// PreciseUrl pins exactly what a git/path source resolved to at build
// time, e.g. a resolved commit SHA, so the resolver can record what it
// actually built rather than the symbolic reference it started from
// (spec.md §4.7).
type PreciseUrl struct {
	URL string
}

// NoBuildError is returned when a required source build is disallowed by
// policy (spec.md §4.7 "no_build early-fail").
type NoBuildError struct {
	Name string
}

func (e *NoBuildError) Error() string {
	return "building from source is disabled for " + e.Name + " (no_build policy)"
}

// DB is the distribution database orchestrator.
type DB struct {
	Cache    *cache.Store
	Registry *registry.Client
	Git      *gitsource.Source
	Builds   *buildpipeline.Pipeline
	Locks    *lockmap.Group

	// Policy gates whether source builds are permitted at all, the
	// "no_build" fast-fail switch (spec.md §4.7) distinct from
	// distpkg.BinaryPolicy's wheel-vs-sdist candidate-selection question.
	NoBuild bool

	// BuildEnvironment resolves a fresh build-isolation environment for a
	// source tree's declared build-system requirements, closing the
	// recursive loop back into the resolver (spec.md §4.6).
	BuildEnvironment func(ctx context.Context, tree buildpipeline.SourceTree, stack buildpipeline.Stack) (buildpipeline.Environment, error)
}

// GetOrBuildWheel dispatches on dist.Kind, returning a usable local wheel
// (spec.md §4.7 dispatch table).
func (db *DB) GetOrBuildWheel(ctx context.Context, dist distpkg.Dist) (LocalWheel, error) {
	key := dist.VersionId(cachekey.Digest).String()
	v, _, err := db.Locks.Do(key, func() (interface{}, error) {
		return db.getOrBuildWheelLocked(ctx, dist)
	})
	if err != nil {
		db.Locks.Forget(key)
		return LocalWheel{}, err
	}
	return v.(LocalWheel), nil
}

func (db *DB) getOrBuildWheelLocked(ctx context.Context, dist distpkg.Dist) (LocalWheel, error) {
	switch dist.Kind {
	case distpkg.BuiltRegistry:
		return db.fetchRegistryWheel(ctx, dist)
	case distpkg.BuiltDirectUrl:
		return db.fetchURLWheel(ctx, dist)
	case distpkg.BuiltPath:
		return LocalWheel{Kind: Disk, Path: dist.Path}, nil
	case distpkg.SourceRegistry, distpkg.SourceDirectUrl, distpkg.SourcePath, distpkg.SourceDirectory:
		return db.buildFromLocalOrFetchedSource(ctx, dist)
	case distpkg.SourceGit:
		return db.buildFromGit(ctx, dist, nil)
	default:
		return LocalWheel{}, errors.Errorf("unrecognized Dist kind %d", dist.Kind)
	}
}

func (db *DB) fetchRegistryWheel(ctx context.Context, dist distpkg.Dist) (LocalWheel, error) {
	entry := db.Cache.Entry(cache.BucketWheels, dist.IndexURL, dist.File)
	if _, ok, err := db.Cache.Read(entry, cache.Fresh); err != nil {
		return LocalWheel{}, err
	} else if ok {
		return LocalWheel{Kind: Disk, Path: entry.Path(db.Cache.Root)}, nil
	}

	body, err := db.Registry.StreamExternal(ctx, dist.FileURL)
	if err != nil {
		return LocalWheel{}, errors.Wrapf(err, "downloading %s", dist.FileURL)
	}
	defer body.Close()
	if err := db.Cache.WriteAtomicStream(entry, body); err != nil {
		return LocalWheel{}, err
	}
	return LocalWheel{Kind: Disk, Path: entry.Path(db.Cache.Root)}, nil
}

func (db *DB) fetchURLWheel(ctx context.Context, dist distpkg.Dist) (LocalWheel, error) {
	entry := db.Cache.Entry(cache.BucketWheels, cachekey.Digest(dist.URL), lastURLSegment(dist.URL))
	if _, ok, err := db.Cache.Read(entry, cache.Fresh); err != nil {
		return LocalWheel{}, err
	} else if ok {
		return LocalWheel{Kind: Disk, Path: entry.Path(db.Cache.Root)}, nil
	}

	body, err := db.Registry.StreamExternal(ctx, dist.URL)
	if err != nil {
		return LocalWheel{}, errors.Wrapf(err, "downloading %s", dist.URL)
	}
	defer body.Close()
	if err := db.Cache.WriteAtomicStream(entry, body); err != nil {
		return LocalWheel{}, err
	}
	return LocalWheel{Kind: Disk, Path: entry.Path(db.Cache.Root)}, nil
}

func (db *DB) buildFromLocalOrFetchedSource(ctx context.Context, dist distpkg.Dist) (LocalWheel, error) {
	if db.NoBuild {
		return LocalWheel{}, &NoBuildError{Name: dist.Name}
	}
	tree := buildpipeline.SourceTree{Path: dist.Path, Dist: dist}
	return db.runBuild(ctx, tree, nil)
}

func (db *DB) buildFromGit(ctx context.Context, dist distpkg.Dist, stack buildpipeline.Stack) (LocalWheel, error) {
	if db.NoBuild {
		return LocalWheel{}, &NoBuildError{Name: dist.Name}
	}
	resolved, err := db.Git.ResolveReference(ctx, dist.GitURL, dist.Reference)
	if err != nil {
		return LocalWheel{}, err
	}
	dist.PreciseOID = resolved.PreciseOID

	repo, err := db.Git.Checkout(ctx, resolved)
	if err != nil {
		return LocalWheel{}, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return LocalWheel{}, errors.Wrap(err, "opening worktree after checkout")
	}
	tree := buildpipeline.SourceTree{Path: wt.Filesystem.Root(), Dist: dist}
	return db.runBuild(ctx, tree, stack)
}

func (db *DB) runBuild(ctx context.Context, tree buildpipeline.SourceTree, stack buildpipeline.Stack) (LocalWheel, error) {
	if db.BuildEnvironment == nil {
		return LocalWheel{}, errors.New("distdb: BuildEnvironment callback is required to build from source")
	}
	env, err := db.BuildEnvironment(ctx, tree, stack)
	if err != nil {
		return LocalWheel{}, err
	}
	cacheSubdir := cachekey.Digest(tree.Dist.Name, tree.Dist.Version.String(), tree.Path)
	result, err := db.Builds.Build(ctx, tree, env, buildpipeline.HookBuildWheel, cacheSubdir)
	if err != nil {
		return LocalWheel{}, err
	}
	return LocalWheel{Kind: Built, Path: result.WheelEntry.Path(db.Cache.Root)}, nil
}

func lastURLSegment(u string) string {
	if i := strings.LastIndexByte(u, '/'); i >= 0 {
		return u[i+1:]
	}
	return u
}
