package resolver

import (
	"context"

	"github.com/sdboyer/univ/internal/candidate"
	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/version"
)

// versionQueue lazily unspools a package's ranked candidate list,
// advancing past candidates eliminated by backtracking. Grounded on
// golang-dep's versionQueue (version_queue.go): `current`/`advance`,
// generalized to rank via internal/candidate instead of a flat semver
// list.
type versionQueue struct {
	pkg        Package
	candidates []candidate.Entry
	pos        int
	// source is pkg's recorded direct-source requirement (see
	// unselectedEntry.source), carried through so current() can stamp the
	// selected node's Requirement with the real source kind instead of
	// always fabricating a registry one.
	source distpkg.Requirement
}

func newVersionQueue(ctx context.Context, provider Provider, pkg Package, specs version.Specifiers, source distpkg.Requirement, opts Options) (*versionQueue, error) {
	entries, err := provider.ListCandidates(ctx, pkg, opts.Environment)
	if err != nil {
		return nil, err
	}
	if !opts.ExcludeNewer.IsZero() {
		filtered := entries[:0:0]
		for _, e := range entries {
			if e.File.UploadTime.IsZero() || !e.File.UploadTime.After(opts.ExcludeNewer) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	sel := candidate.Selector{Mode: opts.Mode, Prerelease: opts.Prerelease, Compatible: specs}
	ranked := sel.Rank(entries)

	return &versionQueue{pkg: pkg, candidates: ranked, source: source}, nil
}

func (vq *versionQueue) empty() bool { return vq.pos >= len(vq.candidates) }

// current returns the presently-selected candidate's version and a
// Requirement describing how it would be fetched. Every non-virtual
// package flows through this same queue regardless of source kind; a
// git/url/path root requirement's source (recorded on vq.source) is
// carried onto the result instead of being overwritten, so it survives
// into the selected node and, from there, into the serialized lock.
func (vq *versionQueue) current() (version.Version, distpkg.Requirement) {
	e := vq.candidates[vq.pos]
	req := distpkg.Requirement{
		Name:       vq.pkg.Name,
		Source:     distpkg.SrcRegistry,
		Specifiers: version.Specifiers{{Op: version.OpEq, Version: e.Version}},
	}
	switch vq.source.Source {
	case distpkg.SrcUrl:
		req.Source = distpkg.SrcUrl
		req.URL = vq.source.URL
	case distpkg.SrcPath:
		req.Source = distpkg.SrcPath
		req.Path = vq.source.Path
		req.Editable = vq.source.Editable
	case distpkg.SrcDirectory:
		req.Source = distpkg.SrcDirectory
		req.Path = vq.source.Path
		req.Editable = vq.source.Editable
	case distpkg.SrcGit:
		req.Source = distpkg.SrcGit
		req.GitURL = vq.source.GitURL
		req.GitReference = vq.source.GitReference
	}
	return e.Version, req
}

// advance moves past the current candidate (it was eliminated by a
// conflict discovered downstream), returning false once exhausted.
func (vq *versionQueue) advance() bool {
	vq.pos++
	return !vq.empty()
}
