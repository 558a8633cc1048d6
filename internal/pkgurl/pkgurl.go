// Package pkgurl implements canonical URL normalization for comparison and
// cache-key hashing, never for fetching (spec.md §3 "CanonicalUrl /
// RepositoryUrl", §4.1).
//
// Grounded directly on uv's crates/uv-cache-key/src/canonical_url.rs
// (original_source), translated to Go idiom the way golang-dep's deduce.go
// normalizes import-path-shaped URLs (lower-casing known hosts, stripping
// well-known suffixes) — both operate on net/url.URL values and treat the
// result as opaque, comparison-only data.
package pkgurl

import (
	"net/url"
	"path"
	"strings"
)

// CanonicalUrl is a normalized URL suitable only for comparison/hashing.
type CanonicalUrl struct {
	raw string // pre-serialized, normalized string form
}

func (c CanonicalUrl) String() string { return c.raw }
func (c CanonicalUrl) Equal(o CanonicalUrl) bool { return c.raw == o.raw }

// Canonicalize normalizes u per spec.md §4.1:
//   - strip credentials
//   - drop trailing slash
//   - for github.com only, lowercase scheme+path
//   - strip a `.git` suffix (before `@ref` if present), case-insensitively
//   - percent-decode the path, but never decode `%2F` (would collide `a%2Fb`
//     with `a/b`)
//
// Opaque (non-hierarchical) URLs are passed through unchanged.
func Canonicalize(raw string) (CanonicalUrl, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return CanonicalUrl{}, err
	}
	if u.Opaque != "" {
		return CanonicalUrl{raw: u.String()}, nil
	}

	u.User = nil

	// Work on the escaped path: url.Parse has already decoded u.Path,
	// including any %2F, so only the escaped form still tells them apart.
	p := percentDecodePathSegments(u.EscapedPath())
	if strings.HasSuffix(p, "/") && p != "/" {
		p = strings.TrimSuffix(p, "/")
	}

	if strings.EqualFold(u.Host, "github.com") {
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		p = strings.ToLower(p)
	}

	p = stripDotGitSuffix(p)
	if decoded, err := url.PathUnescape(p); err == nil {
		u.Path, u.RawPath = decoded, p
	}

	return CanonicalUrl{raw: u.String()}, nil
}

// stripDotGitSuffix removes a trailing ".git" (case-insensitive) from the
// path, honoring a `@ref` suffix if present (e.g. "/foo.git@v1" -> "/foo@v1").
func stripDotGitSuffix(p string) string {
	prefix, suffix, hasRef := strings.Cut(p, "@")
	if hasRef {
		if trimmed, ok := trimDotGit(prefix); ok {
			return trimmed + "@" + suffix
		}
		return p
	}
	if trimmed, ok := trimDotGit(p); ok {
		return trimmed
	}
	return p
}

func trimDotGit(p string) (string, bool) {
	ext := path.Ext(p)
	if strings.EqualFold(ext, ".git") {
		return strings.TrimSuffix(p, p[len(p)-len(ext):]), true
	}
	return p, false
}

// percentDecodePathSegments decodes percent-escapes within each path segment
// independently, so a literal encoded slash (%2F) is never turned into a
// path separator.
func percentDecodePathSegments(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		if decoded, err := url.PathUnescape(strings.ReplaceAll(seg, "%2F", "%252F")); err == nil {
			segments[i] = strings.ReplaceAll(decoded, "%2F", "%2F")
		}
	}
	return strings.Join(segments, "/")
}

// RepositoryUrl additionally drops the `@ref`, fragment, and query — it
// identifies the underlying repository, abstracting away the specific
// commit/branch/subdirectory (spec.md §3).
type RepositoryUrl struct {
	raw string
}

func (r RepositoryUrl) String() string          { return r.raw }
func (r RepositoryUrl) Equal(o RepositoryUrl) bool { return r.raw == o.raw }

// Repository normalizes raw into a RepositoryUrl.
func Repository(raw string) (RepositoryUrl, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return RepositoryUrl{}, err
	}
	canon, err := Canonicalize(raw)
	if err != nil {
		return RepositoryUrl{}, err
	}
	cu, err := url.Parse(canon.raw)
	if err != nil {
		return RepositoryUrl{}, err
	}

	if strings.HasPrefix(cu.Scheme, "git+") || isGitLikeHost(u) {
		if prefix, _, ok := strings.Cut(cu.Path, "@"); ok {
			cu.Path = prefix
		}
	}
	cu.Fragment = ""
	cu.RawQuery = ""
	return RepositoryUrl{raw: cu.String()}, nil
}

func isGitLikeHost(u *url.URL) bool {
	return strings.EqualFold(u.Host, "github.com") || strings.EqualFold(u.Host, "gitlab.com") || strings.EqualFold(u.Host, "bitbucket.org")
}
