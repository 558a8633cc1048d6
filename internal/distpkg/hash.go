// Package distpkg defines the Dist sum type, Requirement, and the stable
// distribution/version identifiers used as cache and single-flight keys
// (spec.md §3 "Distribution (Dist)"). Grounded on golang-dep's
// ProjectIdentifier / LockedProject / maybe_source.go, which plays the
// analogous "abstract requirement resolves to one of several concrete
// source shapes" role for Go import paths.
package distpkg

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// HashAlgorithm is one of the algorithms accepted in a `url#alg=digest`
// fragment or a simple-index `hashes{}` object (spec.md §6).
type HashAlgorithm string

const (
	MD5    HashAlgorithm = "md5"
	SHA256 HashAlgorithm = "sha256"
	SHA384 HashAlgorithm = "sha384"
	SHA512 HashAlgorithm = "sha512"
)

// Hash is an {algorithm, digest} pair.
type Hash struct {
	Algorithm HashAlgorithm
	Digest    string
}

func (h Hash) String() string { return string(h.Algorithm) + ":" + h.Digest }

// ParseHashFragment parses the `#sha256=...` style fragment of a URL,
// accepting exactly one of md5|sha256|sha384|sha512 (spec.md §6).
func ParseHashFragment(fragment string) (Hash, error) {
	alg, digest, ok := strings.Cut(fragment, "=")
	if !ok {
		return Hash{}, errors.Errorf("malformed hash fragment %q: want alg=digest", fragment)
	}
	switch HashAlgorithm(alg) {
	case MD5, SHA256, SHA384, SHA512:
		return Hash{Algorithm: HashAlgorithm(alg), Digest: digest}, nil
	default:
		return Hash{}, errors.Errorf("unsupported hash algorithm %q in fragment %q", alg, fragment)
	}
}

// RequireSHA256 reports whether hashes contains at least one sha256 entry,
// the minimum requirement for a remote artifact record in the Lock format
// (spec.md §6: "at least one sha256 is required per remote artifact").
func RequireSHA256(hashes []Hash) error {
	for _, h := range hashes {
		if h.Algorithm == SHA256 {
			return nil
		}
	}
	return errors.Errorf("at least one sha256 hash is required, got %v", hashes)
}

// DistId is the stable distribution identifier: (name, version-or-url-digest).
type DistId struct {
	Name   string
	Suffix string // version string, or a URL digest for non-registry sources
}

func (d DistId) String() string { return fmt.Sprintf("%s@%s", d.Name, d.Suffix) }

// VersionId extends DistId with a file digest for registry artifacts,
// giving every concrete downloadable file its own cache/single-flight key.
type VersionId struct {
	DistId
	FileDigest string
}

func (v VersionId) String() string {
	if v.FileDigest == "" {
		return v.DistId.String()
	}
	return v.DistId.String() + "#" + v.FileDigest
}
