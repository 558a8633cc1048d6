// Package cachekey derives stable, content-addressed cache bucket keys
// (spec.md §4.1: "digest(key) → hex-string (BLAKE2b-256, lowercase hex, 64
// chars)"). Grounded on golang-dep's hash.go (which folds a sorted set of
// dependency facts into a sha256 digest for memoizing solves) generalized
// to BLAKE2b-256 per spec, and wired to golang.org/x/crypto/blake2b per the
// DOMAIN STACK ledger (SPEC_FULL.md §3).
package cachekey

import (
	"encoding/hex"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Digest hashes an arbitrary ordered sequence of key parts into a
// lowercase, 64-character hex BLAKE2b-256 digest. Parts are hashed with a
// length-prefix-free separator so that ("ab", "c") and ("a", "bc") never
// collide.
func Digest(parts ...string) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only errors on an invalid key length, and we never
		// pass one; a panic here indicates a programming error.
		panic(err)
	}
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Stringer is implemented by canonical URL types so Digest can be fed
// directly from pkgurl.CanonicalUrl / pkgurl.RepositoryUrl without an
// intermediate String() call at every use site.
type Stringer interface {
	String() string
}

// DigestURL derives a cache-bucket digest from a canonical/repository URL.
// Invariant (spec.md §8.2): changing only userinfo or percent-encoding of
// unreserved characters in the input URL leaves this digest unchanged,
// because it is computed from the already-normalized form.
func DigestURL(u Stringer) string {
	return Digest(u.String())
}

// SortedDigest is like Digest but first sorts parts, useful for deriving a
// key from an unordered set (e.g. a set of build requirements) the way
// golang-dep's HashInputs sorts ProjectDep entries before hashing so that
// equivalent manifests always hash identically regardless of declaration
// order.
func SortedDigest(parts []string) string {
	sorted := make([]string, len(parts))
	copy(sorted, parts)
	sort.Strings(sorted)
	return Digest(sorted...)
}
