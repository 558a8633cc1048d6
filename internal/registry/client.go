// Package registry implements the simple-index / metadata / archive
// streaming client of spec.md §4.3. Grounded on golang-dep's remote.go /
// vcs_repo.go pattern of thin wrappers around blocking external
// operations with retry and typed errors, adapted to net/http. Request
// coalescing uses golang.org/x/sync/singleflight per the DOMAIN STACK
// ledger (SPEC_FULL.md §3), matching datawire-ocibuild's and
// google-oss-rebuild's golang.org/x/sync dependency.
package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/sdboyer/univ/internal/cache"
	"github.com/sdboyer/univ/internal/distpkg"
)

// IndexStrategy selects how multiple configured indexes are consulted
// (spec.md §4.3).
type IndexStrategy int

const (
	// FirstIndex stops at the first index that yields any file for the
	// name. Default; matches dependency-confusion-safe behavior (spec.md
	// §8 scenario S3).
	FirstIndex IndexStrategy = iota
	// UnsafeFirstMatch considers all indexes but serializes by
	// configuration order, never reconsidering versions rejected on an
	// earlier index.
	UnsafeFirstMatch
	// UnsafeBestMatch considers all indexes and picks the best version
	// across their union.
	UnsafeBestMatch
)

// File describes one entry in a simple-index response (spec.md §6).
type File struct {
	Filename       string
	URL            string
	Hashes         []distpkg.Hash
	RequiresPython string
	Yanked         bool
	CoreMetadata   bool // PEP 658 sidecar advertised
	Size           int64
	UploadTime     time.Time
}

// SimpleResponse is the result of querying one index for one package name.
type SimpleResponse struct {
	Found bool
	Files []File
}

// Capabilities records what an index advertises, gating prefetch behavior
// (spec.md §4.8).
type Capabilities struct {
	RangeRequests bool
	PEP658        bool
}

// Doer is the subset of *http.Client the registry client needs; tests
// substitute a fake.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the registry HTTP client. One Client may be shared by many
// concurrent resolver tasks: simple-index fetches for the same URL are
// coalesced via singleflight (spec.md §4.3, §8.5).
type Client struct {
	HTTP     Doer
	Cache    *cache.Store
	Strategy IndexStrategy

	group singleflight.Group

	// RetryBackoff and MaxAttempts control the transient-failure retry
	// policy (spec.md §7 "Transient I/O").
	RetryBackoff func(attempt int) time.Duration
	MaxAttempts  int
}

// NewClient constructs a Client with the teacher-style defaults: bounded
// exponential backoff, FirstIndex strategy.
func NewClient(http Doer, store *cache.Store) *Client {
	return &Client{
		HTTP:        http,
		Cache:       store,
		Strategy:    FirstIndex,
		MaxAttempts: 3,
		RetryBackoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
		},
	}
}

// Simple fetches and parses the simple-index page for name at index,
// honoring HTTP caching via conditional requests and coalescing concurrent
// duplicate requests for the same URL (spec.md §4.3, §5, §8.5).
//
// A 404 is reported as Found=false, not an error — FirstIndex relies on
// this to fall through to the next configured index (spec.md §4.3, §7).
func (c *Client) Simple(ctx context.Context, name, indexURL string) (SimpleResponse, error) {
	key := indexURL + "|" + name
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetchSimple(ctx, name, indexURL)
	})
	if err != nil {
		return SimpleResponse{}, err
	}
	return v.(SimpleResponse), nil
}

func (c *Client) fetchSimple(ctx context.Context, name, indexURL string) (SimpleResponse, error) {
	url := strings.TrimSuffix(indexURL, "/") + "/" + name + "/"

	entry := c.Cache.Entry(cache.BucketSimple, digestSegment(indexURL), name+".json")
	valEntry := validatorsEntry(entry)
	cached, ok, err := c.Cache.Read(entry, cache.NeedsRevalidation)
	if err != nil {
		return SimpleResponse{}, err
	}

	var validators simpleValidators
	if ok {
		if raw, vok, verr := c.Cache.Read(valEntry, cache.Fresh); verr == nil && vok {
			// Best effort: a missing or corrupt sidecar just means no
			// conditional headers get sent, falling back to a full refetch.
			_ = json.Unmarshal(raw, &validators)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return SimpleResponse{}, errors.Wrapf(err, "building request for %s", url)
	}
	req.Header.Set("Accept", "application/vnd.pypi.simple.v1+json, text/html;q=0.5")
	if validators.ETag != "" {
		req.Header.Set("If-None-Match", validators.ETag)
	}
	if validators.LastModified != "" {
		req.Header.Set("If-Modified-Since", validators.LastModified)
	}

	resp, err := c.doWithRetry(req)
	if err != nil {
		return SimpleResponse{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return SimpleResponse{Found: false}, nil
	case resp.StatusCode == http.StatusNotModified && ok:
		return parseSimpleJSON(name, cached)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return SimpleResponse{}, errors.Errorf("credentials required for index %s (status %d)", indexURL, resp.StatusCode)
	case resp.StatusCode >= 500:
		return SimpleResponse{}, errors.Errorf("transient index error for %s: status %d", url, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return SimpleResponse{}, errors.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SimpleResponse{}, errors.Wrapf(err, "reading simple-index body for %s", url)
	}
	if err := c.Cache.WriteAtomic(entry, body); err != nil {
		return SimpleResponse{}, err
	}
	if err := c.writeValidators(valEntry, resp); err != nil {
		return SimpleResponse{}, err
	}
	return parseSimpleJSON(name, body)
}

// simpleValidators are the HTTP caching validators returned alongside a
// simple-index response, persisted next to the cached body so a later
// revalidation can round-trip If-None-Match / If-Modified-Since into a 304
// (spec.md §4.3, §6).
type simpleValidators struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// validatorsEntry names the sidecar cache entry that stores entry's
// validators.
func validatorsEntry(entry cache.Entry) cache.Entry {
	return cache.Entry{Bucket: entry.Bucket, Subdir: entry.Subdir, File: entry.File + ".validators"}
}

// writeValidators persists resp's ETag/Last-Modified response headers,
// if any, so the next fetchSimple call can send them back as conditional
// request headers. A response with neither header writes nothing, leaving
// any stale sidecar in place is harmless since it is only ever consulted
// alongside a body written in the same call.
func (c *Client) writeValidators(valEntry cache.Entry, resp *http.Response) error {
	v := simpleValidators{ETag: resp.Header.Get("ETag"), LastModified: resp.Header.Get("Last-Modified")}
	if v.ETag == "" && v.LastModified == "" {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding simple-index cache validators")
	}
	return c.Cache.WriteAtomic(valEntry, raw)
}

func digestSegment(s string) string {
	// Directory-safe segment; full BLAKE2b digesting lives in
	// internal/cachekey and internal/distdb where the URL's canonical form
	// is already available — here we only need a filesystem-legal subdir.
	r := strings.NewReplacer("/", "_", ":", "_", "?", "_")
	return r.Replace(s)
}

func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := c.HTTP.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.Errorf("server error: status %d", resp.StatusCode)
			resp.Body.Close()
		}
		if attempt < attempts-1 && c.RetryBackoff != nil {
			time.Sleep(c.RetryBackoff(attempt + 1))
		}
	}
	return nil, errors.Wrapf(lastErr, "request to %s failed after %d attempts", req.URL, attempts)
}

// simpleJSONFile mirrors the PEP 691 JSON file object.
type simpleJSONFile struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	Hashes         map[string]string `json:"hashes"`
	RequiresPython string            `json:"requires-python"`
	Yanked         json.RawMessage   `json:"yanked"`
	CoreMetadata   json.RawMessage   `json:"core-metadata"`
	Size           int64             `json:"size"`
	UploadTime     string            `json:"upload-time"`
}

type simpleJSONResponse struct {
	Files []simpleJSONFile `json:"files"`
}

// parseSimpleJSON parses the PEP 691 JSON form. Files whose filename or URL
// is missing are skipped with no hard failure (spec.md §6: "fatal for that
// file only"); a file whose requires-python fails strict parsing still
// passes through the lenient parser (here: we just keep the raw string,
// since PEP 440 specifier parsing of requires-python happens downstream in
// internal/candidate where it is evaluated against an interpreter version).
func parseSimpleJSON(name string, body []byte) (SimpleResponse, error) {
	var raw simpleJSONResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return SimpleResponse{}, errors.Wrapf(err, "parsing simple-index JSON for %s", name)
	}

	files := make([]File, 0, len(raw.Files))
	for _, rf := range raw.Files {
		if rf.Filename == "" || rf.URL == "" {
			continue
		}
		f := File{
			Filename:       rf.Filename,
			URL:            rf.URL,
			RequiresPython: rf.RequiresPython,
			Size:           rf.Size,
		}
		for alg, digest := range rf.Hashes {
			switch distpkg.HashAlgorithm(alg) {
			case distpkg.MD5, distpkg.SHA256, distpkg.SHA384, distpkg.SHA512:
				f.Hashes = append(f.Hashes, distpkg.Hash{Algorithm: distpkg.HashAlgorithm(alg), Digest: digest})
			}
		}
		if len(rf.Yanked) > 0 {
			f.Yanked = string(rf.Yanked) != "false"
		}
		if len(rf.CoreMetadata) > 0 {
			f.CoreMetadata = string(rf.CoreMetadata) != "false"
		}
		if rf.UploadTime != "" {
			if t, err := time.Parse(time.RFC3339, rf.UploadTime); err == nil {
				f.UploadTime = t
			}
		}
		files = append(files, f)
	}

	// Ordering returned to the resolver is by filename ascending (spec.md
	// §4.3, §5: a determinism precondition for candidate selection).
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })

	return SimpleResponse{Found: len(files) > 0, Files: files}, nil
}

// ResolveAcrossIndexes applies the configured IndexStrategy across a list
// of index URLs (spec.md §4.3, §8 scenario S3).
func (c *Client) ResolveAcrossIndexes(ctx context.Context, name string, indexes []string) (SimpleResponse, string, error) {
	switch c.Strategy {
	case FirstIndex:
		for _, idx := range indexes {
			resp, err := c.Simple(ctx, name, idx)
			if err != nil {
				return SimpleResponse{}, "", err
			}
			if resp.Found {
				return resp, idx, nil
			}
		}
		return SimpleResponse{}, "", nil
	case UnsafeFirstMatch:
		// Unlike FirstIndex, every configured index is queried rather than
		// stopping at the first hit; unlike UnsafeBestMatch, files are
		// appended in configuration order rather than re-sorted, and a
		// filename already seen from an earlier index is never replaced by
		// a later index's file of the same name (the "unsafe" half of the
		// name: a malicious later index can still add files, just never
		// override an earlier index's own).
		var merged []File
		var firstIdx string
		seen := map[string]bool{}
		for _, idx := range indexes {
			resp, err := c.Simple(ctx, name, idx)
			if err != nil {
				return SimpleResponse{}, "", err
			}
			if !resp.Found {
				continue
			}
			if firstIdx == "" {
				firstIdx = idx
			}
			for _, f := range resp.Files {
				if seen[f.Filename] {
					continue
				}
				seen[f.Filename] = true
				merged = append(merged, f)
			}
		}
		if firstIdx == "" {
			return SimpleResponse{}, "", nil
		}
		return SimpleResponse{Found: true, Files: merged}, firstIdx, nil
	case UnsafeBestMatch:
		var best SimpleResponse
		var bestIdx string
		for _, idx := range indexes {
			resp, err := c.Simple(ctx, name, idx)
			if err != nil {
				return SimpleResponse{}, "", err
			}
			if !resp.Found {
				continue
			}
			merged := append(append([]File{}, best.Files...), resp.Files...)
			sort.Slice(merged, func(i, j int) bool { return merged[i].Filename < merged[j].Filename })
			best = SimpleResponse{Found: true, Files: merged}
			bestIdx = idx
		}
		return best, bestIdx, nil
	default:
		return SimpleResponse{}, "", errors.Errorf("unknown index strategy %d", c.Strategy)
	}
}

// StreamExternal streams a file body for unzip-on-the-fly (spec.md §4.3).
func (c *Client) StreamExternal(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building stream request for %s", url)
	}
	resp, err := c.doWithRetry(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, errors.Errorf("unexpected status %d streaming %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}

// WheelMetadata fetches core metadata for a built wheel, preferring a PEP
// 658 sidecar, then an HTTP range request into the wheel, then a full
// download as a last resort (spec.md §4.3). The bytes are returned
// unparsed: the sidecar path yields the METADATA file itself, the range
// path yields the last 64 KiB of the wheel (the whole file when smaller),
// and the full-download path yields the whole wheel archive; neither of
// the last two extracts the METADATA member.
func (c *Client) WheelMetadata(ctx context.Context, f File, caps Capabilities) ([]byte, error) {
	if f.CoreMetadata && caps.PEP658 {
		data, err := c.fetchSidecar(ctx, f)
		if err == nil {
			return data, nil
		}
		// Truncated/bad sidecar: fall through to the next strategy; the
		// sidecar response is not quarantined (spec.md §9 open question #2).
	}
	if caps.RangeRequests {
		data, err := c.fetchByRange(ctx, f)
		if err == nil {
			return data, nil
		}
	}
	return c.fetchFullThenExtractMetadata(ctx, f)
}

func (c *Client) fetchSidecar(ctx context.Context, f File) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL+".metadata", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("sidecar fetch for %s returned status %d", f.URL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) fetchByRange(ctx context.Context, f File) ([]byte, error) {
	// A real implementation parses the ZIP central directory to find the
	// METADATA member's byte range; that parsing lives with the wheel
	// format reader, out of this client's concern. Here we issue a single
	// range request for the tail of the file, where wheels' central
	// directory conventionally lives, and return those bytes as they are
	// whenever the server answers 206; nothing checks that they contain
	// METADATA.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, err
	}
	tail := int64(65536)
	if f.Size > 0 && f.Size < tail {
		tail = f.Size
	}
	req.Header.Set("Range", "bytes=-"+strconv.FormatInt(tail, 10))
	resp, err := c.doWithRetry(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return nil, errors.Errorf("range request for %s returned status %d", f.URL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) fetchFullThenExtractMetadata(ctx context.Context, f File) ([]byte, error) {
	body, err := c.StreamExternal(ctx, f.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}
