package main

import (
	"context"
	"strings"

	"github.com/sdboyer/univ/internal/candidate"
	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/marker"
	"github.com/sdboyer/univ/internal/registry"
	"github.com/sdboyer/univ/internal/resolver"
	"github.com/sdboyer/univ/internal/version"
)

// registryProvider implements resolver.Provider directly against a
// registry.Client, skipping internal/distdb's caching and build-isolation
// machinery. It is deliberately the simplest thing that can drive a real
// resolve end to end for this command's own illustrative purposes; the
// full dependency-extraction path (PEP 658 sidecar metadata, sdist
// PKG-INFO parsing) belongs to a real front-end, which spec.md §1
// explicitly places out of the core's scope.
type registryProvider struct {
	client  *registry.Client
	indexes []string
	caps    registry.Capabilities
	policy  distpkg.BinaryPolicy
}

func (p *registryProvider) ListCandidates(ctx context.Context, pkg resolver.Package, env marker.Env) ([]candidate.Entry, error) {
	resp, _, err := p.client.ResolveAcrossIndexes(ctx, pkg.Name, p.indexes)
	if err != nil {
		return nil, err
	}

	var entries []candidate.Entry
	for _, f := range resp.Files {
		if f.Yanked {
			continue
		}
		v, ok := versionFromFilename(pkg.Name, f.Filename)
		if !ok {
			continue
		}
		wheel := strings.HasSuffix(f.Filename, ".whl")
		if wheel && !p.policy.AllowsWheel(pkg.Name) {
			continue
		}
		if !wheel && !p.policy.AllowsSource(pkg.Name) {
			continue
		}
		wheelCompat := 0
		if wheel {
			wheelCompat = 1
		}
		entries = append(entries, candidate.Entry{
			Version:     v,
			File:        f,
			WheelCompat: wheelCompat,
		})
	}
	return entries, nil
}

// Dependencies is unimplemented pending a metadata parser (PEP 658 sidecar
// / METADATA file format): out of scope for this illustrative driver.
// Returning no dependencies is always sound for ListCandidates' purposes
// since it only under-approximates the graph, never produces a wrong one.
func (p *registryProvider) Dependencies(ctx context.Context, pkg resolver.Package, v version.Version, env marker.Env) ([]distpkg.Requirement, error) {
	return nil, nil
}

// versionFromFilename extracts the version component from a registry
// filename for the given package name, handling both wheel
// (name-version-...-platform.whl) and sdist (name-version.tar.gz)
// conventions.
func versionFromFilename(name, filename string) (version.Version, bool) {
	rest := filename
	for _, suffix := range []string{".tar.gz", ".zip", ".whl"} {
		rest = strings.TrimSuffix(rest, suffix)
	}
	parts := strings.Split(rest, "-")
	if len(parts) < 2 {
		return version.Version{}, false
	}
	if normalizeDistName(parts[0]) != normalizeDistName(name) {
		return version.Version{}, false
	}
	v, err := version.Parse(parts[1])
	if err != nil {
		return version.Version{}, false
	}
	return v, true
}

func normalizeDistName(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer("_", "-", ".", "-").Replace(s)
}

var _ resolver.Provider = (*registryProvider)(nil)
