package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sdboyer/univ/internal/cache"
	"github.com/sdboyer/univ/internal/candidate"
	"github.com/sdboyer/univ/internal/distpkg"
	"github.com/sdboyer/univ/internal/lockgraph"
	"github.com/sdboyer/univ/internal/registry"
	"github.com/sdboyer/univ/internal/resolver"
	"github.com/sdboyer/univ/internal/version"
)

func init() {
	var (
		indexURL       string
		cacheDir       string
		output         string
		requiresPython string
	)
	cmd := &cobra.Command{
		Use:   "resolve REQUIREMENT...",
		Short: "Resolve requirements into a lock file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			reqs := make([]distpkg.Requirement, 0, len(args))
			for _, a := range args {
				r, err := parseRequirement(a)
				if err != nil {
					return err
				}
				reqs = append(reqs, r)
			}

			if cacheDir == "" {
				dir, err := os.UserCacheDir()
				if err != nil {
					return errors.Wrap(err, "resolving default cache directory")
				}
				cacheDir = filepath.Join(dir, "univ")
			}
			store, err := cache.New(cacheDir)
			if err != nil {
				return errors.Wrap(err, "opening cache")
			}

			client := registry.NewClient(http.DefaultClient, store)
			provider := &registryProvider{client: client, indexes: []string{indexURL}}

			result, err := resolver.ForkAndSolve(c.Context(), provider, reqs, resolver.Options{
				Mode:         candidate.Highest,
				MaxAttempts:  4096,
				ExcludeNewer: time.Time{},
			})
			if err != nil {
				return err
			}

			graph := lockgraph.FromForkedResult(result)
			lock := lockgraph.ToLock(graph, requiresPython)
			data, err := lock.Marshal()
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return errors.Wrapf(err, "writing %s", output)
			}
			fmt.Fprintf(c.OutOrStdout(), "resolved %d packages to %s\n", len(lock.Packages), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&indexURL, "index", "https://pypi.org/simple", "package index base URL")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "cache directory (default: OS user cache dir)")
	cmd.Flags().StringVar(&output, "output", "lock.toml", "lock file path to write")
	cmd.Flags().StringVar(&requiresPython, "requires-python", "", "requires-python specifier recorded in the lock")
	argparser.AddCommand(cmd)
}

// parseRequirement accepts the small subset of PEP 508 this command needs
// to drive a resolve from the shell: "name", "name[extra]", and
// "name OP version" for one comparison operator. Anything richer (markers,
// multiple specifiers, direct URLs) belongs to the real front-end's
// parser, out of scope here per spec.md §1.
func parseRequirement(s string) (distpkg.Requirement, error) {
	name, extras := splitExtras(s)
	for _, op := range []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"} {
		if i := indexOf(name, op); i >= 0 {
			specs, err := version.ParseSpecifiers(name[i:])
			if err != nil {
				return distpkg.Requirement{}, errors.Wrapf(err, "parsing requirement %q", s)
			}
			return distpkg.Requirement{
				Name:       name[:i],
				Extras:     extras,
				Specifiers: specs,
				Source:     distpkg.SrcRegistry,
			}, nil
		}
	}
	return distpkg.Requirement{Name: name, Extras: extras, Source: distpkg.SrcRegistry}, nil
}

func splitExtras(s string) (name string, extras []string) {
	start := indexOf(s, "[")
	end := indexOf(s, "]")
	if start < 0 || end < 0 || end < start {
		return s, nil
	}
	name = s[:start]
	for _, e := range splitComma(s[start+1 : end]) {
		extras = append(extras, e)
	}
	return name, extras
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
