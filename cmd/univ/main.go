// Command univ is a thin illustrative driver over the resolver core: it
// parses no pyproject/workspace schema and does none of the real
// front-end's job (spec.md §1 Non-goals place flag parsing and schema
// discovery outside the core's scope). It exists only so this module has
// a buildable entry point, the way golang-dep keeps cmd/dep as a thin
// shell over the gps solver. Grounded on datawire-ocibuild's main.go:
// a package-level *cobra.Command, subcommands registered via init(), and
// ExecuteContext from main.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var argparser = &cobra.Command{
	Use:   "univ",
	Short: "Resolve and lock dependencies for a universal package manifest",

	SilenceErrors: true,
	SilenceUsage:  true,
}

func main() {
	ctx := context.Background()
	if err := argparser.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(argparser.ErrOrStderr(), "univ: error: %v\n", err)
		os.Exit(1)
	}
}
