package resolver

import (
	"fmt"
	"strings"
)

// NoSolutionError is returned when no assignment of versions satisfies
// every constraint (spec.md §4.10, §7 "Resolution" error kind). It names
// the package whose selection failed and the underlying cause. Trail
// grows only when an existing *NoSolutionError is passed back through
// newNoSolutionFromErr; Solve records no requirement chain, so the errors
// it builds carry an empty Trail unless the Provider itself returned a
// *NoSolutionError.
type NoSolutionError struct {
	Package string
	Cause   error
	Trail   []string
}

func (e *NoSolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no solution found: %s: %v", e.Package, e.Cause)
	if len(e.Trail) > 0 {
		b.WriteString("\nderivation:\n")
		for _, step := range e.Trail {
			b.WriteString("  ")
			b.WriteString(step)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (e *NoSolutionError) Unwrap() error { return e.Cause }

func newNoSolution(pkg Package, cause error) *NoSolutionError {
	return &NoSolutionError{Package: pkg.String(), Cause: cause}
}

func newNoSolutionFromErr(pkg Package, err error) *NoSolutionError {
	if ns, ok := err.(*NoSolutionError); ok {
		ns.Trail = append(ns.Trail, pkg.String())
		return ns
	}
	return &NoSolutionError{Package: pkg.String(), Cause: err}
}
