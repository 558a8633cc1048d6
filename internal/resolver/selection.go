package resolver

// selEntry records one selected package on the selection stack, along
// with the versionQueue that produced it so backtracking can ask for the
// next candidate (spec.md §4.10; grounded on golang-dep's selection.go).
type selEntry struct {
	pkg     Package
	nodeIdx int
	vq      *versionQueue
}

// selection is a stack of currently selected packages, mirroring
// golang-dep's `selection` type (a dumb container the solver drives).
type selection struct {
	stack []selEntry
}

func (s *selection) push(e selEntry) { s.stack = append(s.stack, e) }

func (s *selection) pop() (selEntry, bool) {
	if len(s.stack) == 0 {
		return selEntry{}, false
	}
	e := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return e, true
}

// indexOf returns the graph node index pkg is currently selected at, or
// -1 if pkg has no current selection.
func (s *selection) indexOf(pkg Package) int {
	for _, e := range s.stack {
		if e.pkg == pkg {
			return e.nodeIdx
		}
	}
	return -1
}
