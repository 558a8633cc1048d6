package lockgraph

import "github.com/sdboyer/univ/internal/marker"

// Reachability computes, for every node in g, the UniversalMarker under
// which that node is actually reachable from Root via ANY path (spec.md
// §4.9): a worklist fixed-point propagation of
//
//	reach[child] = reach[child] ∨ (reach[parent] ∧ edge.Marker)
//
// over every edge, iterated until no node's marker changes. Root's
// reachability is definitionally True; every other node starts False and
// only grows, mirroring addEdge's own "reachability only ever grows
// toward a safe upper bound" monotonicity.
//
// This also serves as the conflict-marker specialization pass: ANDing a
// dependency edge's own local marker with its source's full accumulated
// reachability (see dependencyFor) folds in every ancestor condition the
// edge previously dropped, and Simplify's conjunct/disjunct dedup then
// collapses any resulting redundancy (e.g. an extra-activation predicate
// repeated by both a node and its parent).
func Reachability(g *Graph) []marker.Universal {
	reach := make([]marker.Universal, len(g.Nodes))
	for i := range reach {
		reach[i] = marker.Universal{Env: marker.False(), Conflict: marker.ConflictFalse()}
	}
	reach[rootIndex] = marker.UniversalTrue()

	outgoing := make([][]Edge, len(g.Nodes))
	for _, e := range g.Edges {
		outgoing[e.From] = append(outgoing[e.From], e)
	}

	queue := []int{rootIndex}
	queued := make([]bool, len(g.Nodes))
	queued[rootIndex] = true

	// Defensive ceiling on total relaxations, the same finite-backstop
	// idiom resolver.Options.MaxAttempts uses against a programming
	// defect turning a fixed point into an infinite loop.
	maxIterations := (len(g.Nodes) + 1) * (len(g.Edges) + 1)
	for iterations := 0; len(queue) > 0 && iterations <= maxIterations; iterations++ {
		i := queue[0]
		queue = queue[1:]
		queued[i] = false

		for _, e := range outgoing[i] {
			contribution := reach[i].And(e.Marker)
			candidate := reach[e.To].Or(contribution).Simplify()
			if candidate.Equal(reach[e.To]) {
				continue
			}
			reach[e.To] = candidate
			if !queued[e.To] {
				queued[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return reach
}
