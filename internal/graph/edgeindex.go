package graph

import (
	"strings"

	"github.com/k1ln/synflow-sub000/internal/patch"
)

// edgeIndex answers "what does this node fan out to" in O(out-degree). It is
// keyed by the resolved source id, which after boundary remapping may differ
// from the source the edge was declared with.
type edgeIndex struct {
	bySource map[string][]patch.Edge
}

func newEdgeIndex() *edgeIndex {
	return &edgeIndex{bySource: make(map[string][]patch.Edge)}
}

// insert files the edge under the source, keeping reset edges ahead of the
// rest so a reset arriving together with a trigger always lands first.
// Re-inserting an identical edge is a no-op.
func (x *edgeIndex) insert(source string, e patch.Edge) {
	for _, existing := range x.bySource[source] {
		if existing == e {
			return
		}
	}

	edges := x.bySource[source]
	if strings.Contains(e.TargetHandle, "reset") {
		// Stable: new reset edges go after existing ones, before the rest.
		split := 0
		for split < len(edges) && strings.Contains(edges[split].TargetHandle, "reset") {
			split++
		}
		edges = append(edges[:split], append([]patch.Edge{e}, edges[split:]...)...)
	} else {
		edges = append(edges, e)
	}
	x.bySource[source] = edges
}

func (x *edgeIndex) remove(source string, e patch.Edge) {
	edges := x.bySource[source]
	for i, existing := range edges {
		if existing == e {
			x.bySource[source] = append(edges[:i], edges[i+1:]...)
			if len(x.bySource[source]) == 0 {
				delete(x.bySource, source)
			}
			return
		}
	}
}

// edgesFor returns the node's fan-out list in routing order.
func (x *edgeIndex) edgesFor(source string) []patch.Edge {
	return x.bySource[source]
}

// removeNode drops the node's own fan-out list and every edge that targets
// the node from other lists.
func (x *edgeIndex) removeNode(id string) {
	delete(x.bySource, id)
	for source, edges := range x.bySource {
		kept := edges[:0]
		for _, e := range edges {
			if e.Target != id {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(x.bySource, source)
		} else {
			x.bySource[source] = kept
		}
	}
}
