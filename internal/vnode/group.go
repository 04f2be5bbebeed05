package vnode

import (
	"github.com/k1ln/synflow-sub000/internal/patch"
)

// Group is the runtime instance of an expanded template. It carries no
// primitive of its own; its job is to remember the namespaced internals so
// the graph manager can splice external edges across the Input/Output
// boundary markers.
type Group struct {
	*Base

	template      string
	internalIDs   []string
	internalEdges []patch.Edge
	inputMarkers  map[int]string
	outputMarkers map[int]string
}

// NewGroup is called by the graph manager after it has instantiated the
// template's internals under the group's namespace. internalEdges are
// already namespaced; the marker maps go from boundary index to marker
// node id.
func NewGroup(env Env, node patch.Node, template string, internalIDs []string,
	internalEdges []patch.Edge, inputMarkers, outputMarkers map[int]string) *Group {
	return &Group{
		Base:          NewBase(env, node, nil),
		template:      template,
		internalIDs:   internalIDs,
		internalEdges: internalEdges,
		inputMarkers:  inputMarkers,
		outputMarkers: outputMarkers,
	}
}

// Template names the template this group instantiates.
func (g *Group) Template() string { return g.template }

// InternalIDs lists the namespaced ids of the group's internal nodes.
func (g *Group) InternalIDs() []string { return g.internalIDs }

// OutputFeed returns the internal edge feeding the Output marker with the
// given boundary index, i.e. the true source behind the group's "output-N"
// handle.
func (g *Group) OutputFeed(index int) (patch.Edge, bool) {
	markerID, ok := g.outputMarkers[index]
	if !ok {
		return patch.Edge{}, false
	}
	for _, e := range g.internalEdges {
		if e.Target == markerID {
			return e, true
		}
	}
	return patch.Edge{}, false
}

// InputFeeds returns every internal edge originating at the Input marker
// with the given boundary index. One external edge into "input-N" fans out
// to each of them.
func (g *Group) InputFeeds(index int) []patch.Edge {
	markerID, ok := g.inputMarkers[index]
	if !ok {
		return nil
	}
	var out []patch.Edge
	for _, e := range g.internalEdges {
		if e.Source == markerID {
			out = append(out, e)
		}
	}
	return out
}
