package vnode

import (
	"context"

	"github.com/k1ln/synflow-sub000/internal/patch"
)

// Marker is an Input/Output boundary node inside a template. It carries no
// primitive; it exists so the graph manager can splice edges across the
// template boundary.
type Marker struct {
	*Base
	index int
}

// Index is the boundary port number the marker represents.
func (m *Marker) Index() int { return m.index }

// NewInputMarker and NewOutputMarker build boundary markers from their
// declared data.index.
func NewInputMarker(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	return &Marker{Base: NewBase(env, node, nil), index: IntAttr(node.Data, "index", 0)}, nil
}

func NewOutputMarker(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	return &Marker{Base: NewBase(env, node, nil), index: IntAttr(node.Data, "index", 0)}, nil
}
