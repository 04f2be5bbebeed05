// Package registry maps declarative node type tags to the Go constructors
// that build their runtime instances.
//
// The registry is populated once at startup and treated as read-only
// afterwards; registering the same tag twice is a programming error and
// panics immediately rather than silently shadowing a kind.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/k1ln/synflow-sub000/internal/vnode"
)

// Registry holds the node-kind constructor table for one runtime instance.
type Registry struct {
	kinds map[string]vnode.Constructor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{kinds: make(map[string]vnode.Constructor)}
}

// RegisterKind registers a constructor under a type tag.
func (r *Registry) RegisterKind(kind string, ctor vnode.Constructor) {
	if _, exists := r.kinds[kind]; exists {
		panic(fmt.Sprintf("node kind '%s' already registered", kind))
	}
	slog.Debug("Registering node kind.", "kind", kind)
	r.kinds[kind] = ctor
}

// RegisterKinds registers a whole constructor table at once.
func (r *Registry) RegisterKinds(table map[string]vnode.Constructor) {
	for kind, ctor := range table {
		r.RegisterKind(kind, ctor)
	}
}

// Lookup returns the constructor for a type tag.
func (r *Registry) Lookup(kind string) (vnode.Constructor, bool) {
	ctor, ok := r.kinds[kind]
	return ctor, ok
}

// Kinds lists the registered type tags in stable order.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.kinds))
	for kind := range r.kinds {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}
