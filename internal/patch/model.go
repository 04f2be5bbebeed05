package patch

import (
	"fmt"

	"github.com/k1ln/synflow-sub000/internal/nodeid"
)

// Node is one declarative node. ID is patch-local until a template expansion
// namespaces it; Data is a free-form attribute bag interpreted per Type.
type Node struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Data   map[string]any `json:"data,omitempty"`
	Parent string         `json:"parentId,omitempty"`
}

// Edge is one declarative connection. Identity is the full 4-tuple.
type Edge struct {
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Patch is a complete node/edge description of one graph.
type Patch struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Template is a reusable node/edge group, instantiated under a namespaced id
// and exposing numbered input/output boundary markers.
type Template struct {
	Name  string
	Patch Patch
}

// Library holds the loaded templates by name.
type Library struct {
	templates map[string]*Template
}

// NewLibrary creates an empty template library.
func NewLibrary() *Library {
	return &Library{templates: make(map[string]*Template)}
}

// Add registers a template. Re-registering a name is an error so two files
// cannot silently shadow each other.
func (l *Library) Add(t *Template) error {
	if _, exists := l.templates[t.Name]; exists {
		return fmt.Errorf("template %q already registered", t.Name)
	}
	l.templates[t.Name] = t
	return nil
}

// Lookup finds a template by name.
func (l *Library) Lookup(name string) (*Template, bool) {
	t, ok := l.templates[name]
	return t, ok
}

// Len reports how many templates are loaded.
func (l *Library) Len() int { return len(l.templates) }

// Validate checks the structural integrity of a patch: well-formed unique
// node ids and edges whose endpoints exist.
func (p *Patch) Validate() error {
	seen := make(map[string]struct{}, len(p.Nodes))
	for _, n := range p.Nodes {
		if err := nodeid.ValidateLocal(n.ID); err != nil {
			return err
		}
		if n.Type == "" {
			return fmt.Errorf("node %q has no type", n.ID)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = struct{}{}
	}

	for _, e := range p.Edges {
		if _, ok := seen[e.Source]; !ok {
			return fmt.Errorf("edge references unknown source node %q", e.Source)
		}
		if _, ok := seen[e.Target]; !ok {
			return fmt.Errorf("edge references unknown target node %q", e.Target)
		}
	}

	return nil
}
