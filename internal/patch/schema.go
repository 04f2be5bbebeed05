package patch

import (
	"github.com/hashicorp/hcl/v2"
)

// --- HCL file schema ---

// nodeBlock represents a `node` block from a patch file.
type nodeBlock struct {
	Type string         `hcl:"node_type,label"`
	Name string         `hcl:"instance_name,label"`
	Data hcl.Expression `hcl:"data,optional"`
}

// edgeBlock represents an `edge` block from a patch file.
type edgeBlock struct {
	Source       string `hcl:"source"`
	SourceHandle string `hcl:"source_handle,optional"`
	Target       string `hcl:"target"`
	TargetHandle string `hcl:"target_handle,optional"`
}

// templateBlock represents a reusable `template` block containing its own
// internal node/edge list.
type templateBlock struct {
	Name  string       `hcl:"name,label"`
	Nodes []*nodeBlock `hcl:"node,block"`
	Edges []*edgeBlock `hcl:"edge,block"`
}

// patchFile represents the top-level structure of a patch file.
type patchFile struct {
	Nodes     []*nodeBlock     `hcl:"node,block"`
	Edges     []*edgeBlock     `hcl:"edge,block"`
	Templates []*templateBlock `hcl:"template,block"`
	Body      hcl.Body         `hcl:",remain"`
}
