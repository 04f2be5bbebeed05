package patch

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/k1ln/synflow-sub000/internal/ctxlog"
	"github.com/k1ln/synflow-sub000/internal/fsutil"
)

// Loader reads patch and template files from disk.
type Loader struct{}

// NewLoader creates a patch file loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load finds every .hcl file under the given paths, parses them, and merges
// the result into one patch plus one template library. A path may be a file
// or a directory.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Patch, *Library, error) {
	logger := ctxlog.FromContext(ctx)

	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve patch path %q: %w", p, err)
		}
		if info.IsDir() {
			found, err := fsutil.FindPatchFiles(p)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to walk patch directory %q: %w", p, err)
			}
			files = append(files, found...)
		} else {
			files = append(files, p)
		}
	}

	if len(files) == 0 {
		logger.Warn("No .hcl patch files found", "paths", paths)
	}

	merged := &Patch{}
	library := NewLibrary()
	parser := hclparse.NewParser()

	for _, filePath := range files {
		hclFile, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse patch file %s: %s", filePath, diags.Error())
		}

		if err := l.decodeFile(ctx, hclFile.Body, merged, library); err != nil {
			return nil, nil, fmt.Errorf("in %s: %w", filePath, err)
		}
		logger.Debug("Loaded patch file.", "file", filePath)
	}

	if err := merged.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid patch: %w", err)
	}

	logger.Info("Patch loaded.",
		"nodes", len(merged.Nodes), "edges", len(merged.Edges), "templates", library.Len())
	return merged, library, nil
}

// ParseString decodes a single patch document from an HCL string. Used by
// tests and by callers that already hold the document in memory.
func (l *Loader) ParseString(ctx context.Context, src string) (*Patch, *Library, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL([]byte(src), "inline.hcl")
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("failed to parse patch: %s", diags.Error())
	}

	p := &Patch{}
	library := NewLibrary()
	if err := l.decodeFile(ctx, hclFile.Body, p, library); err != nil {
		return nil, nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid patch: %w", err)
	}
	return p, library, nil
}

func (l *Loader) decodeFile(ctx context.Context, body hcl.Body, dst *Patch, library *Library) error {
	var file patchFile
	if diags := gohcl.DecodeBody(body, nil, &file); diags.HasErrors() {
		return fmt.Errorf("failed to decode patch body: %s", diags.Error())
	}

	nodes, edges, err := l.translate(file.Nodes, file.Edges)
	if err != nil {
		return err
	}
	dst.Nodes = append(dst.Nodes, nodes...)
	dst.Edges = append(dst.Edges, edges...)

	for _, tb := range file.Templates {
		tNodes, tEdges, err := l.translate(tb.Nodes, tb.Edges)
		if err != nil {
			return fmt.Errorf("in template %q: %w", tb.Name, err)
		}

		tpl := &Template{Name: tb.Name, Patch: Patch{Nodes: tNodes, Edges: tEdges}}
		if err := tpl.Patch.Validate(); err != nil {
			return fmt.Errorf("invalid template %q: %w", tb.Name, err)
		}
		if err := library.Add(tpl); err != nil {
			return err
		}
		ctxlog.FromContext(ctx).Debug("Registered template.", "name", tb.Name,
			"nodes", len(tNodes), "edges", len(tEdges))
	}

	return nil
}

// translate converts the HCL-specific schema into the agnostic model,
// evaluating each node's data expression into a native attribute bag.
func (l *Loader) translate(nodes []*nodeBlock, edges []*edgeBlock) ([]Node, []Edge, error) {
	outNodes := make([]Node, 0, len(nodes))
	for _, nb := range nodes {
		val := cty.NullVal(cty.DynamicPseudoType)
		if nb.Data != nil {
			var diags hcl.Diagnostics
			val, diags = nb.Data.Value(nil)
			if diags.HasErrors() {
				return nil, nil, fmt.Errorf("node %q: failed to evaluate data: %s", nb.Name, diags.Error())
			}
		}

		bag, err := dataBag(val)
		if err != nil {
			return nil, nil, fmt.Errorf("node %q: %w", nb.Name, err)
		}

		outNodes = append(outNodes, Node{ID: nb.Name, Type: nb.Type, Data: bag})
	}

	outEdges := make([]Edge, 0, len(edges))
	for _, eb := range edges {
		outEdges = append(outEdges, Edge{
			Source:       eb.Source,
			SourceHandle: eb.SourceHandle,
			Target:       eb.Target,
			TargetHandle: eb.TargetHandle,
		})
	}

	return outNodes, outEdges, nil
}
