// Package patch defines the declarative graph format consumed by the graph
// manager: nodes, edges and reusable templates, plus the HCL loader that
// reads them from disk. The same model structs carry the JSON wire form used
// by the control surface.
package patch
