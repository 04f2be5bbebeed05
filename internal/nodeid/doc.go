// internal/nodeid/doc.go

/*
Package nodeid centralizes the identifier scheme for nodes in the signal
graph.

An id is a dot-separated path, e.g. `voice1.osc`. The leading segments name
the chain of enclosing group instances; the final segment is the node's local
name from the patch. Namespacing happens exactly once, when a group template
is expanded, so an id is globally unique within one graph manager.
*/
package nodeid
