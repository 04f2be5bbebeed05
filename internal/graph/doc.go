// Package graph owns the live signal-flow topology: the node-instance
// registry, the connection bookkeeping, and the wiring algorithm that turns
// declarative edges into engine connections.
//
// The manager is the only component allowed to mutate the tracking maps;
// node instances route control events through it but never touch adjacency
// state directly. Everything here runs on the run loop goroutine, so no
// locking is needed.
package graph
