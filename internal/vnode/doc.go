// Package vnode implements the node instances of the signal graph: runtime
// wrappers around zero-or-one engine primitive, plus the control-plane kinds
// (envelope, clock, sequencer, switches, formula) that never touch audio and
// only route events.
//
// Instances are created through the constructors in this package, registered
// and wired by the graph manager, and communicate peer-to-peer over the
// event bus.
package vnode
