package vnode

import (
	"context"

	"github.com/k1ln/synflow-sub000/internal/bus"
	"github.com/k1ln/synflow-sub000/internal/engine"
	"github.com/k1ln/synflow-sub000/internal/patch"
	"github.com/k1ln/synflow-sub000/internal/sched"
)

// Instance is the uniform contract every node kind implements.
type Instance interface {
	// ID is the node's (possibly namespaced) id; the registry key.
	ID() string
	// Kind is the declarative type tag that selected this instance.
	Kind() string
	// Data is the node's attribute bag, kept in sync with updates.
	Data() map[string]any

	// Primitive returns the underlying engine primitive, or nil for
	// control-plane-only nodes.
	Primitive() engine.Primitive
	// Input resolves a named handle to a distinct signal input. Only nodes
	// with more than one signal input expose any.
	Input(handle string) (engine.Primitive, bool)
	// Param resolves a handle to an automatable parameter.
	Param(name string) (engine.Param, bool)

	// ApplyParams merges an attribute-bag update and pushes matching
	// parameter automation.
	ApplyParams(ctx context.Context, data map[string]any)
	// Dispose unsubscribes, cancels timers and releases the primitive.
	// Idempotent; disposing twice is a no-op.
	Dispose(ctx context.Context)
}

// AutomationTarget is one modulation destination wired from a node: the
// live parameter plus the declared base value from the target's attribute
// bag. Envelopes compute their ramp endpoints from Base, never from the
// possibly-already-ramping live value.
type AutomationTarget struct {
	NodeID string
	Handle string
	Param  engine.Param
	Base   float64
}

// Router is the graph manager's edge-aware routing surface, injected into
// instances so control-plane nodes can fan events out along their declared
// edges without owning any adjacency state themselves.
type Router interface {
	// EmitToConnectedEdges fans payload out along every edge leaving nodeID.
	EmitToConnectedEdges(ctx context.Context, nodeID string, payload any, kind bus.Kind)
	// EmitToConnectedEdgesFiltered restricts fan-out to edges whose source
	// handle is "output-<index>".
	EmitToConnectedEdgesFiltered(ctx context.Context, nodeID string, payload any, kind bus.Kind, index int)
	// AutomationTargets lists the modulation connections wired out of nodeID.
	AutomationTargets(ctx context.Context, nodeID string) []AutomationTarget
}

// Env bundles the collaborators a node instance needs. The graph manager
// fills it in before construction.
type Env struct {
	Bus    *bus.Bus
	Engine engine.Engine
	Sched  *sched.Scheduler
	Router Router
}

// Constructor builds one instance for a declarative node whose id is
// already namespaced.
type Constructor func(ctx context.Context, env Env, node patch.Node) (Instance, error)

// Trigger is the payload of receive/send on/off events. Source carries the
// originating node id so stateful routers can tell emitters apart.
type Trigger struct {
	Source string
}

// ParamsUpdate is the payload of updateParams events: a partial attribute
// bag merged into the target's data.
type ParamsUpdate struct {
	Data map[string]any
}
