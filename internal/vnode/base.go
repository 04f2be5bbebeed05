package vnode

import (
	"context"
	"maps"

	"github.com/k1ln/synflow-sub000/internal/bus"
	"github.com/k1ln/synflow-sub000/internal/ctxlog"
	"github.com/k1ln/synflow-sub000/internal/engine"
	"github.com/k1ln/synflow-sub000/internal/patch"
)

// Base carries the state and behavior shared by every node kind. Specialized
// behavior is composed in through the onParams and onDispose hooks rather
// than by overriding methods.
type Base struct {
	env  Env
	id   string
	kind string
	data map[string]any

	prim   engine.Primitive
	inputs map[string]engine.Primitive
	params map[string]engine.Param

	subs     []*bus.Subscription
	disposed bool
	// sharedPrim marks a primitive owned by the engine (the destination
	// sink); disposal must not release it.
	sharedPrim bool

	// onParams runs after an attribute-bag merge, with the changed keys.
	onParams func(ctx context.Context, changed map[string]any)
	// onDispose runs once, before the primitive is released.
	onDispose func(ctx context.Context)
}

// NewBase creates the shared core of an instance and subscribes it to its
// params topic. prim may be nil for control-plane nodes.
func NewBase(env Env, node patch.Node, prim engine.Primitive) *Base {
	b := &Base{
		env:  env,
		id:   node.ID,
		kind: node.Type,
		data: make(map[string]any, len(node.Data)),
		prim: prim,
	}
	maps.Copy(b.data, node.Data)

	b.SubscribeTopic(bus.ParamsTopic(b.id), func(ctx context.Context, payload any) {
		update, ok := payload.(*ParamsUpdate)
		if !ok {
			ctxlog.FromContext(ctx).Warn("ignoring malformed params update",
				"node", b.id, "payload_type", typeName(payload))
			return
		}
		b.ApplyParams(ctx, update.Data)
	})

	return b
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	switch v.(type) {
	case *ParamsUpdate:
		return "ParamsUpdate"
	case Trigger:
		return "Trigger"
	case float64:
		return "float64"
	default:
		return "unknown"
	}
}

func (b *Base) ID() string           { return b.id }
func (b *Base) Kind() string         { return b.kind }
func (b *Base) Data() map[string]any { return b.data }

func (b *Base) Primitive() engine.Primitive { return b.prim }

func (b *Base) Input(handle string) (engine.Primitive, bool) {
	p, ok := b.inputs[handle]
	return p, ok
}

func (b *Base) Param(name string) (engine.Param, bool) {
	if p, ok := b.params[name]; ok {
		return p, true
	}
	if b.prim == nil {
		return nil, false
	}
	return b.prim.Param(name)
}

// Env exposes the injected collaborators to specialized node code.
func (b *Base) Env() Env { return b.env }

// SubscribeHandle registers a handler for one of the node's own input
// handles; SubscribeTopic registers an arbitrary topic. Both are tracked so
// Dispose can remove them.
func (b *Base) SubscribeHandle(handle string, kind bus.Kind, fn bus.Handler) {
	b.SubscribeTopic(bus.Topic{Node: b.id, Handle: handle, Kind: kind}, fn)
}

func (b *Base) SubscribeTopic(topic bus.Topic, fn bus.Handler) {
	b.subs = append(b.subs, b.env.Bus.Subscribe(topic, fn))
}

// AddInput exposes a distinct named signal input.
func (b *Base) AddInput(handle string, p engine.Primitive) {
	if b.inputs == nil {
		b.inputs = make(map[string]engine.Primitive)
	}
	b.inputs[handle] = p
}

// AddParam exposes an automatable parameter under a handle name, overriding
// the primitive's own lookup.
func (b *Base) AddParam(name string, p engine.Param) {
	if b.params == nil {
		b.params = make(map[string]engine.Param)
	}
	b.params[name] = p
}

// MarkSharedPrimitive flags the primitive as engine-owned so disposal skips
// releasing it.
func (b *Base) MarkSharedPrimitive() { b.sharedPrim = true }

// OnParams installs the post-merge hook; OnDispose the teardown hook.
func (b *Base) OnParams(fn func(ctx context.Context, changed map[string]any)) { b.onParams = fn }
func (b *Base) OnDispose(fn func(ctx context.Context))                        { b.onDispose = fn }

// ApplyParams merges the update into the attribute bag and pushes every key
// that names an automatable parameter as a scheduled value step.
func (b *Base) ApplyParams(ctx context.Context, data map[string]any) {
	if b.disposed {
		return
	}

	for key, val := range data {
		b.data[key] = val

		if f, ok := ToFloat(val); ok {
			if p, found := b.Param(key); found {
				p.SetValueAtTime(f, b.env.Engine.Now())
			}
		}
	}

	if b.onParams != nil {
		b.onParams(ctx, data)
	}
}

// Dispose tears the instance down: bus subscriptions, pending timers, then
// the primitive. Each step is individually guarded so one failure cannot
// block the rest, and repeated calls are no-ops.
func (b *Base) Dispose(ctx context.Context) {
	if b.disposed {
		return
	}
	b.disposed = true

	logger := ctxlog.FromContext(ctx)

	if b.onDispose != nil {
		b.onDispose(ctx)
	}

	b.env.Bus.UnsubscribeNode(b.id)
	b.subs = nil

	if b.env.Sched != nil {
		b.env.Sched.CancelOwner(b.id)
	}

	release := func(p engine.Primitive) {
		if p == nil {
			return
		}
		if err := b.env.Engine.DisconnectAll(p); err != nil {
			logger.Warn("failed to release primitive during disposal",
				"node", b.id, "error", err)
		}
	}
	if !b.sharedPrim {
		release(b.prim)
	}
	for _, p := range b.inputs {
		if p != b.prim {
			release(p)
		}
	}
}

// Disposed reports whether Dispose has run.
func (b *Base) Disposed() bool { return b.disposed }
