package graph

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/k1ln/synflow-sub000/internal/bus"
	"github.com/k1ln/synflow-sub000/internal/ctxlog"
	"github.com/k1ln/synflow-sub000/internal/engine"
	"github.com/k1ln/synflow-sub000/internal/nodeid"
	"github.com/k1ln/synflow-sub000/internal/patch"
	"github.com/k1ln/synflow-sub000/internal/registry"
	"github.com/k1ln/synflow-sub000/internal/sched"
	"github.com/k1ln/synflow-sub000/internal/vnode"
)

// Manager keeps a live engine topology in sync with a declarative patch and
// routes control events along the declared edges. It is the exclusive owner
// of the instance registry, the connection tracking table, and the virtual
// edge index.
type Manager struct {
	bus      *bus.Bus
	engine   engine.Engine
	sched    *sched.Scheduler
	registry *registry.Registry
	library  *patch.Library

	env vnode.Env

	instances map[string]vnode.Instance
	track     *connTable
	vedges    *edgeIndex
	// declared remembers every declared edge currently applied, for
	// duplicate suppression and for Apply's removal diffing.
	declared map[patch.Edge]struct{}
	// expanding holds the template names on the current expansion chain,
	// to refuse templates that instantiate themselves.
	expanding map[string]struct{}
}

// New creates an empty manager. The template library may be shared; the
// manager never mutates it.
func New(b *bus.Bus, eng engine.Engine, s *sched.Scheduler, reg *registry.Registry, lib *patch.Library) *Manager {
	m := &Manager{
		bus:       b,
		engine:    eng,
		sched:     s,
		registry:  reg,
		library:   lib,
		instances: make(map[string]vnode.Instance),
		track:     newConnTable(),
		vedges:    newEdgeIndex(),
		declared:  make(map[patch.Edge]struct{}),
		expanding: make(map[string]struct{}),
	}
	m.env = vnode.Env{Bus: b, Engine: eng, Sched: s, Router: m}
	return m
}

// Instance returns the live instance registered under the id.
func (m *Manager) Instance(id string) (vnode.Instance, bool) {
	inst, ok := m.instances[id]
	return inst, ok
}

// InstanceCount reports how many instances are registered, nested ones
// included.
func (m *Manager) InstanceCount() int { return len(m.instances) }

// CreateNodes instantiates every declarative node under an optional parent
// namespace. Unknown types and constructor failures are logged and skipped;
// ids that already have an instance are left alone.
func (m *Manager) CreateNodes(ctx context.Context, nodes []patch.Node, parentID string) {
	logger := ctxlog.FromContext(ctx)

	for _, node := range nodes {
		id := node.ID
		if parentID != "" {
			id = nodeid.Namespace(parentID, node.ID)
		}
		if _, exists := m.instances[id]; exists {
			continue
		}

		namespaced := node
		namespaced.ID = id
		namespaced.Parent = parentID

		if node.Type == vnode.KindGroup {
			m.expandGroup(ctx, namespaced)
			continue
		}

		ctor, ok := m.registry.Lookup(node.Type)
		if !ok {
			logger.Warn("Unknown node type, skipping.", "id", id, "type", node.Type)
			continue
		}
		inst, err := ctor(ctx, m.env, namespaced)
		if err != nil {
			logger.Warn("Node construction failed, skipping.", "id", id, "type", node.Type, "error", err)
			continue
		}
		m.instances[id] = inst
		logger.Debug("Node instantiated.", "id", id, "type", node.Type)
	}
}

// expandGroup instantiates a template's internals under the group's
// namespace, wires the internal edges, and registers the group shell that
// remembers the boundary markers for later splicing.
func (m *Manager) expandGroup(ctx context.Context, node patch.Node) {
	logger := ctxlog.FromContext(ctx)

	name := vnode.StringAttr(node.Data, "template", "")
	tpl, ok := m.library.Lookup(name)
	if !ok {
		logger.Warn("Unknown template, skipping group.", "id", node.ID, "template", name)
		return
	}
	if _, busy := m.expanding[name]; busy {
		logger.Warn("Template instantiates itself, skipping group.", "id", node.ID, "template", name)
		return
	}
	m.expanding[name] = struct{}{}
	defer delete(m.expanding, name)

	m.CreateNodes(ctx, tpl.Patch.Nodes, node.ID)

	internalIDs := make([]string, 0, len(tpl.Patch.Nodes))
	inputMarkers := make(map[int]string)
	outputMarkers := make(map[int]string)
	for _, internal := range tpl.Patch.Nodes {
		id := nodeid.Namespace(node.ID, internal.ID)
		internalIDs = append(internalIDs, id)
		switch internal.Type {
		case vnode.KindInput:
			inputMarkers[vnode.IntAttr(internal.Data, "index", 0)] = id
		case vnode.KindOutput:
			outputMarkers[vnode.IntAttr(internal.Data, "index", 0)] = id
		}
	}

	internalEdges := make([]patch.Edge, 0, len(tpl.Patch.Edges))
	for _, e := range tpl.Patch.Edges {
		internalEdges = append(internalEdges, patch.Edge{
			Source:       nodeid.Namespace(node.ID, e.Source),
			SourceHandle: e.SourceHandle,
			Target:       nodeid.Namespace(node.ID, e.Target),
			TargetHandle: e.TargetHandle,
		})
	}

	group := vnode.NewGroup(m.env, node, name, internalIDs, internalEdges, inputMarkers, outputMarkers)
	m.instances[node.ID] = group

	for _, e := range internalEdges {
		m.AddConnection(ctx, e)
	}
	logger.Debug("Group expanded.", "id", node.ID, "template", name, "nodes", len(internalIDs))
}

// boundaryIndex parses handles of the form "<prefix>N".
func boundaryIndex(handle, prefix string) (int, bool) {
	if !strings.HasPrefix(handle, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(handle[len(prefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// resolveSource follows "output-N" boundary handles through group shells
// until it reaches the true internal source. Multiple hops occur when groups
// nest.
func (m *Manager) resolveSource(e patch.Edge) (patch.Edge, bool) {
	for {
		group, ok := m.instances[e.Source].(*vnode.Group)
		if !ok {
			return e, true
		}
		idx, boundary := boundaryIndex(e.SourceHandle, "output-")
		if !boundary {
			return e, true
		}
		feed, ok := group.OutputFeed(idx)
		if !ok {
			return e, false
		}
		e.Source, e.SourceHandle = feed.Source, feed.SourceHandle
	}
}

// resolveTargets fans one edge out through "input-N" boundary handles. A
// group target expands to one edge per internal consumer of the matching
// marker, recursively; a group with no internal consumers expands to none.
func (m *Manager) resolveTargets(e patch.Edge) []patch.Edge {
	group, ok := m.instances[e.Target].(*vnode.Group)
	if !ok {
		return []patch.Edge{e}
	}
	idx, boundary := boundaryIndex(e.TargetHandle, "input-")
	if !boundary {
		return []patch.Edge{e}
	}

	var out []patch.Edge
	for _, feed := range group.InputFeeds(idx) {
		next := patch.Edge{
			Source:       e.Source,
			SourceHandle: e.SourceHandle,
			Target:       feed.Target,
			TargetHandle: feed.TargetHandle,
		}
		out = append(out, m.resolveTargets(next)...)
	}
	return out
}

// wiring is one fully resolved primitive connection, ready to apply or
// unapply against the engine.
type wiring struct {
	kind string // "input", "main", "destination", "param", "control"
	key  targetKey
	from engine.Primitive
	to   engine.Primitive
	par  engine.Param
}

// classify decides, for one resolved edge, which of the four wiring kinds
// applies: (a) a named multi-input handle on the target, (b) the target
// primitive's main input, (c) the terminal destination sink, (d) an
// automatable parameter. Edges between control-plane nodes carry no
// primitive connection at all and only live in the edge index.
func (m *Manager) classify(e patch.Edge) (wiring, error) {
	source, ok := m.instances[e.Source]
	if !ok {
		return wiring{}, fmt.Errorf("source node %q does not exist", e.Source)
	}
	target, ok := m.instances[e.Target]
	if !ok {
		return wiring{}, fmt.Errorf("target node %q does not exist", e.Target)
	}

	from := source.Primitive()
	if from == nil {
		return wiring{kind: "control"}, nil
	}

	if in, ok := target.Input(e.TargetHandle); ok {
		return wiring{kind: "input", key: handleKey(e.Target, e.TargetHandle), from: from, to: in}, nil
	}
	if target.Primitive() != nil && isMainInputHandle(e.TargetHandle) {
		if target.Kind() == vnode.KindDestination {
			return wiring{kind: "destination", key: nodeKey(e.Target), from: from, to: m.engine.Destination()}, nil
		}
		return wiring{kind: "main", key: nodeKey(e.Target), from: from, to: target.Primitive()}, nil
	}
	if target.Kind() == vnode.KindDestination {
		return wiring{kind: "destination", key: nodeKey(e.Target), from: from, to: m.engine.Destination()}, nil
	}
	if par, ok := target.Param(e.TargetHandle); ok {
		return wiring{kind: "param", key: handleKey(e.Target, e.TargetHandle), from: from, par: par}, nil
	}
	return wiring{kind: "control"}, nil
}

func isMainInputHandle(handle string) bool {
	switch handle {
	case "", "input", "main", "main-input":
		return true
	}
	return false
}

// AddConnection resolves a declared edge across group boundaries and wires
// the result. Re-adding an edge, declared or resolved, never double-wires:
// the declared set suppresses exact duplicates and the tracking table
// enforces at most one connection per (source, targetKey) pair.
func (m *Manager) AddConnection(ctx context.Context, e patch.Edge) {
	logger := ctxlog.FromContext(ctx)
	if _, dup := m.declared[e]; dup {
		return
	}

	src, ok := m.resolveSource(e)
	if !ok {
		logger.Warn("Edge source resolves to nothing, skipping.", "source", e.Source, "handle", e.SourceHandle)
		return
	}
	if _, ok := m.instances[src.Source]; !ok {
		logger.Warn("Edge source does not exist, skipping.", "source", src.Source)
		return
	}

	resolved := m.resolveTargets(src)
	if len(resolved) == 0 {
		logger.Debug("Edge fans out to nothing.", "source", e.Source, "target", e.Target)
		m.declared[e] = struct{}{}
		return
	}

	wired := false
	for _, re := range resolved {
		if !m.wireResolved(ctx, re) {
			continue
		}
		wired = true
		m.vedges.insert(re.Source, re)
		if re.Source != e.Source {
			// The declared edge was remapped: drop any stale entry filed
			// under the pre-remap source.
			m.vedges.remove(e.Source, e)
		}
	}
	if wired {
		m.declared[e] = struct{}{}
	}
	// A fully failed edge is not recorded, so the next Apply retries it.
}

// wireResolved reports whether the resolved edge is live: wired into the
// engine, already tracked, or a pure control edge. Only classification and
// engine failures return false.
func (m *Manager) wireResolved(ctx context.Context, e patch.Edge) bool {
	logger := ctxlog.FromContext(ctx)

	w, err := m.classify(e)
	if err != nil {
		logger.Warn("Cannot wire edge.", "source", e.Source, "target", e.Target, "error", err)
		return false
	}
	if w.kind == "control" {
		return true
	}
	if !m.track.add(e.Source, w.key) {
		return true
	}

	switch w.kind {
	case "param":
		err = m.engine.ConnectParam(w.from, w.par)
	default:
		err = m.engine.Connect(w.from, w.to)
	}
	if err != nil {
		m.track.remove(e.Source, w.key)
		logger.Warn("Engine connect failed, skipping edge.",
			"source", e.Source, "target", e.Target, "kind", w.kind, "error", err)
		return false
	}
	return true
}

// RemoveConnection undoes one declared edge, including every primitive
// connection its fan-out produced.
func (m *Manager) RemoveConnection(ctx context.Context, e patch.Edge) {
	logger := ctxlog.FromContext(ctx)
	if _, known := m.declared[e]; !known {
		return
	}
	delete(m.declared, e)

	src, ok := m.resolveSource(e)
	if !ok {
		return
	}
	for _, re := range m.resolveTargets(src) {
		w, err := m.classify(re)
		if err != nil || w.kind == "control" {
			m.vedges.remove(re.Source, re)
			continue
		}
		if m.track.has(re.Source, w.key) {
			m.track.remove(re.Source, w.key)
			switch w.kind {
			case "param":
				err = m.engine.DisconnectParam(w.from, w.par)
			default:
				err = m.engine.Disconnect(w.from, w.to)
			}
			if err != nil {
				logger.Warn("Engine disconnect failed.",
					"source", re.Source, "target", re.Target, "error", err)
			}
		}
		m.vedges.remove(re.Source, re)
	}
}

// DeleteNode disposes one instance and purges every trace of it from the
// bookkeeping. Deleting a group deletes its internals first. Unknown ids
// are a no-op.
func (m *Manager) DeleteNode(ctx context.Context, id string) {
	inst, ok := m.instances[id]
	if !ok {
		return
	}

	if group, isGroup := inst.(*vnode.Group); isGroup {
		for _, internalID := range group.InternalIDs() {
			m.DeleteNode(ctx, internalID)
		}
	}

	inst.Dispose(ctx)
	delete(m.instances, id)
	m.track.removeNode(id)
	m.vedges.removeNode(id)
	for e := range m.declared {
		if e.Source == id || e.Target == id {
			delete(m.declared, e)
		}
	}
	ctxlog.FromContext(ctx).Debug("Node deleted.", "id", id)
}

// Apply re-syncs the live graph to a full declarative patch: missing nodes
// are created, all edges are (re-)wired, and nodes or edges absent from the
// patch are torn down. Applying the same patch twice is a no-op.
func (m *Manager) Apply(ctx context.Context, p patch.Patch) {
	m.CreateNodes(ctx, p.Nodes, "")

	wanted := make(map[string]patch.Node, len(p.Nodes))
	for _, n := range p.Nodes {
		wanted[n.ID] = n
	}

	// Drop edges first so stale wiring never survives a node swap.
	wantedEdges := make(map[patch.Edge]struct{}, len(p.Edges))
	for _, e := range p.Edges {
		wantedEdges[e] = struct{}{}
	}
	for e := range m.declared {
		if _, keep := wantedEdges[e]; keep {
			continue
		}
		if m.isInternalEdge(e) {
			continue
		}
		m.RemoveConnection(ctx, e)
	}

	for id := range m.instances {
		if _, keep := wanted[id]; keep {
			continue
		}
		if m.belongsToSurvivor(id, wanted) {
			continue
		}
		m.DeleteNode(ctx, id)
	}

	for _, e := range p.Edges {
		m.AddConnection(ctx, e)
	}

	// Push data changes to surviving nodes, narrowed to the changed keys so
	// param hooks (clock rate bridging) only fire when something moved.
	for id, n := range wanted {
		inst, ok := m.instances[id]
		if !ok {
			continue
		}
		changed := make(map[string]any)
		for key, val := range n.Data {
			if !reflect.DeepEqual(inst.Data()[key], val) {
				changed[key] = val
			}
		}
		if len(changed) > 0 {
			inst.ApplyParams(ctx, changed)
		}
	}
}

// isInternalEdge reports whether the edge came from a group expansion
// rather than the top-level patch; Apply must not tear those down while the
// group itself survives.
func (m *Manager) isInternalEdge(e patch.Edge) bool {
	parent := nodeid.ParentOf(e.Source)
	if parent == "" {
		return false
	}
	_, ok := m.instances[parent].(*vnode.Group)
	return ok && nodeid.IsWithin(e.Target, parent)
}

func (m *Manager) belongsToSurvivor(id string, wanted map[string]patch.Node) bool {
	for parent := range wanted {
		if nodeid.IsWithin(id, parent) {
			return true
		}
	}
	return false
}

// Dispose tears the whole graph down. Safe to call more than once.
func (m *Manager) Dispose(ctx context.Context) {
	for id, inst := range m.instances {
		inst.Dispose(ctx)
		delete(m.instances, id)
	}
	m.track = newConnTable()
	m.vedges = newEdgeIndex()
	m.declared = make(map[patch.Edge]struct{})
}

// TrackedOutDegree exposes the tracking table's view of one source, for
// tests and introspection.
func (m *Manager) TrackedOutDegree(source string) int {
	return m.track.outDegree(source)
}

// Tracked reports whether any bookkeeping still references the node.
func (m *Manager) Tracked(id string) bool {
	return m.track.refersTo(id)
}

// EmitToConnectedEdges routes a control event along every edge leaving the
// node. Edges whose target handle names an automatable parameter are
// translated into parameter updates; everything else is delivered as a
// handle-addressed control event.
func (m *Manager) EmitToConnectedEdges(ctx context.Context, nodeID string, payload any, kind bus.Kind) {
	m.emitEdges(ctx, nodeID, payload, kind, -1)
}

// EmitToConnectedEdgesFiltered restricts the fan-out to edges leaving one
// numbered output handle; switches and sequencer rows route through this.
func (m *Manager) EmitToConnectedEdgesFiltered(ctx context.Context, nodeID string, payload any, kind bus.Kind, index int) {
	m.emitEdges(ctx, nodeID, payload, kind, index)
}

func (m *Manager) emitEdges(ctx context.Context, nodeID string, payload any, kind bus.Kind, index int) {
	edges := m.vedges.edgesFor(nodeID)
	if len(edges) == 0 {
		ctxlog.FromContext(ctx).Debug("No connected edges.", "node", nodeID, "kind", string(kind))
		return
	}

	handle := ""
	if index >= 0 {
		handle = "output-" + strconv.Itoa(index)
	}

	for _, e := range edges {
		if index >= 0 && e.SourceHandle != handle {
			continue
		}
		m.routeEdge(ctx, e, payload, kind)
	}
}

func (m *Manager) routeEdge(ctx context.Context, e patch.Edge, payload any, kind bus.Kind) {
	if target, ok := m.instances[e.Target]; ok {
		if _, isParam := target.Param(e.TargetHandle); isParam {
			if value, ok := paramValue(payload, kind); ok {
				m.bus.Emit(ctx, bus.ParamsTopic(e.Target), &vnode.ParamsUpdate{
					Data: map[string]any{e.TargetHandle: value},
				})
				return
			}
		}
	}
	m.bus.Emit(ctx, bus.Topic{Node: e.Target, Handle: e.TargetHandle, Kind: kind}, payload)
}

// paramValue translates a control payload into a parameter value: numbers
// pass through, triggers become gate levels 1 and 0.
func paramValue(payload any, kind bus.Kind) (float64, bool) {
	if f, ok := vnode.ToFloat(payload); ok {
		return f, true
	}
	if _, isTrigger := payload.(vnode.Trigger); isTrigger {
		switch kind {
		case bus.KindReceiveOn, bus.KindSendOn:
			return 1, true
		case bus.KindReceiveOff, bus.KindSendOff:
			return 0, true
		}
	}
	return 0, false
}

// AutomationTargets lists the automatable parameters the node's edges point
// at, with the base value taken from the target's declared data so envelope
// bounds stay stable across retriggers.
func (m *Manager) AutomationTargets(ctx context.Context, nodeID string) []vnode.AutomationTarget {
	var out []vnode.AutomationTarget
	for _, e := range m.vedges.edgesFor(nodeID) {
		target, ok := m.instances[e.Target]
		if !ok {
			continue
		}
		par, ok := target.Param(e.TargetHandle)
		if !ok {
			continue
		}
		out = append(out, vnode.AutomationTarget{
			NodeID: e.Target,
			Handle: e.TargetHandle,
			Param:  par,
			Base:   vnode.FloatAttr(target.Data(), e.TargetHandle, par.Value()),
		})
	}
	return out
}

var _ vnode.Router = (*Manager)(nil)
