package graph

import "strings"

// targetKey identifies one wiring destination: a plain node id for signal
// connections, or "<nodeId>:<handle>" for handle-scoped connections (named
// multi-inputs and parameter modulation).
type targetKey string

func nodeKey(id string) targetKey           { return targetKey(id) }
func handleKey(id, handle string) targetKey { return targetKey(id + ":" + handle) }

func (k targetKey) belongsTo(id string) bool {
	return string(k) == id || strings.HasPrefix(string(k), id+":")
}

// connTable is the double-indexed connection bookkeeping. Its methods are
// the only way tracking state changes, so the invariant that a
// (source, targetKey) pair is tracked at most once holds by construction.
type connTable struct {
	sourceToTargets map[string]map[targetKey]struct{}
	targetToSources map[targetKey]map[string]struct{}
}

func newConnTable() *connTable {
	return &connTable{
		sourceToTargets: make(map[string]map[targetKey]struct{}),
		targetToSources: make(map[targetKey]map[string]struct{}),
	}
}

// add records the pair. It reports false, without mutating anything, when
// the pair is already tracked; callers skip wiring in that case.
func (t *connTable) add(source string, key targetKey) bool {
	if t.has(source, key) {
		return false
	}
	if t.sourceToTargets[source] == nil {
		t.sourceToTargets[source] = make(map[targetKey]struct{})
	}
	t.sourceToTargets[source][key] = struct{}{}
	if t.targetToSources[key] == nil {
		t.targetToSources[key] = make(map[string]struct{})
	}
	t.targetToSources[key][source] = struct{}{}
	return true
}

func (t *connTable) has(source string, key targetKey) bool {
	_, ok := t.sourceToTargets[source][key]
	return ok
}

func (t *connTable) remove(source string, key targetKey) {
	delete(t.sourceToTargets[source], key)
	if len(t.sourceToTargets[source]) == 0 {
		delete(t.sourceToTargets, source)
	}
	delete(t.targetToSources[key], source)
	if len(t.targetToSources[key]) == 0 {
		delete(t.targetToSources, key)
	}
}

// removeNode purges every pair the node participates in, on either side.
func (t *connTable) removeNode(id string) {
	for key := range t.sourceToTargets[id] {
		t.remove(id, key)
	}
	for key, sources := range t.targetToSources {
		if !key.belongsTo(id) {
			continue
		}
		for source := range sources {
			t.remove(source, key)
		}
	}
}

// outDegree reports how many pairs the node is tracked as the source of.
func (t *connTable) outDegree(source string) int {
	return len(t.sourceToTargets[source])
}

// refersTo reports whether any tracked pair mentions the node.
func (t *connTable) refersTo(id string) bool {
	if len(t.sourceToTargets[id]) > 0 {
		return true
	}
	for key := range t.targetToSources {
		if key.belongsTo(id) {
			return true
		}
	}
	return false
}
