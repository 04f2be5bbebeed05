package bus

import (
	"fmt"
	"strings"
)

// Kind names the event class carried on a topic.
type Kind string

const (
	// KindReceiveOn delivers a trigger "on" to a node's input handle.
	KindReceiveOn Kind = "receiveNodeOn"
	// KindReceiveOff delivers the matching trigger "off".
	KindReceiveOff Kind = "receiveNodeOff"
	// KindSendOn asks a node to fan a trigger "on" out of one of its outputs.
	KindSendOn Kind = "sendNodeOn"
	// KindSendOff asks a node to fan the matching "off" out.
	KindSendOff Kind = "sendNodeOff"
	// KindUpdateParams mutates a node's attribute bag.
	KindUpdateParams Kind = "updateParams"
)

// ParamsHandle is the reserved handle carrying attribute-bag updates.
const ParamsHandle = "params"

// Topic addresses one event stream. The string encoding
// "<node>.<handle>.<kind>" exists only at serialization boundaries; inside
// the runtime topics are compared as values, so a node id containing dots
// cannot shift the handle or kind fields.
type Topic struct {
	Node   string
	Handle string
	Kind   Kind
}

// ParamsTopic returns the attribute-update topic for a node.
func ParamsTopic(nodeID string) Topic {
	return Topic{Node: nodeID, Handle: ParamsHandle, Kind: KindUpdateParams}
}

// String renders the canonical wire form of the topic.
func (t Topic) String() string {
	return t.Node + "." + t.Handle + "." + string(t.Kind)
}

// ParseTopic decodes the wire form back into a structured topic. The handle
// and kind are the final two segments; everything before them is the node id,
// which may itself contain dots for nested instances.
func ParseTopic(raw string) (Topic, error) {
	parts := strings.Split(raw, ".")
	if len(parts) < 3 {
		return Topic{}, fmt.Errorf("malformed topic %q: want <node>.<handle>.<kind>", raw)
	}

	kind := parts[len(parts)-1]
	handle := parts[len(parts)-2]
	node := strings.Join(parts[:len(parts)-2], ".")
	if node == "" || handle == "" || kind == "" {
		return Topic{}, fmt.Errorf("malformed topic %q: empty segment", raw)
	}

	return Topic{Node: node, Handle: handle, Kind: Kind(kind)}, nil
}
