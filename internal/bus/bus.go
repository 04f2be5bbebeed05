package bus

import (
	"context"

	"github.com/k1ln/synflow-sub000/internal/ctxlog"
)

// Handler consumes one event payload.
type Handler func(ctx context.Context, payload any)

// Subscription identifies one registered handler so it can be removed later.
type Subscription struct {
	topic Topic
	id    int
}

type entry struct {
	id int
	fn Handler
}

// Bus is a synchronous topic-keyed event dispatcher. It is not safe for
// concurrent use; all access is expected to happen on the run loop.
type Bus struct {
	subs   map[Topic][]entry
	nextID int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]entry)}
}

// Subscribe registers a handler for exactly the given topic. There is no
// wildcard matching; emitters construct the exact topic per event.
func (b *Bus) Subscribe(topic Topic, fn Handler) *Subscription {
	b.nextID++
	b.subs[topic] = append(b.subs[topic], entry{id: b.nextID, fn: fn})
	return &Subscription{topic: topic, id: b.nextID}
}

// Unsubscribe removes a single subscription. Unknown subscriptions are a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	entries := b.subs[sub.topic]
	for i, e := range entries {
		if e.id == sub.id {
			b.subs[sub.topic] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.topic]) == 0 {
		delete(b.subs, sub.topic)
	}
}

// UnsubscribeTopic removes every handler registered for the topic.
func (b *Bus) UnsubscribeTopic(topic Topic) {
	delete(b.subs, topic)
}

// UnsubscribeNode removes every subscription whose topic addresses the node.
// Used during node disposal so a destroyed node can never be re-entered.
func (b *Bus) UnsubscribeNode(nodeID string) {
	for topic := range b.subs {
		if topic.Node == nodeID {
			delete(b.subs, topic)
		}
	}
}

// Emit delivers the payload synchronously to all current subscribers of the
// topic. Handlers may emit further events; those are fully processed before
// Emit returns. Handlers may also subscribe or unsubscribe mid-delivery;
// such changes affect later emissions, not the one in flight.
func (b *Bus) Emit(ctx context.Context, topic Topic, payload any) {
	entries := b.subs[topic]
	if len(entries) == 0 {
		ctxlog.FromContext(ctx).Debug("event had no subscribers", "topic", topic.String())
		return
	}

	// Snapshot so mid-delivery mutation can't skip or double-call a handler.
	snapshot := make([]entry, len(entries))
	copy(snapshot, entries)

	for _, e := range snapshot {
		e.fn(ctx, payload)
	}
}

// SubscriberCount reports how many handlers are registered for the topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	return len(b.subs[topic])
}
