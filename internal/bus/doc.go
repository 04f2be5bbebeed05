// Package bus implements the topic-keyed publish/subscribe mechanism that
// carries control events between node instances.
//
// Emission is synchronous and re-entrant: a handler may emit further events,
// which are delivered depth-first before control returns to the original
// emitter. There is no replay; a subscriber added after an emission never
// sees it.
package bus
