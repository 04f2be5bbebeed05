package vnode

import (
	"context"
	"log/slog"

	"github.com/k1ln/synflow-sub000/internal/bus"
	"github.com/k1ln/synflow-sub000/internal/ctxlog"
	"github.com/k1ln/synflow-sub000/internal/patch"
)

// exclusiveSwitch forwards triggers to a single selected output. Changing
// the activeOutput param reroutes subsequent triggers; in-flight gate state
// is not replayed to the new output.
type exclusiveSwitch struct {
	*Base
}

func NewSwitch(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	s := &exclusiveSwitch{Base: NewBase(env, node, nil)}
	s.SubscribeHandle("trigger", bus.KindReceiveOn, func(ctx context.Context, payload any) {
		s.forward(ctx, payload, bus.KindReceiveOn, bus.KindSendOn)
	})
	s.SubscribeHandle("trigger", bus.KindReceiveOff, func(ctx context.Context, payload any) {
		s.forward(ctx, payload, bus.KindReceiveOff, bus.KindSendOff)
	})
	return s, nil
}

func (s *exclusiveSwitch) forward(ctx context.Context, payload any, kind, announce bus.Kind) {
	active := IntAttr(s.Data(), "activeOutput", 0)
	s.Env().Bus.Emit(ctx, bus.Topic{Node: s.ID(), Handle: outputHandle(active), Kind: announce}, payload)
	s.Env().Router.EmitToConnectedEdgesFiltered(ctx, s.ID(), payload, kind, active)
}

// blockingSwitch hands each incoming voice a free output slot and holds it
// until the matching off arrives. Voices are keyed by the trigger source, so
// interleaved gates from different upstream nodes stay on their own slots.
// When every slot is occupied the trigger is dropped.
type blockingSwitch struct {
	*Base
	numOutputs int
	assigned   map[string]int
	occupied   map[int]bool
}

func NewBlockingSwitch(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	s := &blockingSwitch{
		Base:       NewBase(env, node, nil),
		numOutputs: IntAttr(node.Data, "numOutputs", 2),
		assigned:   map[string]int{},
		occupied:   map[int]bool{},
	}
	s.SubscribeHandle("trigger", bus.KindReceiveOn, s.claim)
	s.SubscribeHandle("trigger", bus.KindReceiveOff, s.release)
	return s, nil
}

func (s *blockingSwitch) sourceOf(payload any) string {
	if t, ok := payload.(Trigger); ok {
		return t.Source
	}
	return ""
}

func (s *blockingSwitch) claim(ctx context.Context, payload any) {
	source := s.sourceOf(payload)
	if slot, ok := s.assigned[source]; ok {
		// Retrigger from the same voice reuses its slot.
		s.emit(ctx, slot, payload, bus.KindReceiveOn, bus.KindSendOn)
		return
	}
	for slot := 0; slot < s.numOutputs; slot++ {
		if s.occupied[slot] {
			continue
		}
		s.occupied[slot] = true
		s.assigned[source] = slot
		s.emit(ctx, slot, payload, bus.KindReceiveOn, bus.KindSendOn)
		return
	}
	ctxlog.FromContext(ctx).Debug("blocking switch full, dropping trigger",
		slog.String("node", s.ID()), slog.String("source", source))
}

func (s *blockingSwitch) release(ctx context.Context, payload any) {
	source := s.sourceOf(payload)
	slot, ok := s.assigned[source]
	if !ok {
		return
	}
	delete(s.assigned, source)
	delete(s.occupied, slot)
	s.emit(ctx, slot, payload, bus.KindReceiveOff, bus.KindSendOff)
}

func (s *blockingSwitch) emit(ctx context.Context, slot int, payload any, kind, announce bus.Kind) {
	s.Env().Bus.Emit(ctx, bus.Topic{Node: s.ID(), Handle: outputHandle(slot), Kind: announce}, payload)
	s.Env().Router.EmitToConnectedEdgesFiltered(ctx, s.ID(), payload, kind, slot)
}
