package vnode

import (
	"context"

	"github.com/k1ln/synflow-sub000/internal/bus"
	"github.com/k1ln/synflow-sub000/internal/patch"
)

// sequencer advances one step per incoming trigger and pulses the outputs
// of every row whose pattern cell is active at the current step. Each row
// fans out through its own "output-N" handle.
type sequencer struct {
	*Base
	position int
}

// NewSequencer builds a step sequencer. The attribute bag carries the
// pattern as a list of rows, each a list of 0/1 cells.
func NewSequencer(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	s := &sequencer{Base: NewBase(env, node, nil), position: -1}

	s.SubscribeHandle("trigger", bus.KindReceiveOn, s.step)
	// Reset rewinds without emitting. Reset edges sort ahead of trigger
	// edges in the fan-out index, so a same-tick reset lands first.
	s.SubscribeHandle("reset", bus.KindReceiveOn, func(ctx context.Context, payload any) {
		s.position = -1
	})

	s.OnParams(func(ctx context.Context, changed map[string]any) {
		if _, ok := changed["pattern"]; ok && s.position >= s.length()-1 {
			s.position = -1
		}
	})

	return s, nil
}

func (s *sequencer) pattern() []any {
	rows, _ := s.Data()["pattern"].([]any)
	return rows
}

func (s *sequencer) length() int {
	max := 0
	for _, raw := range s.pattern() {
		if row, ok := raw.([]any); ok && len(row) > max {
			max = len(row)
		}
	}
	return max
}

func (s *sequencer) step(ctx context.Context, payload any) {
	length := s.length()
	if length == 0 {
		return
	}
	s.position = (s.position + 1) % length

	out := Trigger{Source: s.ID()}
	for rowIdx, raw := range s.pattern() {
		row, ok := raw.([]any)
		if !ok || s.position >= len(row) {
			continue
		}
		if cell, ok := ToFloat(row[s.position]); !ok || cell == 0 {
			continue
		}

		s.Env().Bus.Emit(ctx, bus.Topic{Node: s.ID(), Handle: outputHandle(rowIdx), Kind: bus.KindSendOn}, out)
		s.Env().Router.EmitToConnectedEdgesFiltered(ctx, s.ID(), out, bus.KindReceiveOn, rowIdx)
	}
}
