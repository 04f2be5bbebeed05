package vnode

import (
	"context"
	"fmt"

	"github.com/k1ln/synflow-sub000/internal/bus"
	"github.com/k1ln/synflow-sub000/internal/engine"
	"github.com/k1ln/synflow-sub000/internal/patch"
)

// Kind tags of the closed node-type set.
const (
	KindOscillator  = "oscillator"
	KindGain        = "gain"
	KindFilter      = "filter"
	KindDelay       = "delay"
	KindCompressor  = "compressor"
	KindConvolver   = "convolver"
	KindWorklet     = "worklet"
	KindMixer       = "mixer"
	KindDestination = "destination"
	KindConstant    = "constant"
	KindADSR        = "adsr"
	KindClock       = "clock"
	KindSequencer   = "sequencer"
	KindSwitch      = "switch"
	KindBlockSwitch = "blockingswitch"
	KindFormula     = "formula"
	KindInput       = "input"
	KindOutput      = "output"
	KindGroup       = "group"
)

// newPrimitiveNode wraps one engine primitive and seeds its parameters from
// the attribute bag.
func newPrimitiveNode(ctx context.Context, env Env, node patch.Node, prim engine.Primitive) *Base {
	b := NewBase(env, node, prim)
	b.ApplyParams(ctx, node.Data)
	return b
}

// NewOscillator builds an oscillator node. The waveform lives in the data
// bag; frequency and detune are automatable.
func NewOscillator(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	return newPrimitiveNode(ctx, env, node, env.Engine.NewOscillator()), nil
}

func NewGain(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	return newPrimitiveNode(ctx, env, node, env.Engine.NewGain()), nil
}

func NewFilter(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	return newPrimitiveNode(ctx, env, node, env.Engine.NewBiquadFilter()), nil
}

func NewDelay(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	return newPrimitiveNode(ctx, env, node, env.Engine.NewDelay()), nil
}

func NewCompressor(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	return newPrimitiveNode(ctx, env, node, env.Engine.NewCompressor()), nil
}

func NewConvolver(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	return newPrimitiveNode(ctx, env, node, env.Engine.NewConvolver()), nil
}

// NewWorklet hosts a custom processor. The data bag declares the processor
// name and its automatable parameters.
func NewWorklet(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	processor := StringAttr(node.Data, "processor", "")
	params := map[string]float64{}
	if raw, ok := node.Data["params"].(map[string]any); ok {
		for name, v := range raw {
			if f, fok := ToFloat(v); fok {
				params[name] = f
			}
		}
	}

	prim, err := env.Engine.NewWorklet(processor, params)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", node.ID, err)
	}
	return newPrimitiveNode(ctx, env, node, prim), nil
}

// NewDestination wraps the engine's terminal sink.
func NewDestination(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	b := NewBase(env, node, env.Engine.Destination())
	b.MarkSharedPrimitive()
	return b, nil
}

// NewMixer builds a node with several distinct signal inputs. Each input
// handle "input-N" is its own gain stage feeding a summing gain, and each
// stage's level is automatable as "gain-N".
func NewMixer(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	numInputs := IntAttr(node.Data, "numInputs", 2)
	if numInputs < 1 {
		return nil, fmt.Errorf("node %q: mixer needs at least one input, got %d", node.ID, numInputs)
	}

	sum := env.Engine.NewGain()
	b := NewBase(env, node, sum)

	for i := 0; i < numInputs; i++ {
		stage := env.Engine.NewGain()
		if err := env.Engine.Connect(stage, sum); err != nil {
			return nil, fmt.Errorf("node %q: failed to wire mixer stage %d: %w", node.ID, i, err)
		}
		b.AddInput(fmt.Sprintf("input-%d", i), stage)
		if p, ok := stage.Param("gain"); ok {
			b.AddParam(fmt.Sprintf("gain-%d", i), p)
		}
	}

	b.ApplyParams(ctx, node.Data)
	return b, nil
}

// NewConstant builds a control-plane value source: it pushes its value to
// every connected edge whenever the value changes or the node is triggered.
func NewConstant(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	b := NewBase(env, node, nil)

	push := func(ctx context.Context) {
		value := FloatAttr(b.Data(), "value", 0)
		env.Router.EmitToConnectedEdges(ctx, b.ID(), value, bus.KindReceiveOn)
	}

	b.OnParams(func(ctx context.Context, changed map[string]any) {
		if _, ok := changed["value"]; ok {
			push(ctx)
		}
	})
	b.SubscribeHandle("trigger", bus.KindReceiveOn, func(ctx context.Context, payload any) {
		push(ctx)
	})

	return b, nil
}
