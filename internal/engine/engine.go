package engine

import "time"

// Param is an automatable parameter exposed by a primitive. Automation calls
// mirror the scheduling surface of a web-audio style rendering engine.
type Param interface {
	// Value reports the parameter's current effective value, including the
	// progress of any ramp in flight.
	Value() float64
	// SetValueAtTime schedules an instantaneous step to value at the given time.
	SetValueAtTime(value float64, at time.Time)
	// LinearRampToValueAtTime schedules a linear ramp from the previous
	// scheduled point to value, ending at the given time.
	LinearRampToValueAtTime(value float64, at time.Time)
	// CancelScheduledValues drops every scheduled point at or after the
	// given time.
	CancelScheduledValues(from time.Time)
}

// Primitive is one unit in the engine's signal graph. A node instance owns
// at most one.
type Primitive interface {
	// Kind names the primitive type, e.g. "oscillator" or "gain".
	Kind() string
	// Param looks up an automatable parameter by name.
	Param(name string) (Param, bool)
}

// Engine constructs primitives and maintains the live connection topology.
// Implementations are not required to be safe for concurrent use; the
// runtime serializes all calls on its run loop.
type Engine interface {
	// NewOscillator, NewGain, NewBiquadFilter, NewDelay, NewCompressor and
	// NewConvolver construct the built-in primitive types.
	NewOscillator() Primitive
	NewGain() Primitive
	NewBiquadFilter() Primitive
	NewDelay() Primitive
	NewCompressor() Primitive
	NewConvolver() Primitive

	// NewWorklet constructs a custom processor primitive with the declared
	// automatable parameters and their initial values.
	NewWorklet(processor string, params map[string]float64) (Primitive, error)

	// Destination returns the engine's single terminal sink.
	Destination() Primitive

	// Connect wires a primitive's signal output into another primitive's
	// signal input.
	Connect(from, to Primitive) error
	// ConnectParam wires a primitive's signal output into an automatable
	// parameter, establishing a modulation connection.
	ConnectParam(from Primitive, target Param) error

	// Disconnect removes one signal connection; DisconnectParam removes one
	// modulation connection; DisconnectAll removes every connection into and
	// out of the primitive and releases it.
	Disconnect(from, to Primitive) error
	DisconnectParam(from Primitive, target Param) error
	DisconnectAll(p Primitive) error

	// Now reports the engine's current time, the reference for all
	// automation scheduling.
	Now() time.Time
}
