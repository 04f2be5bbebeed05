package memengine

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/k1ln/synflow-sub000/internal/engine"
)

// prim implements engine.Primitive.
type prim struct {
	id     int
	kind   string
	params map[string]*param
}

func (p *prim) Kind() string { return p.kind }

func (p *prim) Param(name string) (engine.Param, bool) {
	pa, ok := p.params[name]
	if !ok {
		return nil, false
	}
	return pa, true
}

func (p *prim) String() string { return fmt.Sprintf("%s#%d", p.kind, p.id) }

// Connection is one recorded wiring. ToParam is nil for signal connections
// and set for modulation connections.
type Connection struct {
	From    engine.Primitive
	To      engine.Primitive
	ToParam engine.Param
}

// Engine is the recording in-memory engine implementation.
type Engine struct {
	clock       clock.Clock
	nextID      int
	destination *prim
	connections []Connection

	// InjectConnectErr, when non-nil, is returned by the next Connect or
	// ConnectParam call and then cleared. Used to exercise wiring-error paths.
	InjectConnectErr error
}

// New creates an engine running on the real clock.
func New() *Engine {
	return NewWithClock(clock.New())
}

// NewWithClock creates an engine whose automation timeline follows the given
// clock, typically a mock in tests.
func NewWithClock(c clock.Clock) *Engine {
	e := &Engine{clock: c}
	e.destination = e.newPrim("destination", nil)
	return e
}

func (e *Engine) newPrim(kind string, defaults map[string]float64) *prim {
	e.nextID++
	p := &prim{id: e.nextID, kind: kind, params: make(map[string]*param, len(defaults))}
	for name, initial := range defaults {
		p.params[name] = &param{eng: e, owner: p, name: name, initial: initial}
	}
	return p
}

func (e *Engine) NewOscillator() engine.Primitive {
	return e.newPrim("oscillator", map[string]float64{"frequency": 440, "detune": 0})
}

func (e *Engine) NewGain() engine.Primitive {
	return e.newPrim("gain", map[string]float64{"gain": 1})
}

func (e *Engine) NewBiquadFilter() engine.Primitive {
	return e.newPrim("biquadfilter", map[string]float64{"frequency": 350, "Q": 1, "gain": 0, "detune": 0})
}

func (e *Engine) NewDelay() engine.Primitive {
	return e.newPrim("delay", map[string]float64{"delayTime": 0})
}

func (e *Engine) NewCompressor() engine.Primitive {
	return e.newPrim("compressor", map[string]float64{
		"threshold": -24, "knee": 30, "ratio": 12, "attack": 0.003, "release": 0.25,
	})
}

func (e *Engine) NewConvolver() engine.Primitive {
	return e.newPrim("convolver", nil)
}

func (e *Engine) NewWorklet(processor string, params map[string]float64) (engine.Primitive, error) {
	if processor == "" {
		return nil, fmt.Errorf("worklet processor name cannot be empty")
	}
	return e.newPrim("worklet:"+processor, params), nil
}

func (e *Engine) Destination() engine.Primitive { return e.destination }

func (e *Engine) takeInjectedErr() error {
	err := e.InjectConnectErr
	e.InjectConnectErr = nil
	return err
}

func (e *Engine) Connect(from, to engine.Primitive) error {
	if err := e.takeInjectedErr(); err != nil {
		return err
	}

	f, fok := from.(*prim)
	t, tok := to.(*prim)
	if !fok || !tok {
		return fmt.Errorf("foreign primitive passed to memengine connect")
	}

	e.connections = append(e.connections, Connection{From: f, To: t})
	return nil
}

func (e *Engine) ConnectParam(from engine.Primitive, target engine.Param) error {
	if err := e.takeInjectedErr(); err != nil {
		return err
	}

	f, fok := from.(*prim)
	pa, pok := target.(*param)
	if !fok || !pok {
		return fmt.Errorf("foreign primitive or param passed to memengine connect")
	}

	e.connections = append(e.connections, Connection{From: f, To: pa.owner, ToParam: pa})
	return nil
}

func (e *Engine) Disconnect(from, to engine.Primitive) error {
	return e.removeConnections(func(c Connection) bool {
		return c.From == from && c.To == to && c.ToParam == nil
	})
}

func (e *Engine) DisconnectParam(from engine.Primitive, target engine.Param) error {
	return e.removeConnections(func(c Connection) bool {
		return c.From == from && c.ToParam == target
	})
}

func (e *Engine) DisconnectAll(p engine.Primitive) error {
	return e.removeConnections(func(c Connection) bool {
		return c.From == p || c.To == p
	})
}

func (e *Engine) removeConnections(match func(Connection) bool) error {
	kept := e.connections[:0]
	for _, c := range e.connections {
		if !match(c) {
			kept = append(kept, c)
		}
	}
	e.connections = kept
	return nil
}

func (e *Engine) Now() time.Time { return e.clock.Now() }

// Connections returns a copy of the current connection list, in wiring order.
func (e *Engine) Connections() []Connection {
	out := make([]Connection, len(e.connections))
	copy(out, e.connections)
	return out
}

// IsConnected reports whether a signal connection from→to exists.
func (e *Engine) IsConnected(from, to engine.Primitive) bool {
	for _, c := range e.connections {
		if c.From == from && c.To == to && c.ToParam == nil {
			return true
		}
	}
	return false
}

// ParamConnectionCount counts active modulation connections into the param.
func (e *Engine) ParamConnectionCount(target engine.Param) int {
	n := 0
	for _, c := range e.connections {
		if c.ToParam == target {
			n++
		}
	}
	return n
}

// EventsOf exposes a parameter's recorded automation schedule for inspection.
func EventsOf(p engine.Param) []AutomationEvent {
	if pa, ok := p.(*param); ok {
		return pa.Events()
	}
	return nil
}
