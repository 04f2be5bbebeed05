package memengine

import (
	"sort"
	"time"
)

// AutomationOp names one kind of scheduled automation point.
type AutomationOp string

const (
	OpSetValue   AutomationOp = "setValueAtTime"
	OpLinearRamp AutomationOp = "linearRampToValueAtTime"
)

// AutomationEvent is one recorded automation point on a parameter.
type AutomationEvent struct {
	Op    AutomationOp
	Value float64
	At    time.Time
}

// param implements engine.Param by keeping the full schedule and evaluating
// it lazily against the engine clock.
type param struct {
	eng     *Engine
	owner   *prim
	name    string
	initial float64
	events  []AutomationEvent
}

func (p *param) insert(ev AutomationEvent) {
	p.events = append(p.events, ev)
	sort.SliceStable(p.events, func(i, j int) bool {
		return p.events[i].At.Before(p.events[j].At)
	})
}

func (p *param) SetValueAtTime(value float64, at time.Time) {
	p.insert(AutomationEvent{Op: OpSetValue, Value: value, At: at})
}

func (p *param) LinearRampToValueAtTime(value float64, at time.Time) {
	p.insert(AutomationEvent{Op: OpLinearRamp, Value: value, At: at})
}

func (p *param) CancelScheduledValues(from time.Time) {
	kept := p.events[:0]
	for _, ev := range p.events {
		if ev.At.Before(from) {
			kept = append(kept, ev)
		}
	}
	p.events = kept
}

// Value evaluates the schedule at the engine's current time. A linear ramp
// interpolates from the previous point's value and time, matching web-audio
// automation semantics.
func (p *param) Value() float64 {
	return p.valueAt(p.eng.Now())
}

func (p *param) valueAt(t time.Time) float64 {
	prevValue := p.initial
	prevAt := time.Time{}

	for _, ev := range p.events {
		if !ev.At.After(t) {
			prevValue = ev.Value
			prevAt = ev.At
			continue
		}

		if ev.Op == OpLinearRamp && !prevAt.IsZero() && ev.At.After(prevAt) {
			frac := float64(t.Sub(prevAt)) / float64(ev.At.Sub(prevAt))
			return prevValue + (ev.Value-prevValue)*frac
		}
		break
	}

	return prevValue
}

// Events returns a copy of the parameter's recorded schedule.
func (p *param) Events() []AutomationEvent {
	out := make([]AutomationEvent, len(p.events))
	copy(out, p.events)
	return out
}
