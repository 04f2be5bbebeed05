package vnode

import (
	"context"
	"math"
	"time"

	"github.com/k1ln/synflow-sub000/internal/bus"
	"github.com/k1ln/synflow-sub000/internal/ctxlog"
	"github.com/k1ln/synflow-sub000/internal/patch"
)

// adsr drives the automatable parameters it is wired to through an
// attack/sustain/release ramp program. It never produces audio; it only
// schedules automation on its modulation targets.
type adsr struct {
	*Base
	active bool
}

// NewADSR builds an envelope node. Attribute bag keys (with defaults):
// attackTime 0.1, sustainTime 0.5, sustainLevel 0.7, releaseTime 0.3 (all
// seconds), minPercent 0, maxPercent 100.
func NewADSR(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	a := &adsr{Base: NewBase(env, node, nil)}

	a.SubscribeHandle("trigger", bus.KindReceiveOn, a.handleOn)
	a.SubscribeHandle("trigger", bus.KindReceiveOff, a.handleOff)

	return a, nil
}

func (a *adsr) secondsAttr(key string, fallback float64) time.Duration {
	return time.Duration(FloatAttr(a.Data(), key, fallback) * float64(time.Second))
}

// bounds computes the envelope's absolute endpoints from the target's
// declared base value. Using the declared base rather than the live value
// keeps repeated retriggers from drifting.
func (a *adsr) bounds(base float64) (minAbs, maxAbs float64) {
	minAbs = base * FloatAttr(a.Data(), "minPercent", 0) / 100
	maxAbs = base * FloatAttr(a.Data(), "maxPercent", 100) / 100
	return minAbs, maxAbs
}

func (a *adsr) handleOn(ctx context.Context, payload any) {
	// A retrigger while already on synthesizes an implicit off first so
	// release and attack never overlap ambiguously.
	if a.active {
		a.handleOff(ctx, payload)
	}
	a.active = true

	env := a.Env()
	attack := a.secondsAttr("attackTime", 0.1)
	sustain := a.secondsAttr("sustainTime", 0.5)
	sustainLevel := FloatAttr(a.Data(), "sustainLevel", 0.7)

	targets := env.Router.AutomationTargets(ctx, a.ID())
	if len(targets) == 0 {
		ctxlog.FromContext(ctx).Debug("envelope triggered with no modulation targets", "node", a.ID())
		return
	}

	now := env.Engine.Now()
	for _, target := range targets {
		minAbs, maxAbs := a.bounds(target.Base)

		current := target.Param.Value()
		target.Param.CancelScheduledValues(now)
		target.Param.SetValueAtTime(math.Max(minAbs, current), now)
		target.Param.LinearRampToValueAtTime(maxAbs, now.Add(attack))
		target.Param.LinearRampToValueAtTime(minAbs+(maxAbs-minAbs)*sustainLevel, now.Add(attack+sustain))
	}
}

func (a *adsr) handleOff(ctx context.Context, payload any) {
	if !a.active {
		return
	}
	a.active = false

	env := a.Env()
	release := a.secondsAttr("releaseTime", 0.3)

	now := env.Engine.Now()
	for _, target := range env.Router.AutomationTargets(ctx, a.ID()) {
		minAbs, _ := a.bounds(target.Base)

		current := target.Param.Value()
		target.Param.CancelScheduledValues(now)
		target.Param.SetValueAtTime(current, now)
		target.Param.LinearRampToValueAtTime(minAbs, now.Add(release))
	}
}
