package vnode

import (
	"context"
	"time"

	"github.com/k1ln/synflow-sub000/internal/bus"
	"github.com/k1ln/synflow-sub000/internal/ctxlog"
	"github.com/k1ln/synflow-sub000/internal/patch"
	"github.com/k1ln/synflow-sub000/internal/sched"
)

// minBridgeDelay floors the bridging delay scheduled when the rate changes
// mid-cycle, so a nearly-elapsed cycle cannot fire a burst of instant ticks.
const minBridgeDelay = 5 * time.Millisecond

// clockNode emits trigger events at a BPM-derived interval. Steady-state
// deadlines are computed from an absolute anchor plus tick count, not from
// the previous callback's firing time, so timer latency never accumulates.
type clockNode struct {
	*Base

	running   bool
	anchor    time.Time
	tickCount int
	lastTick  time.Time
	pending   *sched.Handle
	// knownBPM is the rate the current cycle was scheduled with; the params
	// hook runs after the merge, so the old rate must be remembered here.
	knownBPM float64
}

// NewClock builds a clock node. Attribute bag: bpm (default 120), running
// (default false).
func NewClock(ctx context.Context, env Env, node patch.Node) (Instance, error) {
	c := &clockNode{Base: NewBase(env, node, nil)}
	c.knownBPM = FloatAttr(node.Data, "bpm", 120)

	c.SubscribeHandle("trigger", bus.KindReceiveOn, func(ctx context.Context, payload any) {
		c.start(ctx)
	})
	c.SubscribeHandle("trigger", bus.KindReceiveOff, func(ctx context.Context, payload any) {
		c.stop()
	})

	c.OnParams(func(ctx context.Context, changed map[string]any) {
		if _, ok := changed["bpm"]; ok {
			c.rebridge(ctx)
		}
		if v, ok := changed["running"]; ok {
			if run, _ := v.(bool); run {
				c.start(ctx)
			} else {
				c.stop()
			}
		}
	})
	c.OnDispose(func(ctx context.Context) { c.stop() })

	if BoolAttr(node.Data, "running", false) {
		c.start(ctx)
	}

	return c, nil
}

func (c *clockNode) interval() time.Duration {
	bpm := FloatAttr(c.Data(), "bpm", 120)
	if bpm <= 0 {
		bpm = 120
	}
	return time.Duration(float64(time.Minute) / bpm)
}

func (c *clockNode) start(ctx context.Context) {
	if c.running {
		return
	}
	c.running = true
	c.resetAnchor()
	c.scheduleNext(ctx)
}

func (c *clockNode) stop() {
	c.running = false
	if c.pending != nil {
		c.pending.Cancel()
		c.pending = nil
	}
}

func (c *clockNode) resetAnchor() {
	c.anchor = c.Env().Sched.Now()
	c.tickCount = 0
	c.lastTick = c.anchor
}

// scheduleNext arms the next steady-state deadline off the absolute anchor.
func (c *clockNode) scheduleNext(ctx context.Context) {
	deadline := c.anchor.Add(time.Duration(c.tickCount+1) * c.interval())
	c.pending = c.Env().Sched.ScheduleAt(c.ID(), deadline, func(ctx context.Context) {
		if !c.running {
			return
		}
		c.tickCount++
		c.tick(ctx)
		c.scheduleNext(ctx)
	})
}

// tick fans the pulse out along the clock's declared edges and announces it
// on the clock's own output topic.
func (c *clockNode) tick(ctx context.Context) {
	c.lastTick = c.Env().Sched.Now()
	payload := Trigger{Source: c.ID()}
	c.Env().Bus.Emit(ctx, bus.Topic{Node: c.ID(), Handle: "output-0", Kind: bus.KindSendOn}, payload)
	c.Env().Router.EmitToConnectedEdges(ctx, c.ID(), payload, bus.KindReceiveOn)
}

// rebridge handles a rate change mid-cycle without tick loss or double
// fire: one bridging delay covers the remainder of the current cycle at the
// new rate, then steady-state scheduling resumes from a fresh anchor.
func (c *clockNode) rebridge(ctx context.Context) {
	if !c.running {
		c.knownBPM = FloatAttr(c.Data(), "bpm", 120)
		return
	}

	oldInterval := c.intervalFromBPM(c.knownBPM)
	if oldInterval <= 0 {
		oldInterval = c.interval()
	}
	newInterval := c.interval()
	c.knownBPM = FloatAttr(c.Data(), "bpm", 120)

	now := c.Env().Sched.Now()
	phase := float64(now.Sub(c.lastTick)) / float64(oldInterval)
	if phase > 1 {
		phase = 1
	}

	bridge := time.Duration(float64(newInterval) * (1 - phase))
	if bridge < minBridgeDelay {
		bridge = minBridgeDelay
	}

	if c.pending != nil {
		c.pending.Cancel()
	}

	ctxlog.FromContext(ctx).Debug("clock rate changed mid-cycle",
		"node", c.ID(), "phase", phase, "bridge", bridge.String())

	c.pending = c.Env().Sched.Schedule(c.ID(), bridge, func(ctx context.Context) {
		if !c.running {
			return
		}
		c.resetAnchor()
		c.tick(ctx)
		c.scheduleNext(ctx)
	})
}

func (c *clockNode) intervalFromBPM(bpm float64) time.Duration {
	if bpm <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute) / bpm)
}
