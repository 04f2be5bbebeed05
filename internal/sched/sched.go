// Package sched provides cancellable timers for node instances. Deadlines
// are absolute, so callers anchor their schedules to a fixed start time and
// avoid accumulating timer-callback latency. Fired callbacks are posted to
// the run loop; nothing in this package touches graph state directly.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/k1ln/synflow-sub000/internal/runloop"
)

const (
	// fineWindow is the horizon under which waiting switches from one coarse
	// timer to short polling steps, trading wakeups for less jitter.
	fineWindow = 20 * time.Millisecond
	// pollInterval is the fine polling step.
	pollInterval = time.Millisecond
)

// Scheduler arms timers on behalf of node instances and tracks them per
// owner so a node's pending timers can all be cleared when a relevant
// parameter changes or the node is disposed.
type Scheduler struct {
	clock clock.Clock
	loop  *runloop.Loop

	mu      sync.Mutex
	nextID  int
	byOwner map[string]map[int]*Handle
}

// Handle identifies one armed timer.
type Handle struct {
	s         *Scheduler
	owner     string
	id        int
	timer     *clock.Timer
	cancelled bool
}

// New creates a scheduler that fires jobs onto the given loop.
func New(c clock.Clock, loop *runloop.Loop) *Scheduler {
	return &Scheduler{clock: c, loop: loop, byOwner: make(map[string]map[int]*Handle)}
}

// Now reports the scheduler's current time.
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// Schedule arms a timer owned by ownerID that posts job to the run loop
// after delay. Negative delays fire as soon as the loop is free.
func (s *Scheduler) Schedule(ownerID string, delay time.Duration, job func(ctx context.Context)) *Handle {
	return s.ScheduleAt(ownerID, s.clock.Now().Add(delay), job)
}

// ScheduleAt arms a timer for an absolute deadline.
func (s *Scheduler) ScheduleAt(ownerID string, deadline time.Time, job func(ctx context.Context)) *Handle {
	s.mu.Lock()
	s.nextID++
	h := &Handle{s: s, owner: ownerID, id: s.nextID}
	if s.byOwner[ownerID] == nil {
		s.byOwner[ownerID] = make(map[int]*Handle)
	}
	s.byOwner[ownerID][h.id] = h
	s.armLocked(h, deadline, job)
	s.mu.Unlock()
	return h
}

// armLocked sets the next wakeup for a handle. Far deadlines use a single
// coarse timer into the fine window; near deadlines poll in short steps
// until the deadline passes.
func (s *Scheduler) armLocked(h *Handle, deadline time.Time, job func(ctx context.Context)) {
	if h.cancelled {
		return
	}

	remaining := deadline.Sub(s.clock.Now())
	switch {
	case remaining <= 0:
		s.dropLocked(h)
		s.loop.Post(job)
	case remaining > fineWindow:
		h.timer = s.clock.AfterFunc(remaining-fineWindow, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.armLocked(h, deadline, job)
		})
	default:
		step := remaining
		if step > pollInterval {
			step = pollInterval
		}
		h.timer = s.clock.AfterFunc(step, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.armLocked(h, deadline, job)
		})
	}
}

func (s *Scheduler) dropLocked(h *Handle) {
	if owned := s.byOwner[h.owner]; owned != nil {
		delete(owned, h.id)
		if len(owned) == 0 {
			delete(s.byOwner, h.owner)
		}
	}
}

// Cancel disarms the timer. Safe to call multiple times and after firing.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
	}
	h.s.dropLocked(h)
}

// CancelOwner disarms every pending timer owned by the node.
func (s *Scheduler) CancelOwner(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.byOwner[ownerID] {
		h.cancelled = true
		if h.timer != nil {
			h.timer.Stop()
		}
	}
	delete(s.byOwner, ownerID)
}

// PendingCount reports how many timers the node still has armed.
func (s *Scheduler) PendingCount(ownerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byOwner[ownerID])
}
