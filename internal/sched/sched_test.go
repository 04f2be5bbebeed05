package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k1ln/synflow-sub000/internal/testutil"
)

// fixture wires a mock clock, a running loop, and a scheduler together.
// flush blocks until every job fired so far has run on the loop.
type fixture struct {
	mock  *clock.Mock
	sched *Scheduler
	flush func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mock := clock.NewMock()
	loop := testutil.StartLoop(t)
	s := New(mock, loop)
	return &fixture{
		mock:  mock,
		sched: s,
		flush: func() { testutil.Flush(t, loop) },
	}
}

func TestScheduleFiresAtDeadline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var fired atomic.Int32
	f.sched.Schedule("clock1", 500*time.Millisecond, func(ctx context.Context) {
		fired.Add(1)
	})

	f.mock.Add(499 * time.Millisecond)
	f.flush()
	assert.Zero(t, fired.Load(), "must not fire before the deadline")

	f.mock.Add(time.Millisecond)
	f.flush()
	assert.Equal(t, int32(1), fired.Load())

	f.mock.Add(time.Second)
	f.flush()
	assert.Equal(t, int32(1), fired.Load(), "one-shot timer")
	assert.Zero(t, f.sched.PendingCount("clock1"))
}

func TestShortDelayUsesFinePolling(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var fired atomic.Int32
	f.sched.Schedule("env1", 5*time.Millisecond, func(ctx context.Context) {
		fired.Add(1)
	})

	f.mock.Add(5 * time.Millisecond)
	f.flush()
	assert.Equal(t, int32(1), fired.Load())
}

func TestAbsoluteDeadlinesDoNotDrift(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	anchor := f.sched.Now()
	interval := 250 * time.Millisecond

	var fireTimes []time.Duration
	for i := 1; i <= 4; i++ {
		deadline := anchor.Add(time.Duration(i) * interval)
		f.sched.ScheduleAt("clock1", deadline, func(ctx context.Context) {
			fireTimes = append(fireTimes, f.sched.Now().Sub(anchor))
		})
	}

	// Advance one interval at a time so each observed firing time is exact.
	for i := 1; i <= 4; i++ {
		f.mock.Add(interval)
		f.flush()
		require.Len(t, fireTimes, i)
		assert.Equal(t, time.Duration(i)*interval, fireTimes[i-1],
			"tick %d fired off its absolute deadline", i)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var fired atomic.Int32
	h := f.sched.Schedule("clock1", 100*time.Millisecond, func(ctx context.Context) {
		fired.Add(1)
	})

	h.Cancel()
	h.Cancel() // idempotent

	f.mock.Add(time.Second)
	f.flush()
	assert.Zero(t, fired.Load())
	assert.Zero(t, f.sched.PendingCount("clock1"))
}

func TestCancelOwnerClearsAllPendingTimers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var fired atomic.Int32
	for i := 0; i < 3; i++ {
		f.sched.Schedule("seq1", time.Duration(i+1)*100*time.Millisecond, func(ctx context.Context) {
			fired.Add(1)
		})
	}
	f.sched.Schedule("other", 100*time.Millisecond, func(ctx context.Context) {
		fired.Add(100)
	})

	f.sched.CancelOwner("seq1")
	assert.Zero(t, f.sched.PendingCount("seq1"))

	f.mock.Add(time.Second)
	f.flush()
	assert.Equal(t, int32(100), fired.Load(), "only the other owner's timer survives")
}
