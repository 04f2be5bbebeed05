// Package runloop provides the single-threaded cooperative event loop that
// serializes all graph mutation and event routing. Timer callbacks and
// control sessions never touch the graph directly; they post jobs here, and
// each job runs to completion before the next one starts.
package runloop

import (
	"context"
	"sync"

	"github.com/k1ln/synflow-sub000/internal/ctxlog"
)

// Loop is an unbounded FIFO job queue drained by a single goroutine.
type Loop struct {
	mu     sync.Mutex
	queue  []func(ctx context.Context)
	wake   chan struct{}
	closed bool
}

// New creates a loop. Run must be called for jobs to execute.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post enqueues a job. Safe to call from any goroutine, including from a job
// already running on the loop. Jobs posted after the loop stops are dropped.
func (l *Loop) Post(job func(ctx context.Context)) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, job)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do enqueues a job and blocks until it has run, returning its error. Must
// not be called from a job already on the loop; that would deadlock.
func (l *Loop) Do(ctx context.Context, job func(ctx context.Context) error) error {
	done := make(chan error, 1)
	l.Post(func(ctx context.Context) {
		done <- job(ctx)
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains jobs until the context is cancelled. It owns the calling
// goroutine; everything posted runs here, in order.
func (l *Loop) Run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Run loop started.")

	for {
		for {
			job := l.next()
			if job == nil {
				break
			}
			job(ctx)
		}

		select {
		case <-ctx.Done():
			l.shutdown()
			logger.Debug("Run loop stopped.")
			return
		case <-l.wake:
		}
	}
}

func (l *Loop) next() func(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	job := l.queue[0]
	l.queue = l.queue[1:]
	return job
}

func (l *Loop) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.queue = nil
}
