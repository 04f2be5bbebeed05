// Package testutil provides shared fixtures for the runtime's test suites.
package testutil

import (
	"context"
	"testing"

	"github.com/k1ln/synflow-sub000/internal/runloop"
)

// StartLoop runs a fresh run loop on a background goroutine and stops it when
// the test finishes.
func StartLoop(t *testing.T) *runloop.Loop {
	t.Helper()

	loop := runloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go loop.Run(ctx)
	return loop
}

// Flush blocks until every job posted to the loop so far has run.
func Flush(t *testing.T, loop *runloop.Loop) {
	t.Helper()

	if err := loop.Do(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("failed to flush run loop: %v", err)
	}
}
