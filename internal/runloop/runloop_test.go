package runloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJobsRunInOrder(t *testing.T) {
	t.Parallel()

	loop := New()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	defer cancel()

	var got []int
	err := loop.Do(ctx, func(ctx context.Context) error {
		got = append(got, 1)
		loop.Post(func(ctx context.Context) { got = append(got, 3) })
		got = append(got, 2)
		return nil
	})
	require.NoError(t, err)

	// Flush the nested post.
	require.NoError(t, loop.Do(ctx, func(ctx context.Context) error { return nil }))
	require.Equal(t, []int{1, 2, 3}, got, "a job posted mid-job runs after the current job completes")
}

func TestDoReturnsJobError(t *testing.T) {
	t.Parallel()

	loop := New()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	defer cancel()

	wantErr := errors.New("wiring failed")
	err := loop.Do(ctx, func(ctx context.Context) error { return wantErr })
	require.ErrorIs(t, err, wantErr)
}

func TestPostAfterStopIsDropped(t *testing.T) {
	t.Parallel()

	loop := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	cancel()
	<-done

	ran := make(chan struct{})
	loop.Post(func(ctx context.Context) { close(ran) })

	select {
	case <-ran:
		t.Fatal("job ran after loop shutdown")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	loop := New() // never run
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := loop.Do(ctx, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
