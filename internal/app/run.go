package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/k1ln/synflow-sub000/internal/ctxlog"
)

// Run brings the graph up and serves it until the context is cancelled or a
// termination signal arrives. Shutdown order matters: stop accepting control
// requests first, then tear the graph down on the loop, then stop the loop.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	// The loop outlives the caller's context so the final dispose job can
	// still run during shutdown; it is stopped explicitly at the end.
	loopCtx, stopLoop := context.WithCancel(ctxlog.WithLogger(context.Background(), a.logger))
	defer stopLoop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		a.loop.Run(loopCtx)
	}()

	if err := a.loop.Do(ctx, func(ctx context.Context) error {
		a.manager.Apply(ctx, *a.patch)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}
	a.logger.Info("🎚️ Graph is live.",
		"nodes", a.manager.InstanceCount(), "templates", a.library.Len())

	if a.config.ControlPort > 0 {
		if err := a.control.Start(ctx, a.config.ControlPort); err != nil {
			return err
		}
	} else {
		a.logger.Warn("Control server not started: disabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.logger.Info("Termination signal received, shutting down.", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("Context cancelled, shutting down.")
	}

	// The caller's context is already cancelled at this point; shutdown gets
	// its own deadline.
	if a.config.ControlPort > 0 {
		if err := a.control.Shutdown(ctxlog.WithLogger(context.Background(), a.logger)); err != nil {
			a.logger.Error("Control server shutdown failed.", "error", err)
		}
	}

	_ = a.loop.Do(context.Background(), func(ctx context.Context) error {
		a.manager.Dispose(ctx)
		return nil
	})

	stopLoop()
	<-loopDone
	a.logger.Debug("App.Run method finished.")
	return nil
}
