package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/k1ln/synflow-sub000/internal/bus"
	"github.com/k1ln/synflow-sub000/internal/control"
	"github.com/k1ln/synflow-sub000/internal/ctxlog"
	"github.com/k1ln/synflow-sub000/internal/engine"
	"github.com/k1ln/synflow-sub000/internal/engine/memengine"
	"github.com/k1ln/synflow-sub000/internal/graph"
	"github.com/k1ln/synflow-sub000/internal/patch"
	"github.com/k1ln/synflow-sub000/internal/registry"
	"github.com/k1ln/synflow-sub000/internal/runloop"
	"github.com/k1ln/synflow-sub000/internal/sched"
	"github.com/k1ln/synflow-sub000/internal/vnode"
)

// App encapsulates the runtime's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config

	bus      *bus.Bus
	engine   engine.Engine
	loop     *runloop.Loop
	sched    *sched.Scheduler
	registry *registry.Registry
	manager  *graph.Manager
	control  *control.Server

	patch   *patch.Patch
	library *patch.Library
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger, loads the patch
// from disk, and registers the core node kinds. An engine may be injected;
// nil selects the in-memory engine.
func NewApp(outW io.Writer, config *Config, eng engine.Engine) (*App, error) {
	logger := newLogger(config.LogLevel, config.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if eng == nil {
		eng = memengine.New()
	}

	loaded, library, err := patch.NewLoader().Load(ctx, config.PatchPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load patch: %w", err)
	}

	reg := registry.New()
	reg.RegisterKinds(vnode.CoreKinds())
	logger.Debug("Core node kinds registered.", "kinds", reg.Kinds())

	b := bus.New()
	loop := runloop.New()
	s := sched.New(clock.New(), loop)

	a := &App{
		outW:     outW,
		logger:   logger,
		config:   config,
		bus:      b,
		engine:   eng,
		loop:     loop,
		sched:    s,
		registry: reg,
		manager:  graph.New(b, eng, s, reg, library),
		patch:    loaded,
		library:  library,
	}
	a.control = control.NewServer(loop, b, a.manager)
	return a, nil
}

// Manager returns the graph manager. This is primarily for testing.
func (a *App) Manager() *graph.Manager { return a.manager }

// Logger returns the app's isolated logger.
func (a *App) Logger() *slog.Logger { return a.logger }
