// Package control is the runtime's live control surface: a small HTTP
// server carrying a health endpoint and a websocket endpoint over which an
// editor pushes patches, parameter updates, and trigger events as JSON.
//
// Sessions never touch graph state themselves; every request is posted to
// the run loop, which keeps the single-goroutine ownership of the graph
// intact no matter how many editors are connected.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/k1ln/synflow-sub000/internal/bus"
	"github.com/k1ln/synflow-sub000/internal/ctxlog"
	"github.com/k1ln/synflow-sub000/internal/graph"
	"github.com/k1ln/synflow-sub000/internal/runloop"
)

// Server serves the control surface on one TCP port.
type Server struct {
	loop *runloop.Loop
	bus  *bus.Bus
	mgr  *graph.Manager

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener
}

// NewServer wires a control server to the runtime's loop, bus, and manager.
func NewServer(loop *runloop.Loop, b *bus.Bus, mgr *graph.Manager) *Server {
	return &Server{
		loop: loop,
		bus:  b,
		mgr:  mgr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The editor is a local tool; origin enforcement is left to a
			// fronting proxy in shared deployments.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start begins listening on the port. Port 0 picks a free one; Addr reports
// the bound address. The server runs until Shutdown.
func (s *Server) Start(ctx context.Context, port int) error {
	logger := ctxlog.FromContext(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler(ctx))
	mux.HandleFunc("/ws", s.wsHandler(ctx))

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind control server: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: mux}

	go func() {
		logger.Info("🎛️ Control server starting", "address", fmt.Sprintf("http://localhost%s/ws", portSuffix(listener)))
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Control server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

func portSuffix(l net.Listener) string {
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return fmt.Sprintf(":%d", addr.Port)
	}
	return l.Addr().String()
}

// Addr returns the bound address, for tests and logs.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and drains in-flight handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ctxlog.FromContext(ctx).Info("🎛️ Shutting down control server...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctxlog.FromContext(ctx).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	}
}

func (s *Server) wsHandler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.FromContext(ctx)
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Websocket upgrade failed.", "remote_addr", r.RemoteAddr, "error", err)
			return
		}
		sess := newSession(s, conn)
		logger.Info("Editor session connected.", "session", sess.id, "remote_addr", r.RemoteAddr)
		go sess.readLoop(ctx)
	}
}
