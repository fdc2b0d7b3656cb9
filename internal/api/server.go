// Package api serves the views, the tick controls and the configuration store
// over HTTP, plus a WebSocket stream of controller transitions.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"supersim/internal/archive"
	"supersim/internal/isa"
	"supersim/internal/session"
	"supersim/internal/simclient"
	"supersim/internal/storage"
	"supersim/internal/views"
)

// Diagnoser checks and compiles programs on the simulator.
type Diagnoser interface {
	ParseAsm(ctx context.Context, code string, memory []isa.MemoryLocation) (*simclient.ParseAsmResponse, error)
	Compile(ctx context.Context, code string, flags []string) (*simclient.CompileResponse, error)
}

// Options are the dependencies of a Server. DB and Archives are optional; their
// routes answer 503 without them.
type Options struct {
	Addr      string
	Session   *session.Session
	Diagnoser Diagnoser
	DB        *storage.DB
	Archives  *archive.Store
	Logger    *slog.Logger
}

// Server represents the HTTP API server
type Server struct {
	router    *http.ServeMux
	server    *http.Server
	addr      string
	logger    *slog.Logger
	session   *session.Session
	diag      Diagnoser
	db        *storage.DB
	archives  *archive.Store
	hub       *streamHub
	startedAt time.Time

	// archived snapshots get their own memo so they do not evict the live one
	archiveViews *views.Selectors
}

// NewServer creates a new HTTP server instance
func NewServer(opts Options) *Server {
	s := &Server{
		addr:      opts.Addr,
		logger:    opts.Logger,
		session:   opts.Session,
		diag:      opts.Diagnoser,
		db:        opts.DB,
		archives:  opts.Archives,
		router:    http.NewServeMux(),
		startedAt: time.Now(),
	}
	s.hub = newStreamHub(opts.Session.Controller, opts.Logger)
	s.archiveViews = views.NewSelectors(opts.Session.Selectors.Options())

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.applyMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // a simulate round trip may take a while
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown closes the stream subscribers and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.hub.Close()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("Server shut down successfully")
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Metrics sits directly on the mux so that it sees the matched pattern.
	handler = MetricsMiddleware()(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware()(handler)
	return handler
}
