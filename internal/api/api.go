// Package api provides HTTP handlers and the main API server logic for ShotScope.
//
// It exposes RESTful endpoints for driving analysis flows (create, advance,
// back, restart, analyze) and for retrieving stored analysis results. The API
// integrates the flow, analysis, recovery, and store modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/RinkLab/ShotScope/internal/analysis"
	"github.com/RinkLab/ShotScope/internal/flow"
	"github.com/RinkLab/ShotScope/internal/genai"
	"github.com/RinkLab/ShotScope/internal/recovery"
	"github.com/RinkLab/ShotScope/internal/store"
	"github.com/RinkLab/ShotScope/internal/validation"
)

// DefaultAddr is the API listen address when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server holds the wired modules behind the HTTP endpoints.
type Server struct {
	addr         string
	st           store.Store
	stateManager flow.StateManager
	svc          *analysis.Service
	recov        *recovery.Manager
}

// NewServer creates an API server over the given store, analysis service, and
// recovery manager.
func NewServer(st store.Store, svc *analysis.Service, recov *recovery.Manager, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		addr:         cfg.Addr,
		st:           st,
		stateManager: flow.NewStoreBasedStateManager(st),
		svc:          svc,
		recov:        recov,
	}
}

// Handler returns the routing mux for the API endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/flows", s.createFlowHandler)
	mux.HandleFunc("/flows/", s.flowRouter)
	mux.HandleFunc("/analyses/latest", s.latestAnalysisHandler)
	mux.HandleFunc("/analyses/", s.getAnalysisHandler)
	mux.HandleFunc("/resumable", s.resumableHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Start runs the HTTP server until it fails or is shut down.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("ShotScope API listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Run wires all modules from the given option sets and starts the API server.
// It blocks until the server exits.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, gateOpts []validation.Option, svcOpts []analysis.Option, apiOpts []Option) error {
	st, err := store.NewStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize GenAI client: %w", err)
	}

	gate := validation.NewGate(client, gateOpts...)
	svc := analysis.NewService(client, gate, st, svcOpts...)

	recov := recovery.NewManager(st)
	report, err := recov.RecoverAll(context.Background())
	if err != nil {
		slog.Warn("Startup recovery scan failed", "error", err)
	} else {
		slog.Info("Startup recovery scan finished", "resumable", len(report.Resumable), "dropped", report.Dropped)
	}

	srv := NewServer(st, svc, recov, apiOpts...)
	return srv.Start()
}
