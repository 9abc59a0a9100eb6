// Package control implements the §6 control surface: a go-chi router
// exposing run-now, plugin enable/disable, run inspection, a run-progress
// websocket, and an aggregate health endpoint to external orchestrators.
package control

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	core "github.com/trendforge/ingest/internal/app/core/service"
	"github.com/trendforge/ingest/internal/app/ingestor"
	"github.com/trendforge/ingest/internal/app/plugin"
	"github.com/trendforge/ingest/internal/app/scheduler"
	"github.com/trendforge/ingest/internal/app/storage"
	"github.com/trendforge/ingest/internal/app/system"
	"github.com/trendforge/ingest/pkg/logger"
)

// Ensure Server implements system.Service.
var _ system.Service = (*Server)(nil)

// Config controls the control surface's bind address and idempotency
// retention window.
type Config struct {
	ListenAddr     string
	IdempotencyTTL time.Duration
}

// Server is the §6 control surface: an HTTP server over a chi router,
// wired to the Scheduler, plugin Registry, Storage Facade, and Ingestor.
type Server struct {
	cfg       Config
	router    chi.Router
	scheduler *scheduler.Scheduler
	registry  *plugin.Registry
	facade    *storage.Facade
	ingestor  *ingestor.Ingestor
	hub       *runHub
	log       *logger.Logger

	httpServer *http.Server
}

// New builds a control Server and registers this server's hub as ing's
// event sink (via WithEventSink), so /runs/{id}/watch receives live stage
// events without further wiring by the caller.
func New(cfg Config, sched *scheduler.Scheduler, registry *plugin.Registry, facade *storage.Facade, ing *ingestor.Ingestor, log *logger.Logger) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0:8080"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if log == nil {
		log = logger.NewDefault("control")
	}

	s := &Server{
		cfg:       cfg,
		scheduler: sched,
		registry:  registry,
		facade:    facade,
		ingestor:  ing,
		hub:       newRunHub(),
		log:       log,
	}
	ing.WithEventSink(s.hub)
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(idempotencyMiddleware(s.facade.Cache, s.cfg.IdempotencyTTL))

	r.Post("/run_now", s.handleRunNow)
	r.Get("/plugins", s.handleListPlugins)
	r.Post("/plugins/{name}/enabled", s.handleSetPluginEnabled)
	r.Get("/runs/{run_id}", s.handleGetRun)
	r.Get("/runs/{run_id}/watch", s.handleWatchRun)
	r.Get("/health", s.handleHealth)
	return r
}

// Handler exposes the underlying router for tests and for embedding behind
// another server's mux.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Name() string { return "control-surface" }

func (s *Server) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "control-surface",
		Domain:       "ingestion",
		Layer:        core.LayerIngress,
		Capabilities: []string{"run-now", "plugin-toggle", "run-inspect", "run-watch", "health"},
	}
}

// Start begins serving HTTP, following the teacher's gateway server shape:
// fixed timeouts, a background ListenAndServe goroutine, graceful Shutdown
// driven by Stop.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("control surface listener failed")
		}
	}()

	s.log.WithField("addr", s.cfg.ListenAddr).Info("control surface started")
	return nil
}

// Stop gracefully shuts the HTTP server down, honoring ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
