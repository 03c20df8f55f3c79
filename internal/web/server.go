// Package web serves the reconciliation pipeline over HTTP: a dashboard page,
// JSON endpoints for runs and catalogs, and CSV or XLSX downloads of a run.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/salesrecon/internal/config"
	"github.com/JonMunkholm/salesrecon/internal/core"
	"github.com/JonMunkholm/salesrecon/internal/web/middleware"
)

// Options wires a Server to its collaborators.
type Options struct {
	Service *core.Service
	Config  *config.Config
	Limiter *core.RunLimiter // Default: from Config.Pipeline
	Metrics http.Handler     // Served at /metrics when set
}

// Server holds no run state between requests; every call uploads its inputs.
type Server struct {
	service *core.Service
	cfg     *config.Config
	limiter *core.RunLimiter
	metrics http.Handler
	router  *chi.Mux
	server  *http.Server

	rateLimiter *rateLimiter
}

// NewServer builds the router. A nil Limiter is created from
// Config.Pipeline.
func NewServer(opts Options) *Server {
	s := &Server{
		service: opts.Service,
		cfg:     opts.Config,
		limiter: opts.Limiter,
		metrics: opts.Metrics,
		router:  chi.NewRouter(),
	}
	if s.limiter == nil {
		s.limiter = core.NewRunLimiter(s.cfg.Pipeline.MaxConcurrent, s.cfg.Pipeline.MaxWaitTime)
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware orders the chain so the request id and client address are
// known before logging and rate limiting.
func (s *Server) setupMiddleware() {
	s.router.Use(
		chimw.RequestID,
		middleware.TrustedRealIP(s.cfg.Security.TrustedProxies),
		middleware.Logger,
		chimw.Recoverer,
		chimw.Compress(5),
		chimw.Timeout(s.cfg.Server.RequestTimeout),
		securityHeaders,
	)
	if s.cfg.Rate.Enabled {
		s.rateLimiter = newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(s.rateLimiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleDashboard)
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		r.Get("/rules", s.handleRuleCatalog)
		r.Get("/reports", s.handleReportCatalog)

		r.Group(func(r chi.Router) {
			r.Use(s.runSlot)

			r.Post("/nulls", s.handleNulls)

			r.Post("/pipeline", s.handlePipeline)
			r.Post("/pipeline/filtered.csv", s.handleExportFiltered)
			r.Post("/pipeline/merged.csv", s.handleExportMerged)
			r.Post("/pipeline/mapped.csv", s.handleExportMapped)
			r.Post("/pipeline/exceptions.xlsx", s.handleExportExceptions)

			r.Post("/reports/run", s.handleReports)
			r.Post("/reports/export.xlsx", s.handleExportReports)
		})
	})
}

// Start listens on Config.Server.Addr until Shutdown.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for running pipelines to
// finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.stop()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.limiter.Drain(ctx)
}

// Router exposes the handler tree, mainly for httptest.
func (s *Server) Router() *chi.Mux {
	return s.router
}

var responseHeaders = [...][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range responseHeaders {
			w.Header().Set(h[0], h[1])
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	render.JSON(w, r, v)
}

func writeJSONStatus(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
