// Package web provides the HTTP API for importing and browsing transit records.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/transitwatch/internal/backend"
	"github.com/JonMunkholm/transitwatch/internal/config"
	"github.com/JonMunkholm/transitwatch/internal/importer"
	"github.com/JonMunkholm/transitwatch/internal/metrics"
	"github.com/JonMunkholm/transitwatch/internal/notify"
	"github.com/JonMunkholm/transitwatch/internal/store"
	mw "github.com/JonMunkholm/transitwatch/internal/web/middleware"
)

// Deps are the services the server exposes.
type Deps struct {
	Config   *config.Config
	Importer *importer.Service
	Hub      *notify.Hub
	Backend  *backend.Client
	Metrics  *metrics.Collector
	Logger   *slog.Logger
}

// Server is the HTTP server for the transit record API.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	importer *importer.Service
	hub      *notify.Hub
	backend  *backend.Client
	metrics  *metrics.Collector
	log      *slog.Logger
	router   *chi.Mux
	server   *http.Server
	limiters []*rateLimiter
}

// NewServer creates a new Server instance.
func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bc := d.Backend
	if bc == nil {
		bc = backend.New(d.Config.Backend.BaseURL, d.Config.Backend.Timeout, logger)
	}
	hub := d.Hub
	if hub == nil {
		hub = notify.NewHub(d.Metrics, logger)
	}

	s := &Server{
		cfg:      d.Config,
		store:    d.Importer.Store(),
		importer: d.Importer,
		hub:      hub,
		backend:  bc,
		metrics:  d.Metrics,
		log:      logger.With("component", "web"),
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Metrics(s.metrics))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "X-Filename", "X-Request-Id"},
		ExposedHeaders: []string{"X-Data-Source", "X-Request-Id", "Content-Disposition"},
		MaxAge:         300,
	}))

	// Security hardening
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security.RequireAPIKey, s.cfg.APIKeyLabels()))
		r.Use(withRequestMeta)

		// Streams are long-lived and stay outside the request timeout.
		r.Get("/events", s.handleEvents)
		r.Get("/ws", s.handleWebSocket)
		r.Get("/imports/{importID}/progress", s.handleImportProgress)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
			r.Use(render.SetContentType(render.ContentTypeJSON))

			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled {
					r.Use(s.newRateLimiter(s.cfg.Rate.ImportLimit).middleware)
				}
				r.Post("/import", s.handleImport)
				r.Post("/imports", s.handleStartImport)
			})
			r.Get("/imports/{importID}", s.handleImportStatus)
			r.Post("/imports/{importID}/cancel", s.handleCancelImport)

			r.Post("/preview", s.handlePreview)
			r.Post("/validate", s.handleValidate)

			r.Get("/records", s.handleListRecords)
			r.Get("/records/{id}", s.handleGetRecord)
			r.Delete("/records", s.handleClearRecords)
			r.Get("/lookup", s.handleLookup)

			r.Get("/stats", s.handleStats)
			r.Get("/export", s.handleExport)
			r.Get("/storage", s.handleStorage)
			r.Get("/status", s.handleStatus)
			r.Get("/audit", s.handleAuditLog)

			r.Get("/backend/status", s.handleBackendStatus)
			r.Get("/backend/{group}/{name}", s.handleBackend)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps event streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.log.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":  "ok",
		"records": s.store.Count(),
		"time":    time.Now().UTC(),
	})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// The API serves data only
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}
