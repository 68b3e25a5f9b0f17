// Package web provides the HTTP server and handlers for the CSV cleaner.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/csvclean/internal/config"
	"github.com/JonMunkholm/csvclean/internal/core"
	mw "github.com/JonMunkholm/csvclean/internal/web/middleware"
)

//go:embed static
var staticFiles embed.FS

// Server is the HTTP server for the CSV cleaner.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	limiter       *rateLimiter
	uploadLimiter *rateLimiter
}

// NewServer creates a Server with its middleware and routes configured.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.limiter = newRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.uploadLimiter = newRateLimiter(cfg.Rate.UploadLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(s.securityHeaders)

	if s.limiter != nil {
		s.router.Use(s.rateLimit(s.limiter))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.Get("/", s.handleIndex)
	s.router.With(s.uploadRateLimit()).Post("/clean", s.handleClean)
	s.router.Get("/runs/{runID}", s.handleRunPage)
	s.router.Get("/runs/{runID}/download", s.handleDownload)
	s.router.Get("/history", s.handleHistoryPage)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		r.With(s.uploadRateLimit()).Post("/clean", s.handleAPIClean)
		r.With(s.uploadRateLimit()).Post("/detect", s.handleAPIDetect)

		r.Get("/runs/{runID}", s.handleAPIGetRun)
		r.Get("/runs/{runID}/download", s.handleDownload)
		r.Get("/runs/{runID}/report", s.handleReport)

		r.Get("/history", s.handleAPIHistory)
		r.Get("/status", s.handleStatus)
	})
}

// Start begins listening for HTTP requests on the configured address.
// It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and its background cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	s.uploadLimiter.Stop()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self'; img-src 'self' data:; frame-ancestors 'none'")
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects requests once the client's IP has used its budget.
func (s *Server) rateLimit(rl *rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(mw.ClientIP(r)) {
				w.Header().Set("Retry-After", "60")
				s.respondError(w, r, errRateLimited, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// uploadRateLimit applies the stricter limit for cleaning endpoints.
func (s *Server) uploadRateLimit() func(http.Handler) http.Handler {
	if s.uploadLimiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.rateLimit(s.uploadLimiter)
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
