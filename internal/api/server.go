// Package api serves access windows, ephemerides and catalog lookups over
// HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/utat-ss/hermes/internal/auth"
	"github.com/utat-ss/hermes/internal/config"
	"github.com/utat-ss/hermes/internal/health"
	"github.com/utat-ss/hermes/internal/httputil"
	"github.com/utat-ss/hermes/internal/metrics"
	"github.com/utat-ss/hermes/internal/propagation"
	"github.com/utat-ss/hermes/internal/scan"
	"github.com/utat-ss/hermes/internal/tle"
)

// Deps are the shared components the handlers read from.
type Deps struct {
	Logger  *slog.Logger
	Catalog *tle.Store
	Cache   *propagation.ConstantsCache
	Health  *health.Checker
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        config.Server

	catalog *tle.Store
	cache   *propagation.ConstantsCache
	pool    *propagation.WorkerPool
	limiter *httputil.ClientLimiter
}

// NewServer creates a configured HTTP server. A nil Catalog or Cache in
// deps is replaced by an empty one.
func NewServer(cfg config.Server, deps Deps) *Server {
	if deps.Catalog == nil {
		deps.Catalog = tle.NewStore()
	}
	if deps.Cache == nil {
		deps.Cache = propagation.NewConstantsCache()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = config.DefaultServer().RequestTimeout
	}

	s := &Server{
		logger:  deps.Logger,
		cfg:     cfg,
		catalog: deps.Catalog,
		cache:   deps.Cache,
		pool:    propagation.NewWorkerPool(cfg.Workers, deps.Cache, deps.Logger),
		limiter: httputil.NewClientLimiter(cfg.RateLimit, cfg.RateBurst),
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", deps.Health.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/catalog", s.handleCatalog)
	mux.HandleFunc("GET /api/v1/catalog/{norad_id}", s.handleCatalogEntry)
	mux.HandleFunc("GET /api/v1/cache/stats", s.handleCacheStats)

	mux.HandleFunc("GET /api/v1/positions", s.limited(s.handlePositions))
	mux.HandleFunc("POST /api/v1/propagate", s.limited(s.handlePropagate))
	mux.HandleFunc("POST /api/v1/ephemeris", s.limited(s.handleEphemeris))
	mux.HandleFunc("POST /api/v1/windows", s.limited(s.handleWindows))
	mux.HandleFunc("POST /api/v1/observations", s.limited(s.handleObservations))
	mux.HandleFunc("POST /api/v1/elements", s.limited(s.handleElements))

	// Build middleware chain: metrics -> request id -> logging -> recover -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = middleware.Recoverer(handler)
	handler = loggingMiddleware(deps.Logger, cfg.TrustProxy)(handler)
	handler = middleware.RequestID(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// PruneClients drops idle rate-limiter buckets every interval until ctx
// is done.
func (s *Server) PruneClients(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.limiter.Prune()
			s.logger.Debug("pruned rate limiter", "component", "api", "clients", n)
		}
	}
}

func (s *Server) env() scan.Env {
	return scan.Env{Cache: s.cache, NodeStep: s.cfg.NodeStep, Workers: s.cfg.Workers}
}

// computeContext bounds a compute request by the configured timeout.
func (s *Server) computeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
}

// limited rejects clients over their request rate with 429.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(httputil.ClientIP(r, s.cfg.TrustProxy)) {
			metrics.RecordRateLimited()
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next(w, r)
	}
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			if reqID != "" {
				w.Header().Set(middleware.RequestIDHeader, reqID)
			}
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
