// Package chi exposes the HTTP API: sync control, semantic search, and
// operational endpoints.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/domain/search"
	syncdom "github.com/notedex/notedex/internal/domain/sync"
	logpkg "github.com/notedex/notedex/internal/logger"
	"github.com/notedex/notedex/internal/metrics"
	healthuc "github.com/notedex/notedex/internal/usecase/health"
	searchuc "github.com/notedex/notedex/internal/usecase/search"
	syncuc "github.com/notedex/notedex/internal/usecase/sync"
)

// statusMapping orders sentinel checks; the first match wins.
var statusMapping = []struct {
	sentinel error
	status   int
	code     string
}{
	{domain.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{domain.ErrInvalidChunkID, http.StatusBadRequest, "validation_failed"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"},
	{domain.ErrBackendUnavailable, http.StatusServiceUnavailable, "backend_unavailable"},
	{domain.ErrLockTimeout, http.StatusServiceUnavailable, "lock_timeout"},
}

// Server wires the use-case services into HTTP handlers.
type Server struct {
	sync   *syncuc.Service
	search *searchuc.Service
	health *healthuc.Service
	logger *zap.Logger
}

// NewServer creates the HTTP API server.
func NewServer(
	sync *syncuc.Service, search *searchuc.Service,
	health *healthuc.Service, logger *zap.Logger,
) *Server {
	return &Server{sync: sync, search: search, health: health, logger: logger}
}

// Router assembles the chi router with middleware and all routes.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogMiddleware(s.logger))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sync", s.handleSync)
		r.Post("/sync/restore", s.handleRestore)
		r.Get("/sync/drift", s.handleDrift)
		r.Post("/search", s.handleSearch)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// requestLogMiddleware emits a canonical log line per request and propagates
// X-Request-ID.
func requestLogMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := middleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.MaxAgeHours < 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "max_age_hours must not be negative")
		return
	}

	report, err := s.sync.Run(r.Context(), syncdom.Options{
		Force:       req.Force,
		DryRun:      req.DryRun,
		MaxAgeHours: req.MaxAgeHours,
		PageScope:   req.Pages,
	})
	if err != nil {
		// Partial failures still carry a meaningful report.
		if report.RunID != "" {
			s.logger.Warn("sync finished with failures", zap.String("run_id", report.RunID), zap.Error(err))
			writeJSON(w, http.StatusMultiStatus, toSyncResponse(report))
			return
		}
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSyncResponse(report))
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	report, err := s.sync.Restore(r.Context())
	if err != nil {
		if report.RunID != "" {
			writeJSON(w, http.StatusMultiStatus, toSyncResponse(report))
			return
		}
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSyncResponse(report))
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	report, err := s.sync.Drift(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	q, err := search.NewQuery(req.Query, req.Vector, req.Limit, search.Filter{
		NotebookID: req.Filter.NotebookID,
		Author:     req.Filter.Author,
		EntryType:  req.Filter.EntryType,
		Tag:        req.Filter.Tag,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	results, err := s.search.Search(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Results: toSearchHits(results),
		Total:   len(results),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.search.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalVectors: stats.TotalVectors,
		Dimensions:   stats.Dimensions,
		EmbedVersion: stats.EmbedVersion,
		Namespace:    stats.Namespace,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, m := range statusMapping {
		if errors.Is(err, m.sentinel) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	s.logger.Error("unhandled error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
