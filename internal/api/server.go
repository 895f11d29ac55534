// Package api exposes the HTTP interface for the search service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wikidex/wikidex/internal/config"
	"github.com/wikidex/wikidex/internal/harvest"
	"github.com/wikidex/wikidex/internal/metrics"
	"github.com/wikidex/wikidex/internal/search"
	"github.com/wikidex/wikidex/internal/storage/postgres"
)

const (
	defaultSearchLimit  = 10
	maxSearchLimit      = 50
	defaultRelatedLimit = 5
	defaultSuggestLimit = 10
	recentArticleCount  = 5
	requestTimeout      = 30 * time.Second
)

// QueryEngine is the slice of the search engine the handlers use.
type QueryEngine interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
	Related(ctx context.Context, id int64, limit int) ([]search.Result, error)
	Suggest(ctx context.Context, partial string, limit int) ([]string, error)
	Rebuild(ctx context.Context) error
	Ready() bool
	Analytics() (search.Analytics, bool)
}

// ArticleReader is the slice of the article store the handlers use.
type ArticleReader interface {
	GetByID(ctx context.Context, id int64) (harvest.Article, error)
	Stats(ctx context.Context) (postgres.Stats, error)
	Recent(ctx context.Context, limit int) ([]harvest.Article, error)
}

// Server wires HTTP handlers to the query engine and article store.
type Server struct {
	router     chi.Router
	engine     QueryEngine
	store      ArticleReader
	logger     *zap.Logger
	reindexing atomic.Bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(engine QueryEngine, store ArticleReader, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	s := &Server{
		engine: engine,
		store:  store,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(requestTimeout))
	if cfg.APIKey != "" {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/search", s.searchArticles)
		r.Get("/suggest", s.suggestTitles)
		r.Get("/stats", s.corpusStats)
		r.Post("/reindex", s.reindex)
		r.Route("/articles/{article_id}", func(r chi.Router) {
			r.Get("/", s.getArticle)
			r.Get("/related", s.relatedArticles)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.engine.Ready() {
		s.writeError(w, http.StatusServiceUnavailable, "index not loaded")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) searchArticles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit := limitParam(r, defaultSearchLimit)

	start := time.Now()
	results, err := s.engine.Search(r.Context(), query, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	metrics.ObserveQuery("search", time.Since(start))

	s.writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) suggestTitles(w http.ResponseWriter, r *http.Request) {
	partial := r.URL.Query().Get("q")
	limit := limitParam(r, defaultSuggestLimit)

	start := time.Now()
	titles, err := s.engine.Suggest(r.Context(), partial, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "suggest failed")
		return
	}
	metrics.ObserveQuery("suggest", time.Since(start))

	s.writeJSON(w, http.StatusOK, map[string]any{"suggestions": titles})
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	id, err := articleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid article id")
		return
	}
	article, err := s.store.GetByID(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "article lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"article": article})
}

func (s *Server) relatedArticles(w http.ResponseWriter, r *http.Request) {
	id, err := articleID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid article id")
		return
	}
	limit := limitParam(r, defaultRelatedLimit)

	start := time.Now()
	results, err := s.engine.Related(r.Context(), id, limit)
	if errors.Is(err, search.ErrNotIndexed) {
		s.writeError(w, http.StatusNotFound, "article not indexed")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "related lookup failed")
		return
	}
	metrics.ObserveQuery("related", time.Since(start))

	s.writeJSON(w, http.StatusOK, map[string]any{
		"article_id": id,
		"results":    results,
	})
}

func (s *Server) corpusStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	recent, err := s.store.Recent(r.Context(), recentArticleCount)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "recent query failed")
		return
	}

	payload := map[string]any{
		"articles": map[string]any{
			"total":     stats.Total,
			"avg_words": stats.AvgWords,
			"max_words": stats.MaxWords,
			"min_words": stats.MinWords,
		},
		"recent": recent,
	}
	if analytics, ok := s.engine.Analytics(); ok {
		payload["index"] = analytics
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// reindex rebuilds the model in the background. A second request while
// one rebuild is running is rejected rather than queued.
func (s *Server) reindex(w http.ResponseWriter, r *http.Request) {
	if !s.reindexing.CompareAndSwap(false, true) {
		s.writeError(w, http.StatusConflict, "reindex already in progress")
		return
	}

	go func() {
		defer s.reindexing.Store(false)
		if err := s.engine.Rebuild(context.Background()); err != nil {
			s.logger.Error("reindex failed", zap.Error(err))
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "reindexing"})
}

func articleID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "article_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid article id %q", raw)
	}
	return id, nil
}

func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}
