// Package server provides the HTTP API for CodeLens.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/codelens/codelens/internal/config"
	"github.com/codelens/codelens/internal/indexer"
	"github.com/codelens/codelens/internal/ingest"
	"github.com/codelens/codelens/internal/qa"
	"github.com/codelens/codelens/internal/storage"
	"github.com/codelens/codelens/internal/vector"
)

// Server is the HTTP server for the CodeLens API.
type Server struct {
	indexer  *indexer.Indexer
	composer *qa.Composer
	storage  storage.Storage
	vstore   *vector.Store
	fetcher  *ingest.Fetcher
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server

	llmConfigured bool
}

// NewServer creates a server with the given dependencies. llmConfigured
// reports whether generation credentials were present at startup; it is
// surfaced by the health endpoint.
func NewServer(
	idx *indexer.Indexer,
	composer *qa.Composer,
	store storage.Storage,
	vstore *vector.Store,
	fetcher *ingest.Fetcher,
	cfg *config.Config,
	logger *zap.Logger,
	llmConfigured bool,
) *Server {
	return &Server{
		indexer:       idx,
		composer:      composer,
		storage:       store,
		vstore:        vstore,
		fetcher:       fetcher,
		config:        cfg,
		logger:        logger,
		llmConfigured: llmConfigured,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Post("/api/upload", s.handleUpload)
	r.Post("/api/github", s.handleGitHub)
	r.Get("/api/sessions/{id}", s.handleGetSession)
	r.Post("/api/ask", s.handleAsk)
	r.Get("/api/history/{id}", s.handleHistory)
	r.Post("/api/search-history", s.handleSearchHistory)
	r.Post("/api/tag", s.handleTag)
	r.Delete("/api/history/{id}", s.handleDeleteQA)
	r.Get("/api/export/{id}", s.handleExport)
	r.Get("/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
