// Package server provides the HTTP API for glyphocr.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/glyphocr/internal/classify"
	"github.com/hyperjump/glyphocr/internal/config"
	"github.com/hyperjump/glyphocr/internal/storage"
	"github.com/hyperjump/glyphocr/internal/vector"
	"go.uber.org/zap"
)

// Server is the HTTP server for the classification API. It serves one training set at a
// time; Reload swaps in a freshly built set without blocking readers.
type Server struct {
	engine    *classify.Engine
	trainPath string
	storage   storage.Storage // optional; nil disables the run history routes
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server

	set      atomic.Pointer[vector.TrainingSet]
	loadedAt atomic.Pointer[time.Time]
	reloadMu sync.Mutex
}

// NewServer creates a server that classifies against the training set at trainPath.
// Call Reload before serving requests.
func NewServer(
	engine *classify.Engine,
	trainPath string,
	storage storage.Storage,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:    engine,
		trainPath: trainPath,
		storage:   storage,
		config:    cfg,
		logger:    logger,
	}
}

// Reload rebuilds the training set and publishes it. On failure the previous set stays live.
func (s *Server) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	set, err := s.engine.LoadTrainingSet(ctx, s.trainPath)
	if err != nil {
		s.logger.Error("training set reload failed", zap.String("path", s.trainPath), zap.Error(err))
		return err
	}
	now := time.Now()
	s.set.Store(set)
	s.loadedAt.Store(&now)
	s.logger.Info("training set loaded",
		zap.String("path", s.trainPath),
		zap.Int("size", set.Len()),
		zap.Int("dimensions", set.Dimensions()))
	return nil
}

// TrainingSet returns the live training set, or nil before the first successful Reload.
func (s *Server) TrainingSet() *vector.TrainingSet {
	return s.set.Load()
}

// Handler returns the router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/training", s.handleTrainingInfo)
	r.Post("/api/v1/training/reload", s.handleReload)
	r.Post("/api/v1/classify", s.handleClassify)
	r.Get("/api/v1/runs", s.handleListRuns)
	r.Get("/api/v1/runs/{id}", s.handleGetRun)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
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
