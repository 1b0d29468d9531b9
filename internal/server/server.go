// Package server provides the HTTP API for Findify sessions.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/hyperjump/findify/internal/config"
	"github.com/hyperjump/findify/internal/session"
	"github.com/hyperjump/findify/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the HTTP server for the Findify API.
type Server struct {
	sessions *session.Manager
	archive  storage.Storage
	config   *config.Config
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	// ctx outlives requests; async operations and event streams run under it.
	ctx    context.Context
	cancel context.CancelFunc
	async  sync.WaitGroup
}

// NewServer creates a server with the given dependencies. archive and gatherer
// may be nil, which disables the archive endpoints and /metrics respectively.
func NewServer(
	sessions *session.Manager,
	archive storage.Storage,
	cfg *config.Config,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		sessions: sessions,
		archive:  archive,
		config:   cfg,
		gatherer: gatherer,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Event streams are long-lived and must not be buffered or timed out.
	r.Get("/api/v1/sessions/{id}/events", s.handleEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Post("/api/v1/sessions", s.handleCreateSession)
		r.Get("/api/v1/sessions/{id}", s.handleGetSession)
		r.Delete("/api/v1/sessions/{id}", s.handleCloseSession)
		r.Post("/api/v1/sessions/{id}/search", s.handleSearch)
		r.Post("/api/v1/sessions/{id}/load-more", s.handleLoadMore)
		r.Post("/api/v1/sessions/{id}/chat", s.handleChat)

		r.Get("/api/v1/archive", s.handleListArchive)
		r.Get("/api/v1/archive/{id}", s.handleGetArchive)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
	})
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

// Stop gracefully shuts down the server, cancelling detached operations and
// waiting for them to return.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		s.async.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("detached operations still running at shutdown")
	}
	return err
}

// detach runs complete in the background under the server context.
func (s *Server) detach(sessionID, op string, complete session.Completion) {
	s.async.Add(1)
	go func() {
		defer s.async.Done()
		if err := complete(s.ctx); err != nil {
			s.logger.Debug("async operation not applied",
				zap.String("session_id", sessionID),
				zap.String("operation", op),
				zap.Error(err),
			)
		}
	}()
}
