// Package api exposes the HTTP surface the browser UI talks to: chat
// dispatch, conversation CRUD, the local Anthropic proxy, health and
// metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/parleychat/parley/internal/api/middleware"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/llm"
	"github.com/parleychat/parley/internal/metrics"
	"github.com/parleychat/parley/internal/storage/archive"
	"github.com/parleychat/parley/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the HTTP server for Parley.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *zap.Logger

	cfg        *config.Config
	dispatcher *llm.Dispatcher
	store      store.Store
	exporter   *archive.Exporter
	registry   *metrics.Registry
}

// NewServer wires the server over its collaborators.
func NewServer(cfg *config.Config, dispatcher *llm.Dispatcher, st store.Store, exporter *archive.Exporter, registry *metrics.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:        mux,
		logger:     logger,
		cfg:        cfg,
		dispatcher: dispatcher,
		store:      st,
		exporter:   exporter,
		registry:   registry,
	}
	s.setupRoutes()

	var handler http.Handler = mux
	handler = metrics.LoggingMiddleware(logger)(handler)
	if registry != nil {
		handler = metrics.HTTPMiddleware(registry)(handler)
	}

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No write timeout: streaming responses stay open as long as
		// the provider keeps producing.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the root handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) setupRoutes() {
	auth := middleware.APIKeyAuth(s.cfg.Server.APIKey)

	s.mux.Handle("POST /api/chat", auth(http.HandlerFunc(s.handleChat)))

	s.mux.Handle("GET /api/conversations", auth(http.HandlerFunc(s.handleListConversations)))
	s.mux.Handle("POST /api/conversations", auth(http.HandlerFunc(s.handleCreateConversation)))
	s.mux.Handle("GET /api/conversations/{id}", auth(http.HandlerFunc(s.handleGetConversation)))
	s.mux.Handle("DELETE /api/conversations/{id}", auth(http.HandlerFunc(s.handleDeleteConversation)))
	s.mux.Handle("GET /api/conversations/{id}/messages", auth(http.HandlerFunc(s.handleConversationMessages)))
	s.mux.Handle("POST /api/conversations/{id}/archive", auth(http.HandlerFunc(s.handleArchiveConversation)))

	// Local Anthropic proxy: keeps the vendor credential off the
	// browser and sidesteps cross-origin restrictions.
	s.mux.Handle("POST /api/claude/v1/messages", http.HandlerFunc(s.handleClaudeProxy))

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if s.registry != nil && s.cfg.Metrics.Enabled {
		path := s.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle("GET "+path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	if dir := s.cfg.Server.UIDir; dir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(dir)))
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
