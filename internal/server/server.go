// Package server exposes the read-only status API and the websocket event
// stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyarb/internal/server/handler"
	"github.com/alanyoungcy/polyarb/internal/server/middleware"
	"github.com/alanyoungcy/polyarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr        string
	CORSOrigins []string
	APIKey      string // empty disables authentication
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64
	RateBurst int
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health        *handler.HealthHandler
	Opportunities *handler.OpportunityHandler
	Executions    *handler.ExecutionHandler
	Status        *handler.StatusHandler
}

// Server is the headless HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps them in the middleware chain.
// hub may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewHandler(cfg, handlers, hub, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.List)
	mux.HandleFunc("GET /api/opportunities/history", handlers.Opportunities.History)
	mux.HandleFunc("GET /api/opportunities/{signature}", handlers.Opportunities.Get)

	mux.HandleFunc("GET /api/executions", handlers.Executions.List)
	mux.HandleFunc("GET /api/executions/{id}", handlers.Executions.Get)

	mux.HandleFunc("GET /api/metrics", handlers.Status.Metrics)
	mux.HandleFunc("GET /api/exposure", handlers.Status.Exposure)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var limiter *middleware.ClientLimiter
	if cfg.RateLimit > 0 {
		limiter = middleware.NewClientLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(limiter)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
