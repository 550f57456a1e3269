package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenjournal/lumen/internal/auth"
	"github.com/lumenjournal/lumen/internal/observability"
	"github.com/lumenjournal/lumen/internal/ratelimit"
	"github.com/lumenjournal/lumen/internal/realtime"
	"github.com/lumenjournal/lumen/internal/storage"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Server ties the API, the auth middleware, and the stream endpoints to one
// listener.
type Server struct {
	config   ServerConfig
	logger   *slog.Logger
	streamer *realtime.Streamer
	http     *http.Server
}

// NewServer assembles the route table. The bus and streamer are passed in,
// not constructed here, so the process owns exactly one of each.
func NewServer(
	config ServerConfig,
	stores storage.StoreSet,
	bus *realtime.Bus,
	streamer *realtime.Streamer,
	authService *auth.Service,
	limiter *ratelimit.Limiter,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	handler := NewHandler(stores, bus, authService, limiter, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/signup", handler.Signup)
	mux.HandleFunc("POST /api/login", handler.Login)
	mux.HandleFunc("GET /api/feed", handler.Feed)
	mux.HandleFunc("POST /api/posts", handler.CreatePost)
	mux.HandleFunc("POST /api/posts/{id}/heart", handler.HeartPost)
	mux.HandleFunc("POST /api/posts/{id}/reply", handler.ReplyToPost)
	mux.HandleFunc("GET /api/posts/{id}/replies", handler.ListReplies)
	mux.Handle("GET /events/feed", streamer.FeedHandler())
	mux.Handle("GET /events/notifications", streamer.NotificationsHandler())
	mux.HandleFunc("GET /healthz", handler.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	var root http.Handler = mux
	root = auth.Middleware(authService, logger)(root)
	root = LoggingMiddleware(logger, metrics)(root)

	return &Server{
		config:   config,
		logger:   logger.With("component", "server"),
		streamer: streamer,
		http: &http.Server{
			Addr:    config.Addr,
			Handler: root,
			// No WriteTimeout: the stream endpoints hold responses open
			// indefinitely.
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the composed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully: live
// streams are released first so Shutdown does not wait on them.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.config.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	s.streamer.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
