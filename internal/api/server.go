// Package api exposes a watch session over HTTP: change and log streams
// on websockets, a JSON status endpoint and a metrics scrape endpoint.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"gitwatch/internal/logging"
	"gitwatch/internal/metrics"
	"gitwatch/internal/refresh"
	"gitwatch/internal/watcher"

	"golang.org/x/time/rate"
)

const (
	defaultLogRate    = rate.Limit(20)
	defaultLogBurst   = 40
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server holds what the handlers read from. Refresh is optional.
type Server struct {
	Session        *watcher.Session
	Refresh        *refresh.Controller
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	AuthToken      string
	AllowedOrigins []string
	// LogRate caps messages per second on each log stream. Zero selects
	// the default.
	LogRate  rate.Limit
	LogBurst int
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return loggingMiddleware(s.Logger, s.Metrics, mux)
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", securityHeadersHandler(cacheControlNoStore, jsonErrorMiddleware(s.Logger, s.handleHealth)))
	policy := s.access()
	mux.HandleFunc("/api/status", restHandler(policy, s.Logger, s.handleStatus))
	mux.HandleFunc("/api/refresh", restHandler(policy, s.Logger, s.handleRefresh))
	mux.HandleFunc("/metrics", securityHeadersHandler(cacheControlNoStore, jsonErrorMiddleware(s.Logger, authMiddleware(policy, s.handleMetrics))))
	mux.HandleFunc("/ws/changes", s.handleChanges)
	mux.HandleFunc("/ws/refresh", s.handleRefreshStream)
	mux.HandleFunc("/ws/logs", s.handleLogs)
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *logging.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, listener, handler, logger)
}

func Serve(ctx context.Context, listener net.Listener, handler http.Handler, logger *logging.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.Serve(listener)
	}()
	if logger != nil {
		logger.Info("api listening", map[string]string{
			"gitwatch.category": "api",
			"addr":              listener.Addr().String(),
		})
	}

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logLimiter() *rate.Limiter {
	limit := s.LogRate
	if limit <= 0 {
		limit = defaultLogRate
	}
	burst := s.LogBurst
	if burst <= 0 {
		burst = defaultLogBurst
	}
	return rate.NewLimiter(limit, burst)
}
