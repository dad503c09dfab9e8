// Package server exposes analysis and run history over HTTP.
//
// Endpoints:
//
//	POST /api/analyze - Analyze submitted source
//	GET  /api/history - Recent runs and refactor attempts
//	GET  /api/health  - Store and provider health
//	GET  /metrics     - Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webspoilt/code-janitor/internal/metrics"
	"github.com/webspoilt/code-janitor/internal/storage"
	"github.com/webspoilt/code-janitor/internal/validate"
)

// Pinger checks that a store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks the configured AI provider; *ai.Client satisfies it
type ProviderChecker interface {
	Provider() string
	HealthCheck(ctx context.Context) error
}

// Config holds server dependencies
type Config struct {
	Addr     string
	Analyzer validate.Analyzer    // Required
	History  storage.HistoryStore // Optional
	Store    Pinger               // Optional
	Provider ProviderChecker      // Optional
	Metrics  *metrics.Metrics     // Optional
	Logger   *slog.Logger
	Version  string
}

// Server is the HTTP API
type Server struct {
	cfg    Config
	engine *gin.Engine
	logger *slog.Logger

	mu      sync.Mutex
	httpSrv *http.Server
}

// New builds the router
func New(cfg Config) (*Server, error) {
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: cfg.Logger}
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	api := engine.Group("/api")
	api.POST("/analyze", s.handleAnalyze)
	api.GET("/history", s.handleHistory)
	api.GET("/health", s.handleHealth)
	if cfg.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	s.engine = engine
	return s, nil
}

// Handler returns the router (tests)
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens on the configured address until ctx is done, then shuts
// down gracefully
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.httpSrv != nil {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.httpSrv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpSrv
	s.mu.Unlock()

	s.logger.Info("http server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request", "method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "duration", time.Since(start))
	}
}
