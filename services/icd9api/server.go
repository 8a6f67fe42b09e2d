// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package icd9api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/logging"
)

// Registry registers collectors and gathers them for /metrics.
// *prometheus.Registry satisfies it.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Server is the HTTP query service.
//
// # Description
//
// Server owns the gin engine and the handlers. The tree is installed with
// Load or LoadAsync; until then /ready returns 503 and query endpoints
// return TREE_NOT_LOADED.
//
// # Thread Safety
//
// Load may run concurrently with request handling. Run is called once.
type Server struct {
	config   Config
	router   *gin.Engine
	handlers *Handlers
	metrics  *Metrics
	logger   *logging.Logger
}

// NewServer creates a Server.
//
// # Inputs
//
//   - cfg: Server settings.
//   - registry: Receives the API metrics and backs /metrics. Nil uses the
//     Prometheus default registry.
//   - logger: Optional; nil discards logs.
func NewServer(cfg Config, registry Registry, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	if registry != nil {
		gatherer, registerer = registry, registry
	}

	s := &Server{
		config:  cfg,
		metrics: NewMetrics(registerer),
		logger:  logger.With("component", "api"),
	}
	s.handlers = NewHandlers(s.metrics, s.logger)

	s.router = gin.New()
	// Route on the escaped path so the root sentinel is addressable as n%2Fa.
	s.router.UseRawPath = true
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(cfg.ServiceName))
	s.router.Use(s.metrics.Middleware())
	s.router.Use(s.accessLog())

	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	RegisterRoutes(s.router.Group("/v1"), s.handlers)
	return s
}

// Router returns the underlying gin engine for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Handlers returns the handlers serving the routes.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Load restores the tree through loader and installs it.
//
// # Outputs
//
//   - error: Wraps hierarchy.ErrSnapshotUnavailable. The error is also
//     reported by /ready.
func (s *Server) Load(ctx context.Context, loader hierarchy.Loader) error {
	start := time.Now()
	tree, err := hierarchy.Load(ctx, loader)
	if err != nil {
		s.handlers.SetLoadError(err)
		s.logger.Error("hierarchy load failed", "error", err)
		return err
	}
	s.handlers.SetTree(tree)
	s.logger.Info("hierarchy loaded",
		"nodes", tree.Size(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// LoadAsync runs Load in the background. The channel receives its result
// and is then closed.
func (s *Server) LoadAsync(ctx context.Context, loader hierarchy.Loader) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- s.Load(ctx, loader)
	}()
	return done
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully
// within Config.ShutdownTimeout.
//
// # Outputs
//
//   - error: nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down API server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// accessLog logs each request at Debug level.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
