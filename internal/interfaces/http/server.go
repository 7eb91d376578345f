// Package http provides the HTTP adapter over the pipeline core. It is a
// thin layer: decode the request, call the owning component, map the error
// kind onto a status code.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tuanngo/crm-pipeline/internal/assignment"
	"github.com/tuanngo/crm-pipeline/internal/pipeline"
	"github.com/tuanngo/crm-pipeline/internal/report"
	"github.com/tuanngo/crm-pipeline/internal/schedule"
	"github.com/tuanngo/crm-pipeline/internal/subflow"
)

// Logger is the keyed logging surface the transport needs; a
// *zap.SugaredLogger satisfies it.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP adapter over the pipeline core
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	tracker    *pipeline.Tracker
	manager    *subflow.Manager
	store      *schedule.Store
	resolver   *assignment.Resolver
	report     *report.PipelineReport
	logger     Logger
}

// NewServer creates a new HTTP server over the core components
func NewServer(
	config ServerConfig,
	tracker *pipeline.Tracker,
	manager *subflow.Manager,
	store *schedule.Store,
	resolver *assignment.Resolver,
	pipelineReport *report.PipelineReport,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		tracker:  tracker,
		manager:  manager,
		store:    store,
		resolver: resolver,
		report:   pipelineReport,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Infow("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.tracker, s.manager, s.store, s.resolver, s.report, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		api.POST("/customers/:id/transitions", handlers.RecordTransition)
		api.GET("/customers/:id/stage", handlers.CurrentStage)
		api.POST("/customers/:id/assign", handlers.Assign)

		api.PUT("/customers/:id/workflows/:templateID/config", handlers.UpsertConfig)
		api.DELETE("/customers/:id/workflows/:templateID/schedule", handlers.DisableSchedule)
		api.GET("/customers/:id/workflows/:templateID/schedule", handlers.GetSchedule)
		api.POST("/customers/:id/workflows/:templateID/advance", handlers.AdvanceCursor)

		api.GET("/reports/pipeline.xlsx", handlers.ExportPipelineReport)
	}
}

// Start starts the HTTP server and blocks until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Infow("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Infow("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Errorw("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Infow("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Errorw("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Infow("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
