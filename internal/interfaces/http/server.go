// Package http provides the HTTP adapter over the application services.
// It translates requests to service calls and service errors to statuses;
// no domain logic lives here.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/export"
	"github.com/stockfood/traceflow/internal/service"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	logger     *zap.Logger
}

// NewServer creates an HTTP server wired to the application services.
func NewServer(
	config ServerConfig,
	reconcile *service.ReconcileService,
	mappings *service.MappingService,
	trace *service.TraceService,
	ledger *service.LedgerService,
	reporter *export.ExpiryReporter,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config: config,
		router: gin.New(),
		logger: logger,
	}
	server.setupMiddleware()
	server.setupRoutes(NewHandlers(reconcile, mappings, trace, ledger, reporter, logger))
	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.String("latency", time.Since(start).String()),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func (s *Server) setupRoutes(h *Handlers) {
	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api/v1")
	{
		imports := api.Group("/imports")
		{
			imports.POST("/analyze", h.AnalyzeImports)
			imports.GET("", h.ListImports)
			imports.GET("/stats", h.ImportStats)
			imports.GET("/:id", h.GetImport)
			imports.PATCH("/:id/lines/:line", h.ResolveLine)
			imports.POST("/:id/commit", h.CommitImport)
			imports.POST("/:id/ignore", h.IgnoreImport)
			imports.POST("/:id/cancel", h.CancelImport)
		}

		mappings := api.Group("/mappings")
		{
			mappings.GET("", h.ListMappings)
			mappings.GET("/search", h.SearchMappings)
			mappings.PUT("/:id", h.RepointMapping)
			mappings.DELETE("/:id", h.DeactivateMapping)
		}

		trace := api.Group("/trace")
		{
			trace.GET("/lots/:code", h.TraceLot)
			trace.GET("/orders/:ref", h.TraceOrder)
			trace.GET("/search", h.SearchLots)
		}

		lots := api.Group("/lots")
		{
			lots.GET("/expiring", h.ExpiringLots)
			lots.GET("/expiring/export", h.ExportExpiringLots)
			lots.POST("/:id/consume", h.ConsumeLot)
		}
	}
}

// Start starts the HTTP server and blocks until the context is cancelled
// or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
