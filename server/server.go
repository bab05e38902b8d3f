// Package server exposes the analysis queue and the reference comparator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/RyanBlaney/sonido-critique/analyzers"
	"github.com/RyanBlaney/sonido-critique/config"
	"github.com/RyanBlaney/sonido-critique/jobs"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/RyanBlaney/sonido-critique/transcode"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Options wires a server
type Options struct {
	Config      config.ServerConfig
	MaxFileSize int64
	Queue       *jobs.Queue
	Comparer    jobs.Comparer
	Registry    *analyzers.Registry
}

// Server owns the gin router; the queue's lifecycle stays with the caller
type Server struct {
	config      config.ServerConfig
	maxFileSize int64
	queue       *jobs.Queue
	comparer    jobs.Comparer
	registry    *analyzers.Registry
	router      *gin.Engine
	logger      logging.Logger
}

// New creates a server and registers its routes
func New(opts Options) *Server {
	if opts.Config.GinMode != "" {
		gin.SetMode(opts.Config.GinMode)
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = transcode.DefaultMaxFileSize
	}
	if opts.Config.UploadDir == "" {
		opts.Config.UploadDir = os.TempDir()
	}

	s := &Server{
		config:      opts.Config,
		maxFileSize: opts.MaxFileSize,
		queue:       opts.Queue,
		comparer:    opts.Comparer,
		registry:    opts.Registry,
		logger: logging.WithFields(logging.Fields{
			"component": "http_server",
		}),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORS(opts.Config.AllowedOrigins))
	r.Use(RequestLogger(s.logger))
	s.setupRoutes(r)
	s.router = r

	return s
}

func (s *Server) setupRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/health", s.health)
		api.POST("/analyze", s.analyze)
		api.POST("/compare", s.compare)

		jobsGroup := api.Group("/jobs")
		{
			jobsGroup.GET("", s.listJobs)
			jobsGroup.GET("/:id", s.getJob)
			jobsGroup.DELETE("/:id", s.cancelJob)
			jobsGroup.GET("/:id/ws", s.streamJob)
		}
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on the configured address until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", logging.Fields{"addr": s.config.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve on %s: %w", s.config.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
