package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"webscope/internal/config"
	"webscope/internal/transport/http/handlers"
	"webscope/internal/transport/http/middleware"
)

// Server wraps the gin engine and the HTTP listener lifecycle.
type Server struct {
	config              *config.Config
	logger              *slog.Logger
	server              *http.Server
	handlers            *handlers.Handlers
	engine              *gin.Engine
	rateLimitMiddleware *middleware.RateLimitMiddleware
}

// NewServer creates a new HTTP server instance.
func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	h *handlers.Handlers,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
) *Server {
	return &Server{
		config:              cfg,
		logger:              logger,
		handlers:            h,
		rateLimitMiddleware: rateLimitMiddleware,
	}
}

// Start builds the route tree and serves until the context passed to
// Shutdown cancels it. It blocks.
func (s *Server) Start() error {
	if s.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	s.engine = gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = s.config.Server.CORSAllowedOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"*"}
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = s.config.Server.CORSAllowedMethods
	corsConfig.AllowHeaders = s.config.Server.CORSAllowedHeaders
	corsConfig.MaxAge = 5 * time.Minute
	s.engine.Use(cors.New(corsConfig))

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.engine,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.logger.Info("starting http server", "port", s.config.Server.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger(s.logger))
	s.engine.Use(middleware.Recovery(s.logger))
	s.engine.Use(middleware.Metrics())

	s.engine.GET("/health", s.handlers.Health.Check)
	s.engine.GET("/health/ready", s.handlers.Health.Ready)
	s.engine.GET("/health/live", s.handlers.Health.Live)
	s.engine.GET("/metrics", s.handlers.Metrics.Handle)

	if !s.config.IsProduction() {
		s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
	}

	v1 := s.engine.Group("/v1")
	v1.Use(s.rateLimitMiddleware.RateLimitByIP())
	{
		v1.POST("/jobs", s.handlers.Job.Create)
		v1.GET("/jobs/:id", s.handlers.Job.Get)
		v1.GET("/jobs/:id/artifact", s.handlers.Job.GetArtifact)

		v1.POST("/batches", s.handlers.Batch.Create)
		v1.GET("/batches/:id", s.handlers.Batch.Get)
		v1.GET("/batches/:id/comparison", s.handlers.Batch.GetComparison)
		v1.GET("/batches/:id/results", s.handlers.Batch.GetResults)

		v1.GET("/events/:id", s.handlers.Events.Handle)
	}
}
