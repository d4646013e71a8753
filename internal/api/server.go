package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"capture-worker-go/internal/api/handlers"
	"capture-worker-go/internal/api/middleware"
	"capture-worker-go/internal/config"
)

// Provider is everything the status API reads from the running worker
type Provider interface {
	handlers.LivenessProvider
	handlers.SessionProvider
	handlers.HealthSampler
}

type Server struct {
	config *config.Config
	router *gin.Engine
	server *http.Server

	healthHandler  *handlers.HealthHandler
	sessionHandler *handlers.SessionHandler
	systemHandler  *handlers.SystemHandler
}

func NewServer(cfg *config.Config, provider Provider) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:         cfg,
		router:         gin.New(),
		healthHandler:  handlers.NewHealthHandler(cfg.WorkerID, cfg.Version, provider),
		sessionHandler: handlers.NewSessionHandler(provider),
		systemHandler:  handlers.NewSystemHandler(cfg.WorkerID, provider),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestContext())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("🚀 Starting status API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("🛑 Stopping status API")
	return s.server.Shutdown(ctx)
}

// Handler returns the router, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}
