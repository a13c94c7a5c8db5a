package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"bingx-trading-bot/internal/engine"
	"bingx-trading-bot/internal/events"
)

// Server wires HTTP endpoints around the engine service.
type Server struct {
	Router    *gin.Engine
	Engine    engine.Service
	Bus       *events.Bus
	Metrics   http.Handler
	JWTSecret string

	limiter *ipLimiter
	log     zerolog.Logger
}

// NewServer builds the router. metrics and bus may be nil.
func NewServer(svc engine.Service, bus *events.Bus, metrics http.Handler, jwtSecret string, log zerolog.Logger) *Server {
	r := gin.New()
	s := &Server{
		Router:    r,
		Engine:    svc,
		Bus:       bus,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
		limiter:   newIPLimiter(20, 50),
		log:       log.With().Str("component", "api").Logger(),
	}

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(s.log))
	r.Use(RateLimitMiddleware(s.limiter))
	r.Use(CORSMiddleware())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	if s.Metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(s.Metrics))
	}

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getSystemStatus)
		api.GET("/balance", s.getBalance)
		api.GET("/positions", s.getPositions)
		api.GET("/positions/:id", s.getPosition)
		api.GET("/risk", s.getRiskMetrics)
		api.GET("/strategies", s.getStrategies)
		api.GET("/history", s.getHistory)

		// Operator actions
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/positions/:id/close", s.closePosition)
			protected.POST("/risk/reset", s.resetEmergencyStop)
			protected.POST("/strategies/:id/enable", s.enableStrategy)
			protected.POST("/strategies/:id/disable", s.disableStrategy)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
