package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kbukum/rediskit/logger"
	"github.com/kbukum/rediskit/server/endpoint"
	"github.com/kbukum/rediskit/server/middleware"
)

// Server is an HTTP server backed by Gin.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     Config
	log        *logger.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New creates a Server with a bare Gin engine. Call ApplyMiddleware before
// registering routes.
func New(cfg Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Get(logger.NameHTTP)
	}
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      engine,
			ReadTimeout:  parseDuration(cfg.ReadTimeout),
			WriteTimeout: parseDuration(cfg.WriteTimeout),
			IdleTimeout:  parseDuration(cfg.IdleTimeout),
		},
		engine: engine,
		config: cfg,
		log:    log.WithComponent("server"),
	}
}

// Engine returns the Gin engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler returns the root handler, for serving from httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Logger returns the server's logger.
func (s *Server) Logger() *logger.Logger {
	return s.log
}

// Start binds the port and serves in a goroutine. It returns once the
// listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", logger.ErrorFields("serve", err))
		}
	}()

	s.log.Info("HTTP server started", logger.Fields(logger.FieldAddr, ln.Addr().String()))
	return nil
}

// Stop gracefully shuts the server down, waiting at most ShutdownTimeout
// for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if d := parseDuration(s.config.ShutdownTimeout); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("server shutdown error", logger.ErrorFields("shutdown", err))
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
	s.log.Info("HTTP server shut down")
	return nil
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Listening reports whether Start has bound the port.
func (s *Server) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// ApplyMiddleware installs recovery, request IDs and request logging.
func (s *Server) ApplyMiddleware() {
	s.engine.Use(middleware.Recovery(s.log))
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.RequestLogger(s.log))
}

// RegisterDefaultEndpoints registers /health, /alive and /ready.
func (s *Server) RegisterDefaultEndpoints(serviceName, version string, checker endpoint.HealthChecker) {
	s.engine.GET("/health", endpoint.Health(serviceName, version, checker))
	s.engine.GET("/alive", endpoint.Liveness(serviceName))
	s.engine.GET("/ready", endpoint.Readiness(serviceName, checker))
}
