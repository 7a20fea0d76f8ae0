package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/rediskit/component"
	"github.com/kbukum/rediskit/logger"
	"github.com/kbukum/rediskit/redis"
	"github.com/kbukum/rediskit/server"
	"github.com/kbukum/rediskit/server/middleware"
	"github.com/kbukum/rediskit/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Option configures a test server Component.
type Option func(*Component)

// WithLogger sets the server logger. Defaults to a discarding logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Component) { c.log = log }
}

// WithRedis installs the request-scoped Redis middleware for reg.
func WithRedis(reg *redis.Registry) Option {
	return func(c *Component) { c.registry = reg }
}

// Component is a test server component backed by httptest.Server.
// It implements both component.Component and testutil.TestComponent.
type Component struct {
	srv      *server.Server
	ts       *httptest.Server
	log      *logger.Logger
	registry *redis.Registry
	started  bool
	mu       sync.RWMutex
}

var _ component.Component = (*Component)(nil)
var _ testutil.TestComponent = (*Component)(nil)

// NewComponent creates a new test server component with the standard
// middleware applied.
func NewComponent(opts ...Option) *Component {
	c := &Component{log: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	c.srv = c.newServer()
	return c
}

func (c *Component) newServer() *server.Server {
	cfg := server.Config{Host: "127.0.0.1"}
	cfg.ApplyDefaults()
	srv := server.New(cfg, c.log)
	srv.ApplyMiddleware()
	if c.registry != nil {
		srv.Engine().Use(middleware.Redis(c.registry, c.log))
	}
	return srv
}

// Engine returns the Gin engine for registering routes.
func (c *Component) Engine() *gin.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.srv.Engine()
}

// Server returns the underlying *server.Server.
func (c *Component) Server() *server.Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.srv
}

// BaseURL returns the test server's base URL, or "" if not started.
func (c *Component) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ts == nil {
		return ""
	}
	return c.ts.URL
}

// Name returns the component name.
func (c *Component) Name() string { return "server-test" }

// Start serves the engine from an httptest.Server.
func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("component already started")
	}
	c.ts = httptest.NewServer(c.srv.Handler())
	c.started = true
	return nil
}

// Stop closes the test server.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.ts == nil {
		return nil
	}
	c.ts.Close()
	c.ts = nil
	c.started = false
	return nil
}

// Health reports healthy while started.
func (c *Component) Health(_ context.Context) component.Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.started {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "not started"}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Reset recreates the server with a fresh engine, dropping all routes.
func (c *Component) Reset(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return fmt.Errorf("component not started")
	}
	c.ts.Close()
	c.srv = c.newServer()
	c.ts = httptest.NewServer(c.srv.Handler())
	return nil
}

// Snapshot is a no-op; the server holds no state.
func (c *Component) Snapshot(_ context.Context) (interface{}, error) {
	return nil, nil
}

// Restore is a no-op.
func (c *Component) Restore(_ context.Context, _ interface{}) error {
	return nil
}
