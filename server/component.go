package server

import (
	"context"

	"github.com/kbukum/rediskit/component"
)

const componentName = "http-server"

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// Component runs a Server under the component registry.
type Component struct {
	server *Server
}

// NewComponent wraps s.
func NewComponent(s *Server) *Component {
	return &Component{server: s}
}

// Name returns the component name used for registration.
func (c *Component) Name() string { return componentName }

// Start starts the HTTP server.
func (c *Component) Start(ctx context.Context) error {
	return c.server.Start(ctx)
}

// Stop gracefully shuts down the HTTP server.
func (c *Component) Stop(ctx context.Context) error {
	return c.server.Stop(ctx)
}

// Health reports whether the server is listening.
func (c *Component) Health(ctx context.Context) component.Health {
	if c.server.Listening() {
		return component.Health{Name: componentName, Status: component.StatusHealthy}
	}
	return component.Health{
		Name:    componentName,
		Status:  component.StatusUnhealthy,
		Message: "HTTP server not listening",
	}
}

// Describe returns the listen address for the startup summary.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "HTTP Server",
		Type:    "server",
		Details: c.server.Addr(),
		Port:    c.server.config.Port,
	}
}
