package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kbukum/rediskit/component"
	"github.com/kbukum/rediskit/logger"
)

// Component wraps a Registry built from Settings and implements
// component.Component for lifecycle management.
type Component struct {
	settings Settings
	opts     []Option
	base     *logger.Logger
	log      *logger.Logger
	registry *Registry
}

// ensure Component satisfies component.Component
var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates a Redis component for use with the component registry.
// Extra options are passed to NewRegistry.
func NewComponent(settings Settings, log *logger.Logger, opts ...Option) *Component {
	if log == nil {
		named := logger.Get(logger.NameRedis)
		return &Component{settings: settings, opts: opts, base: named, log: named}
	}
	return &Component{
		settings: settings,
		opts:     opts,
		base:     log,
		log:      log.WithComponent("redis"),
	}
}

// Registry returns the pool registry, or nil if the component is not started.
func (c *Component) Registry() *Registry {
	return c.registry
}

// Name returns the component name.
func (c *Component) Name() string { return "redis" }

// Start validates the settings and builds the registry. With Settings.Ping
// it also checks that the default instance answers.
func (c *Component) Start(ctx context.Context) error {
	c.settings.ApplyDefaults()
	if err := c.settings.Validate(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}

	instances, err := NewInstances(c.settings.Instances)
	if err != nil {
		return fmt.Errorf("redis start: %w", err)
	}

	opts := append([]Option{
		WithLogger(c.base),
		WithWorkers(c.settings.Workers),
		WithDefaultInstance(InstanceID(c.settings.Default)),
	}, c.opts...)
	reg := NewRegistry(instances, opts...)

	if c.settings.Ping {
		if err := reg.Client("").Ping(ctx); err != nil {
			_ = reg.Shutdown(ctx)
			return fmt.Errorf("redis start ping: %w", err)
		}
	}

	c.registry = reg
	c.log.Info("Redis component started", logger.Fields(
		"instances", len(c.settings.Instances),
		"workers", c.settings.Workers,
	))
	return nil
}

// Stop drains every pool and closes every subscriber.
func (c *Component) Stop(ctx context.Context) error {
	if c.registry == nil {
		return nil
	}
	c.log.Info("Redis component stopping")
	return c.registry.Shutdown(ctx)
}

// Health pings the default instance.
func (c *Component) Health(ctx context.Context) component.Health {
	if c.registry == nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: "redis not initialized",
		}
	}

	if err := c.registry.Client("").Ping(ctx); err != nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}

	return component.Health{
		Name:   c.Name(),
		Status: component.StatusHealthy,
	}
}

// Describe returns a one-line summary of the configured instances.
func (c *Component) Describe() component.Description {
	ids := make([]string, 0, len(c.settings.Instances))
	for id := range c.settings.Instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		cfg := c.settings.Instances[id]
		parts = append(parts, fmt.Sprintf("%s=%s db=%d pool=%d", id, cfg.Addr, cfg.DB, cfg.PoolSize))
	}
	parts = append(parts, fmt.Sprintf("workers=%d", c.settings.Workers))

	return component.Description{
		Name:    "Redis",
		Type:    "redis",
		Details: strings.Join(parts, " "),
	}
}
