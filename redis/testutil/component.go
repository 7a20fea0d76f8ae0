package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/rediskit/component"
	"github.com/kbukum/rediskit/logger"
	"github.com/kbukum/rediskit/redis"
	"github.com/kbukum/rediskit/testutil"
)

// Option adjusts the instance configuration a Component registers.
type Option func(*redis.Config)

// WithPoolSize sets the per-worker pool size.
func WithPoolSize(n int) Option {
	return func(c *redis.Config) { c.PoolSize = n }
}

// WithPoolTimeout sets the checkout timeout, e.g. "100ms".
func WithPoolTimeout(d string) Option {
	return func(c *redis.Config) { c.PoolTimeout = d }
}

// WithDriver selects the connection driver.
func WithDriver(driver string) Option {
	return func(c *redis.Config) { c.Driver = driver }
}

// Component is an in-memory Redis server (miniredis) with a Registry
// pointed at it. It implements both component.Component and
// testutil.TestComponent.
type Component struct {
	opts     []Option
	mini     *miniredis.Miniredis
	registry *redis.Registry
	settings redis.Settings
	started  bool
	mu       sync.RWMutex
}

var _ component.Component = (*Component)(nil)
var _ testutil.TestComponent = (*Component)(nil)

// NewComponent creates a new in-memory Redis test component.
func NewComponent(opts ...Option) *Component {
	return &Component{opts: opts}
}

// Registry returns a Registry whose default instance is the in-memory
// server, or nil if not started.
func (c *Component) Registry() *redis.Registry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry
}

// Settings returns the settings the Registry was built from.
func (c *Component) Settings() redis.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Server returns the miniredis server, for assertions and FastForward.
func (c *Component) Server() *miniredis.Miniredis {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mini
}

// Name returns the component name.
func (c *Component) Name() string { return "redis-test" }

// Start launches the in-memory Redis server.
func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("component already started")
	}

	mini, err := miniredis.Run()
	if err != nil {
		return fmt.Errorf("failed to start miniredis: %w", err)
	}

	cfg := redis.Config{Addr: mini.Addr(), PoolSize: 4, IdleTimeout: "1m"}
	for _, opt := range c.opts {
		opt(&cfg)
	}
	settings := redis.Settings{
		Default:   string(redis.DefaultInstance),
		Workers:   2,
		Instances: map[string]redis.Config{string(redis.DefaultInstance): cfg},
	}
	settings.ApplyDefaults()

	instances, err := redis.NewInstances(settings.Instances)
	if err != nil {
		mini.Close()
		return err
	}

	c.mini = mini
	c.settings = settings
	c.registry = redis.NewRegistry(instances,
		redis.WithLogger(logger.Nop()),
		redis.WithWorkers(settings.Workers),
	)
	c.started = true
	return nil
}

// Stop shuts down the registry and the in-memory Redis server.
func (c *Component) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	var err error
	if c.registry != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = c.registry.Shutdown(shutdownCtx)
		cancel()
	}
	if c.mini != nil {
		c.mini.Close()
	}
	c.started = false
	return err
}

// Health returns the health status.
func (c *Component) Health(_ context.Context) component.Health {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.started {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: "not started",
		}
	}
	return component.Health{
		Name:   c.Name(),
		Status: component.StatusHealthy,
	}
}

// Reset flushes all keys from the in-memory Redis.
func (c *Component) Reset(_ context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.started || c.mini == nil {
		return fmt.Errorf("component not started")
	}
	c.mini.FlushAll()
	return nil
}

// entry is one string key in a snapshot.
type entry struct {
	Value string
	TTL   time.Duration
}

// Snapshot captures every string key with its remaining TTL.
func (c *Component) Snapshot(_ context.Context) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.started || c.mini == nil {
		return nil, fmt.Errorf("component not started")
	}

	snapshot := make(map[string]entry)
	for _, key := range c.mini.Keys() {
		val, err := c.mini.Get(key)
		if err == nil {
			snapshot[key] = entry{Value: val, TTL: c.mini.TTL(key)}
		}
	}
	return snapshot, nil
}

// Restore returns the Redis state to a previously captured snapshot.
func (c *Component) Restore(_ context.Context, snap interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.started || c.mini == nil {
		return fmt.Errorf("component not started")
	}

	snapshot, ok := snap.(map[string]entry)
	if !ok {
		return fmt.Errorf("invalid snapshot type: got %T", snap)
	}

	c.mini.FlushAll()
	for key, e := range snapshot {
		if err := c.mini.Set(key, e.Value); err != nil {
			return fmt.Errorf("failed to restore key %q: %w", key, err)
		}
		if e.TTL > 0 {
			c.mini.SetTTL(key, e.TTL)
		}
	}
	return nil
}
