package component

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/rediskit/logger"
)

// DefaultStopTimeout bounds each component's Stop during StopAll.
const DefaultStopTimeout = 10 * time.Second

// componentEntry holds a component and its started state.
type componentEntry struct {
	component Component
	started   bool
}

// Registry manages component lifecycle with deterministic ordering.
// Components are started in registration order and stopped in reverse order.
type Registry struct {
	entries     []*componentEntry
	lookup      map[string]*componentEntry
	log         *logger.Logger
	stopTimeout time.Duration
	mu          sync.RWMutex
}

// NewRegistry creates a new component registry. A nil logger uses the global
// logger.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Registry{
		entries:     make([]*componentEntry, 0),
		lookup:      make(map[string]*componentEntry),
		log:         log.WithComponent("lifecycle"),
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout changes how long StopAll waits for each component.
func (r *Registry) SetStopTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.stopTimeout = d
	}
}

// Register adds a component to the registry. Components are started in
// the order they are registered, so register dependencies first.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.lookup[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}

	entry := &componentEntry{component: c}
	r.entries = append(r.entries, entry)
	r.lookup[name] = entry

	r.log.Debug("Component registered", logger.Fields("name", name))
	return nil
}

// StartAll starts all components in registration order, skipping those
// already running. If one fails, every started component is stopped again
// before the error is returned.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Info("Starting all components", logger.Fields("count", len(r.entries)))

	for _, entry := range r.entries {
		if entry.started {
			continue
		}
		name := entry.component.Name()

		if err := entry.component.Start(ctx); err != nil {
			r.log.Error("Component start failed", logger.Fields(
				"name", name,
				logger.FieldError, err.Error(),
			))
			if stopErr := r.stopStarted(ctx); stopErr != nil {
				err = errors.Join(err, stopErr)
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}

		entry.started = true
		if d, ok := entry.component.(Describable); ok {
			desc := d.Describe()
			r.log.Info("Component started", logger.Fields(
				"name", name,
				"type", desc.Type,
				"details", desc.Details,
			))
		} else {
			r.log.Info("Component started", logger.Fields("name", name))
		}
	}

	return nil
}

// StopAll gracefully stops all started components in reverse registration
// order.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Info("Stopping all components")
	if err := r.stopStarted(ctx); err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}
	return nil
}

func (r *Registry) stopStarted(ctx context.Context) error {
	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		entry := r.entries[i]
		if !entry.started {
			continue
		}

		name := entry.component.Name()
		stopCtx, cancel := context.WithTimeout(ctx, r.stopTimeout)
		if err := entry.component.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop %s: %w", name, err))
			r.log.Error("Component stop failed", logger.Fields(
				"name", name,
				logger.FieldError, err.Error(),
			))
		} else {
			r.log.Info("Component stopped", logger.Fields("name", name))
		}
		entry.started = false
		cancel()
	}
	return errors.Join(errs...)
}

// HealthAll returns health status for all registered components.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]Health, 0, len(r.entries))
	for _, entry := range r.entries {
		results = append(results, entry.component.Health(ctx))
	}
	return results
}

// Healthy reports whether every component is healthy.
func Healthy(results []Health) bool {
	for _, h := range results {
		if h.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// Get returns a registered component by name, or nil if not found.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, exists := r.lookup[name]; exists {
		return entry.component
	}
	return nil
}

// All returns all registered components in registration order.
func (r *Registry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Component, 0, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, entry.component)
	}
	return result
}
