package redis

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kbukum/rediskit/errors"
)

// Provider resolves an instance ID to its connection settings.
type Provider interface {
	// Instance returns the Config registered for id, or an UNKNOWN_INSTANCE
	// error.
	Instance(id InstanceID) (Config, error)
}

// Instances is an in-memory Provider. Each ID can be registered once and is
// immutable afterwards.
type Instances struct {
	mu      sync.RWMutex
	configs map[InstanceID]Config
}

// NewInstances creates a Provider from settings, typically Settings.Instances.
func NewInstances(configs map[string]Config) (*Instances, error) {
	in := &Instances{configs: make(map[InstanceID]Config, len(configs))}
	for id, cfg := range configs {
		if err := in.Register(InstanceID(id), cfg); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// Register adds a validated instance configuration. Registering an ID twice
// is an error.
func (in *Instances) Register(id InstanceID, cfg Config) error {
	if id == "" {
		return errors.MissingField("instance")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("redis instance %q: %w", id, err)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.configs == nil {
		in.configs = make(map[InstanceID]Config)
	}
	if _, ok := in.configs[id]; ok {
		return fmt.Errorf("redis instance %q is already registered", id)
	}
	in.configs[id] = cfg
	return nil
}

// Instance implements Provider.
func (in *Instances) Instance(id InstanceID) (Config, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	cfg, ok := in.configs[id]
	if !ok {
		return Config{}, errors.UnknownInstance(string(id))
	}
	return cfg, nil
}

// IDs returns the registered instance IDs in sorted order.
func (in *Instances) IDs() []InstanceID {
	in.mu.RLock()
	defer in.mu.RUnlock()
	ids := make([]InstanceID, 0, len(in.configs))
	for id := range in.configs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
