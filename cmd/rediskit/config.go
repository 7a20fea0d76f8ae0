package main

import (
	"fmt"

	"github.com/kbukum/rediskit/config"
	"github.com/kbukum/rediskit/observability"
	"github.com/kbukum/rediskit/redis"
	"github.com/kbukum/rediskit/resilience"
	"github.com/kbukum/rediskit/server"
)

const serviceName = "rediskit"

// AppConfig is the full service configuration.
type AppConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Redis         redis.Settings         `yaml:"redis" mapstructure:"redis"`
	Server        server.Config          `yaml:"server" mapstructure:"server"`
	Observability observability.Config   `yaml:"observability" mapstructure:"observability"`
	StartupRetry  resilience.RetryConfig `yaml:"startup_retry" mapstructure:"startup_retry"`
}

// ApplyDefaults fills every section.
func (c *AppConfig) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

// Validate checks every section.
func (c *AppConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("config.redis: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("config.server: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("config.observability: %w", err)
	}
	return nil
}
