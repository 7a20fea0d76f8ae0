package config

import (
	"fmt"

	"github.com/kbukum/rediskit/logger"
	"github.com/kbukum/rediskit/validation"
)

// Environments accepted in ServiceConfig.Environment.
var Environments = []string{"development", "staging", "production"}

// ServiceConfig holds the fields every service needs. Service configs embed
// it and add their own sections:
//
//	type Config struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Redis redis.Settings `yaml:"redis" mapstructure:"redis"`
//	}
type ServiceConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`
	Environment string        `yaml:"environment" mapstructure:"environment"`
	Version     string        `yaml:"version" mapstructure:"version"`
	Debug       bool          `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config `yaml:"logging" mapstructure:"logging"`
}

// GetServiceConfig returns the embedded ServiceConfig; embedding structs get
// it promoted.
func (c *ServiceConfig) GetServiceConfig() *ServiceConfig {
	return c
}

// ApplyDefaults fills empty fields. Development turns Debug on and, unless
// a level is configured, logs at debug.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
		if c.Logging.Level == "" {
			c.Logging.Level = "debug"
		}
	}
	if c.Logging.ServiceName == "" && c.Name != "" {
		c.Logging.ServiceName = c.Name
	}
	c.Logging.ApplyDefaults()
}

// Validate checks the base fields and the logging section.
func (c *ServiceConfig) Validate() error {
	v := validation.New().
		Required("name", c.Name).
		OneOf("environment", c.Environment, Environments)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}
