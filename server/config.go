package server

import (
	"fmt"
	"time"

	"github.com/kbukum/rediskit/validation"
)

// Config holds HTTP server configuration.
type Config struct {
	Host            string `yaml:"host" mapstructure:"host"`
	Port            int    `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     string `yaml:"read_timeout" mapstructure:"read_timeout" validate:"duration"`
	WriteTimeout    string `yaml:"write_timeout" mapstructure:"write_timeout" validate:"duration"`
	IdleTimeout     string `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"duration"`
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"duration"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "15s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "15s"
	}
	if c.IdleTimeout == "" {
		c.IdleTimeout = "60s"
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "5s"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
