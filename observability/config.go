package observability

import (
	"time"

	"github.com/kbukum/rediskit/validation"
)

// Config is the observability section of the service configuration.
type Config struct {
	// Enabled turns on OTLP export of traces and metrics.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Endpoint is the OTLP HTTP collector host:port (e.g. "localhost:4318").
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,hostname_port"`

	// Insecure sends to the collector over plain HTTP.
	Insecure bool `yaml:"insecure" mapstructure:"insecure"`

	// SampleRate is the fraction of traces kept, 0.0 to 1.0.
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`

	// MetricInterval is how often metrics are exported (e.g. "15s").
	MetricInterval string `yaml:"metric_interval" mapstructure:"metric_interval" validate:"duration"`
}

// ApplyDefaults sets development defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.MetricInterval == "" {
		c.MetricInterval = "15s"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

func (c *Config) interval() time.Duration {
	d, err := time.ParseDuration(c.MetricInterval)
	if err != nil {
		return 0
	}
	return d
}

// Service identifies the process in exported telemetry.
type Service struct {
	Name        string
	Version     string
	Environment string
}
