package bootstrap

import (
	"github.com/kbukum/rediskit/config"
)

// Config is the constraint for application configuration types. Any struct
// that embeds config.ServiceConfig satisfies it through promoted methods,
// provided it overrides ApplyDefaults and Validate to cover its own sections.
//
//	type AppConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Redis redis.Settings `yaml:"redis" mapstructure:"redis"`
//	}
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
