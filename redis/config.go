package redis

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kbukum/rediskit/validation"
)

// Drivers accepted in Config.Driver.
const (
	DriverGoRedis = "goredis"
	DriverRedigo  = "redigo"
)

// Config holds the connection settings of one Redis instance.
type Config struct {
	// Driver selects the client library used for each pooled socket.
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=goredis redigo"`

	// Addr is the Redis server address (host:port).
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`

	// Username is the ACL user; empty uses the default user.
	Username string `mapstructure:"username"`

	// Password is the Redis server password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"gte=0"`

	// PoolSize is the maximum number of connections per worker pool.
	PoolSize int `mapstructure:"pool_size" validate:"gte=0"`

	// MinIdleConns is the number of idle connections idle reaping keeps open.
	MinIdleConns int `mapstructure:"min_idle_conns" validate:"gte=0"`

	// DialTimeout is the timeout for establishing new connections (e.g. "5s").
	DialTimeout string `mapstructure:"dial_timeout" validate:"duration"`

	// ReadTimeout is the timeout for socket reads (e.g. "3s").
	ReadTimeout string `mapstructure:"read_timeout" validate:"duration"`

	// WriteTimeout is the timeout for socket writes (e.g. "3s").
	WriteTimeout string `mapstructure:"write_timeout" validate:"duration"`

	// PoolTimeout is how long a checkout waits on an exhausted pool (e.g. "4s").
	// "0s" fails immediately.
	PoolTimeout string `mapstructure:"pool_timeout" validate:"duration"`

	// CommandTimeout bounds a single Send unless the call overrides it.
	// Empty means no bound beyond the caller's context.
	CommandTimeout string `mapstructure:"command_timeout" validate:"duration"`

	// IdleTimeout closes connections idle longer than this (e.g. "5m").
	IdleTimeout string `mapstructure:"idle_timeout" validate:"duration"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverGoRedis
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == "" {
		c.DialTimeout = "5s"
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "3s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "3s"
	}
	if c.PoolTimeout == "" {
		c.PoolTimeout = "4s"
	}
	if c.IdleTimeout == "" {
		c.IdleTimeout = "5m"
	}
}

// Validate checks that required fields are present and parseable.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	// pool_timeout may be negative: the checkout then waits on the ctx only.
	v := validation.New().
		Timeout("dial_timeout", c.DialTimeout).
		Timeout("command_timeout", c.CommandTimeout).
		Timeout("idle_timeout", c.IdleTimeout)
	if c.PoolSize > 0 {
		v.AtMost("min_idle_conns", c.MinIdleConns, "pool_size", c.PoolSize)
	}
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// durations is the parsed form of the string durations in Config.
type durations struct {
	dial, read, write, pool, command, idle time.Duration
}

func (c *Config) durations() (durations, error) {
	var d durations
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"dial_timeout", c.DialTimeout, &d.dial},
		{"read_timeout", c.ReadTimeout, &d.read},
		{"write_timeout", c.WriteTimeout, &d.write},
		{"pool_timeout", c.PoolTimeout, &d.pool},
		{"command_timeout", c.CommandTimeout, &d.command},
		{"idle_timeout", c.IdleTimeout, &d.idle},
	} {
		if f.raw == "" {
			continue
		}
		v, err := time.ParseDuration(f.raw)
		if err != nil {
			return d, fmt.Errorf("invalid %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = v
	}
	return d, nil
}

// Settings is the redis section of a service configuration.
type Settings struct {
	// Default names the instance used by Registry.Client when none is given.
	Default string `mapstructure:"default"`

	// Workers is the number of worker partitions application-level clients
	// rotate through. Defaults to GOMAXPROCS.
	Workers int `mapstructure:"workers"`

	// Ping makes Component.Start verify the default instance is reachable.
	Ping bool `mapstructure:"ping"`

	// Instances maps instance IDs to their connection settings.
	Instances map[string]Config `mapstructure:"instances"`
}

// ApplyDefaults fills Settings and every instance Config.
func (s *Settings) ApplyDefaults() {
	if s.Default == "" {
		s.Default = string(DefaultInstance)
	}
	if s.Workers <= 0 {
		s.Workers = runtime.GOMAXPROCS(0)
	}
	for id, cfg := range s.Instances {
		cfg.ApplyDefaults()
		s.Instances[id] = cfg
	}
}

// Validate checks every instance and that the default instance exists.
func (s *Settings) Validate() error {
	if len(s.Instances) == 0 {
		return fmt.Errorf("redis: at least one instance is required")
	}
	if _, ok := s.Instances[s.Default]; !ok {
		return fmt.Errorf("redis: default instance %q is not configured", s.Default)
	}
	for id, cfg := range s.Instances {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("redis instance %q: %w", id, err)
		}
	}
	return nil
}
