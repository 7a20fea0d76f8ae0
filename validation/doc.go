// Package validation checks configuration and request input.
//
// Struct tag validation (go-playground/validator) covers per-field rules and
// adds a "duration" tag for string durations:
//
//	type Config struct {
//	    Addr        string `mapstructure:"addr" validate:"required,hostname_port"`
//	    DialTimeout string `mapstructure:"dial_timeout" validate:"duration"`
//	}
//	err := validation.Validate(cfg)
//
// Cross-field rules use the collecting Validator:
//
//	v := validation.New().
//	    Timeout("dial_timeout", cfg.DialTimeout).
//	    AtMost("min_idle_conns", cfg.MinIdleConns, "pool_size", cfg.PoolSize)
//	if err := v.Validate(); err != nil { ... }
package validation
