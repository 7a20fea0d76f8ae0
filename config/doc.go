// Package config loads service configuration from a YAML file, a .env file
// and the environment using Viper.
//
//	var cfg Config
//	if err := config.LoadConfig("rediskit", &cfg, config.WithEnvPrefix("REDISKIT")); err != nil {
//	    return err
//	}
//	cfg.ApplyDefaults()
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// Environment variables override file values. With the prefix above,
// REDISKIT_REDIS_INSTANCES_DEFAULT_ADDR sets redis.instances.default.addr.
// Map entries such as Redis instances can only be overridden once the file
// declares them.
package config
