// Package logger provides structured logging for rediskit using zerolog.
//
// Loggers are cheap values: WithComponent/WithFields return tagged copies, so
// a pool, a registry and every request-bound Redis client can carry its own
// fields (instance, worker, request_id) without sharing mutable state.
//
// # Usage
//
//	log := logger.New(&logger.Config{Level: "debug", Format: "json"}, "rediskit")
//	log.WithComponent("redis").Info("pool created", logger.Fields("instance", "default"))
package logger
