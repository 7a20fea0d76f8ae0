package logger

import "sync"

// Names of the subsystems that look up their default logger with Get.
// Register a logger under one of them before the subsystem is built to route
// its output somewhere else.
const (
	NameRedis = "redis"
	NameHTTP  = "http"
)

var named sync.Map

// Register binds l to name. A nil l removes the binding.
func Register(name string, l *Logger) {
	if l == nil {
		named.Delete(name)
		return
	}
	named.Store(name, l)
}

// Get returns the logger bound to name, or the global logger tagged with
// name as its component.
func Get(name string) *Logger {
	if v, ok := named.Load(name); ok {
		return v.(*Logger)
	}
	return GetGlobalLogger().WithComponent(name)
}
