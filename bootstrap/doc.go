// Package bootstrap runs a service through a uniform lifecycle: load-time
// config defaults and validation, component start in registration order,
// configure callbacks, ready check, startup summary, signal wait and
// reverse-order shutdown.
package bootstrap
