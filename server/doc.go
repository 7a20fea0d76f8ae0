// Package server provides the Gin HTTP server of the service and its
// component wrapper.
//
//	srv := server.New(cfg.Server, log)
//	srv.ApplyMiddleware()
//	srv.RegisterDefaultEndpoints(cfg.Name, cfg.Version, components.HealthAll)
//	srv.Engine().Use(middleware.Redis(registry))
//
// Subpackage middleware binds request-scoped Redis clients; endpoint holds the
// health and pool statistics handlers.
package server
