// Package observability sets up OpenTelemetry export for the service and
// builds the health report served over HTTP.
//
//	tel, err := observability.Setup(ctx, cfg.Observability, observability.Service{
//	    Name: cfg.Name, Version: cfg.Version, Environment: cfg.Environment,
//	}, log)
//	defer tel.Shutdown(ctx)
//
//	metrics, err := redis.NewMetrics(observability.Meter("rediskit"))
//
// With Enabled false, Setup installs nothing and the global providers stay
// no-op, so instruments and spans cost almost nothing.
package observability
