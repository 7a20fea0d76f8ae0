// Command rediskit serves a small key/value and publish API over the Redis
// pool registry.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kbukum/rediskit/bootstrap"
	"github.com/kbukum/rediskit/config"
	"github.com/kbukum/rediskit/logger"
	"github.com/kbukum/rediskit/observability"
	"github.com/kbukum/rediskit/redis"
	"github.com/kbukum/rediskit/resilience"
	"github.com/kbukum/rediskit/server"
	"github.com/kbukum/rediskit/version"
)

func main() {
	var cfg AppConfig
	if err := config.LoadConfig(serviceName, &cfg, config.WithEnvPrefix("REDISKIT")); err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Version == "" {
		cfg.Version = version.Short()
	}

	app, err := bootstrap.NewApp(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), app); err != nil {
		app.Logger.Error("rediskit exited", logger.ErrorFields("run", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, app *bootstrap.App[*AppConfig]) error {
	if err := setup(ctx, app); err != nil {
		return err
	}
	return app.Run(ctx)
}

// setup registers the Redis component, telemetry and the HTTP server on app.
func setup(ctx context.Context, app *bootstrap.App[*AppConfig]) error {
	cfg := app.Cfg

	tel, err := observability.Setup(ctx, cfg.Observability, observability.Service{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Environment: cfg.Environment,
	}, app.Logger)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	app.OnStop(tel.Shutdown)

	opts := []redis.Option{redis.WithTracer(observability.Tracer(serviceName))}
	if tel.Enabled() {
		metrics, err := redis.NewMetrics(observability.Meter(serviceName))
		if err != nil {
			return fmt.Errorf("redis metrics: %w", err)
		}
		opts = append(opts, redis.WithMetrics(metrics))
	}

	rc := redis.NewComponent(cfg.Redis, app.Logger, opts...)
	if err := app.RegisterComponent(rc); err != nil {
		return err
	}

	app.OnStart(func(ctx context.Context) error {
		retry := cfg.StartupRetry
		retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
			app.Logger.Warn("Redis not reachable yet", logger.Fields(
				"attempt", attempt,
				logger.FieldError, err.Error(),
				"backoff", backoff.String(),
			))
		}
		return resilience.RetryFunc(ctx, retry, rc.Registry().Client("").Ping)
	})

	app.OnConfigure(func(_ context.Context, a *bootstrap.App[*AppConfig]) error {
		srv := server.New(a.Cfg.Server, a.Logger)
		srv.ApplyMiddleware()
		srv.RegisterDefaultEndpoints(a.Name, a.Version, a.Components.HealthAll)
		for _, r := range routes(srv, rc.Registry(), a.Logger) {
			a.Summary.TrackRoute(r.Method, r.Path)
		}
		return a.RegisterComponent(server.NewComponent(srv))
	})
	return nil
}
