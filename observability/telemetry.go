package observability

import (
	"context"
	"errors"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/rediskit/logger"
)

// Telemetry owns the providers created by Setup.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Setup initializes tracing and metrics export when cfg.Enabled is set.
// Otherwise it leaves the global no-op providers in place.
func Setup(ctx context.Context, cfg Config, svc Service, log *logger.Logger) (*Telemetry, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("observability")
	if !cfg.Enabled {
		log.Debug("telemetry export disabled")
		return &Telemetry{}, nil
	}

	tp, err := InitTracer(ctx, cfg, svc, log)
	if err != nil {
		return nil, err
	}
	mp, err := InitMeter(ctx, cfg, svc, log)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	return &Telemetry{tp: tp, mp: mp}, nil
}

// Enabled reports whether Setup installed exporting providers.
func (t *Telemetry) Enabled() bool { return t.tp != nil }

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
