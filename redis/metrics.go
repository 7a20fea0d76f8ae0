package redis

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/rediskit/redis/pool"
)

// Metrics holds the OpenTelemetry instruments a Registry records to.
type Metrics struct {
	connsCreated     metric.Int64Counter
	connsClosed      metric.Int64Counter
	dialErrors       metric.Int64Counter
	checkoutDuration metric.Float64Histogram
	checkoutErrors   metric.Int64Counter
	commandDuration  metric.Float64Histogram
}

// NewMetrics creates the registry's instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	connsCreated, err := meter.Int64Counter("redis.pool.connections.created",
		metric.WithDescription("Connections dialed by worker pools"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating redis.pool.connections.created counter: %w", err)
	}

	connsClosed, err := meter.Int64Counter("redis.pool.connections.closed",
		metric.WithDescription("Connections closed by worker pools, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating redis.pool.connections.closed counter: %w", err)
	}

	dialErrors, err := meter.Int64Counter("redis.pool.dial.errors",
		metric.WithDescription("Failed dial attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating redis.pool.dial.errors counter: %w", err)
	}

	checkoutDuration, err := meter.Float64Histogram("redis.pool.checkout.duration",
		metric.WithDescription("Time spent obtaining a connection"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating redis.pool.checkout.duration histogram: %w", err)
	}

	checkoutErrors, err := meter.Int64Counter("redis.pool.checkout.errors",
		metric.WithDescription("Checkouts that failed, including exhaustion"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating redis.pool.checkout.errors counter: %w", err)
	}

	commandDuration, err := meter.Float64Histogram("redis.command.duration",
		metric.WithDescription("Duration of Send calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating redis.command.duration histogram: %w", err)
	}

	return &Metrics{
		connsCreated:     connsCreated,
		connsClosed:      connsClosed,
		dialErrors:       dialErrors,
		checkoutDuration: checkoutDuration,
		checkoutErrors:   checkoutErrors,
		commandDuration:  commandDuration,
	}, nil
}

func keyAttrs(key PoolKey) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("redis.instance", string(key.Instance)),
		attribute.String("redis.worker", string(key.Worker)),
	}
}

// trace returns pool hooks that feed the instruments for one pool.
func (m *Metrics) trace(key PoolKey) pool.Trace {
	if m == nil {
		return pool.Trace{}
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(keyAttrs(key)...)

	return pool.Trace{
		ConnCreated: func(e pool.ConnCreated) {
			if e.Err != nil {
				m.dialErrors.Add(ctx, 1, attrs)
				return
			}
			m.connsCreated.Add(ctx, 1, attrs)
		},
		ConnClosed: func(e pool.ConnClosed) {
			m.connsClosed.Add(ctx, 1, metric.WithAttributes(
				append(keyAttrs(key), attribute.String("reason", string(e.Reason)))...,
			))
		},
		CheckoutDone: func(e pool.CheckoutDone) {
			m.checkoutDuration.Record(ctx, e.Waited.Seconds(), attrs)
			if e.Err != nil {
				m.checkoutErrors.Add(ctx, 1, attrs)
			}
		},
	}
}

func (m *Metrics) recordCommand(ctx context.Context, key PoolKey, cmd string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.commandDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		append(keyAttrs(key),
			attribute.String("redis.command", cmd),
			attribute.String("status", status),
		)...,
	))
}
