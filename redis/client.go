package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/rediskit/errors"
	"github.com/kbukum/rediskit/logger"
	"github.com/kbukum/rediskit/redis/pool"
)

// Client sends commands to one Redis instance through the Registry.
//
// A client from Registry.Client picks the next worker's pool on every call.
// A client from Registry.ClientFor always uses the same worker. Clients are
// cheap values and safe for concurrent use.
type Client struct {
	registry *Registry
	instance InstanceID
	worker   WorkerID
	log      *logger.Logger
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	log     *logger.Logger
	timeout time.Duration
	worker  WorkerID
}

// WithCallLogger logs this call with log instead of the client's logger.
func WithCallLogger(log *logger.Logger) CallOption {
	return func(o *callOptions) { o.log = log }
}

// WithTimeout bounds this call, overriding the instance's command_timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithWorker sends this call through worker's pool.
func WithWorker(worker WorkerID) CallOption {
	return func(o *callOptions) { o.worker = worker }
}

// Instance returns the instance the client talks to.
func (c *Client) Instance() InstanceID { return c.instance }

// Worker returns the bound worker, or "" for a round-robin client.
func (c *Client) Worker() WorkerID { return c.worker }

// Logging returns a copy of the client that logs with log.
func (c *Client) Logging(log *logger.Logger) *Client {
	cp := *c
	cp.log = log
	return &cp
}

func (c *Client) options(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.worker == "" {
		o.worker = c.worker
	}
	if o.worker == "" {
		o.worker = c.registry.NextWorker()
	}
	return o
}

// logger resolves the call logger: call override, then the client's bound
// logger, then the registry's.
func (c *Client) logger(o callOptions) *logger.Logger {
	switch {
	case o.log != nil:
		return o.log
	case c.log != nil:
		return c.log
	default:
		return c.registry.log
	}
}

// Send runs one command on a pooled connection and returns its reply. A nil
// reply means the server answered with a null. Send never retries.
func (c *Client) Send(ctx context.Context, cmd Command, opts ...CallOption) (any, error) {
	if cmd.Name == "" {
		return nil, errors.MissingField("command")
	}
	o := c.options(opts)
	key := Key(c.instance, o.worker)
	log := c.logger(o).WithContext(ctx)

	e, err := c.registry.entry(ctx, key)
	if err != nil {
		log.Warn("pool lookup failed", logger.Fields(
			logger.FieldInstance, string(key.Instance),
			logger.FieldError, err.Error(),
		))
		return nil, err
	}

	timeout := o.timeout
	if timeout == 0 {
		timeout = e.d.command
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	name := cmd.String()
	ctx, span := c.registry.tracer.Start(ctx, "redis "+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", name),
			attribute.String("redis.instance", string(key.Instance)),
			attribute.String("redis.worker", string(key.Worker)),
		),
	)
	defer span.End()

	start := time.Now()
	var (
		reply any
		sent  bool
	)
	err = e.pool.Lease(ctx, func(conn *pool.Conn) error {
		sent = true
		var doErr error
		reply, doErr = conn.Do(ctx, cmd.args()...)
		return doErr
	})
	elapsed := time.Since(start)
	err = translate(key, e, name, sent, err)
	c.registry.metrics.recordCommand(ctx, key, name, elapsed, err)

	fields := logger.Fields(
		logger.FieldInstance, string(key.Instance),
		logger.FieldWorker, string(key.Worker),
		logger.FieldCommand, name,
		logger.FieldDuration, elapsed.Milliseconds(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		fields[logger.FieldError] = err.Error()
		log.Warn("redis command failed", fields)
		return nil, err
	}
	log.Debug("redis command", fields)
	return reply, nil
}

// translate maps pool and transport errors onto AppErrors. Context errors
// raised before the command was written are returned unchanged.
func translate(key PoolKey, e *poolEntry, cmd string, sent bool, err error) error {
	if err == nil {
		return nil
	}
	var rerr *ReplyError
	switch {
	case stderrors.Is(err, pool.ErrExhausted):
		return errors.PoolExhausted(string(key.Instance), e.d.pool).WithCause(err)
	case stderrors.Is(err, pool.ErrClosed):
		return errors.RegistryClosed().WithCause(err)
	case stderrors.As(err, &rerr):
		return errors.CommandFailed(cmd, rerr)
	case !sent && (stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)):
		return err
	default:
		return errors.ConnectionFailed(fmt.Sprintf("redis %s (%s)", key.Instance, e.cfg.Addr), err).
			WithDetail("command", cmd)
	}
}

// Do is shorthand for Send(ctx, Cmd(name, args...)).
func (c *Client) Do(ctx context.Context, name string, args ...any) (any, error) {
	return c.Send(ctx, Cmd(name, args...))
}

// Ping checks that the instance answers.
func (c *Client) Ping(ctx context.Context) error {
	reply, err := String(c.Do(ctx, "PING"))
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("unexpected redis ping response: %s", reply)
	}
	return nil
}

// Get returns the value of key, or Nil if it does not exist.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return String(c.Do(ctx, "GET", key))
}

// Set stores value at key. An expiration of 0 keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	args := []any{key, value}
	if expiration > 0 {
		args = append(args, "PX", expiration.Milliseconds())
	}
	_, err := c.Do(ctx, "SET", args...)
	return err
}

// Del deletes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	return Int64(c.Do(ctx, "DEL", stringArgs(keys)...))
}

// Exists returns how many of keys exist.
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	return Int64(c.Do(ctx, "EXISTS", stringArgs(keys)...))
}

// Publish sends message to channel and returns the number of receivers.
func (c *Client) Publish(ctx context.Context, channel string, message any) (int64, error) {
	return Int64(c.Do(ctx, "PUBLISH", channel, message))
}

// GetJSON decodes the JSON value at key into dest.
func (c *Client) GetJSON(ctx context.Context, key string, dest any) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("redis get json %q: %w", key, err)
	}
	return nil
}

// SetJSON stores value at key as JSON.
func (c *Client) SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis set json %q: %w", key, err)
	}
	return c.Set(ctx, key, string(data), expiration)
}

// Conn is a connection lent to a WithConnection callback. It must not be
// used after the callback returns.
type Conn struct {
	conn  *pool.Conn
	key   PoolKey
	entry *poolEntry
}

// Send runs cmd on the lent connection.
func (c *Conn) Send(ctx context.Context, cmd Command) (any, error) {
	if cmd.Name == "" {
		return nil, errors.MissingField("command")
	}
	reply, err := c.conn.Do(ctx, cmd.args()...)
	if err != nil {
		return nil, translate(c.key, c.entry, cmd.String(), true, err)
	}
	return reply, nil
}

// Do is shorthand for Send(ctx, Cmd(name, args...)).
func (c *Conn) Do(ctx context.Context, name string, args ...any) (any, error) {
	return c.Send(ctx, Cmd(name, args...))
}

// WithConnection lends one pooled connection to fn for a sequence of
// commands that must share it, such as MULTI/EXEC. The connection goes back
// to the pool when fn returns or panics.
func (c *Client) WithConnection(ctx context.Context, fn func(*Conn) error, opts ...CallOption) error {
	o := c.options(opts)
	key := Key(c.instance, o.worker)
	e, err := c.registry.entry(ctx, key)
	if err != nil {
		return err
	}

	sent := false
	err = e.pool.Lease(ctx, func(pc *pool.Conn) error {
		sent = true
		return fn(&Conn{conn: pc, key: key, entry: e})
	})
	if err != nil && !sent {
		err = translate(key, e, "", false, err)
	}
	if err != nil {
		c.logger(o).WithContext(ctx).Debug("borrowed connection released with error", logger.Fields(
			logger.FieldInstance, string(key.Instance),
			logger.FieldWorker, string(key.Worker),
			logger.FieldError, err.Error(),
		))
	}
	return err
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
