package redis

import (
	"context"
	stderrors "errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/rediskit/redis/pool"
)

// Nil is returned by Get and GetJSON when the key does not exist.
var Nil = stderrors.New("redis: nil")

// ReplyError is an error reply sent by the server, such as WRONGTYPE. The
// connection that received it stays healthy.
type ReplyError struct {
	Msg string
}

func (e *ReplyError) Error() string { return e.Msg }

// isFatal reports whether err leaves a pooled connection unusable. Only
// server error replies are recoverable.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	var rerr *ReplyError
	return !stderrors.As(err, &rerr)
}

// dialer returns the DialFunc for the instance's configured driver.
func dialer(cfg Config, d durations) (pool.DialFunc, error) {
	switch cfg.Driver {
	case "", DriverGoRedis:
		return dialGoRedis(cfg, d), nil
	case DriverRedigo:
		return dialRedigo(cfg, d), nil
	default:
		return nil, fmt.Errorf("redis: unknown driver %q", cfg.Driver)
	}
}

// goRedisOptions builds options for a go-redis client that owns exactly one
// socket. Pooling and retries are left to the pool package.
func goRedisOptions(cfg Config, d durations) *goredis.Options {
	return &goredis.Options{
		Addr:                  cfg.Addr,
		Username:              cfg.Username,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		PoolSize:              1,
		MaxIdleConns:          1,
		MaxRetries:            -1,
		DialTimeout:           d.dial,
		ReadTimeout:           d.read,
		WriteTimeout:          d.write,
		ContextTimeoutEnabled: true,
		ConnMaxIdleTime:       -1,
		Protocol:              2,
		DisableIdentity:       true,
	}
}

type goRedisTransport struct {
	rdb *goredis.Client
}

func dialGoRedis(cfg Config, d durations) pool.DialFunc {
	return func(ctx context.Context) (pool.Transport, error) {
		rdb := goredis.NewClient(goRedisOptions(cfg, d))

		if d.dial > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.dial)
			defer cancel()
		}
		// go-redis connects lazily; PING forces the dial and the AUTH/SELECT
		// handshake now.
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return &goRedisTransport{rdb: rdb}, nil
	}
}

func (t *goRedisTransport) Do(ctx context.Context, args ...any) (any, error) {
	reply, err := t.rdb.Do(ctx, args...).Result()
	if err == nil {
		return reply, nil
	}
	if stderrors.Is(err, goredis.Nil) {
		return nil, nil
	}
	var rerr goredis.Error
	if stderrors.As(err, &rerr) {
		return nil, &ReplyError{Msg: err.Error()}
	}
	return nil, err
}

func (t *goRedisTransport) Close() error {
	return t.rdb.Close()
}
