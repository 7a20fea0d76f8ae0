package redis

import (
	"context"
	stderrors "errors"
	"fmt"

	redigo "github.com/gomodule/redigo/redis"

	"github.com/kbukum/rediskit/redis/pool"
)

type redigoTransport struct {
	conn redigo.Conn
}

func dialRedigo(cfg Config, d durations) pool.DialFunc {
	opts := []redigo.DialOption{
		redigo.DialConnectTimeout(d.dial),
		redigo.DialReadTimeout(d.read),
		redigo.DialWriteTimeout(d.write),
		redigo.DialDatabase(cfg.DB),
	}
	if cfg.Username != "" {
		opts = append(opts, redigo.DialUsername(cfg.Username))
	}
	if cfg.Password != "" {
		opts = append(opts, redigo.DialPassword(cfg.Password))
	}

	return func(ctx context.Context) (pool.Transport, error) {
		conn, err := redigo.DialContext(ctx, "tcp", cfg.Addr, opts...)
		if err != nil {
			return nil, err
		}
		return &redigoTransport{conn: conn}, nil
	}
}

func (t *redigoTransport) Do(ctx context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, &ReplyError{Msg: "ERR empty command"}
	}
	reply, err := redigo.DoContext(t.conn, ctx, fmt.Sprint(args[0]), args[1:]...)
	if err != nil {
		var rerr redigo.Error
		if stderrors.As(err, &rerr) {
			return nil, &ReplyError{Msg: string(rerr)}
		}
		return nil, err
	}
	return normalizeRedigo(reply), nil
}

func (t *redigoTransport) Close() error {
	return t.conn.Close()
}

// normalizeRedigo converts bulk strings to string so both drivers return the
// same reply shapes.
func normalizeRedigo(reply any) any {
	switch v := reply.(type) {
	case []byte:
		return string(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalizeRedigo(e)
		}
		return out
	default:
		return v
	}
}
