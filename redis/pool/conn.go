package pool

import (
	"context"
	"time"
)

// Transport is a single live connection to a Redis server. The pool never
// shares a Transport between two callers at once.
type Transport interface {
	// Do sends one command and waits for its reply.
	Do(ctx context.Context, args ...any) (any, error)

	// Close closes the underlying socket.
	Close() error
}

// DialFunc opens and authenticates a new Transport.
type DialFunc func(ctx context.Context) (Transport, error)

// Conn is a Transport owned by a Pool. A Conn obtained from Checkout must be
// handed back with Put exactly once.
type Conn struct {
	t    Transport
	id   string
	pool *Pool

	createdAt time.Time

	// guarded by pool.mu
	lastUsed time.Time
	leased   bool

	// only touched by the current holder, read by the pool under pool.mu
	// after Put.
	broken error
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// CreatedAt returns when the connection was dialed.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// Do runs a command on the connection. Errors the pool classifies as fatal
// mark the connection broken so Put discards it.
func (c *Conn) Do(ctx context.Context, args ...any) (any, error) {
	reply, err := c.t.Do(ctx, args...)
	if err != nil && c.pool.isFatal(err) {
		c.broken = err
	}
	return reply, err
}

// MarkBroken forces the connection to be discarded when it is returned.
func (c *Conn) MarkBroken(err error) {
	if c.broken == nil {
		c.broken = err
	}
}

// Err returns the error that broke the connection, or nil if it is healthy.
func (c *Conn) Err() error { return c.broken }

// Transport returns the underlying transport, for drivers that need
// operations beyond Do.
func (c *Conn) Transport() Transport { return c.t }
