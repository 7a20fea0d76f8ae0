// Package pool implements a bounded, lazily-filled connection pool for a
// single Redis endpoint.
//
// A Pool opens no connections when it is created. Checkout hands out an idle
// connection if one exists, dials a new one while the pool is below MaxSize,
// and otherwise queues the caller. Queued callers are served strictly in
// arrival order as connections come back, and give up with ErrExhausted once
// CheckoutTimeout elapses or with the context's error when it is cancelled.
//
// A connection that fails an operation with a fatal error is never returned
// to the idle set: Put closes it and frees its slot so the next caller can
// dial a replacement.
//
//	err := p.Lease(ctx, func(c *pool.Conn) error {
//	    _, err := c.Do(ctx, "SET", "k", "v")
//	    return err
//	})
package pool
