package pool

import "time"

// Trace holds callbacks fired on pool events. All callbacks are optional and
// are called synchronously, outside the pool's lock.
type Trace struct {
	// ConnCreated is called after every dial attempt, successful or not.
	ConnCreated func(ConnCreated)

	// ConnClosed is called when the pool closes a connection.
	ConnClosed func(ConnClosed)

	// CheckoutDone is called when a Checkout returns.
	CheckoutDone func(CheckoutDone)
}

// Common is included in every trace event.
type Common struct {
	// Name is the pool's configured name.
	Name string

	// MaxSize is the pool's connection limit.
	MaxSize int

	// Size and Idle are the live and idle connection counts at the time of
	// the event.
	Size, Idle int
}

// ConnCreated describes a dial attempt.
type ConnCreated struct {
	Common

	ConnID      string
	ConnectTime time.Duration
	Err         error
}

// ConnClosedReason says why a connection was closed.
type ConnClosedReason string

// All possible values of ConnClosedReason.
const (
	// ConnClosedReasonBroken means the connection failed an operation.
	ConnClosedReasonBroken ConnClosedReason = "broken"

	// ConnClosedReasonIdleTimeout means the connection sat idle too long.
	ConnClosedReasonIdleTimeout ConnClosedReason = "idle timeout"

	// ConnClosedReasonPoolClosed means the pool was closed.
	ConnClosedReasonPoolClosed ConnClosedReason = "pool closed"
)

// ConnClosed describes a connection the pool closed.
type ConnClosed struct {
	Common

	ConnID string
	Reason ConnClosedReason
	Err    error
}

// CheckoutDone describes a finished Checkout.
type CheckoutDone struct {
	Common

	// Waited is the total time the caller spent inside Checkout, dialing
	// included.
	Waited time.Duration

	// Queued is true if the caller had to wait in the FIFO queue.
	Queued bool

	Err error
}
