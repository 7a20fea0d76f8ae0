package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/rediskit/logger"
)

var (
	// ErrExhausted is returned by Checkout when no connection became
	// available within CheckoutTimeout.
	ErrExhausted = errors.New("pool: connection pool exhausted")

	// ErrClosed is returned by operations on a closed Pool.
	ErrClosed = errors.New("pool: pool is closed")
)

// Config configures a Pool.
type Config struct {
	// Name identifies the pool in logs and traces.
	Name string

	// MaxSize is the maximum number of live connections.
	MaxSize int

	// MinIdle is the number of idle connections idle reaping leaves open.
	MinIdle int

	// CheckoutTimeout is how long Checkout waits on a full pool. Zero fails
	// immediately; a negative value waits until the context is done.
	CheckoutTimeout time.Duration

	// IdleTimeout closes connections that sat idle longer than this. Zero
	// disables reaping.
	IdleTimeout time.Duration

	// Dial opens new connections.
	Dial DialFunc

	// IsFatal decides whether an error returned by Transport.Do leaves the
	// connection unusable. Defaults to treating every error as fatal.
	IsFatal func(error) bool

	Trace  Trace
	Logger *logger.Logger
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Name    string
	MaxSize int
	Size    int
	Idle    int
	Waiting int

	Checkouts uint64
	Waits     uint64
	Timeouts  uint64
	Dials     uint64
	Discarded uint64
}

type grant struct {
	// conn is nil when the waiter was given a free slot and must dial.
	conn *Conn
	err  error
}

type waiter struct {
	ch      chan grant
	granted bool
}

// Pool is a bounded set of connections to one Redis endpoint.
type Pool struct {
	cfg Config
	log *logger.Logger

	mu sync.Mutex
	// idle is used as a stack: the most recently returned conn is last.
	idle    []*Conn
	size    int
	waiters list.List
	closed  bool
	drained chan struct{}

	checkouts, waits, timeouts, dials, discarded uint64

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New creates a Pool. No connection is opened until the first Checkout.
func New(cfg Config) (*Pool, error) {
	if cfg.Dial == nil {
		return nil, fmt.Errorf("pool %q: dial func is required", cfg.Name)
	}
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("pool %q: max size must be > 0", cfg.Name)
	}
	if cfg.MinIdle > cfg.MaxSize {
		cfg.MinIdle = cfg.MaxSize
	}
	if cfg.IsFatal == nil {
		cfg.IsFatal = func(err error) bool { return err != nil }
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	p := &Pool{
		cfg:     cfg,
		log:     log.WithFields(logger.Fields("pool", cfg.Name)),
		closeCh: make(chan struct{}),
		drained: make(chan struct{}),
	}

	if cfg.IdleTimeout > 0 {
		interval := cfg.IdleTimeout / 2
		if interval < 10*time.Millisecond {
			interval = 10 * time.Millisecond
		}
		p.wg.Add(1)
		go p.reapLoop(interval)
	}
	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.cfg.Name }

// Checkout returns a connection for exclusive use. The caller must Put it
// back.
func (p *Pool) Checkout(ctx context.Context) (*Conn, error) {
	start := time.Now()
	c, queued, err := p.checkout(ctx)
	if p.cfg.Trace.CheckoutDone != nil {
		p.cfg.Trace.CheckoutDone(CheckoutDone{
			Common: p.common(),
			Waited: time.Since(start),
			Queued: queued,
			Err:    err,
		})
	}
	return c, err
}

func (p *Pool) checkout(ctx context.Context) (*Conn, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, false, ErrClosed
	}
	p.checkouts++

	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		c.leased = true
		p.mu.Unlock()
		return c, false, nil
	}

	if p.size < p.cfg.MaxSize {
		p.size++
		p.mu.Unlock()
		c, err := p.dial(ctx)
		return c, false, err
	}

	if p.cfg.CheckoutTimeout == 0 {
		p.timeouts++
		p.mu.Unlock()
		return nil, false, ErrExhausted
	}

	w := &waiter{ch: make(chan grant, 1)}
	elem := p.waiters.PushBack(w)
	p.waits++
	p.mu.Unlock()

	var timeout <-chan time.Time
	if p.cfg.CheckoutTimeout > 0 {
		t := time.NewTimer(p.cfg.CheckoutTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case g := <-w.ch:
		c, err := p.accept(ctx, g)
		return c, true, err
	case <-timeout:
		return nil, true, p.abandon(elem, w, ErrExhausted)
	case <-ctx.Done():
		return nil, true, p.abandon(elem, w, ctx.Err())
	}
}

func (p *Pool) accept(ctx context.Context, g grant) (*Conn, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.conn != nil {
		return g.conn, nil
	}
	return p.dial(ctx)
}

// abandon takes a waiter out of the queue after a timeout or cancellation.
// If a grant raced in first it is handed straight back to the pool.
func (p *Pool) abandon(elem *list.Element, w *waiter, err error) error {
	p.mu.Lock()
	if !w.granted {
		p.waiters.Remove(elem)
		if errors.Is(err, ErrExhausted) {
			p.timeouts++
		}
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	g := <-w.ch
	switch {
	case g.err != nil:
		return g.err
	case g.conn != nil:
		p.Put(g.conn)
	default:
		p.releaseSlot()
	}
	return err
}

// dial opens a connection for a slot the caller already reserved.
func (p *Pool) dial(ctx context.Context) (*Conn, error) {
	start := time.Now()
	t, err := p.cfg.Dial(ctx)
	if err != nil {
		p.releaseSlot()
		p.traceCreated("", time.Since(start), err)
		p.log.Warn("dial failed", logger.ErrorFields("dial", err))
		return nil, fmt.Errorf("pool %q: dial: %w", p.cfg.Name, err)
	}

	now := time.Now()
	c := &Conn{
		t:         t,
		id:        uuid.NewString(),
		pool:      p,
		createdAt: now,
		lastUsed:  now,
		leased:    true,
	}

	p.mu.Lock()
	if p.closed {
		p.decLocked()
		p.mu.Unlock()
		_ = t.Close()
		return nil, ErrClosed
	}
	p.dials++
	p.mu.Unlock()

	p.traceCreated(c.id, time.Since(start), nil)
	p.log.Debug("connection opened", logger.Fields(logger.FieldConnID, c.id))
	return c, nil
}

// Put returns a connection to the pool. Broken connections, and any
// connection returned to a closed pool, are closed instead.
func (p *Pool) Put(c *Conn) {
	if c == nil || c.pool != p {
		return
	}

	p.mu.Lock()
	if !c.leased {
		p.mu.Unlock()
		p.log.Warn("connection returned twice", logger.Fields(logger.FieldConnID, c.id))
		return
	}
	c.leased = false

	if c.broken != nil || p.closed {
		reason := ConnClosedReasonPoolClosed
		if c.broken != nil {
			reason = ConnClosedReasonBroken
			p.discarded++
		}
		p.decLocked()
		p.grantSlotLocked()
		p.mu.Unlock()
		p.discard(c, reason, c.broken)
		return
	}

	c.lastUsed = time.Now()
	if w := p.popWaiterLocked(); w != nil {
		c.leased = true
		w.ch <- grant{conn: c}
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// Lease checks out a connection, runs fn with it and always returns it, even
// when fn panics. A panic marks the connection broken.
func (p *Pool) Lease(ctx context.Context, fn func(*Conn) error) error {
	c, err := p.Checkout(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			c.MarkBroken(fmt.Errorf("pool: panic while leased: %v", r))
			p.Put(c)
			panic(r)
		}
		p.Put(c)
	}()
	return fn(c)
}

// releaseSlot gives back a reserved slot that never got a connection.
func (p *Pool) releaseSlot() {
	p.mu.Lock()
	p.decLocked()
	p.grantSlotLocked()
	p.mu.Unlock()
}

// grantSlotLocked hands a free slot to the oldest waiter, who will dial.
func (p *Pool) grantSlotLocked() {
	if p.closed || p.size >= p.cfg.MaxSize {
		return
	}
	if w := p.popWaiterLocked(); w != nil {
		p.size++
		w.ch <- grant{}
	}
}

func (p *Pool) popWaiterLocked() *waiter {
	front := p.waiters.Front()
	if front == nil {
		return nil
	}
	w := p.waiters.Remove(front).(*waiter)
	w.granted = true
	return w
}

func (p *Pool) decLocked() {
	p.size--
	if p.closed && p.size == 0 {
		p.markDrainedLocked()
	}
}

func (p *Pool) markDrainedLocked() {
	select {
	case <-p.drained:
	default:
		close(p.drained)
	}
}

// Stats returns the current pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Name:      p.cfg.Name,
		MaxSize:   p.cfg.MaxSize,
		Size:      p.size,
		Idle:      len(p.idle),
		Waiting:   p.waiters.Len(),
		Checkouts: p.checkouts,
		Waits:     p.waits,
		Timeouts:  p.timeouts,
		Dials:     p.dials,
		Discarded: p.discarded,
	}
}

// Close stops the pool: queued callers fail with ErrClosed, idle connections
// are closed now and leased ones when they are returned. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	for _, c := range idle {
		c.leased = false
	}
	for w := p.popWaiterLocked(); w != nil; w = p.popWaiterLocked() {
		w.ch <- grant{err: ErrClosed}
	}
	for range idle {
		p.decLocked()
	}
	if p.size == 0 {
		p.markDrainedLocked()
	}
	p.mu.Unlock()

	close(p.closeCh)
	p.wg.Wait()

	var errs []error
	for _, c := range idle {
		if err := p.closeConn(c, ConnClosedReasonPoolClosed, nil); err != nil {
			errs = append(errs, err)
		}
	}
	p.log.Debug("pool closed", logger.Fields("closed_idle", len(idle)))
	return errors.Join(errs...)
}

// Drain closes the pool and waits until every leased connection has been
// returned, or ctx is done.
func (p *Pool) Drain(ctx context.Context) error {
	err := p.Close()
	select {
	case <-p.drained:
		return err
	case <-ctx.Done():
		return errors.Join(err, fmt.Errorf("pool %q: drain: %w", p.cfg.Name, ctx.Err()))
	}
}

func (p *Pool) reapLoop(interval time.Duration) {
	defer p.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.reapIdle()
		case <-p.closeCh:
			return
		}
	}
}

// reapIdle closes idle connections older than IdleTimeout, oldest first,
// keeping at least MinIdle.
func (p *Pool) reapIdle() {
	now := time.Now()
	p.mu.Lock()
	var stale []*Conn
	for len(p.idle)-len(stale) > p.cfg.MinIdle {
		c := p.idle[len(stale)]
		if now.Sub(c.lastUsed) < p.cfg.IdleTimeout {
			break
		}
		stale = append(stale, c)
	}
	if len(stale) > 0 {
		p.idle = append(p.idle[:0], p.idle[len(stale):]...)
		for range stale {
			p.decLocked()
		}
	}
	p.mu.Unlock()

	for _, c := range stale {
		p.discard(c, ConnClosedReasonIdleTimeout, nil)
	}
}

// discard closes c when nobody is left to hand the error to.
func (p *Pool) discard(c *Conn, reason ConnClosedReason, cause error) {
	if err := p.closeConn(c, reason, cause); err != nil {
		p.log.Warn("connection close failed", logger.Fields(
			logger.FieldConnID, c.id,
			"reason", string(reason),
			logger.FieldError, err.Error(),
		))
	}
}

func (p *Pool) closeConn(c *Conn, reason ConnClosedReason, cause error) error {
	err := c.t.Close()
	if p.cfg.Trace.ConnClosed != nil {
		p.cfg.Trace.ConnClosed(ConnClosed{
			Common: p.common(),
			ConnID: c.id,
			Reason: reason,
			Err:    cause,
		})
	}
	if reason == ConnClosedReasonBroken {
		p.log.Warn("connection discarded", logger.Fields(
			logger.FieldConnID, c.id,
			logger.FieldError, fmt.Sprint(cause),
		))
	}
	return err
}

func (p *Pool) traceCreated(id string, d time.Duration, err error) {
	if p.cfg.Trace.ConnCreated == nil {
		return
	}
	p.cfg.Trace.ConnCreated(ConnCreated{
		Common:      p.common(),
		ConnID:      id,
		ConnectTime: d,
		Err:         err,
	})
}

func (p *Pool) common() Common {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Common{
		Name:    p.cfg.Name,
		MaxSize: p.cfg.MaxSize,
		Size:    p.size,
		Idle:    len(p.idle),
	}
}

func (p *Pool) isFatal(err error) bool {
	return p.cfg.IsFatal(err)
}
