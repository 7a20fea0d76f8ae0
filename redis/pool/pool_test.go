package pool

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/rediskit/logger"
)

type fakeTransport struct {
	id       int
	closed   atomic.Bool
	err      error
	closeErr error
}

func (f *fakeTransport) Do(_ context.Context, args ...any) (any, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(args) > 0 && args[0] == "PING" {
		return "PONG", nil
	}
	return f.id, nil
}

func (f *fakeTransport) Close() error {
	f.closed.Store(true)
	return f.closeErr
}

type dialer struct {
	mu       sync.Mutex
	n        int
	conns    []*fakeTransport
	fail     error
	closeErr error
}

func (d *dialer) dial(context.Context) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	d.n++
	t := &fakeTransport{id: d.n, closeErr: d.closeErr}
	d.conns = append(d.conns, t)
	return t, nil
}

func (d *dialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

func newTestPool(t *testing.T, cfg Config) (*Pool, *dialer) {
	t.Helper()
	d := &dialer{}
	cfg.Dial = d.dial
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, d
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{MaxSize: 1}); err == nil {
		t.Error("expected error without dial func")
	}
	d := &dialer{}
	if _, err := New(Config{Dial: d.dial}); err == nil {
		t.Error("expected error for zero max size")
	}
}

func TestLazyCreation(t *testing.T) {
	p, d := newTestPool(t, Config{MaxSize: 4})
	if d.count() != 0 {
		t.Fatalf("expected no dials before checkout, got %d", d.count())
	}
	if s := p.Stats(); s.Size != 0 || s.Idle != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestCheckoutDistinctConns(t *testing.T) {
	p, d := newTestPool(t, Config{MaxSize: 3})
	ctx := context.Background()

	seen := map[string]bool{}
	var held []*Conn
	for i := 0; i < 3; i++ {
		c, err := p.Checkout(ctx)
		if err != nil {
			t.Fatalf("checkout %d: %v", i, err)
		}
		if seen[c.ID()] {
			t.Fatalf("conn %s handed out twice", c.ID())
		}
		seen[c.ID()] = true
		held = append(held, c)
	}
	if d.count() != 3 {
		t.Errorf("expected 3 dials, got %d", d.count())
	}
	for _, c := range held {
		p.Put(c)
	}
	if s := p.Stats(); s.Size != 3 || s.Idle != 3 {
		t.Errorf("expected size=3 idle=3, got %+v", s)
	}
}

func TestPutReusesConn(t *testing.T) {
	p, d := newTestPool(t, Config{MaxSize: 2})
	ctx := context.Background()

	c1, err := p.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := c1.ID()
	p.Put(c1)

	c2, err := p.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Put(c2)
	if c2.ID() != id {
		t.Errorf("expected idle conn %s to be reused, got %s", id, c2.ID())
	}
	if d.count() != 1 {
		t.Errorf("expected 1 dial, got %d", d.count())
	}
}

func TestBrokenConnDiscarded(t *testing.T) {
	p, d := newTestPool(t, Config{MaxSize: 1})
	ctx := context.Background()

	c, err := p.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	d.conns[0].err = errors.New("connection reset")
	if _, err := c.Do(ctx, "GET", "k"); err == nil {
		t.Fatal("expected error from broken transport")
	}
	if c.Err() == nil {
		t.Fatal("expected conn to be marked broken")
	}
	brokenID := c.ID()
	p.Put(c)

	if !d.conns[0].closed.Load() {
		t.Error("broken transport should be closed")
	}
	s := p.Stats()
	if s.Size != 0 || s.Idle != 0 || s.Discarded != 1 {
		t.Errorf("unexpected stats after discard: %+v", s)
	}

	c2, err := p.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Put(c2)
	if c2.ID() == brokenID {
		t.Error("broken conn was handed out again")
	}
	if d.count() != 2 {
		t.Errorf("expected a replacement dial, got %d dials", d.count())
	}
}

func TestNonFatalErrorKeepsConn(t *testing.T) {
	replyErr := errors.New("WRONGTYPE")
	p, d := newTestPool(t, Config{
		MaxSize: 1,
		IsFatal: func(err error) bool { return !errors.Is(err, replyErr) },
	})
	ctx := context.Background()

	c, err := p.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	d.conns[0].err = replyErr
	_, _ = c.Do(ctx, "INCR", "k")
	if c.Err() != nil {
		t.Fatalf("reply error should not break the conn: %v", c.Err())
	}
	p.Put(c)
	if s := p.Stats(); s.Idle != 1 {
		t.Errorf("expected conn back in idle set, got %+v", s)
	}
}

func TestDoublePutIgnored(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxSize: 2})
	c, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	p.Put(c)
	p.Put(c)
	if s := p.Stats(); s.Idle != 1 || s.Size != 1 {
		t.Errorf("double put corrupted pool: %+v", s)
	}
}

func TestCheckoutTimeout(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxSize: 1, CheckoutTimeout: 100 * time.Millisecond})
	ctx := context.Background()

	held, err := p.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Put(held)

	start := time.Now()
	_, err = p.Checkout(ctx)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("checkout gave up too early: %v", elapsed)
	}
	s := p.Stats()
	if s.Size != 1 || s.Waiting != 0 || s.Timeouts != 1 {
		t.Errorf("unexpected stats after timeout: %+v", s)
	}
}

func TestZeroTimeoutFailsImmediately(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxSize: 1})
	held, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Put(held)
	if _, err := p.Checkout(context.Background()); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestWaitersServedFIFO(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxSize: 1, CheckoutTimeout: 5 * time.Second})
	ctx := context.Background()

	held, err := p.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}

	order := make(chan string, 2)
	var wg sync.WaitGroup
	enqueue := func(name string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.Checkout(ctx)
			if err != nil {
				t.Errorf("%s: %v", name, err)
				return
			}
			order <- name
			p.Put(c)
		}()
	}

	enqueue("A")
	waitFor(t, func() bool { return p.Stats().Waiting == 1 })
	enqueue("B")
	waitFor(t, func() bool { return p.Stats().Waiting == 2 })

	p.Put(held)
	wg.Wait()
	close(order)

	var got []string
	for name := range order {
		got = append(got, name)
	}
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("expected [A B], got %v", got)
	}
}

func TestCancelledWaiterRemoved(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxSize: 1, CheckoutTimeout: -1})
	held, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Checkout(ctx)
		done <- err
	}()
	waitFor(t, func() bool { return p.Stats().Waiting == 1 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s := p.Stats(); s.Waiting != 0 {
		t.Errorf("cancelled waiter still queued: %+v", s)
	}

	p.Put(held)
	if s := p.Stats(); s.Idle != 1 {
		t.Errorf("returned conn should go idle, got %+v", s)
	}
}

func TestDialFailureReleasesSlot(t *testing.T) {
	p, d := newTestPool(t, Config{MaxSize: 1})
	d.fail = errors.New("connection refused")

	if _, err := p.Checkout(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	if s := p.Stats(); s.Size != 0 {
		t.Fatalf("failed dial leaked a slot: %+v", s)
	}

	d.fail = nil
	c, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatalf("expected recovery after dial failure: %v", err)
	}
	p.Put(c)
}

func TestLeaseReleasesOnError(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxSize: 1})
	want := errors.New("app error")

	err := p.Lease(context.Background(), func(c *Conn) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if s := p.Stats(); s.Idle != 1 {
		t.Errorf("lease did not return conn: %+v", s)
	}
}

func TestLeaseReleasesOnPanic(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxSize: 1})

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = p.Lease(context.Background(), func(c *Conn) error { panic("boom") })
	}()

	s := p.Stats()
	if s.Size != 0 || s.Discarded != 1 {
		t.Errorf("panicking lease should discard its conn: %+v", s)
	}
	if err := p.Lease(context.Background(), func(c *Conn) error { return nil }); err != nil {
		t.Errorf("pool unusable after panic: %v", err)
	}
}

func TestIdleReaping(t *testing.T) {
	p, d := newTestPool(t, Config{MaxSize: 3, MinIdle: 1, IdleTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	var held []*Conn
	for i := 0; i < 3; i++ {
		c, err := p.Checkout(ctx)
		if err != nil {
			t.Fatal(err)
		}
		held = append(held, c)
	}
	for _, c := range held {
		p.Put(c)
	}

	waitFor(t, func() bool { return p.Stats().Idle == 1 })
	if s := p.Stats(); s.Size != 1 {
		t.Errorf("expected size=1 after reaping, got %+v", s)
	}
	closed := 0
	for _, tr := range d.conns {
		if tr.closed.Load() {
			closed++
		}
	}
	if closed != 2 {
		t.Errorf("expected 2 reaped transports, got %d", closed)
	}
}

func TestCloseFailsWaiters(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxSize: 1, CheckoutTimeout: -1})
	held, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Checkout(context.Background())
		done <- err
	}()
	waitFor(t, func() bool { return p.Stats().Waiting == 1 })

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed for waiter, got %v", err)
	}
	if _, err := p.Checkout(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
	p.Put(held)
	if s := p.Stats(); s.Size != 0 {
		t.Errorf("conn returned after close should be closed: %+v", s)
	}
}

func TestDrainWaitsForLeased(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxSize: 2})
	held, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Put(held)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if s := p.Stats(); s.Size != 0 {
		t.Errorf("expected empty pool after drain, got %+v", s)
	}
}

func TestDrainHonoursContext(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxSize: 1})
	if _, err := p.Checkout(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestDiscardLogsCloseError(t *testing.T) {
	var buf bytes.Buffer
	d := &dialer{closeErr: errors.New("reset by peer")}
	p, err := New(Config{Name: "test", MaxSize: 1, Dial: d.dial, Logger: logger.NewWriter(&buf, "test")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close() })

	c, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	c.MarkBroken(errors.New("io timeout"))
	p.Put(c)

	out := buf.String()
	if !strings.Contains(out, "connection close failed") || !strings.Contains(out, "reset by peer") {
		t.Fatalf("expected the close error to be logged, got %q", out)
	}
	if !strings.Contains(out, `"conn_id"`) {
		t.Errorf("expected conn_id in the log line, got %q", out)
	}
}

func TestDrainWaitsDespiteCloseError(t *testing.T) {
	d := &dialer{closeErr: errors.New("reset by peer")}
	p, err := New(Config{Name: "test", MaxSize: 2, Dial: d.dial})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	idle, err := p.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	held, err := p.Checkout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	p.Put(idle)

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Put(held)
	}()

	drainCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	err = p.Drain(drainCtx)
	if err == nil || !strings.Contains(err.Error(), "reset by peer") {
		t.Fatalf("expected the idle close error, got %v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("drain should finish before the deadline, got %v", err)
	}
	if s := p.Stats(); s.Size != 0 {
		t.Errorf("expected Drain to wait for the leased conn, got %+v", s)
	}
}

func TestTraceEvents(t *testing.T) {
	var created, checkouts, closed atomic.Int32
	p, _ := newTestPool(t, Config{
		MaxSize: 1,
		Trace: Trace{
			ConnCreated:  func(ConnCreated) { created.Add(1) },
			CheckoutDone: func(CheckoutDone) { checkouts.Add(1) },
			ConnClosed:   func(ConnClosed) { closed.Add(1) },
		},
	})

	c, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	c.MarkBroken(errors.New("x"))
	p.Put(c)

	if created.Load() != 1 || checkouts.Load() != 1 || closed.Load() != 1 {
		t.Errorf("unexpected trace counts: created=%d checkouts=%d closed=%d",
			created.Load(), checkouts.Load(), closed.Load())
	}
}

func TestConcurrentCheckoutsNeverExceedMax(t *testing.T) {
	const maxSize = 4
	p, d := newTestPool(t, Config{MaxSize: maxSize, CheckoutTimeout: 5 * time.Second})

	var inUse, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Lease(context.Background(), func(c *Conn) error {
				n := inUse.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inUse.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("lease: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() > maxSize {
		t.Errorf("peak concurrent leases %d exceeded max %d", peak.Load(), maxSize)
	}
	if d.count() > maxSize {
		t.Errorf("dialed %d conns, max %d", d.count(), maxSize)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}
