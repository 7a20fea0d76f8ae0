package redis

import (
	"context"
	stderrors "errors"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/rediskit/errors"
	"github.com/kbukum/rediskit/logger"
	"github.com/kbukum/rediskit/redis/pool"
)

const tracerName = "github.com/kbukum/rediskit/redis"

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger, used when neither the call nor the
// client supplies one.
func WithLogger(log *logger.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithWorkers sets how many worker partitions application-level clients
// rotate through.
func WithWorkers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithDefaultInstance sets the instance used when a client names none.
func WithDefaultInstance(id InstanceID) Option {
	return func(r *Registry) {
		if id != "" {
			r.defaultInstance = id
		}
	}
}

// WithMetrics records pool and command metrics to m.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithTracer sets the tracer used for Send spans. Defaults to the global
// provider.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// poolEntry is a pool plus the instance settings it was built from.
type poolEntry struct {
	pool *pool.Pool
	cfg  Config
	d    durations
}

// Registry maps PoolKeys to pools. Pools are created on first use, one per
// key, and live until Shutdown.
type Registry struct {
	provider        Provider
	log             *logger.Logger
	workers         int
	defaultInstance InstanceID
	metrics         *Metrics
	tracer          trace.Tracer

	mu          sync.RWMutex
	pools       map[PoolKey]*poolEntry
	subscribers map[InstanceID]*Subscriber
	closed      bool

	next atomic.Uint64

	// newPool is swapped in tests to count constructions.
	newPool func(key PoolKey, cfg Config, d durations) (*pool.Pool, error)
}

// NewRegistry creates an empty Registry. No pool or connection is created
// until a client first needs one. Without WithLogger it logs through the
// logger registered as logger.NameRedis.
func NewRegistry(provider Provider, opts ...Option) *Registry {
	r := &Registry{
		provider:        provider,
		log:             logger.Get(logger.NameRedis),
		workers:         runtime.GOMAXPROCS(0),
		defaultInstance: DefaultInstance,
		tracer:          otel.Tracer(tracerName),
		pools:           make(map[PoolKey]*poolEntry),
		subscribers:     make(map[InstanceID]*Subscriber),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithComponent("redis")
	r.newPool = r.buildPool
	return r
}

// Pool returns the pool for key, creating it on first use. Creating a pool
// opens no connections.
func (r *Registry) Pool(ctx context.Context, key PoolKey) (*pool.Pool, error) {
	e, err := r.entry(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.pool, nil
}

func (r *Registry) entry(ctx context.Context, key PoolKey) (*poolEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key.Instance == "" {
		key.Instance = r.defaultInstance
	}

	r.mu.RLock()
	e, ok := r.pools[key]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, errors.RegistryClosed()
	}
	if ok {
		return e, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.RegistryClosed()
	}
	if e, ok := r.pools[key]; ok {
		return e, nil
	}

	cfg, err := r.provider.Instance(key.Instance)
	if err != nil {
		return nil, err
	}
	d, err := cfg.durations()
	if err != nil {
		return nil, errors.Validation(err.Error()).WithCause(err)
	}
	p, err := r.newPool(key, cfg, d)
	if err != nil {
		return nil, errors.Internal(err)
	}

	e = &poolEntry{pool: p, cfg: cfg, d: d}
	r.pools[key] = e
	r.log.Info("pool created", logger.Fields(
		logger.FieldInstance, string(key.Instance),
		logger.FieldWorker, string(key.Worker),
		logger.FieldAddr, cfg.Addr,
		"max_size", cfg.PoolSize,
	))
	return e, nil
}

func (r *Registry) buildPool(key PoolKey, cfg Config, d durations) (*pool.Pool, error) {
	dial, err := dialer(cfg, d)
	if err != nil {
		return nil, err
	}
	return pool.New(pool.Config{
		Name:            key.String(),
		MaxSize:         cfg.PoolSize,
		MinIdle:         cfg.MinIdleConns,
		CheckoutTimeout: d.pool,
		IdleTimeout:     d.idle,
		Dial:            dial,
		IsFatal:         isFatal,
		Trace:           r.metrics.trace(key),
		Logger: r.log.WithFields(logger.Fields(
			logger.FieldInstance, string(key.Instance),
			logger.FieldWorker, string(key.Worker),
		)),
	})
}

// Client returns an application-level client for instance. Each call it
// makes goes to the next worker's pool in turn. An empty instance selects the
// default.
func (r *Registry) Client(instance InstanceID) *Client {
	if instance == "" {
		instance = r.defaultInstance
	}
	return &Client{registry: r, instance: instance}
}

// ClientFor returns a client bound to one worker, as used for the lifetime
// of a request.
func (r *Registry) ClientFor(instance InstanceID, worker WorkerID) *Client {
	c := r.Client(instance)
	c.worker = worker
	return c
}

// NextWorker returns the next worker in round-robin order.
func (r *Registry) NextWorker() WorkerID {
	n := r.next.Add(1) - 1
	return WorkerID(strconv.FormatUint(n%uint64(r.workers), 10))
}

// Workers returns the number of worker partitions.
func (r *Registry) Workers() int { return r.workers }

// Subscriber returns the shared pub/sub connection for instance, creating it
// on first use.
func (r *Registry) Subscriber(ctx context.Context, instance InstanceID) (*Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if instance == "" {
		instance = r.defaultInstance
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.RegistryClosed()
	}
	if s, ok := r.subscribers[instance]; ok {
		return s, nil
	}

	cfg, err := r.provider.Instance(instance)
	if err != nil {
		return nil, err
	}
	s, err := newSubscriber(instance, cfg, r.log.WithFields(logger.Fields(logger.FieldInstance, string(instance))))
	if err != nil {
		return nil, err
	}
	r.subscribers[instance] = s
	return s, nil
}

// Stats returns a snapshot of every pool, ordered by key.
func (r *Registry) Stats() []pool.Stats {
	r.mu.RLock()
	out := make([]pool.Stats, 0, len(r.pools))
	for _, e := range r.pools {
		out = append(out, e.pool.Stats())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Shutdown closes every subscriber and drains every pool, waiting for leased
// connections until ctx is done. Later calls fail with REGISTRY_CLOSED.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pools := r.pools
	subs := r.subscribers
	r.pools = make(map[PoolKey]*poolEntry)
	r.subscribers = make(map[InstanceID]*Subscriber)
	r.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, e := range pools {
		wg.Add(1)
		go func(p *pool.Pool) {
			defer wg.Done()
			if err := p.Drain(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(e.pool)
	}
	wg.Wait()

	r.log.Info("registry shut down", logger.Fields(
		"pools", len(pools),
		"subscribers", len(subs),
	))
	return stderrors.Join(errs...)
}
