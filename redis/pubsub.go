package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/rediskit/errors"
	"github.com/kbukum/rediskit/logger"
)

const (
	subscriberQueueSize = 256
	receiveRetryDelay   = 100 * time.Millisecond
)

// Message is a published message delivered to a Receiver. Pattern is set
// for messages matched by PSubscribe.
type Message struct {
	Channel string
	Pattern string
	Payload string
}

// Receiver handles messages for a channel or pattern.
type Receiver func(Message)

// SubscriptionHandler is told about subscribe and unsubscribe confirmations.
// count is the number of channels and patterns still subscribed.
type SubscriptionHandler func(channel string, count int)

type subscription struct {
	receiver      Receiver
	onSubscribe   SubscriptionHandler
	onUnsubscribe SubscriptionHandler
}

// confirmKey names the server confirmation a request waits for.
type confirmKey struct {
	kind string
	name string
}

// request is one subscribe or unsubscribe of one name that the server has
// not confirmed yet. sub is the subscription it installs or removes.
type request struct {
	sub  *subscription
	done chan struct{}
}

// confirmation is a server confirmation paired with the request it answers.
// req is nil when nothing asked for it, as after a reconnect.
type confirmation struct {
	msg *goredis.Subscription
	req *request
}

// Subscriber owns the single pub/sub connection of one instance. It is
// separate from the command pools. One goroutine reads from the connection
// into a queue and another dispatches the queue to receivers, so messages
// reach receivers in the order they arrived.
type Subscriber struct {
	instance InstanceID
	rdb      *goredis.Client
	ps       *goredis.PubSub
	log      *logger.Logger

	// writeMu keeps pending requests in the order their commands were sent.
	writeMu sync.Mutex

	mu       sync.Mutex
	channels map[string]*subscription
	patterns map[string]*subscription
	pending  map[confirmKey][]*request
	started  bool
	closed   bool

	queue  chan any
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newSubscriber(instance InstanceID, cfg Config, log *logger.Logger) (*Subscriber, error) {
	d, err := cfg.durations()
	if err != nil {
		return nil, errors.Validation(err.Error()).WithCause(err)
	}
	rdb := goredis.NewClient(goRedisOptions(cfg, d))
	ctx, cancel := context.WithCancel(context.Background())

	return &Subscriber{
		instance: instance,
		rdb:      rdb,
		ps:       rdb.Subscribe(ctx),
		log:      log,
		channels: make(map[string]*subscription),
		patterns: make(map[string]*subscription),
		pending:  make(map[confirmKey][]*request),
		queue:    make(chan any, subscriberQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Subscribe subscribes to channels. receiver gets every message published
// to them; the handlers, which may be nil, get the server's confirmations.
// Subscribing to a channel again replaces its handlers.
func (s *Subscriber) Subscribe(ctx context.Context, channels []string, receiver Receiver, onSubscribe, onUnsubscribe SubscriptionHandler) error {
	return s.subscribe(ctx, false, channels, receiver, onSubscribe, onUnsubscribe)
}

// PSubscribe is Subscribe for glob-style patterns.
func (s *Subscriber) PSubscribe(ctx context.Context, patterns []string, receiver Receiver, onSubscribe, onUnsubscribe SubscriptionHandler) error {
	return s.subscribe(ctx, true, patterns, receiver, onSubscribe, onUnsubscribe)
}

func (s *Subscriber) subscribe(ctx context.Context, pattern bool, names []string, receiver Receiver, onSubscribe, onUnsubscribe SubscriptionHandler) error {
	if len(names) == 0 {
		return errors.MissingField("channels")
	}
	if receiver == nil {
		return errors.MissingField("receiver")
	}

	names = distinct(names)
	kind := "subscribe"
	if pattern {
		kind = "psubscribe"
	}

	s.writeMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return errors.RegistryClosed()
	}
	table := s.table(pattern)
	sub := &subscription{receiver: receiver, onSubscribe: onSubscribe, onUnsubscribe: onUnsubscribe}
	prev := make(map[string]*subscription, len(names))
	reqs := make(map[string]*request, len(names))
	for _, name := range names {
		prev[name] = table[name]
		table[name] = sub
		reqs[name] = s.expect(kind, name, sub)
	}
	s.mu.Unlock()

	var err error
	if pattern {
		err = s.ps.PSubscribe(ctx, names...)
	} else {
		err = s.ps.Subscribe(ctx, names...)
	}
	s.writeMu.Unlock()
	if err != nil {
		s.mu.Lock()
		for name, p := range prev {
			s.forget(kind, name, reqs[name])
			if table[name] != sub {
				continue
			}
			if p == nil {
				delete(table, name)
			} else {
				table[name] = p
			}
		}
		s.mu.Unlock()
		return errors.ConnectionFailed(fmt.Sprintf("redis %s pub/sub", s.instance), err)
	}

	s.start()
	if err := s.await(ctx, reqs); err != nil {
		return err
	}
	s.log.Debug("subscribed", logger.Fields(
		logger.FieldChannel, names,
		"pattern", pattern,
	))
	return nil
}

// Unsubscribe unsubscribes from channels, or from every channel when none
// are given. It returns once the server has confirmed each of them; handlers
// are dropped in order with the messages that arrived before.
func (s *Subscriber) Unsubscribe(ctx context.Context, channels ...string) error {
	return s.unsubscribe(ctx, false, channels)
}

// PUnsubscribe is Unsubscribe for patterns.
func (s *Subscriber) PUnsubscribe(ctx context.Context, patterns ...string) error {
	return s.unsubscribe(ctx, true, patterns)
}

func (s *Subscriber) unsubscribe(ctx context.Context, pattern bool, names []string) error {
	names = distinct(names)
	kind := "unsubscribe"
	if pattern {
		kind = "punsubscribe"
	}

	s.writeMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return errors.RegistryClosed()
	}
	table := s.table(pattern)
	// Name everything explicitly so the server answers once per name.
	if len(names) == 0 {
		for name := range table {
			names = append(names, name)
		}
	}
	reqs := make(map[string]*request, len(names))
	for _, name := range names {
		reqs[name] = s.expect(kind, name, table[name])
	}
	s.mu.Unlock()

	var err error
	if pattern {
		err = s.ps.PUnsubscribe(ctx, names...)
	} else {
		err = s.ps.Unsubscribe(ctx, names...)
	}
	s.writeMu.Unlock()
	if err != nil {
		s.mu.Lock()
		for name, req := range reqs {
			s.forget(kind, name, req)
		}
		s.mu.Unlock()
		return errors.ConnectionFailed(fmt.Sprintf("redis %s pub/sub", s.instance), err)
	}

	s.start()
	return s.await(ctx, reqs)
}

func distinct(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// expect queues a request for the next confirmation of kind for name.
// Callers hold s.mu.
func (s *Subscriber) expect(kind, name string, sub *subscription) *request {
	key := confirmKey{kind: kind, name: name}
	req := &request{sub: sub, done: make(chan struct{})}
	s.pending[key] = append(s.pending[key], req)
	return req
}

// forget drops a request whose command never reached the server. Callers
// hold s.mu.
func (s *Subscriber) forget(kind, name string, req *request) {
	key := confirmKey{kind: kind, name: name}
	queue := s.pending[key]
	for i, r := range queue {
		if r == req {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(queue) == 0 {
		delete(s.pending, key)
	} else {
		s.pending[key] = queue
	}
}

// await blocks until the server has confirmed every request. A request left
// behind by a cancelled ctx stays queued so later confirmations still pair
// up in order.
func (s *Subscriber) await(ctx context.Context, reqs map[string]*request) error {
	for _, req := range reqs {
		select {
		case <-req.done:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return errors.RegistryClosed()
		}
	}
	return nil
}

// resolve pairs a confirmation with the oldest request waiting for it and
// releases that request's caller.
func (s *Subscriber) resolve(m *goredis.Subscription) confirmation {
	key := confirmKey{kind: m.Kind, name: m.Channel}

	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.pending[key]
	if len(queue) == 0 {
		return confirmation{msg: m}
	}
	req := queue[0]
	if len(queue) == 1 {
		delete(s.pending, key)
	} else {
		s.pending[key] = queue[1:]
	}
	close(req.done)
	return confirmation{msg: m, req: req}
}

// Channels returns the channels and patterns that currently have handlers.
func (s *Subscriber) Channels() (channels, patterns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.channels {
		channels = append(channels, name)
	}
	for name := range s.patterns {
		patterns = append(patterns, name)
	}
	sort.Strings(channels)
	sort.Strings(patterns)
	return channels, patterns
}

// Close closes the pub/sub connection and stops both goroutines.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	err := s.ps.Close()
	s.wg.Wait()
	if cerr := s.rdb.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Subscriber) table(pattern bool) map[string]*subscription {
	if pattern {
		return s.patterns
	}
	return s.channels
}

func (s *Subscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscriber) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	s.wg.Add(2)
	go s.read()
	go s.dispatch()
}

// read moves everything the server pushes into the queue.
func (s *Subscriber) read() {
	defer s.wg.Done()
	defer close(s.queue)

	for {
		msg, err := s.ps.Receive(s.ctx)
		if err != nil {
			if s.isClosed() {
				return
			}
			s.log.Warn("pub/sub receive failed", logger.ErrorFields("receive", err))
			select {
			case <-time.After(receiveRetryDelay):
				continue
			case <-s.ctx.Done():
				return
			}
		}
		if m, ok := msg.(*goredis.Subscription); ok {
			msg = s.resolve(m)
		}
		select {
		case s.queue <- msg:
		case <-s.ctx.Done():
			return
		}
	}
}

// dispatch hands queued messages to receivers one at a time.
func (s *Subscriber) dispatch() {
	defer s.wg.Done()
	for msg := range s.queue {
		switch m := msg.(type) {
		case *goredis.Message:
			s.deliver(m)
		case confirmation:
			s.confirm(m)
		}
	}
}

func (s *Subscriber) deliver(m *goredis.Message) {
	s.mu.Lock()
	var sub *subscription
	if m.Pattern != "" {
		sub = s.patterns[m.Pattern]
	} else {
		sub = s.channels[m.Channel]
	}
	s.mu.Unlock()
	if sub == nil {
		return
	}
	s.safely("receiver", m.Channel, func() {
		sub.receiver(Message{Channel: m.Channel, Pattern: m.Pattern, Payload: m.Payload})
	})
}

func (s *Subscriber) confirm(c confirmation) {
	m := c.msg
	pattern := m.Kind == "psubscribe" || m.Kind == "punsubscribe"
	removal := m.Kind == "unsubscribe" || m.Kind == "punsubscribe"

	s.mu.Lock()
	table := s.table(pattern)
	var sub *subscription
	if c.req != nil {
		sub = c.req.sub
	} else {
		sub = table[m.Channel]
	}
	// A newer Subscribe may already own the name again.
	if removal && sub != nil && table[m.Channel] == sub {
		delete(table, m.Channel)
	}
	s.mu.Unlock()
	if sub == nil {
		return
	}

	if removal {
		if sub.onUnsubscribe != nil {
			s.safely("onUnsubscribe", m.Channel, func() { sub.onUnsubscribe(m.Channel, m.Count) })
		}
		return
	}
	if sub.onSubscribe != nil {
		s.safely("onSubscribe", m.Channel, func() { sub.onSubscribe(m.Channel, m.Count) })
	}
}

// safely runs a user callback so that a panic cannot stop dispatching.
func (s *Subscriber) safely(what, channel string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("pub/sub handler panicked", logger.Fields(
				logger.FieldOperation, what,
				logger.FieldChannel, channel,
				logger.FieldError, fmt.Sprint(r),
			))
		}
	}()
	fn()
}

// Subscribe subscribes to channels on the instance's pub/sub connection.
func (c *Client) Subscribe(ctx context.Context, channels []string, receiver Receiver, onSubscribe, onUnsubscribe SubscriptionHandler) error {
	s, err := c.registry.Subscriber(ctx, c.instance)
	if err != nil {
		return err
	}
	return s.Subscribe(ctx, channels, receiver, onSubscribe, onUnsubscribe)
}

// PSubscribe subscribes to patterns on the instance's pub/sub connection.
func (c *Client) PSubscribe(ctx context.Context, patterns []string, receiver Receiver, onSubscribe, onUnsubscribe SubscriptionHandler) error {
	s, err := c.registry.Subscriber(ctx, c.instance)
	if err != nil {
		return err
	}
	return s.PSubscribe(ctx, patterns, receiver, onSubscribe, onUnsubscribe)
}

// Unsubscribe unsubscribes from channels, or from all of them when none are
// given.
func (c *Client) Unsubscribe(ctx context.Context, channels ...string) error {
	s, err := c.registry.Subscriber(ctx, c.instance)
	if err != nil {
		return err
	}
	return s.Unsubscribe(ctx, channels...)
}

// PUnsubscribe unsubscribes from patterns, or from all of them when none are
// given.
func (c *Client) PUnsubscribe(ctx context.Context, patterns ...string) error {
	s, err := c.registry.Subscriber(ctx, c.instance)
	if err != nil {
		return err
	}
	return s.PUnsubscribe(ctx, patterns...)
}
