package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Errors returned by bus operations.
var (
	ErrBusNotRunning     = errors.New("event bus is not running")
	ErrBusAlreadyRunning = errors.New("event bus is already running")
	ErrNilHandler        = errors.New("handler must not be nil")
	ErrInvalidTopic      = errors.New("topic must not be empty")
)

// DefaultQueueSize is the async delivery queue capacity.
const DefaultQueueSize = 256

// Handler processes a delivered event. Returning an error is recorded in
// stats but never propagated to the publisher.
type Handler func(Envelope) error

// Stats is a snapshot of bus counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Errors      uint64
	Panics      uint64
	Subscribers int
}

// Subscription identifies a registered handler.
type Subscription struct {
	id      uint64
	pattern Topic
}

// Pattern returns the subscription's topic pattern.
func (s Subscription) Pattern() Topic {
	return s.pattern
}

type subscriber struct {
	id      uint64
	pattern Topic
	handler Handler
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize sets the async delivery queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		b.log = l
	}
}

// Bus fans envelopes out to pattern subscribers. Sync publishing runs
// handlers inline; async publishing enqueues for a background worker and
// drops on a full queue rather than blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs []subscriber

	nextID    atomic.Uint64
	running   atomic.Bool
	queue     chan Envelope
	queueSize int
	done      chan struct{}
	log       *zap.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	errCount  atomic.Uint64
	panics    atomic.Uint64
}

// NewBus creates a stopped bus; call Start before publishing.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		queueSize: DefaultQueueSize,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the async delivery worker.
func (b *Bus) Start() error {
	if b.running.Swap(true) {
		return ErrBusAlreadyRunning
	}
	b.queue = make(chan Envelope, b.queueSize)
	b.done = make(chan struct{})
	go b.deliverLoop()
	return nil
}

// Stop drains the async queue and stops delivery. It returns early if the
// context is cancelled.
func (b *Bus) Stop(ctx context.Context) error {
	if !b.running.Swap(false) {
		return ErrBusNotRunning
	}
	close(b.queue)
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the bus accepts publishes.
func (b *Bus) IsRunning() bool {
	return b.running.Load()
}

// Subscribe registers a handler for every topic matching the pattern.
func (b *Bus) Subscribe(pattern Topic, h Handler) (Subscription, error) {
	if h == nil {
		return Subscription{}, ErrNilHandler
	}
	if pattern == "" {
		return Subscription{}, ErrInvalidTopic
	}

	id := b.nextID.Add(1)
	b.mu.Lock()
	b.subs = append(b.subs, subscriber{id: id, pattern: pattern, handler: h})
	b.mu.Unlock()
	return Subscription{id: id, pattern: pattern}, nil
}

// Unsubscribe removes a subscription. Unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == sub.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish enqueues an envelope for asynchronous delivery. A full queue
// drops the envelope.
func (b *Bus) Publish(env Envelope) error {
	if !b.running.Load() {
		return ErrBusNotRunning
	}
	if env.Topic == "" {
		return ErrInvalidTopic
	}
	b.published.Add(1)
	select {
	case b.queue <- env:
	default:
		b.dropped.Add(1)
	}
	return nil
}

// PublishSync delivers an envelope to all matching handlers inline.
func (b *Bus) PublishSync(env Envelope) error {
	if !b.running.Load() {
		return ErrBusNotRunning
	}
	if env.Topic == "" {
		return ErrInvalidTopic
	}
	b.published.Add(1)
	b.dispatch(env)
	return nil
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Errors:      b.errCount.Load(),
		Panics:      b.panics.Load(),
		Subscribers: n,
	}
}

func (b *Bus) deliverLoop() {
	defer close(b.done)
	for env := range b.queue {
		b.dispatch(env)
	}
}

func (b *Bus) dispatch(env Envelope) {
	b.mu.RLock()
	matched := make([]subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if Match(s.pattern, env.Topic) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		b.invoke(s, env)
	}
}

// invoke runs one handler with panic containment.
func (b *Bus) invoke(s subscriber, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.log.Error("event handler panicked",
				zap.String("topic", string(env.Topic)),
				zap.Any("panic", r))
		}
	}()
	if err := s.handler(env); err != nil {
		b.errCount.Add(1)
		b.log.Warn("event handler failed",
			zap.String("topic", string(env.Topic)),
			zap.Error(err))
		return
	}
	b.delivered.Add(1)
}
