package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/neox5/bbexporter/internal/event"
)

// Memory is an in-process bus. Publish delivers synchronously to every
// matching subscriber in the caller's goroutine.
type Memory struct {
	mu     sync.RWMutex
	subs   map[uint64]*memorySub
	nextID atomic.Uint64
	closed atomic.Bool
}

type memorySub struct {
	id      uint64
	bus     *Memory
	pattern event.Pattern
	handler event.Handler

	// serializes deliveries to this subscriber
	mu   sync.Mutex
	once sync.Once
	stop chan struct{}
}

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[uint64]*memorySub)}
}

// Subscribe registers h for events matching pattern until the subscription
// is stopped or ctx is done.
func (b *Memory) Subscribe(ctx context.Context, pattern event.Pattern, h event.Handler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	s := &memorySub{
		id:      b.nextID.Add(1),
		bus:     b,
		pattern: pattern,
		handler: h,
		stop:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				_ = s.Unsubscribe()
			case <-s.stop:
			}
		}()
	}

	return s, nil
}

// Publish delivers env to every matching subscriber and returns their
// joined errors. A failing handler does not prevent delivery to others.
func (b *Memory) Publish(ctx context.Context, env event.Envelope) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.RLock()
	var targets []*memorySub
	for _, s := range b.subs {
		if s.pattern.Match(env.Key) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, s := range targets {
		if err := s.deliver(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SubscriberCount returns the number of live subscriptions whose pattern
// equals p.
func (b *Memory) SubscriberCount(p event.Pattern) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, s := range b.subs {
		if s.pattern == p {
			n++
		}
	}
	return n
}

// Close drops every subscription. Further use returns ErrClosed.
func (b *Memory) Close() {
	b.closed.Store(true)
	b.mu.Lock()
	b.subs = make(map[uint64]*memorySub)
	b.mu.Unlock()
}

func (s *memorySub) deliver(ctx context.Context, env event.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// recheck under the delivery lock so no event lands after Unsubscribe
	s.bus.mu.RLock()
	_, live := s.bus.subs[s.id]
	s.bus.mu.RUnlock()
	if !live {
		return nil
	}

	return s.handler(ctx, env)
}

func (s *memorySub) Unsubscribe() error {
	s.once.Do(func() {
		close(s.stop)
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
	return nil
}
