// Package subscription keeps exactly one bus subscription per event
// category alive across reconfigurations.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/neox5/bbexporter/internal/bus"
	"github.com/neox5/bbexporter/internal/event"
	"github.com/neox5/bbexporter/internal/translate"
)

// State is the registration state of a Manager.
type State int

const (
	Unregistered State = iota
	Registered
)

func (s State) String() string {
	if s == Registered {
		return "registered"
	}
	return "unregistered"
}

// Binding ties a category to the handler translating its events.
type Binding struct {
	Category string
	Handler  event.Handler
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used to report failed events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithStats records self metrics for every delivered event.
func WithStats(s *Stats) Option {
	return func(m *Manager) { m.stats = s }
}

// Manager subscribes bindings to a bus and tears them down again.
type Manager struct {
	bus      bus.Bus
	bindings []Binding
	log      *slog.Logger
	stats    *Stats

	mu   sync.Mutex
	subs []bus.Subscription
	// live mirrors len(subs) so readers never wait behind Unregister.
	live atomic.Int64

	// gen invalidates handlers of earlier registrations; gate lets
	// Unregister wait for in-flight handlers.
	gen  atomic.Uint64
	gate sync.RWMutex

	handled    atomic.Uint64
	violations atomic.Uint64
}

// New creates an unregistered manager.
func New(b bus.Bus, bindings []Binding, opts ...Option) *Manager {
	m := &Manager{
		bus:      b,
		bindings: bindings,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register subscribes every binding under its category pattern. Existing
// subscriptions are stopped first, so repeated calls never duplicate
// deliveries. On failure no subscription is left behind.
func (m *Manager) Register(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.unregisterLocked(); err != nil {
		m.log.Warn("failed to stop previous subscriptions", "error", err)
	}

	gen := m.gen.Add(1)
	for _, b := range m.bindings {
		pattern := event.CategoryPattern(b.Category)
		sub, err := m.bus.Subscribe(ctx, pattern, m.wrap(gen, b))
		if err != nil {
			_ = m.unregisterLocked()
			return fmt.Errorf("failed to subscribe %s: %w", pattern, err)
		}
		m.subs = append(m.subs, sub)
		m.live.Add(1)
	}

	m.log.Info("registered consumers", "count", len(m.subs))
	return nil
}

// Unregister stops every subscription and waits for in-flight handlers.
// It is a no-op when nothing is registered.
func (m *Manager) Unregister() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.subs) == 0 {
		return nil
	}
	err := m.unregisterLocked()
	m.log.Info("removed consumers")
	return err
}

func (m *Manager) unregisterLocked() error {
	m.gen.Add(1)

	var errs []error
	for _, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	m.subs = nil
	m.live.Store(0)

	// wait for in-flight handlers
	m.gate.Lock()
	m.gate.Unlock()

	return errors.Join(errs...)
}

// State reports whether subscriptions are live.
func (m *Manager) State() State {
	if m.live.Load() > 0 {
		return Registered
	}
	return Unregistered
}

// Active returns the number of live subscriptions.
func (m *Manager) Active() int {
	return int(m.live.Load())
}

// Handled returns the number of events delivered to translators.
func (m *Manager) Handled() uint64 {
	return m.handled.Load()
}

// Violations returns the number of events rejected as contract violations.
func (m *Manager) Violations() uint64 {
	return m.violations.Load()
}

func (m *Manager) wrap(gen uint64, b Binding) event.Handler {
	return func(ctx context.Context, env event.Envelope) error {
		m.gate.RLock()
		defer m.gate.RUnlock()

		if m.gen.Load() != gen {
			return nil
		}

		err := invoke(ctx, b.Handler, env)
		m.observe(b.Category, env, err)
		return err
	}
}

func invoke(ctx context.Context, h event.Handler, env event.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling %s: %v", env.Key, r)
		}
	}()
	return h(ctx, env)
}

func (m *Manager) observe(category string, env event.Envelope, err error) {
	m.handled.Add(1)
	if m.stats != nil {
		m.stats.events.WithLabelValues(category).Inc()
	}
	if err == nil {
		return
	}

	if translate.IsViolation(err) {
		m.violations.Add(1)
		if m.stats != nil {
			m.stats.violations.WithLabelValues(category).Inc()
		}
		m.log.Warn("payload contract violation",
			"category", category,
			"key", env.Key.String(),
			"error", err)
		return
	}

	if m.stats != nil {
		m.stats.errors.WithLabelValues(category).Inc()
	}
	m.log.Error("failed to translate event",
		"category", category,
		"key", env.Key.String(),
		"error", err)
}
