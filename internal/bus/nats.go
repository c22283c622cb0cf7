package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/neox5/bbexporter/internal/event"
)

// DefaultSubjectPrefix is the first subject token of host events.
const DefaultSubjectPrefix = "buildbot"

// NATSConfig configures a NATS backed bus.
type NATSConfig struct {
	Connect       Connector    // If nil, ConnectDefault() is used.
	Log           *slog.Logger // Optional.
	SubjectPrefix string       // e.g. "buildbot" -> buildbot.builds.12.finished
}

// NATS consumes host events published as JSON objects on subjects of the
// form <prefix>.<category>.<id>.<action>.
type NATS struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	prefix  string

	mu   sync.Mutex
	subs map[*natsgo.Subscription]struct{}

	closed atomic.Bool
}

// NewNATS connects and returns a bus ready for subscriptions.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}

	return &NATS{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("bus", "nats")),
		prefix:  prefix,
		subs:    make(map[*natsgo.Subscription]struct{}),
	}, nil
}

// Subject returns the NATS subject selecting pattern p.
func Subject(prefix string, p event.Pattern) string {
	id := p.ID
	if id == "" {
		id = "_"
	}
	return prefix + "." + p.Category + "." + id + "." + p.Action
}

// RoutingKey extracts the routing key from a subject under prefix.
func RoutingKey(prefix, subject string) (event.RoutingKey, error) {
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok {
		return event.RoutingKey{}, fmt.Errorf("subject %q outside prefix %q", subject, prefix)
	}
	return event.ParseRoutingKey(rest)
}

// Subscribe registers h for events matching p until the subscription is
// stopped or ctx is done.
func (b *NATS) Subscribe(ctx context.Context, p event.Pattern, h event.Handler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	subj := Subject(b.prefix, p)
	sub, err := b.nc.Subscribe(subj, func(msg *natsgo.Msg) {
		key, err := RoutingKey(b.prefix, msg.Subject)
		if err != nil {
			b.log.Warn("dropping event with malformed subject", slog.Any("error", err))
			return
		}
		payload, err := event.DecodePayload(msg.Data)
		if err != nil {
			b.log.Warn("dropping undecodable event",
				slog.String("key", key.String()), slog.Any("error", err))
			return
		}
		if err := h(ctx, event.Envelope{Key: key, Payload: payload}); err != nil {
			b.log.Debug("handler returned error",
				slog.String("key", key.String()), slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe %s: %w", subj, err)
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	s := &natsSub{sub: sub, b: b, stop: make(chan struct{})}

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				_ = s.Unsubscribe()
			case <-s.stop:
			}
		}()
	}

	b.log.Debug("subscribed", slog.String("subject", subj))
	return s, nil
}

// Close stops all subscriptions and releases the connection.
func (b *NATS) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	b.mu.Lock()
	for s := range b.subs {
		_ = s.Unsubscribe()
	}
	b.subs = map[*natsgo.Subscription]struct{}{}
	b.mu.Unlock()
	if b.nc != nil {
		// Drain closes the connection once pending messages are handled.
		if err := b.nc.Drain(); err != nil {
			b.closeNc()
		}
	}
	return nil
}

type natsSub struct {
	sub  *natsgo.Subscription
	b    *NATS
	once sync.Once
	err  error
	stop chan struct{}
}

func (s *natsSub) Unsubscribe() error {
	s.once.Do(func() {
		close(s.stop)
		s.b.mu.Lock()
		_, live := s.b.subs[s.sub]
		delete(s.b.subs, s.sub)
		s.b.mu.Unlock()
		if live {
			s.err = s.sub.Unsubscribe()
		}
	})
	return s.err
}
