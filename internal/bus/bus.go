// Package bus connects handlers to the host's publish/subscribe bus.
package bus

import (
	"context"
	"errors"

	"github.com/neox5/bbexporter/internal/event"
)

// ErrClosed is returned when subscribing to or publishing on a closed bus.
var ErrClosed = errors.New("bus closed")

// Subscription is a live registration of a handler.
type Subscription interface {
	// Unsubscribe stops delivery. It is safe to call more than once.
	Unsubscribe() error
}

// Bus delivers events matching a pattern to a handler. Deliveries for one
// subscription are serialized; different subscriptions may run concurrently.
type Bus interface {
	Subscribe(ctx context.Context, pattern event.Pattern, h event.Handler) (Subscription, error)
}
