package translate

import (
	"errors"
	"fmt"

	"github.com/neox5/bbexporter/internal/event"
)

var (
	ErrIncomplete       = errors.New("terminal event not marked complete")
	ErrNegativeDuration = errors.New("end timestamp precedes start timestamp")
	ErrLookup           = errors.New("parent build lookup failed")
)

// ViolationError reports an event whose payload breaks the host's contract.
// Metrics are left untouched when it is returned.
type ViolationError struct {
	Key event.RoutingKey
	Err error
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("contract violation in %s: %v", e.Key, e.Err)
}

func (e *ViolationError) Unwrap() error {
	return e.Err
}

// IsViolation reports whether err carries a ViolationError.
func IsViolation(err error) bool {
	var v *ViolationError
	return errors.As(err, &v)
}
