// Package event models the host's bus messages: a routing key naming the
// entity and action, and a loosely typed payload.
package event

import (
	"context"
	"fmt"
	"strings"
)

// Host event categories.
const (
	CategoryBuilds        = "builds"
	CategoryBuilders      = "builders"
	CategoryBuildsets     = "buildsets"
	CategoryBuildRequests = "buildrequests"
	CategorySteps         = "steps"
	CategoryWorkers       = "workers"
)

// Wildcard matches any routing key segment.
const Wildcard = "*"

// RoutingKey identifies a delivered event as (category, entity id, action).
// An empty ID means the event carries no entity id.
type RoutingKey struct {
	Category string
	ID       string
	Action   string
}

// noID stands in for an empty entity id in the dotted form.
const noID = "_"

// String returns the dotted form "category.id.action".
func (k RoutingKey) String() string {
	id := k.ID
	if id == "" {
		id = noID
	}
	return k.Category + "." + id + "." + k.Action
}

// ParseRoutingKey parses the dotted form produced by String.
func ParseRoutingKey(s string) (RoutingKey, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return RoutingKey{}, fmt.Errorf("invalid routing key %q: want category.id.action", s)
	}
	for _, p := range parts {
		if p == "" {
			return RoutingKey{}, fmt.Errorf("invalid routing key %q: empty segment", s)
		}
	}

	k := RoutingKey{Category: parts[0], ID: parts[1], Action: parts[2]}
	if k.ID == noID {
		k.ID = ""
	}
	return k, nil
}

// Pattern selects routing keys; any field may be Wildcard.
type Pattern struct {
	Category string
	ID       string
	Action   string
}

// CategoryPattern matches every event of one category.
func CategoryPattern(category string) Pattern {
	return Pattern{Category: category, ID: Wildcard, Action: Wildcard}
}

// Match reports whether k is selected by p.
func (p Pattern) Match(k RoutingKey) bool {
	return matchSegment(p.Category, k.Category) &&
		matchSegment(p.ID, k.ID) &&
		matchSegment(p.Action, k.Action)
}

// String returns the dotted form of the pattern.
func (p Pattern) String() string {
	return p.Category + "." + p.ID + "." + p.Action
}

func matchSegment(pattern, value string) bool {
	return pattern == Wildcard || pattern == value
}

// Envelope is one delivered event.
type Envelope struct {
	Key     RoutingKey
	Payload Payload
}

// Handler consumes one delivered event. A returned error is reported by the
// dispatcher and does not stop delivery of other events.
type Handler func(ctx context.Context, env Envelope) error
