package model

import "fmt"

// transitions is the complete lifecycle graph. Statuses missing from the map
// (delivered, cancelled) are terminal.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusPacked, StatusCancelled},
	StatusPacked:         {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
}

var knownStatuses = map[OrderStatus]bool{
	StatusPending:        true,
	StatusConfirmed:      true,
	StatusPacked:         true,
	StatusOutForDelivery: true,
	StatusDelivered:      true,
	StatusCancelled:      true,
}

// ParseOrderStatus rejects anything outside the lifecycle vocabulary.
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if !knownStatuses[st] {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// AllowedTransitions returns the statuses reachable from s in one step.
func (s OrderStatus) AllowedTransitions() []OrderStatus {
	next := transitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether s → to is an edge of the lifecycle.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, n := range transitions[s] {
		if n == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}
