package order

import (
	"fmt"

	"duka-be/internal/apperror"
)

// transitions lists the allowed next states for every status. delivered and
// cancelled are terminal. Nothing ever moves back to pending.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusPaid, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

func validateTransition(from, to Status) error {
	if !to.Valid() {
		return apperror.Validation(fmt.Sprintf("unknown order status %q", to))
	}
	if !CanTransition(from, to) {
		return apperror.State(fmt.Sprintf("invalid order status transition %s -> %s", from, to))
	}
	return nil
}
