package order

import (
	"errors"
	"fmt"

	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

// TransitionError reports a rejected status change with enough context to
// render a user-facing message.
type TransitionError struct {
	Number string
	From   order.Status
	To     order.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: transition %s -> %s not allowed", e.Number, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// transitions is the canonical table: every status change anywhere in the
// system must be a listed edge.
var transitions = map[order.Status][]order.Status{
	order.StatusAwaitingDeposit:  {order.StatusOpen, order.StatusCancelled},
	order.StatusOpen:             {order.StatusMatching, order.StatusScheduled, order.StatusCancelled},
	order.StatusMatching:         {order.StatusScheduled, order.StatusCancelled},
	order.StatusScheduled:        {order.StatusInProgress, order.StatusMatching},
	order.StatusInProgress:       {order.StatusClosingSubmitted},
	order.StatusClosingSubmitted: {order.StatusFinalConfirmed},
	order.StatusFinalConfirmed:   {order.StatusBalancePaid},
	order.StatusBalancePaid:      {order.StatusSettlementPaid},
	order.StatusSettlementPaid:   {order.StatusClosed},
}

// CanTransition reports whether from -> to is a listed edge. Terminal
// statuses have no outgoing edges.
func CanTransition(from, to order.Status) bool {
	if from.Terminal() {
		return false
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition mutates o's status or returns a TransitionError. It does not
// persist; callers commit under the order lock.
func Transition(o *order.Order, to order.Status) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{Number: o.Number, From: o.Status, To: to}
	}
	o.Status = to
	return nil
}
