package lifecycle

import (
	"fmt"
	"time"

	"github.com/floroz/lotmarket/services/auction-service/internal/domain/failure"
)

// Status represents the lifecycle state of an auction item
type Status string

const (
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusOpen            Status = "OPEN"
	StatusClosed          Status = "CLOSED"
	StatusSold            Status = "SOLD"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is a member of the enum
func (s Status) IsValid() bool {
	switch s {
	case StatusPendingApproval, StatusOpen, StatusClosed, StatusSold, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// Event is something that moves an item from one status to another
type Event string

const (
	EventApprove Event = "approve"
	EventReject  Event = "reject"
	EventExpire  Event = "expire"
	EventSell    Event = "sell"
	EventCancel  Event = "cancel"
)

// ErrInvalidTransition is returned when an event does not apply to the current status
var ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", failure.ErrConflict)

var transitions = map[Status]map[Event]Status{
	StatusPendingApproval: {
		EventApprove: StatusOpen,
		EventReject:  StatusRejected,
		EventCancel:  StatusCancelled,
	},
	StatusOpen: {
		EventExpire: StatusClosed,
		EventCancel: StatusCancelled,
	},
	StatusClosed: {
		EventSell:   StatusSold,
		EventCancel: StatusCancelled,
	},
	StatusSold: {
		EventCancel: StatusCancelled,
	},
	StatusRejected: {
		EventCancel: StatusCancelled,
	},
}

// Next returns the status reached by applying ev to from
func Next(from Status, ev Event) (Status, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	switch ev {
	case EventApprove, EventReject:
		return from, fmt.Errorf("%w: item is not pending approval (status %s)", ErrInvalidTransition, from)
	case EventExpire:
		return from, fmt.Errorf("%w: item is not open (status %s)", ErrInvalidTransition, from)
	case EventSell:
		return from, fmt.Errorf("%w: item is not closed (status %s)", ErrInvalidTransition, from)
	default:
		return from, fmt.Errorf("%w: cannot %s item in status %s", ErrInvalidTransition, ev, from)
	}
}

// CanTransition reports whether to is reachable from from in a single event
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Effective returns the status an item is in at now, accounting for an elapsed
// bidding window. Only OPEN depends on time; every other status is returned as stored.
func Effective(stored Status, endTime, now time.Time) Status {
	if stored == StatusOpen && !now.Before(endTime) {
		return StatusClosed
	}
	return stored
}
