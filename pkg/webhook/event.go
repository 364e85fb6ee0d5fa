package webhook

import (
	"time"

	"github.com/google/uuid"
)

// EventState tracks an event through the delivery lifecycle.
type EventState uint8

const (
	// StatePending means the event is queued and becomes eligible at
	// NextRetryAt.
	StatePending EventState = iota

	// StateInFlight means a worker is currently delivering the event.
	StateInFlight

	// StateDelivered means the remote side positively acknowledged the
	// delivery. Terminal.
	StateDelivered

	// StateDeadLettered means the event exhausted its retry budget or
	// failed permanently. Terminal.
	StateDeadLettered
)

// String returns a human-readable state name.
func (s EventState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateInFlight:
		return "IN_FLIGHT"
	case StateDelivered:
		return "DELIVERED"
	case StateDeadLettered:
		return "DEAD_LETTERED"
	default:
		return "UNKNOWN"
	}
}

// Event is one outbound notification.
type Event struct {
	// ID is the idempotency key. Receivers must tolerate duplicate
	// deliveries of the same ID.
	ID string

	// Payload is the opaque notification body.
	Payload []byte

	// Attempts counts failed delivery attempts.
	Attempts int

	// NextRetryAt is when the event next becomes delivery-eligible.
	NextRetryAt time.Time

	// State is the current lifecycle state.
	State EventState

	// CreatedAt orders events with equal retry eligibility.
	CreatedAt time.Time
}

// NewEvent creates a pending event with a fresh idempotency key.
func NewEvent(payload []byte) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Payload:   payload,
		State:     StatePending,
		CreatedAt: time.Now(),
	}
}
