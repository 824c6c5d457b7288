// Package audit defines the append-only event shape the engine emits, one
// per committed externally-visible operation (spec section 6). The engine
// builds an Event and hands it to a Sink; the production Sink is the
// store package's transaction-scoped repository, so the insert commits
// atomically with the rest of the operation, per spec 4.11 ("no orphaned
// audit events inside that transaction").
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the six operations spec section 6 requires an audit
// event for.
type EventType string

const (
	EventCreateToken           EventType = "CREATE_TOKEN"
	EventEmergencyDisplacement EventType = "EMERGENCY_DISPLACEMENT"
	EventCancelToken           EventType = "CANCEL_TOKEN"
	EventNoShow                EventType = "NO_SHOW"
	EventCompleteToken         EventType = "COMPLETE_TOKEN"
	EventExpireTokens          EventType = "EXPIRE_TOKENS"
)

// Event is the append-only record. TokenID, SlotID are optional depending
// on the operation (e.g. EXPIRE_TOKENS carries neither, only a count in
// Details).
type Event struct {
	Type      EventType
	TokenID   *uuid.UUID
	SlotID    *uuid.UUID
	DoctorID  uuid.UUID
	Details   map[string]any
	Timestamp time.Time
}

// Sink persists an Event. Implementations are expected to be called from
// inside the caller's open transaction.
type Sink interface {
	RecordEvent(ctx context.Context, ev Event) error
}

// New builds an Event, stamping Timestamp from now.
func New(eventType EventType, doctorID uuid.UUID, now time.Time, details map[string]any) Event {
	if details == nil {
		details = map[string]any{}
	}
	return Event{Type: eventType, DoctorID: doctorID, Details: details, Timestamp: now}
}

func (e Event) WithToken(id uuid.UUID) Event {
	e.TokenID = &id
	return e
}

func (e Event) WithSlot(id uuid.UUID) Event {
	e.SlotID = &id
	return e
}
