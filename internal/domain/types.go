package domain

import (
	"time"

	"github.com/google/uuid"
)

// Priority is the total order used by the allocation engine for admission
// and displacement decisions. Lower numeric value outranks higher.
type Priority int

const (
	PriorityEmergency Priority = 1
	PriorityPaid      Priority = 2
	PriorityFollowUp  Priority = 3
	PriorityOnline    Priority = 4
	PriorityWalkIn    Priority = 5
)

func (p Priority) String() string {
	switch p {
	case PriorityEmergency:
		return "EMERGENCY"
	case PriorityPaid:
		return "PAID"
	case PriorityFollowUp:
		return "FOLLOWUP"
	case PriorityOnline:
		return "ONLINE"
	case PriorityWalkIn:
		return "WALKIN"
	default:
		return "UNKNOWN"
	}
}

// ParsePriority maps the wire string to a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "EMERGENCY":
		return PriorityEmergency, true
	case "PAID":
		return PriorityPaid, true
	case "FOLLOWUP":
		return PriorityFollowUp, true
	case "ONLINE":
		return PriorityOnline, true
	case "WALKIN":
		return PriorityWalkIn, true
	default:
		return 0, false
	}
}

// Source is the origin channel of a token. Independent of Priority.
type Source string

const (
	SourceWalkIn Source = "WALKIN"
	SourceOnline Source = "ONLINE"
)

// TokenStatus is the closed set of lifecycle states a Token can occupy.
type TokenStatus string

const (
	StatusWaiting   TokenStatus = "WAITING"
	StatusAllocated TokenStatus = "ALLOCATED"
	StatusCompleted TokenStatus = "COMPLETED"
	StatusCancelled TokenStatus = "CANCELLED"
	StatusNoShow    TokenStatus = "NO_SHOW"
	StatusExpired   TokenStatus = "EXPIRED"
)

// Terminal reports whether a status admits no further transitions.
func (s TokenStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusExpired:
		return true
	default:
		return false
	}
}

// Cap models a sub-cap that may be absent. Absent means "no limit" and is
// represented explicitly rather than via a sentinel integer (e.g. -1 or 0),
// per the nullable-sub-cap design note: a caller cannot mistake "no cap"
// for "cap of zero".
type Cap struct {
	unlimited bool
	n         int
}

// Unlimited returns a Cap representing "no limit".
func Unlimited() Cap { return Cap{unlimited: true} }

// NewCap returns a Cap bounded at n.
func NewCap(n int) Cap { return Cap{n: n} }

func (c Cap) IsUnlimited() bool { return c.unlimited }

// N returns the bound; only meaningful when IsUnlimited is false.
func (c Cap) N() int { return c.n }

// Exceeded reports whether count has reached or passed the cap.
func (c Cap) Exceeded(count int) bool {
	if c.unlimited {
		return false
	}
	return count >= c.n
}

// Doctor is read by the engine only for (ID, IsActive); the rest of its
// lifecycle is managed by an external collaborator.
type Doctor struct {
	ID       uuid.UUID
	Name     string
	IsActive bool
}

// Slot is a fixed time window on a date for one doctor, with a hard
// capacity and optional priority sub-caps.
type Slot struct {
	ID          uuid.UUID
	DisplayID   string
	DoctorID    uuid.UUID
	Date        time.Time // local midnight
	StartTime   time.Time // same calendar date, HH:MM resolved
	EndTime     time.Time
	Capacity    int
	PaidCap     Cap
	FollowUpCap Cap
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Token is a patient's claim on a doctor for a date.
type Token struct {
	ID             uuid.UUID
	DisplayID      string
	IdempotencyKey string
	DoctorID       uuid.UUID
	Date           time.Time
	PatientName    string
	Phone          *string
	Age            *int
	Notes          *string
	Source         Source
	Priority       Priority
	Status         TokenStatus
	SlotID         *uuid.UUID

	CreatedAt   time.Time
	AllocatedAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// Clone returns a shallow value copy safe for independent mutation of the
// top-level fields. SlotID and the timestamp pointers are re-boxed; Phone,
// Age and Notes still point at the original's values.
func (t *Token) Clone() *Token {
	c := *t
	if t.SlotID != nil {
		id := *t.SlotID
		c.SlotID = &id
	}
	if t.AllocatedAt != nil {
		v := *t.AllocatedAt
		c.AllocatedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.CancelledAt != nil {
		v := *t.CancelledAt
		c.CancelledAt = &v
	}
	return &c
}
