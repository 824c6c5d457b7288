package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/opdflow/token-engine/internal/allocation"
	"github.com/opdflow/token-engine/internal/domain"
)

// CreateTokenInput carries already-validated fields; date/time parsing and
// enum validation belong to the API layer's validators, not the engine
// (spec section 1: "request validation... consume the engine's operations
// only").
type CreateTokenInput struct {
	IdempotencyKey string
	DoctorID       uuid.UUID
	Date           time.Time
	PatientName    string
	Phone          *string
	Age            *int
	Notes          *string
	Source         domain.Source
	Priority       domain.Priority
}

// CreateTokenResult mirrors the return shape in spec section 4.6:
// {token, slot|null, displaced[], message}.
type CreateTokenResult struct {
	Token      *domain.Token
	Slot       *domain.Slot
	Displaced  []*domain.Token
	Message    string
	Idempotent bool
}

// CancelResult mirrors spec section 6: {cancelled, promoted[], message}.
type CancelResult struct {
	Token    *domain.Token
	Promoted []*allocation.Outcome
	Message  string
}

// NoShowResult mirrors CancelResult's shape for markNoShow.
type NoShowResult struct {
	Token    *domain.Token
	Promoted []*allocation.Outcome
	Message  string
}

// CompleteResult is the completeToken result: the token, now COMPLETED.
type CompleteResult struct {
	Token *domain.Token
}
