package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/opdflow/token-engine/internal/domain"
)

// dateLayout, timeLayout are the boundary formats spec section 6 fixes:
// DD-MM-YYYY for dates, HH:MM (24-hour) for slot start/end times.
const (
	dateLayout = "02-01-2006"
	timeLayout = "15:04"
)

// CreateTokenRequest is the body of POST /doctors/{doctorId}/tokens.
type CreateTokenRequest struct {
	IdempotencyKey string  `json:"idempotency_key" validate:"required"`
	Date           string  `json:"date" validate:"required"`
	PatientName    string  `json:"patient_name" validate:"required"`
	Phone          *string `json:"phone,omitempty"`
	Age            *int    `json:"age,omitempty" validate:"omitempty,gte=0,lte=130"`
	Notes          *string `json:"notes,omitempty"`
	Source         string  `json:"source" validate:"required,oneof=WALKIN ONLINE"`
	Priority       string  `json:"priority" validate:"required,oneof=EMERGENCY PAID FOLLOWUP ONLINE WALKIN"`
}

// TokenResponse mirrors domain.Token at the wire boundary.
type TokenResponse struct {
	ID          uuid.UUID  `json:"id"`
	DisplayID   string     `json:"display_id"`
	DoctorID    uuid.UUID  `json:"doctor_id"`
	Date        string     `json:"date"`
	PatientName string     `json:"patient_name"`
	Phone       *string    `json:"phone,omitempty"`
	Age         *int       `json:"age,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	Source      string     `json:"source"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	SlotID      *uuid.UUID `json:"slot_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	AllocatedAt *time.Time `json:"allocated_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func tokenToResponse(t *domain.Token) TokenResponse {
	return TokenResponse{
		ID:          t.ID,
		DisplayID:   t.DisplayID,
		DoctorID:    t.DoctorID,
		Date:        t.Date.Format(dateLayout),
		PatientName: t.PatientName,
		Phone:       t.Phone,
		Age:         t.Age,
		Notes:       t.Notes,
		Source:      string(t.Source),
		Priority:    t.Priority.String(),
		Status:      string(t.Status),
		SlotID:      t.SlotID,
		CreatedAt:   t.CreatedAt,
		AllocatedAt: t.AllocatedAt,
		CompletedAt: t.CompletedAt,
		CancelledAt: t.CancelledAt,
	}
}

func tokensToResponse(ts []*domain.Token) []TokenResponse {
	out := make([]TokenResponse, len(ts))
	for i, t := range ts {
		out[i] = tokenToResponse(t)
	}
	return out
}

// SlotResponse is the wire shape of a slot. slotToResponse does not set
// AllocatedCount, so neither the slot-availability projection nor
// createToken's embedded slot includes it.
type SlotResponse struct {
	ID             uuid.UUID `json:"id"`
	DisplayID      string    `json:"display_id"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	Capacity       int       `json:"capacity"`
	PaidCap        *int      `json:"paid_cap,omitempty"`
	FollowUpCap    *int      `json:"followup_cap,omitempty"`
	AllocatedCount *int      `json:"allocated_count,omitempty"`
}

func slotToResponse(s *domain.Slot) SlotResponse {
	resp := SlotResponse{
		ID:        s.ID,
		DisplayID: s.DisplayID,
		StartTime: s.StartTime.Format(timeLayout),
		EndTime:   s.EndTime.Format(timeLayout),
		Capacity:  s.Capacity,
	}
	if !s.PaidCap.IsUnlimited() {
		n := s.PaidCap.N()
		resp.PaidCap = &n
	}
	if !s.FollowUpCap.IsUnlimited() {
		n := s.FollowUpCap.N()
		resp.FollowUpCap = &n
	}
	return resp
}

// CreateTokenResponse is the {token, slot|null, displaced[], message} shape
// from spec section 4.6.
type CreateTokenResponse struct {
	Token     TokenResponse   `json:"token"`
	Slot      *SlotResponse   `json:"slot"`
	Displaced []TokenResponse `json:"displaced"`
	Message   string          `json:"message"`
}

// CancelResponse is the {cancelled, promoted[], message} shape from
// spec section 6.
type CancelResponse struct {
	Cancelled TokenResponse   `json:"cancelled"`
	Promoted  []TokenResponse `json:"promoted"`
	Message   string          `json:"message"`
}

// CompleteResponse is the completeToken response: the completed token.
type CompleteResponse struct {
	Token TokenResponse `json:"token"`
}

// ExpireResponse is the {count} shape of expireWaiting.
type ExpireResponse struct {
	Count int `json:"count"`
}

// ErrorResponse mirrors the teacher's shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
