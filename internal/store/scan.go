package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/opdflow/token-engine/internal/domain"
)

func scanCap(n *int) domain.Cap {
	if n == nil {
		return domain.Unlimited()
	}
	return domain.NewCap(*n)
}

func capToNullable(c domain.Cap) *int {
	if c.IsUnlimited() {
		return nil
	}
	n := c.N()
	return &n
}

func scanSlot(row pgx.Row) (*domain.Slot, error) {
	var s domain.Slot
	var paidCap, followUpCap *int

	err := row.Scan(
		&s.ID,
		&s.DisplayID,
		&s.DoctorID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.Capacity,
		&paidCap,
		&followUpCap,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.PaidCap = scanCap(paidCap)
	s.FollowUpCap = scanCap(followUpCap)
	return &s, nil
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	var phone, notes *string
	var age *int
	var pgSlotID pgtype.UUID

	err := row.Scan(
		&t.ID,
		&t.DisplayID,
		&t.IdempotencyKey,
		&t.DoctorID,
		&t.Date,
		&t.PatientName,
		&phone,
		&age,
		&notes,
		&t.Source,
		&t.Priority,
		&t.Status,
		&pgSlotID,
		&t.CreatedAt,
		&t.AllocatedAt,
		&t.CompletedAt,
		&t.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	t.Phone = phone
	t.Age = age
	t.Notes = notes
	if pgSlotID.Valid {
		id := uuid.UUID(pgSlotID.Bytes)
		t.SlotID = &id
	}
	return &t, nil
}

func nowPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func slotIDParam(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}
