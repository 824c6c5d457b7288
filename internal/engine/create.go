package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/opdflow/token-engine/internal/allocation"
	"github.com/opdflow/token-engine/internal/apperr"
	"github.com/opdflow/token-engine/internal/audit"
	"github.com/opdflow/token-engine/internal/domain"
	"github.com/opdflow/token-engine/internal/naming"
	"github.com/opdflow/token-engine/internal/store"
)

// CreateToken implements spec section 4.6.
func (e *Engine) CreateToken(ctx context.Context, in CreateTokenInput) (*CreateTokenResult, error) {
	var result *CreateTokenResult

	err := e.withLockedTx(ctx, in.DoctorID, in.Date, func(ctx context.Context, repo store.Repository) error {
		existing, err := repo.FindTokenByIdempotencyKey(ctx, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			var slot *domain.Slot
			if existing.SlotID != nil {
				slot, err = repo.GetSlot(ctx, *existing.SlotID)
				if err != nil {
					return err
				}
			}
			result = &CreateTokenResult{Token: existing, Slot: slot, Message: "idempotent replay of existing token", Idempotent: true}
			return nil
		}

		doctor, err := repo.GetDoctor(ctx, in.DoctorID)
		if err != nil {
			if errors.Is(err, store.ErrDoctorNotFound) {
				return apperr.New(apperr.KindDoctorNotFound, "doctor not found")
			}
			return err
		}
		if !doctor.IsActive {
			return apperr.New(apperr.KindDoctorNotFound, "doctor is not active")
		}

		if err := repo.LockDateScope(ctx, in.DoctorID, in.Date); err != nil {
			return err
		}

		seq, err := repo.Next(ctx, naming.KindToken, in.DoctorID, in.Date)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		token := &domain.Token{
			ID:             uuid.New(),
			DisplayID:      naming.Format(naming.KindToken, in.Date, seq),
			IdempotencyKey: in.IdempotencyKey,
			DoctorID:       in.DoctorID,
			Date:           in.Date,
			PatientName:    in.PatientName,
			Phone:          in.Phone,
			Age:            in.Age,
			Notes:          in.Notes,
			Source:         in.Source,
			Priority:       in.Priority,
			Status:         domain.StatusWaiting,
			CreatedAt:      now,
		}
		if err := repo.InsertToken(ctx, token); err != nil {
			return err
		}

		outcome, err := allocation.Allocate(ctx, repo, e.clock, token)
		if err != nil {
			return err
		}

		createDetails := map[string]any{
			"allocated": outcome.Allocated,
			"message":   outcome.Message,
		}
		if outcome.Slot != nil {
			createDetails["slot_id"] = outcome.Slot.ID.String()
		}
		createEvent := audit.New(audit.EventCreateToken, in.DoctorID, now, createDetails).WithToken(token.ID)
		if err := repo.RecordEvent(ctx, createEvent); err != nil {
			return err
		}

		if outcome.EmergencyDisplacement {
			for _, victim := range outcome.Displaced {
				details := map[string]any{
					"evicted_token_id": victim.ID.String(),
					"evicted_status":   string(victim.Status),
				}
				if victim.SlotID != nil {
					details["re_placed_slot_id"] = victim.SlotID.String()
				}
				ev := audit.New(audit.EventEmergencyDisplacement, in.DoctorID, now, details).WithToken(token.ID)
				if outcome.Slot != nil {
					ev = ev.WithSlot(outcome.Slot.ID)
				}
				if err := repo.RecordEvent(ctx, ev); err != nil {
					return err
				}
			}
		}

		result = &CreateTokenResult{
			Token:     token,
			Slot:      outcome.Slot,
			Displaced: outcome.Displaced,
			Message:   outcome.Message,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
