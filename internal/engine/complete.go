package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/opdflow/token-engine/internal/apperr"
	"github.com/opdflow/token-engine/internal/audit"
	"github.com/opdflow/token-engine/internal/store"
)

// CompleteToken implements spec section 4.9: precondition status=ALLOCATED,
// transition to COMPLETED. Unlike cancel/no-show, completion never frees a
// slot for backfill — the appointment happened.
func (e *Engine) CompleteToken(ctx context.Context, id uuid.UUID) (*CompleteResult, error) {
	doctorID, date, err := e.store.TokenScope(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil, apperr.New(apperr.KindTokenNotFound, "token not found")
		}
		return nil, err
	}

	var result *CompleteResult
	err = e.withLockedTx(ctx, doctorID, date, func(ctx context.Context, repo store.Repository) error {
		token, slot, err := repo.LockTokenAndSlot(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrTokenNotFound) {
				return apperr.New(apperr.KindTokenNotFound, "token not found")
			}
			return err
		}

		now := e.clock.Now()
		if err := token.TransitionToCompleted(now); err != nil {
			return err
		}
		if err := repo.SaveToken(ctx, token); err != nil {
			return err
		}

		ev := audit.New(audit.EventCompleteToken, doctorID, now, nil).WithToken(token.ID)
		if slot != nil {
			ev = ev.WithSlot(slot.ID)
		}
		if err := repo.RecordEvent(ctx, ev); err != nil {
			return err
		}

		result = &CompleteResult{Token: token}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
