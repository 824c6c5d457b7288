package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/opdflow/token-engine/internal/allocation"
	"github.com/opdflow/token-engine/internal/apperr"
	"github.com/opdflow/token-engine/internal/audit"
	"github.com/opdflow/token-engine/internal/store"
)

// CancelToken implements spec section 4.7.
func (e *Engine) CancelToken(ctx context.Context, id uuid.UUID) (*CancelResult, error) {
	doctorID, date, err := e.store.TokenScope(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil, apperr.New(apperr.KindTokenNotFound, "token not found")
		}
		return nil, err
	}

	var result *CancelResult
	err = e.withLockedTx(ctx, doctorID, date, func(ctx context.Context, repo store.Repository) error {
		token, slot, err := repo.LockTokenAndSlot(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrTokenNotFound) {
				return apperr.New(apperr.KindTokenNotFound, "token not found")
			}
			return err
		}

		now := e.clock.Now()
		if err := token.TransitionToCancelled(now); err != nil {
			return err
		}
		if err := repo.SaveToken(ctx, token); err != nil {
			return err
		}

		details := map[string]any{}
		var promoted []*allocation.Outcome
		if slot != nil {
			if e.clock.HasEnded(slot) {
				details["reason"] = "Slot already ended"
			} else {
				if err := repo.LockDateScope(ctx, doctorID, date); err != nil {
					return err
				}
				bf, err := allocation.Backfill(ctx, repo, e.clock, slot)
				if err != nil {
					return err
				}
				promoted = bf.Promoted
				details["promoted_count"] = len(promoted)
			}
		}

		ev := audit.New(audit.EventCancelToken, doctorID, now, details).WithToken(token.ID)
		if slot != nil {
			ev = ev.WithSlot(slot.ID)
		}
		if err := repo.RecordEvent(ctx, ev); err != nil {
			return err
		}

		result = &CancelResult{Token: token, Promoted: promoted, Message: "cancelled"}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
