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

// MarkNoShow implements spec section 4.8: same shape as cancel, but the
// precondition is status=ALLOCATED, and the resulting status is NO_SHOW.
func (e *Engine) MarkNoShow(ctx context.Context, id uuid.UUID) (*NoShowResult, error) {
	doctorID, date, err := e.store.TokenScope(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil, apperr.New(apperr.KindTokenNotFound, "token not found")
		}
		return nil, err
	}

	var result *NoShowResult
	err = e.withLockedTx(ctx, doctorID, date, func(ctx context.Context, repo store.Repository) error {
		token, slot, err := repo.LockTokenAndSlot(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrTokenNotFound) {
				return apperr.New(apperr.KindTokenNotFound, "token not found")
			}
			return err
		}

		now := e.clock.Now()
		if err := token.TransitionToNoShow(now); err != nil {
			return err
		}
		if err := repo.SaveToken(ctx, token); err != nil {
			return err
		}

		details := map[string]any{}
		var promoted []*allocation.Outcome
		if slot != nil && !e.clock.HasEnded(slot) {
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

		ev := audit.New(audit.EventNoShow, doctorID, now, details).WithToken(token.ID)
		if slot != nil {
			ev = ev.WithSlot(slot.ID)
		}
		if err := repo.RecordEvent(ctx, ev); err != nil {
			return err
		}

		result = &NoShowResult{Token: token, Promoted: promoted, Message: "marked no-show"}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
