package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/opdflow/token-engine/internal/apperr"
	"github.com/opdflow/token-engine/internal/domain"
	"github.com/opdflow/token-engine/internal/store"
)

// GetToken, SlotAvailability, and WaitingList are the read-only projections
// spec section 6 calls out as "straightforward snapshots, not part of the
// hard core": no allocation lock, just one read-only transaction so the
// same Repository port serves reads and writes alike.
func (e *Engine) GetToken(ctx context.Context, id uuid.UUID) (*domain.Token, error) {
	var result *domain.Token
	err := e.store.RunTx(ctx, func(ctx context.Context, repo store.Repository) error {
		token, err := repo.GetToken(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrTokenNotFound) {
				return apperr.New(apperr.KindTokenNotFound, "token not found")
			}
			return err
		}
		result = token
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) SlotAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Slot, error) {
	var result []*domain.Slot
	err := e.store.RunTx(ctx, func(ctx context.Context, repo store.Repository) error {
		slots, err := repo.SlotAvailability(ctx, doctorID, date)
		if err != nil {
			return err
		}
		result = slots
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) WaitingList(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Token, error) {
	var result []*domain.Token
	err := e.store.RunTx(ctx, func(ctx context.Context, repo store.Repository) error {
		tokens, err := repo.WaitingList(ctx, doctorID, date)
		if err != nil {
			return err
		}
		result = tokens
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
