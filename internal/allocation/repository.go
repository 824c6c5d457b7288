package allocation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opdflow/token-engine/internal/domain"
)

// Repository is the storage port allocate() and backfill() read and write
// through. It is satisfied, inside one already-open and already-locked
// transaction, by the store package's transaction-scoped repository; the
// allocation package itself performs no I/O of its own and takes no locks.
type Repository interface {
	// ActiveFutureSlots returns active slots for (doctorID, date) whose
	// EndTime is strictly after now, ordered by StartTime ascending.
	ActiveFutureSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]*domain.Slot, error)

	// AllocatedTokensInSlot returns the tokens currently ALLOCATED to slotID.
	AllocatedTokensInSlot(ctx context.Context, slotID uuid.UUID) ([]*domain.Token, error)

	// WaitingTokens returns WAITING tokens for (doctorID, date), any order;
	// callers sort with SortWaitingOrder.
	WaitingTokens(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Token, error)

	// SaveToken persists the full current state of token (status, slotId,
	// timestamps).
	SaveToken(ctx context.Context, token *domain.Token) error
}
