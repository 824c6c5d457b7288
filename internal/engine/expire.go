package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opdflow/token-engine/internal/audit"
	"github.com/opdflow/token-engine/internal/store"
)

// ExpireWaiting implements spec section 4.10: bulk-transition every WAITING
// token for (doctorID, date) to EXPIRED, in one transaction, without
// attempting allocation. Returns the count affected.
func (e *Engine) ExpireWaiting(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	var count int
	err := e.withLockedTx(ctx, doctorID, date, func(ctx context.Context, repo store.Repository) error {
		if err := repo.LockDateScope(ctx, doctorID, date); err != nil {
			return err
		}

		n, err := repo.BulkExpireWaiting(ctx, doctorID, date)
		if err != nil {
			return err
		}
		count = n

		ev := audit.New(audit.EventExpireTokens, doctorID, e.clock.Now(), map[string]any{"count": n})
		return repo.RecordEvent(ctx, ev)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
