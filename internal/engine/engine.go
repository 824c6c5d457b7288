// Package engine is the transaction orchestrator from spec section 2: it
// wraps every externally-visible operation in one allocation-lock-guarded,
// ACID transaction, runs the relevant allocation procedure, emits audit
// events, and commits. It is the generalization of the teacher's
// Service.CreateAppointment pattern (WithSlotLock wrapping a single repo
// call) to five operations and a (doctorId, date) lock scope.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opdflow/token-engine/internal/apperr"
	"github.com/opdflow/token-engine/internal/clock"
	"github.com/opdflow/token-engine/internal/lock"
	"github.com/opdflow/token-engine/internal/store"
)

// Engine is the allocation engine's entry point: the five procedures of
// spec section 6, plus read-only projections.
type Engine struct {
	store      store.Store
	locker     lock.Locker
	clock      clock.Clock
	log        *zap.Logger
	txDeadline time.Duration
}

func New(st store.Store, locker lock.Locker, clk clock.Clock, log *zap.Logger, txDeadline time.Duration) *Engine {
	if txDeadline <= 0 {
		txDeadline = 8 * time.Second
	}
	return &Engine{store: st, locker: locker, clock: clk, log: log, txDeadline: txDeadline}
}

// withLockedTx acquires the (doctorID, date) allocation lock and runs fn
// inside one transaction. A lock-acquisition failure is surfaced
// immediately as a storage conflict (spec 5: the lock bounds queueing; the
// transaction's row locks remain the source of truth for the invariants).
func (e *Engine) withLockedTx(ctx context.Context, doctorID uuid.UUID, date time.Time, fn store.TxFunc) error {
	ctx, cancel := context.WithTimeout(ctx, e.txDeadline)
	defer cancel()

	err := e.locker.WithLock(ctx, doctorID, date, func(ctx context.Context) error {
		return e.store.RunTx(ctx, fn)
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return apperr.Wrap(apperr.KindStorageConflict, err, "allocation unit busy, retry shortly")
	}
	return err
}
