package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/opdflow/token-engine/internal/apperr"
)

// validTransitions is the closed transition table from spec section 4.3.
var validTransitions = map[TokenStatus]map[TokenStatus]bool{
	StatusWaiting: {
		StatusAllocated: true,
		StatusCancelled: true,
		StatusExpired:   true,
	},
	StatusAllocated: {
		StatusCompleted: true,
		StatusNoShow:    true,
		StatusCancelled: true,
		StatusWaiting:   true, // displacement only
	},
}

// CanTransition reports whether the from->to move is allowed.
func CanTransition(from, to TokenStatus) bool {
	return validTransitions[from][to]
}

// TransitionToAllocated moves a WAITING token into slot slotID, recording
// AllocatedAt. Returns InvalidStatus if the current status cannot reach
// ALLOCATED.
func (t *Token) TransitionToAllocated(slotID uuid.UUID, now time.Time) error {
	if !CanTransition(t.Status, StatusAllocated) {
		return apperr.Newf(apperr.KindInvalidStatus, "cannot allocate token %s from status %s", t.ID, t.Status)
	}
	t.Status = StatusAllocated
	t.SlotID = &slotID
	t.AllocatedAt = &now
	return nil
}

// TransitionToWaiting moves an ALLOCATED token back to WAITING. Used only by
// displacement: the evicted occupant's slot is cleared so it can be
// re-evaluated by allocate().
func (t *Token) TransitionToWaiting() error {
	if !CanTransition(t.Status, StatusWaiting) {
		return apperr.Newf(apperr.KindInvalidStatus, "cannot displace token %s from status %s", t.ID, t.Status)
	}
	t.Status = StatusWaiting
	t.SlotID = nil
	t.AllocatedAt = nil
	return nil
}

// TransitionToCancelled marks the token CANCELLED, clearing SlotID.
func (t *Token) TransitionToCancelled(now time.Time) error {
	if t.Status == StatusCancelled {
		return apperr.New(apperr.KindAlreadyCancelled, "token already cancelled")
	}
	if t.Status == StatusCompleted {
		return apperr.New(apperr.KindCannotCancelCompleted, "cannot cancel a completed token")
	}
	if !CanTransition(t.Status, StatusCancelled) {
		return apperr.Newf(apperr.KindInvalidStatus, "cannot cancel token %s from status %s", t.ID, t.Status)
	}
	t.Status = StatusCancelled
	t.SlotID = nil
	t.CancelledAt = &now
	return nil
}

// TransitionToNoShow marks an ALLOCATED token NO_SHOW, clearing SlotID.
func (t *Token) TransitionToNoShow(now time.Time) error {
	if t.Status != StatusAllocated {
		return apperr.Newf(apperr.KindInvalidStatus, "cannot mark no-show: token %s is %s, not ALLOCATED", t.ID, t.Status)
	}
	t.Status = StatusNoShow
	t.SlotID = nil
	return nil
}

// TransitionToCompleted marks an ALLOCATED token COMPLETED, recording
// CompletedAt. No reallocation follows; SlotID is cleared per the
// terminal-state-carries-no-slot invariant.
func (t *Token) TransitionToCompleted(now time.Time) error {
	if t.Status != StatusAllocated {
		return apperr.Newf(apperr.KindInvalidStatus, "cannot complete: token %s is %s, not ALLOCATED", t.ID, t.Status)
	}
	t.Status = StatusCompleted
	t.SlotID = nil
	t.CompletedAt = &now
	return nil
}

// TransitionToExpired marks a WAITING token EXPIRED (end-of-day bulk sweep).
func (t *Token) TransitionToExpired() error {
	if !CanTransition(t.Status, StatusExpired) {
		return apperr.Newf(apperr.KindInvalidStatus, "cannot expire token %s from status %s", t.ID, t.Status)
	}
	t.Status = StatusExpired
	t.SlotID = nil
	return nil
}
