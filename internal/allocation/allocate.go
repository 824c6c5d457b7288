package allocation

import (
	"context"
	"fmt"

	"github.com/opdflow/token-engine/internal/apperr"
	"github.com/opdflow/token-engine/internal/clock"
	"github.com/opdflow/token-engine/internal/domain"
)

// Outcome describes the result of one allocate() call, including any
// displacement it triggered.
type Outcome struct {
	Token                 *domain.Token
	Allocated             bool
	Slot                  *domain.Slot
	Displaced             []*domain.Token // victims, in their post-reallocation state
	EmergencyDisplacement bool
	Message               string
}

// Allocate implements spec section 4.4. token must be WAITING. It is run
// inside an already-open transaction that has already locked the doctor's
// slots (and their allocated tokens) for token's date; Allocate performs no
// locking of its own.
//
// Displacement is expressed as the literal recursion the spec describes
// (the re-placement of an evicted occupant is itself a call to Allocate).
// The displacement branch only fires when SelectVictim's pick is strictly
// lower priority than the incoming token (see the HigherPriority guard
// below); a full slot whose occupants are all equal-or-higher priority
// (e.g. every seat already EMERGENCY) is skipped instead of displaced.
// That guard is what bounds recursion depth at one: the victim is always
// strictly lower priority than the token being placed, so re-placing it
// can trigger at most a normal admission, never a further eviction.
func Allocate(ctx context.Context, repo Repository, clk clock.Clock, token *domain.Token) (*Outcome, error) {
	if token.Status != domain.StatusWaiting {
		return nil, apperr.Newf(apperr.KindInvalidStatus, "allocate requires a WAITING token, got %s", token.Status)
	}

	now := clk.Now()
	slots, err := repo.ActiveFutureSlots(ctx, token.DoctorID, token.Date, now)
	if err != nil {
		return nil, fmt.Errorf("load active future slots: %w", err)
	}

	for _, slot := range slots {
		occupants, err := repo.AllocatedTokensInSlot(ctx, slot.ID)
		if err != nil {
			return nil, fmt.Errorf("load occupants of slot %s: %w", slot.ID, err)
		}
		counts := CountOccupants(occupants)

		if !Admissible(token.Priority, slot, counts) {
			continue
		}

		if counts.Allocated < slot.Capacity {
			if err := token.TransitionToAllocated(slot.ID, now); err != nil {
				return nil, err
			}
			if err := repo.SaveToken(ctx, token); err != nil {
				return nil, fmt.Errorf("save allocated token %s: %w", token.ID, err)
			}
			return &Outcome{
				Token:     token,
				Allocated: true,
				Slot:      slot,
				Message:   fmt.Sprintf("allocated to slot %s", slot.DisplayID),
			}, nil
		}

		// Slot is full and Admissible returned true only because the
		// incoming token is EMERGENCY (see Admissible step 1). Displace,
		// but only a strictly lower-priority occupant: if every occupant
		// outranks-equal the incoming token (e.g. all EMERGENCY), there is
		// no valid victim in this slot, so move on rather than evict a
		// peer that would just re-displace the token we're placing.
		victim := SelectVictim(occupants)
		if !HigherPriority(token.Priority, victim.Priority) {
			continue
		}
		if err := victim.TransitionToWaiting(); err != nil {
			return nil, err
		}
		if err := repo.SaveToken(ctx, victim); err != nil {
			return nil, fmt.Errorf("save displaced token %s: %w", victim.ID, err)
		}
		if err := token.TransitionToAllocated(slot.ID, now); err != nil {
			return nil, err
		}
		if err := repo.SaveToken(ctx, token); err != nil {
			return nil, fmt.Errorf("save emergency token %s: %w", token.ID, err)
		}

		if _, err := Allocate(ctx, repo, clk, victim); err != nil {
			return nil, fmt.Errorf("re-place displaced token %s: %w", victim.ID, err)
		}

		return &Outcome{
			Token:                 token,
			Allocated:             true,
			Slot:                  slot,
			Displaced:             []*domain.Token{victim},
			EmergencyDisplacement: true,
			Message:               fmt.Sprintf("emergency displacement in slot %s, evicted %s", slot.DisplayID, victim.DisplayID),
		}, nil
	}

	return &Outcome{
		Token:   token,
		Message: "no admissible slot found, left waiting",
	}, nil
}
