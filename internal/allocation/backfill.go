package allocation

import (
	"context"
	"fmt"

	"github.com/opdflow/token-engine/internal/clock"
	"github.com/opdflow/token-engine/internal/domain"
)

// BackfillOutcome lists what backfill() managed to promote.
type BackfillOutcome struct {
	Promoted []*Outcome
}

// Backfill implements spec section 4.5. freedSlot is the slot a token just
// left ALLOCATED (via cancel or no-show). Like Allocate, it runs inside an
// already-open, already-locked transaction and performs no locking itself.
//
// Each candidate is passed to Allocate, which considers every active future
// slot for the date, so a promoted token may land in a slot other than
// freedSlot.
func Backfill(ctx context.Context, repo Repository, clk clock.Clock, freedSlot *domain.Slot) (*BackfillOutcome, error) {
	if clk.HasEnded(freedSlot) {
		return &BackfillOutcome{}, nil
	}

	waiting, err := repo.WaitingTokens(ctx, freedSlot.DoctorID, freedSlot.Date)
	if err != nil {
		return nil, fmt.Errorf("load waiting tokens: %w", err)
	}
	SortWaitingOrder(waiting)

	candidates := waiting
	if clk.IsImminent(freedSlot) {
		walkins := filterSource(waiting, domain.SourceWalkIn)
		if len(walkins) > 0 {
			candidates = walkins
		}
		// else: fallback to the full waiting list already assigned above.
	}

	out := &BackfillOutcome{}
	for _, t := range candidates {
		outcome, err := Allocate(ctx, repo, clk, t)
		if err != nil {
			return nil, fmt.Errorf("allocate waiting token %s during backfill: %w", t.ID, err)
		}
		if outcome.Allocated {
			out.Promoted = append(out.Promoted, outcome)
		}
	}
	return out, nil
}

func filterSource(tokens []*domain.Token, source domain.Source) []*domain.Token {
	var out []*domain.Token
	for _, t := range tokens {
		if t.Source == source {
			out = append(out, t)
		}
	}
	return out
}
