// Package allocation implements the allocation engine's hard core: the
// admissibility predicate, priority/displacement calculus, and the
// allocate/backfill procedures from spec sections 4.1, 4.2, 4.4 and 4.5.
package allocation

import (
	"github.com/opdflow/token-engine/internal/domain"
)

// HigherPriority reports whether a outranks b (a is admitted/kept ahead of
// b). Lower numeric Priority value wins; equal priorities return false, so
// Allocate never displaces an occupant of the same rank as the incoming
// token.
func HigherPriority(a, b domain.Priority) bool {
	return a < b
}

// SelectVictim picks the displacement target among the tokens currently
// ALLOCATED in a full slot, per spec 4.1: the numerically highest priority
// value (i.e. lowest-ranked) is evicted; ties are broken FIFO by CreatedAt
// (the oldest occupant among equals is evicted). tokens must be non-empty.
func SelectVictim(tokens []*domain.Token) *domain.Token {
	victim := tokens[0]
	for _, t := range tokens[1:] {
		if t.Priority > victim.Priority {
			victim = t
			continue
		}
		if t.Priority == victim.Priority && t.CreatedAt.Before(victim.CreatedAt) {
			victim = t
		}
	}
	return victim
}

// SortWaitingOrder orders tokens by (priority asc, createdAt asc) in place,
// the ordering spec 4.5 requires for both the imminent and non-imminent
// backfill candidate sets. It is a small stable insertion sort: waiting
// lists per (doctor, date) are small enough that this is simpler than
// pulling in sort.Slice for a handful of call sites, and keeps the
// comparison logic next to SelectVictim for review.
func SortWaitingOrder(tokens []*domain.Token) {
	for i := 1; i < len(tokens); i++ {
		for j := i; j > 0 && waitingLess(tokens[j], tokens[j-1]); j-- {
			tokens[j], tokens[j-1] = tokens[j-1], tokens[j]
		}
	}
}

func waitingLess(a, b *domain.Token) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
