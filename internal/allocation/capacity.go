package allocation

import "github.com/opdflow/token-engine/internal/domain"

// Counts summarizes a slot's currently-ALLOCATED occupants for the
// admissibility check.
type Counts struct {
	Allocated int
	Paid      int
	FollowUp  int
}

// CountOccupants derives Counts from the tokens currently ALLOCATED in a
// slot. Callers pass only ALLOCATED tokens; this does not filter status.
func CountOccupants(tokens []*domain.Token) Counts {
	var c Counts
	for _, t := range tokens {
		c.Allocated++
		switch t.Priority {
		case domain.PriorityPaid:
			c.Paid++
		case domain.PriorityFollowUp:
			c.FollowUp++
		}
	}
	return c
}

// Admissible is the pure capacity predicate from spec section 4.2.
// EMERGENCY always passes here: total-capacity enforcement for an
// EMERGENCY happens via displacement in allocate(), not by this predicate
// returning false.
func Admissible(incoming domain.Priority, slot *domain.Slot, counts Counts) bool {
	if incoming == domain.PriorityEmergency {
		return true
	}
	if counts.Allocated >= slot.Capacity {
		return false
	}
	if incoming == domain.PriorityPaid && slot.PaidCap.Exceeded(counts.Paid) {
		return false
	}
	if incoming == domain.PriorityFollowUp && slot.FollowUpCap.Exceeded(counts.FollowUp) {
		return false
	}
	return true
}
