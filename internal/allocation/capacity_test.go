package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/opdflow/token-engine/internal/domain"
)

func mkSlot(capacity int, paidCap, followUpCap domain.Cap) *domain.Slot {
	return &domain.Slot{Capacity: capacity, PaidCap: paidCap, FollowUpCap: followUpCap}
}

func TestAdmissible_EmergencyAlwaysPasses(t *testing.T) {
	slot := mkSlot(1, domain.Unlimited(), domain.Unlimited())
	counts := Counts{Allocated: 1}
	assert.True(t, Admissible(domain.PriorityEmergency, slot, counts))
}

func TestAdmissible_RejectsWhenSlotFull(t *testing.T) {
	slot := mkSlot(2, domain.Unlimited(), domain.Unlimited())
	counts := Counts{Allocated: 2}
	assert.False(t, Admissible(domain.PriorityWalkIn, slot, counts))
}

func TestAdmissible_PaidCapExceeded(t *testing.T) {
	// S5 from the scenario table: capacity=6, paidCap=3, 3 already PAID.
	slot := mkSlot(6, domain.NewCap(3), domain.Unlimited())
	counts := Counts{Allocated: 3, Paid: 3}
	assert.False(t, Admissible(domain.PriorityPaid, slot, counts), "4th PAID denied though total seats remain")
}

func TestAdmissible_PaidCapDoesNotBlockOtherSources(t *testing.T) {
	slot := mkSlot(6, domain.NewCap(3), domain.Unlimited())
	counts := Counts{Allocated: 3, Paid: 3}
	assert.True(t, Admissible(domain.PriorityWalkIn, slot, counts), "paid cap only constrains PAID admission")
}

func TestAdmissible_FollowUpCapExceeded(t *testing.T) {
	slot := mkSlot(6, domain.Unlimited(), domain.NewCap(2))
	counts := Counts{Allocated: 2, FollowUp: 2}
	assert.False(t, Admissible(domain.PriorityFollowUp, slot, counts))
}

func TestAdmissible_UnlimitedCapNeverExceeded(t *testing.T) {
	slot := mkSlot(10, domain.Unlimited(), domain.Unlimited())
	counts := Counts{Allocated: 5, Paid: 5}
	assert.True(t, Admissible(domain.PriorityPaid, slot, counts))
}

func TestCountOccupants(t *testing.T) {
	tokens := []*domain.Token{
		mkToken(domain.PriorityPaid, time.Now()),
		mkToken(domain.PriorityPaid, time.Now()),
		mkToken(domain.PriorityFollowUp, time.Now()),
		mkToken(domain.PriorityWalkIn, time.Now()),
	}
	counts := CountOccupants(tokens)
	assert.Equal(t, 4, counts.Allocated)
	assert.Equal(t, 2, counts.Paid)
	assert.Equal(t, 1, counts.FollowUp)
}
