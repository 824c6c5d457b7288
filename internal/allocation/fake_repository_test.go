package allocation

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/opdflow/token-engine/internal/domain"
)

// fakeRepository is an in-memory Repository for table-driven allocation
// tests; it needs no database, mirroring the pure in-process fixtures the
// pack uses for non-I/O unit tests.
type fakeRepository struct {
	slots  map[uuid.UUID]*domain.Slot
	tokens map[uuid.UUID]*domain.Token
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		slots:  map[uuid.UUID]*domain.Slot{},
		tokens: map[uuid.UUID]*domain.Token{},
	}
}

func (f *fakeRepository) addSlot(s *domain.Slot) { f.slots[s.ID] = s }
func (f *fakeRepository) addToken(t *domain.Token) { f.tokens[t.ID] = t }

func (f *fakeRepository) ActiveFutureSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]*domain.Slot, error) {
	var out []*domain.Slot
	for _, s := range f.slots {
		if s.DoctorID != doctorID || !s.IsActive || !s.EndTime.After(now) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f *fakeRepository) AllocatedTokensInSlot(ctx context.Context, slotID uuid.UUID) ([]*domain.Token, error) {
	var out []*domain.Token
	for _, t := range f.tokens {
		if t.Status == domain.StatusAllocated && t.SlotID != nil && *t.SlotID == slotID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepository) WaitingTokens(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Token, error) {
	var out []*domain.Token
	for _, t := range f.tokens {
		if t.Status == domain.StatusWaiting && t.DoctorID == doctorID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepository) SaveToken(ctx context.Context, token *domain.Token) error {
	f.tokens[token.ID] = token
	return nil
}
