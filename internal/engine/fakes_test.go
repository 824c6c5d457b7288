package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/opdflow/token-engine/internal/audit"
	"github.com/opdflow/token-engine/internal/domain"
	"github.com/opdflow/token-engine/internal/lock"
	"github.com/opdflow/token-engine/internal/naming"
	"github.com/opdflow/token-engine/internal/store"
)

// fakeLocker runs fn inline, uncontended, mirroring the teacher's
// in-process test doubles for its redis-backed locker.
type fakeLocker struct{}

func (fakeLocker) WithLock(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeStore is an in-memory store.Store; RunTx hands out a single shared
// fakeRepository instance and never rolls back since the in-memory map
// mutations cannot be rolled back anyway — good enough for exercising the
// engine's control flow, not a correctness model of transaction isolation.
type fakeStore struct {
	repo *fakeRepository
}

func newFakeStore() *fakeStore {
	return &fakeStore{repo: newFakeRepository()}
}

func (s *fakeStore) RunTx(ctx context.Context, fn store.TxFunc) error {
	return fn(ctx, s.repo)
}

func (s *fakeStore) TokenScope(ctx context.Context, id uuid.UUID) (uuid.UUID, time.Time, error) {
	t, ok := s.repo.tokens[id]
	if !ok {
		return uuid.Nil, time.Time{}, store.ErrTokenNotFound
	}
	return t.DoctorID, t.Date, nil
}

func (s *fakeStore) ActiveDoctorIDs(ctx context.Context) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for _, d := range s.repo.doctors {
		if d.IsActive && !seen[d.ID] {
			seen[d.ID] = true
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

// fakeRepository implements store.Repository entirely in memory.
type fakeRepository struct {
	doctors   map[uuid.UUID]*domain.Doctor
	slots     map[uuid.UUID]*domain.Slot
	tokens    map[uuid.UUID]*domain.Token
	byIdemKey map[string]uuid.UUID
	events    []audit.Event
	seqs      map[string]int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		doctors:   map[uuid.UUID]*domain.Doctor{},
		slots:     map[uuid.UUID]*domain.Slot{},
		tokens:    map[uuid.UUID]*domain.Token{},
		byIdemKey: map[string]uuid.UUID{},
		seqs:      map[string]int{},
	}
}

func (r *fakeRepository) addDoctor(d *domain.Doctor)     { r.doctors[d.ID] = d }
func (r *fakeRepository) addSlot(s *domain.Slot)         { r.slots[s.ID] = s }
func (r *fakeRepository) addToken(tok *domain.Token) {
	r.tokens[tok.ID] = tok
	if tok.IdempotencyKey != "" {
		r.byIdemKey[tok.IdempotencyKey] = tok.ID
	}
}

// allocation.Repository

func (r *fakeRepository) ActiveFutureSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]*domain.Slot, error) {
	var out []*domain.Slot
	for _, s := range r.slots {
		if s.DoctorID != doctorID || !s.IsActive || !s.EndTime.After(now) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *fakeRepository) AllocatedTokensInSlot(ctx context.Context, slotID uuid.UUID) ([]*domain.Token, error) {
	var out []*domain.Token
	for _, t := range r.tokens {
		if t.Status == domain.StatusAllocated && t.SlotID != nil && *t.SlotID == slotID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeRepository) WaitingTokens(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Token, error) {
	var out []*domain.Token
	for _, t := range r.tokens {
		if t.Status == domain.StatusWaiting && t.DoctorID == doctorID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeRepository) SaveToken(ctx context.Context, token *domain.Token) error {
	r.tokens[token.ID] = token
	return nil
}

// audit.Sink

func (r *fakeRepository) RecordEvent(ctx context.Context, ev audit.Event) error {
	r.events = append(r.events, ev)
	return nil
}

// naming.Sequencer

func (r *fakeRepository) Next(ctx context.Context, kind naming.Kind, doctorID uuid.UUID, date time.Time) (int, error) {
	key := string(kind) + doctorID.String() + date.Format("2006-01-02")
	r.seqs[key]++
	return r.seqs[key], nil
}

// store.Repository extras

func (r *fakeRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*domain.Doctor, error) {
	d, ok := r.doctors[id]
	if !ok {
		return nil, store.ErrDoctorNotFound
	}
	return d, nil
}

func (r *fakeRepository) GetToken(ctx context.Context, id uuid.UUID) (*domain.Token, error) {
	t, ok := r.tokens[id]
	if !ok {
		return nil, store.ErrTokenNotFound
	}
	return t, nil
}

func (r *fakeRepository) GetSlot(ctx context.Context, id uuid.UUID) (*domain.Slot, error) {
	s, ok := r.slots[id]
	if !ok {
		return nil, store.ErrSlotNotFound
	}
	return s, nil
}

func (r *fakeRepository) FindTokenByIdempotencyKey(ctx context.Context, key string) (*domain.Token, error) {
	id, ok := r.byIdemKey[key]
	if !ok {
		return nil, nil
	}
	return r.tokens[id], nil
}

func (r *fakeRepository) InsertToken(ctx context.Context, token *domain.Token) error {
	r.addToken(token)
	return nil
}

func (r *fakeRepository) LockDateScope(ctx context.Context, doctorID uuid.UUID, date time.Time) error {
	return nil
}

func (r *fakeRepository) LockTokenAndSlot(ctx context.Context, tokenID uuid.UUID) (*domain.Token, *domain.Slot, error) {
	t, ok := r.tokens[tokenID]
	if !ok {
		return nil, nil, store.ErrTokenNotFound
	}
	var slot *domain.Slot
	if t.SlotID != nil {
		slot = r.slots[*t.SlotID]
	}
	return t, slot, nil
}

func (r *fakeRepository) BulkExpireWaiting(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	n := 0
	for _, t := range r.tokens {
		if t.DoctorID == doctorID && t.Date.Equal(date) && t.Status == domain.StatusWaiting {
			if err := t.TransitionToExpired(); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (r *fakeRepository) SlotAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Slot, error) {
	var out []*domain.Slot
	for _, s := range r.slots {
		if s.DoctorID == doctorID && s.Date.Equal(date) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *fakeRepository) WaitingList(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Token, error) {
	var out []*domain.Token
	for _, t := range r.tokens {
		if t.DoctorID == doctorID && t.Date.Equal(date) && t.Status == domain.StatusWaiting {
			out = append(out, t)
		}
	}
	return out, nil
}

var (
	_ lock.Locker      = fakeLocker{}
	_ store.Store      = &fakeStore{}
	_ store.Repository = &fakeRepository{}
)
