// Package clock isolates "now" and the slot-timing predicates the
// allocation engine depends on (hasEnded, isImminent) behind an interface,
// so tests can pin time without sleeping or mocking time.Now globally.
package clock

import (
	"time"

	"github.com/opdflow/token-engine/internal/domain"
)

// ImminentWindow is the lookahead spec section 4.5 uses to decide whether a
// slot is "imminent" for walk-in backfill preference.
const ImminentWindow = time.Hour

// Clock is the collaborator the engine reads "now" from.
type Clock interface {
	Now() time.Time
	// HasEnded reports whether slot.EndTime has strictly passed.
	HasEnded(slot *domain.Slot) bool
	// IsImminent reports whether slot starts within ImminentWindow of now,
	// including slots already in progress but not yet ended.
	IsImminent(slot *domain.Slot) bool
}

// Real is the production Clock backed by time.Now in a fixed location.
type Real struct {
	Location *time.Location
}

func NewReal(loc *time.Location) Real {
	if loc == nil {
		loc = time.Local
	}
	return Real{Location: loc}
}

func (r Real) Now() time.Time { return time.Now().In(r.Location) }

func (r Real) HasEnded(slot *domain.Slot) bool {
	return r.Now().After(slot.EndTime)
}

func (r Real) IsImminent(slot *domain.Slot) bool {
	now := r.Now()
	if r.HasEnded(slot) {
		return false
	}
	if !now.Before(slot.StartTime) {
		// already in progress, not yet ended
		return true
	}
	return slot.StartTime.Sub(now) <= ImminentWindow
}

// Fixed is a deterministic Clock for tests: it always reports the same
// instant regardless of wall-clock time.
type Fixed struct {
	At time.Time
}

func NewFixed(at time.Time) Fixed { return Fixed{At: at} }

func (f Fixed) Now() time.Time { return f.At }

func (f Fixed) HasEnded(slot *domain.Slot) bool {
	return f.At.After(slot.EndTime)
}

func (f Fixed) IsImminent(slot *domain.Slot) bool {
	if f.HasEnded(slot) {
		return false
	}
	if !f.At.Before(slot.StartTime) {
		return true
	}
	return slot.StartTime.Sub(f.At) <= ImminentWindow
}
