// Package naming is the human-readable display-identifier collaborator
// from spec section 6: given (kind, doctorId, date, sequence) it produces a
// string unique within (kind, doctorId, date). The engine treats the
// result as opaque; callers obtain the sequence number from a Sequencer
// (typically the store package, backed by a per-(kind,doctorId,date)
// counter row) and format it here.
package naming

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the entity the display id names.
type Kind string

const (
	KindToken Kind = "T"
	KindSlot  Kind = "S"
)

// Sequencer hands out the next sequence number for (kind, doctorID, date).
// Implementations must make Next race-free under concurrent callers within
// the same (doctorID, date) scope; the store package satisfies this with
// an atomic upsert against a sequence table inside the caller's
// transaction.
type Sequencer interface {
	Next(ctx context.Context, kind Kind, doctorID uuid.UUID, date time.Time) (int, error)
}

// Format renders (kind, date, sequence) into the opaque display id, e.g.
// "T-20260806-0007" for the seventh token created against a doctor on
// 2026-08-06.
func Format(kind Kind, date time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", kind, date.Format("20060102"), seq)
}
