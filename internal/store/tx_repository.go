package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opdflow/token-engine/internal/audit"
	"github.com/opdflow/token-engine/internal/domain"
	"github.com/opdflow/token-engine/internal/naming"
)

// txRepository implements store.Repository against one open pgx.Tx. It is
// constructed fresh per transaction by PgStore.RunTx and must not outlive
// that transaction.
type txRepository struct {
	tx pgx.Tx
}

const slotColumns = `id, display_id, doctor_id, date, start_time, end_time, capacity, paid_cap, follow_up_cap, is_active, created_at, updated_at`
const tokenColumns = `id, display_id, idempotency_key, doctor_id, date, patient_name, phone, age, notes, source, priority, status, slot_id, created_at, allocated_at, completed_at, cancelled_at`

// --- allocation.Repository ---

func (r *txRepository) ActiveFutureSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]*domain.Slot, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+slotColumns+`
		FROM appointment_slots
		WHERE doctor_id = $1 AND date = $2 AND is_active = true AND end_time > $3
		ORDER BY start_time ASC
	`, doctorID, date, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *txRepository) AllocatedTokensInSlot(ctx context.Context, slotID uuid.UUID) ([]*domain.Token, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE slot_id = $1 AND status = $2
	`, slotID, domain.StatusAllocated)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) WaitingTokens(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Token, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE doctor_id = $1 AND date = $2 AND status = $3
	`, doctorID, date, domain.StatusWaiting)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) SaveToken(ctx context.Context, token *domain.Token) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE tokens SET
			status = $2,
			slot_id = $3,
			allocated_at = $4,
			completed_at = $5,
			cancelled_at = $6
		WHERE id = $1
	`, token.ID, token.Status, slotIDParam(token.SlotID), token.AllocatedAt, token.CompletedAt, token.CancelledAt)
	if err != nil {
		return fmt.Errorf("update token %s: %w", token.ID, err)
	}
	return nil
}

// --- audit.Sink ---

func (r *txRepository) RecordEvent(ctx context.Context, ev audit.Event) error {
	payload, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = r.tx.Exec(ctx, `
		INSERT INTO audit_events (event_type, token_id, slot_id, doctor_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.Type, ev.TokenID, ev.SlotID, ev.DoctorID, payload, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit event %s: %w", ev.Type, err)
	}
	return nil
}

// --- naming.Sequencer ---

func (r *txRepository) Next(ctx context.Context, kind naming.Kind, doctorID uuid.UUID, date time.Time) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `
		INSERT INTO display_sequences (kind, doctor_id, date, seq)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (kind, doctor_id, date)
		DO UPDATE SET seq = display_sequences.seq + 1
		RETURNING seq
	`, string(kind), doctorID, date).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next display sequence: %w", err)
	}
	return seq, nil
}

// --- operation-specific reads/writes ---

func (r *txRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*domain.Doctor, error) {
	var d domain.Doctor
	err := r.tx.QueryRow(ctx, `SELECT id, name, is_active FROM doctors WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.IsActive)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *txRepository) GetToken(ctx context.Context, id uuid.UUID) (*domain.Token, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id)
	return scanToken(row)
}

func (r *txRepository) GetSlot(ctx context.Context, id uuid.UUID) (*domain.Slot, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM appointment_slots WHERE id = $1`, id)
	return scanSlot(row)
}

func (r *txRepository) FindTokenByIdempotencyKey(ctx context.Context, key string) (*domain.Token, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE idempotency_key = $1`, key)
	t, err := scanToken(row)
	if err != nil {
		if err == ErrTokenNotFound {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *txRepository) InsertToken(ctx context.Context, token *domain.Token) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO tokens (id, display_id, idempotency_key, doctor_id, date, patient_name, phone, age, notes, source, priority, status, slot_id, created_at, allocated_at, completed_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		token.ID, token.DisplayID, token.IdempotencyKey, token.DoctorID, token.Date, token.PatientName,
		token.Phone, token.Age, token.Notes, token.Source, token.Priority, token.Status,
		slotIDParam(token.SlotID), token.CreatedAt, token.AllocatedAt, token.CompletedAt, token.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("insert token %s: %w", token.ID, err)
	}
	return nil
}

func (r *txRepository) LockDateScope(ctx context.Context, doctorID uuid.UUID, date time.Time) error {
	if _, err := r.tx.Exec(ctx, `
		SELECT id FROM appointment_slots WHERE doctor_id = $1 AND date = $2 FOR UPDATE
	`, doctorID, date); err != nil {
		return fmt.Errorf("lock slots for %s/%s: %w", doctorID, date, err)
	}
	if _, err := r.tx.Exec(ctx, `
		SELECT id FROM tokens
		WHERE doctor_id = $1 AND date = $2 AND status IN ($3, $4)
		FOR UPDATE
	`, doctorID, date, domain.StatusAllocated, domain.StatusWaiting); err != nil {
		return fmt.Errorf("lock tokens for %s/%s: %w", doctorID, date, err)
	}
	return nil
}

func (r *txRepository) LockTokenAndSlot(ctx context.Context, tokenID uuid.UUID) (*domain.Token, *domain.Slot, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1 FOR UPDATE`, tokenID)
	token, err := scanToken(row)
	if err != nil {
		return nil, nil, err
	}

	if token.SlotID == nil {
		return token, nil, nil
	}

	slotRow := r.tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM appointment_slots WHERE id = $1 FOR UPDATE`, *token.SlotID)
	slot, err := scanSlot(slotRow)
	if err != nil {
		return nil, nil, err
	}
	return token, slot, nil
}

func (r *txRepository) BulkExpireWaiting(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE tokens
		SET status = $3, slot_id = NULL
		WHERE doctor_id = $1 AND date = $2 AND status = $4
	`, doctorID, date, domain.StatusExpired, domain.StatusWaiting)
	if err != nil {
		return 0, fmt.Errorf("bulk expire waiting tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *txRepository) SlotAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Slot, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+slotColumns+`
		FROM appointment_slots
		WHERE doctor_id = $1 AND date = $2 AND is_active = true
		ORDER BY start_time ASC
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *txRepository) WaitingList(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Token, error) {
	return r.WaitingTokens(ctx, doctorID, date)
}
