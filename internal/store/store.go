package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opdflow/token-engine/internal/allocation"
	"github.com/opdflow/token-engine/internal/apperr"
	"github.com/opdflow/token-engine/internal/audit"
	"github.com/opdflow/token-engine/internal/domain"
	"github.com/opdflow/token-engine/internal/naming"
)

// ErrTokenNotFound, ErrDoctorNotFound mirror the teacher's flat sentinels;
// repository callers translate them into apperr.Kind at the engine layer
// where more context (e.g. "doctor" vs "token") is known.
var (
	ErrTokenNotFound  = errors.New("token not found")
	ErrDoctorNotFound = errors.New("doctor not found")
	ErrSlotNotFound   = errors.New("slot not found")
)

// Repository is everything the engine needs from storage inside one
// transaction: the allocation.Repository port, the audit.Sink port, the
// naming.Sequencer port, and the operation-specific reads/writes that
// don't belong to any of those (idempotency lookup, row locking,
// bulk expiry).
type Repository interface {
	allocation.Repository
	audit.Sink
	naming.Sequencer

	GetDoctor(ctx context.Context, id uuid.UUID) (*domain.Doctor, error)
	GetToken(ctx context.Context, id uuid.UUID) (*domain.Token, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*domain.Slot, error)
	FindTokenByIdempotencyKey(ctx context.Context, key string) (*domain.Token, error)
	InsertToken(ctx context.Context, token *domain.Token) error

	// LockDateScope takes row locks (SELECT ... FOR UPDATE) on every slot
	// for (doctorID, date) and on every token currently ALLOCATED or
	// WAITING for (doctorID, date). It discards the rows; its only purpose
	// is to hold the locks for the remainder of the transaction so the
	// plain reads allocate()/backfill() issue afterward see a consistent,
	// contention-free snapshot.
	LockDateScope(ctx context.Context, doctorID uuid.UUID, date time.Time) error

	// LockTokenAndSlot locks the token row, and if it is currently
	// ALLOCATED, also locks its slot row. slot is nil when the token is
	// not allocated.
	LockTokenAndSlot(ctx context.Context, tokenID uuid.UUID) (token *domain.Token, slot *domain.Slot, err error)

	// BulkExpireWaiting transitions every WAITING token for (doctorID,
	// date) to EXPIRED and returns the count affected.
	BulkExpireWaiting(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)

	// SlotAvailability and WaitingList are read-only projections; not part
	// of the hard core, but convenient to expose from the same port.
	SlotAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Slot, error)
	WaitingList(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Token, error)
}

// TxFunc is the body of one transactional operation.
type TxFunc func(ctx context.Context, repo Repository) error

// Store runs a TxFunc inside one ACID transaction, retrying on storage
// conflicts per spec 4.11 and 7.
type Store interface {
	RunTx(ctx context.Context, fn TxFunc) error

	// TokenScope is a cheap, lock-free lookup of a token's (doctorID, date)
	// used only to pick the allocation lock key before opening the
	// transaction that will authoritatively re-read and lock the row.
	TokenScope(ctx context.Context, id uuid.UUID) (doctorID uuid.UUID, date time.Time, err error)

	// ActiveDoctorIDs lists every active doctor, for the expiry worker's
	// per-doctor sweep. Lock-free; callers re-check IsActive inside the
	// transaction if it matters to them.
	ActiveDoctorIDs(ctx context.Context) ([]uuid.UUID, error)
}

const maxAttempts = 3

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) RunTx(ctx context.Context, fn TxFunc) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		if attempt < maxAttempts {
			backoff := time.Duration(attempt*attempt) * 10 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return apperr.Wrap(apperr.KindStorageConflict, ctx.Err(), "transaction aborted while backing off")
			}
		}
	}
	return apperr.Wrap(apperr.KindStorageConflict, lastErr, fmt.Sprintf("storage conflict persisted after %d attempts", maxAttempts))
}

func (s *PgStore) runOnce(ctx context.Context, fn TxFunc) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, err, "begin transaction")
	}

	repo := &txRepository{tx: tx}

	if err := fn(ctx, repo); err != nil {
		_ = tx.Rollback(ctx)
		return classifyConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPgError(err)
	}
	return nil
}

// isRetryable reports whether err represents a storage conflict the
// orchestrator should retry, rather than a business-rule failure that
// should surface immediately (spec 4.11: business-rule failures are
// reported, not retried).
func isRetryable(err error) bool {
	return apperr.Is(err, apperr.KindStorageConflict)
}

// classifyConflict tags err as KindStorageConflict when it wraps a
// serialization-failure or deadlock SQLSTATE, the case a mid-transaction
// statement hits most often: the row locks LockDateScope/LockTokenAndSlot
// take with SELECT ... FOR UPDATE are exactly where deadlock_detected
// surfaces, not just on commit. Unlike classifyPgError, it leaves err
// untouched when no such code is found, since fn's error is just as
// likely a business-rule *apperr.Error the engine already tagged, which
// must reach isRetryable unchanged.
func classifyConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return apperr.Wrap(apperr.KindStorageConflict, err, "serialization conflict")
		}
	}
	return err
}

func (s *PgStore) TokenScope(ctx context.Context, id uuid.UUID) (uuid.UUID, time.Time, error) {
	var doctorID uuid.UUID
	var date time.Time
	err := s.pool.QueryRow(ctx, `SELECT doctor_id, date FROM tokens WHERE id = $1`, id).Scan(&doctorID, &date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, time.Time{}, ErrTokenNotFound
		}
		return uuid.Nil, time.Time{}, err
	}
	return doctorID, date, nil
}

func (s *PgStore) ActiveDoctorIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM doctors WHERE is_active = true`)
	if err != nil {
		return nil, fmt.Errorf("query active doctors: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan doctor id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return apperr.Wrap(apperr.KindStorageConflict, err, "serialization conflict")
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.KindStorageUnavailable, err, "transaction deadline exceeded")
	}
	return apperr.Wrap(apperr.KindStorageUnavailable, err, "commit transaction")
}
