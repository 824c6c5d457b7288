package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opdflow/token-engine/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := store.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 20)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedSlots(context.Background(), pool, doctorIDs); err != nil {
		log.Fatalf("seed slots: %v", err)
	}
	if err := seedTokens(context.Background(), pool, doctorIDs, 500); err != nil {
		log.Fatalf("seed tokens: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.LastName()

		if _, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, is_active) VALUES ($1, $2, true)
		`, id, name); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

// seedSlots lays down four appointment slots per doctor for today, matching
// a plausible OPD day: 09-10, 10-11, 11-12, 14-15, with modest capacities
// and an occasional paid sub-cap so createToken's admissibility rule has
// something to bite on.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	log.Printf("seeding slots for %d doctors", len(doctorIDs))

	today := time.Now().Truncate(24 * time.Hour)
	windows := [][2]int{{9, 10}, {10, 11}, {11, 12}, {14, 15}}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctorID := range doctorIDs {
		for i, w := range windows {
			slotID := uuid.New()
			displayID := "S-" + today.Format("20060102") + "-" + uuid.New().String()[:4]
			start := time.Date(today.Year(), today.Month(), today.Day(), w[0], 0, 0, 0, today.Location())
			end := time.Date(today.Year(), today.Month(), today.Day(), w[1], 0, 0, 0, today.Location())

			var paidCap any
			if i == 0 {
				paidCap = 2
			}

			if _, err := tx.Exec(ctx, `
				INSERT INTO appointment_slots
					(id, display_id, doctor_id, date, start_time, end_time, capacity, paid_cap, follow_up_cap, is_active)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, true)
			`, slotID, displayID, doctorID, today, start, end, 6, paidCap); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("slots seeded")
	return nil
}

// seedTokens leaves every seeded token WAITING and uncreated-through-the-
// engine: it is a raw fixture for exercising createToken/backfill by hand,
// not a replacement for the engine's own idempotency and allocation logic.
func seedTokens(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d waiting tokens", count)

	sources := []string{"WALKIN", "ONLINE"}
	priorities := []int{2, 3, 4, 5} // PAID, FOLLOWUP, ONLINE, WALKIN — EMERGENCY left for manual demo

	today := time.Now().Truncate(24 * time.Hour)

	const batchSize = 250
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			doctorID := doctorIDs[gofakeit.Number(0, len(doctorIDs)-1)]
			tokenID := uuid.New()
			displayID := "T-" + today.Format("20060102") + "-" + uuid.New().String()[:6]
			source := sources[gofakeit.Number(0, len(sources)-1)]
			priority := priorities[gofakeit.Number(0, len(priorities)-1)]

			if _, err := tx.Exec(ctx, `
				INSERT INTO tokens
					(id, display_id, idempotency_key, doctor_id, date, patient_name, source, priority, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'WAITING')
			`, tokenID, displayID, tokenID.String(), doctorID, today, gofakeit.Name(), source, priority); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("tokens seeded: %d/%d", end, count)
	}

	log.Println("tokens seeded")
	return nil
}
