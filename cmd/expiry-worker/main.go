package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/opdflow/token-engine/internal/clock"
	"github.com/opdflow/token-engine/internal/config"
	"github.com/opdflow/token-engine/internal/engine"
	"github.com/opdflow/token-engine/internal/lock"
	"github.com/opdflow/token-engine/internal/store"
)

func main() {
	log, _ := zap.NewProduction()
	defer func() { _ = log.Sync() }()

	log.Info("expiry-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load error", zap.Error(err))
	}
	log.Info("running expiry worker", zap.String("env", cfg.Env), zap.Duration("interval", cfg.WorkerInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := store.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := lock.NewClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		log.Fatal("invalid CLINIC_TIMEZONE", zap.Error(err))
	}

	st := store.NewPgStore(pgPool)
	locker := lock.New(rdb, cfg.LockTTL)
	clk := clock.NewReal(loc)
	eng := engine.New(st, locker, clk, log, cfg.TxDeadline)

	runOnce(rootCtx, st, eng, clk, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, st, eng, clk, log)
		}
	}
}

// runOnce sweeps every active doctor and expires that doctor's WAITING
// tokens for the previous calendar day in the clock's location, so a day's
// waiting queue is only expired once that day is over. One engine call per
// doctor: the allocation lock and the transaction are both scoped to
// (doctorId, date), so a single sweep cannot be expressed as one call
// across doctors.
func runOnce(ctx context.Context, st store.Store, eng *engine.Engine, clk clock.Clock, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()
	now := clk.Now()
	day := time.Date(now.Year(), now.Month(), now.Day()-1, 0, 0, 0, 0, now.Location())

	doctorIDs, err := st.ActiveDoctorIDs(runCtx)
	if err != nil {
		log.Error("expiry run: load active doctors failed", zap.Error(err))
		return
	}

	var total int
	for _, doctorID := range doctorIDs {
		count, err := eng.ExpireWaiting(runCtx, doctorID, day)
		if err != nil {
			log.Error("expiry run: doctor sweep failed", zap.String("doctor_id", doctorID.String()), zap.Error(err))
			continue
		}
		total += count
	}

	log.Info("expiry run complete", zap.Int("expired", total), zap.Duration("took", time.Since(start)))
}
