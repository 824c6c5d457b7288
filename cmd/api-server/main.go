package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/opdflow/token-engine/internal/api"
	"github.com/opdflow/token-engine/internal/clock"
	"github.com/opdflow/token-engine/internal/config"
	"github.com/opdflow/token-engine/internal/engine"
	"github.com/opdflow/token-engine/internal/lock"
	"github.com/opdflow/token-engine/internal/store"
)

const version = "dev"

func main() {
	log, _ := zap.NewProduction()
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load error", zap.Error(err))
	}
	log.Info("loaded config", zap.String("env", cfg.Env), zap.String("http_port", cfg.HTTPPort))

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

	router := api.NewRouter(api.RouterConfig{
		Engine:  eng,
		PgPool:  pgPool,
		Redis:   rdb,
		Log:     log,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
