package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/opdflow/token-engine/internal/domain"
	"github.com/opdflow/token-engine/internal/engine"
)

// Engine is the subset of *engine.Engine the HTTP layer calls. Declared as
// an interface (rather than importing the concrete type directly into every
// handler signature) so handler tests can substitute a fake.
type Engine interface {
	CreateToken(ctx context.Context, in engine.CreateTokenInput) (*engine.CreateTokenResult, error)
	CancelToken(ctx context.Context, id uuid.UUID) (*engine.CancelResult, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*engine.NoShowResult, error)
	CompleteToken(ctx context.Context, id uuid.UUID) (*engine.CompleteResult, error)
	ExpireWaiting(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
	GetToken(ctx context.Context, id uuid.UUID) (*domain.Token, error)
	SlotAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Slot, error)
	WaitingList(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Token, error)
}

type RouterConfig struct {
	Engine  Engine
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Log     *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version, cfg.Log)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	v := validator.New()

	r.Post("/doctors/{doctorId}/tokens", createTokenHandler(cfg.Engine, v))
	r.Post("/tokens/{id}/cancel", cancelTokenHandler(cfg.Engine))
	r.Post("/tokens/{id}/no-show", noShowHandler(cfg.Engine))
	r.Post("/tokens/{id}/complete", completeTokenHandler(cfg.Engine))
	r.Post("/doctors/{doctorId}/expire", expireWaitingHandler(cfg.Engine))
	r.Get("/doctors/{doctorId}/slots", slotAvailabilityHandler(cfg.Engine))
	r.Get("/doctors/{doctorId}/waiting", waitingListHandler(cfg.Engine))
	r.Get("/tokens/{id}", getTokenHandler(cfg.Engine))

	return r
}
