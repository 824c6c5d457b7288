package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opdflow/token-engine/internal/allocation"
	"github.com/opdflow/token-engine/internal/apperr"
	"github.com/opdflow/token-engine/internal/domain"
	"github.com/opdflow/token-engine/internal/engine"
)

// fakeEngine implements the Engine interface for handler tests; each field
// is a closure the test sets to control the response.
type fakeEngine struct {
	createFn func(ctx context.Context, in engine.CreateTokenInput) (*engine.CreateTokenResult, error)
	cancelFn func(ctx context.Context, id uuid.UUID) (*engine.CancelResult, error)
	noShowFn func(ctx context.Context, id uuid.UUID) (*engine.NoShowResult, error)
	completeFn func(ctx context.Context, id uuid.UUID) (*engine.CompleteResult, error)
	expireFn func(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
	getFn func(ctx context.Context, id uuid.UUID) (*domain.Token, error)
	slotsFn func(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Slot, error)
	waitingFn func(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Token, error)
}

func (f *fakeEngine) CreateToken(ctx context.Context, in engine.CreateTokenInput) (*engine.CreateTokenResult, error) {
	return f.createFn(ctx, in)
}
func (f *fakeEngine) CancelToken(ctx context.Context, id uuid.UUID) (*engine.CancelResult, error) {
	return f.cancelFn(ctx, id)
}
func (f *fakeEngine) MarkNoShow(ctx context.Context, id uuid.UUID) (*engine.NoShowResult, error) {
	return f.noShowFn(ctx, id)
}
func (f *fakeEngine) CompleteToken(ctx context.Context, id uuid.UUID) (*engine.CompleteResult, error) {
	return f.completeFn(ctx, id)
}
func (f *fakeEngine) ExpireWaiting(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	return f.expireFn(ctx, doctorID, date)
}
func (f *fakeEngine) GetToken(ctx context.Context, id uuid.UUID) (*domain.Token, error) {
	return f.getFn(ctx, id)
}
func (f *fakeEngine) SlotAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Slot, error) {
	return f.slotsFn(ctx, doctorID, date)
}
func (f *fakeEngine) WaitingList(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*domain.Token, error) {
	return f.waitingFn(ctx, doctorID, date)
}

func newTestToken(doctorID uuid.UUID) *domain.Token {
	return &domain.Token{
		ID:          uuid.New(),
		DisplayID:   "T-0001",
		DoctorID:    doctorID,
		Date:        time.Now(),
		PatientName: "Jane Doe",
		Source:      domain.SourceWalkIn,
		Priority:    domain.PriorityWalkIn,
		Status:      domain.StatusWaiting,
		CreatedAt:   time.Now(),
	}
}

func routerWith(eng Engine) http.Handler {
	r := chi.NewRouter()
	v := validator.New()
	r.Post("/doctors/{doctorId}/tokens", createTokenHandler(eng, v))
	r.Post("/tokens/{id}/cancel", cancelTokenHandler(eng))
	r.Post("/tokens/{id}/no-show", noShowHandler(eng))
	r.Post("/tokens/{id}/complete", completeTokenHandler(eng))
	r.Post("/doctors/{doctorId}/expire", expireWaitingHandler(eng))
	r.Get("/doctors/{doctorId}/slots", slotAvailabilityHandler(eng))
	r.Get("/doctors/{doctorId}/waiting", waitingListHandler(eng))
	r.Get("/tokens/{id}", getTokenHandler(eng))
	return r
}

func TestCreateTokenHandler_Success(t *testing.T) {
	doctorID := uuid.New()
	token := newTestToken(doctorID)
	eng := &fakeEngine{
		createFn: func(ctx context.Context, in engine.CreateTokenInput) (*engine.CreateTokenResult, error) {
			assert.Equal(t, doctorID, in.DoctorID)
			assert.Equal(t, "idem-1", in.IdempotencyKey)
			return &engine.CreateTokenResult{Token: token, Message: "allocated"}, nil
		},
	}

	body := `{"idempotency_key":"idem-1","date":"06-08-2099","patient_name":"Jane Doe","source":"WALKIN","priority":"WALKIN"}`
	req := httptest.NewRequest(http.MethodPost, "/doctors/"+doctorID.String()+"/tokens", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	routerWith(eng).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp CreateTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, token.ID, resp.Token.ID)
	assert.Equal(t, "allocated", resp.Message)
	assert.Empty(t, resp.Displaced)
}

func TestCreateTokenHandler_IdempotentReplayReturns200(t *testing.T) {
	doctorID := uuid.New()
	token := newTestToken(doctorID)
	eng := &fakeEngine{
		createFn: func(ctx context.Context, in engine.CreateTokenInput) (*engine.CreateTokenResult, error) {
			return &engine.CreateTokenResult{Token: token, Idempotent: true}, nil
		},
	}

	body := `{"idempotency_key":"idem-1","date":"06-08-2099","patient_name":"Jane Doe","source":"WALKIN","priority":"WALKIN"}`
	req := httptest.NewRequest(http.MethodPost, "/doctors/"+doctorID.String()+"/tokens", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	routerWith(eng).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateTokenHandler_RejectsInvalidPriority(t *testing.T) {
	doctorID := uuid.New()
	eng := &fakeEngine{}

	body := `{"idempotency_key":"idem-1","date":"06-08-2026","patient_name":"Jane Doe","source":"WALKIN","priority":"NOT_REAL"}`
	req := httptest.NewRequest(http.MethodPost, "/doctors/"+doctorID.String()+"/tokens", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	routerWith(eng).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTokenHandler_RejectsPastDate(t *testing.T) {
	doctorID := uuid.New()
	eng := &fakeEngine{}

	body := `{"idempotency_key":"idem-1","date":"01-01-2000","patient_name":"Jane Doe","source":"WALKIN","priority":"WALKIN"}`
	req := httptest.NewRequest(http.MethodPost, "/doctors/"+doctorID.String()+"/tokens", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	routerWith(eng).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTokenHandler_RejectsMissingRequiredField(t *testing.T) {
	doctorID := uuid.New()
	eng := &fakeEngine{}

	body := `{"date":"06-08-2026","source":"WALKIN","priority":"WALKIN"}`
	req := httptest.NewRequest(http.MethodPost, "/doctors/"+doctorID.String()+"/tokens", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	routerWith(eng).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelTokenHandler_TranslatesApperrToStatus(t *testing.T) {
	eng := &fakeEngine{
		cancelFn: func(ctx context.Context, id uuid.UUID) (*engine.CancelResult, error) {
			return nil, apperr.New(apperr.KindAlreadyCancelled, "token already cancelled")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/tokens/"+uuid.New().String()+"/cancel", nil)
	rec := httptest.NewRecorder()
	routerWith(eng).ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "already_cancelled", errResp.Error)
}

func TestCancelTokenHandler_Success(t *testing.T) {
	doctorID := uuid.New()
	cancelled := newTestToken(doctorID)
	promotedToken := newTestToken(doctorID)
	eng := &fakeEngine{
		cancelFn: func(ctx context.Context, id uuid.UUID) (*engine.CancelResult, error) {
			return &engine.CancelResult{
				Token: cancelled,
				Promoted: []*allocation.Outcome{
					{Token: promotedToken, Allocated: true},
				},
				Message: "cancelled",
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/tokens/"+cancelled.ID.String()+"/cancel", nil)
	rec := httptest.NewRecorder()
	routerWith(eng).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, cancelled.ID, resp.Cancelled.ID)
	require.Len(t, resp.Promoted, 1)
	assert.Equal(t, promotedToken.ID, resp.Promoted[0].ID)
}

func TestGetTokenHandler_NotFound(t *testing.T) {
	eng := &fakeEngine{
		getFn: func(ctx context.Context, id uuid.UUID) (*domain.Token, error) {
			return nil, apperr.New(apperr.KindTokenNotFound, "no such token")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/tokens/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	routerWith(eng).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExpireWaitingHandler_RequiresDateQueryParam(t *testing.T) {
	doctorID := uuid.New()
	eng := &fakeEngine{}

	req := httptest.NewRequest(http.MethodPost, "/doctors/"+doctorID.String()+"/expire", nil)
	rec := httptest.NewRecorder()
	routerWith(eng).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpireWaitingHandler_Success(t *testing.T) {
	doctorID := uuid.New()
	eng := &fakeEngine{
		expireFn: func(ctx context.Context, id uuid.UUID, date time.Time) (int, error) {
			assert.Equal(t, doctorID, id)
			return 7, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/doctors/"+doctorID.String()+"/expire?date=06-08-2026", nil)
	rec := httptest.NewRecorder()
	routerWith(eng).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ExpireResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Count)
}

func TestSlotAvailabilityHandler_InvalidDoctorID(t *testing.T) {
	eng := &fakeEngine{}
	req := httptest.NewRequest(http.MethodGet, "/doctors/not-a-uuid/slots?date=06-08-2026", nil)
	rec := httptest.NewRecorder()
	routerWith(eng).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
