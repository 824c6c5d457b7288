package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/opdflow/token-engine/internal/allocation"
	"github.com/opdflow/token-engine/internal/apperr"
	"github.com/opdflow/token-engine/internal/domain"
	"github.com/opdflow/token-engine/internal/engine"
)

func createTokenHandler(eng Engine, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}

		var req CreateTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := v.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be DD-MM-YYYY")
			return
		}
		if date.Before(time.Now().Truncate(24 * time.Hour)) {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must not be in the past")
			return
		}

		priority, ok := domain.ParsePriority(req.Priority)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_priority", "priority is not a recognized value")
			return
		}

		in := engine.CreateTokenInput{
			IdempotencyKey: req.IdempotencyKey,
			DoctorID:       doctorID,
			Date:           date,
			PatientName:    req.PatientName,
			Phone:          req.Phone,
			Age:            req.Age,
			Notes:          req.Notes,
			Source:         domain.Source(req.Source),
			Priority:       priority,
		}

		result, err := eng.CreateToken(r.Context(), in)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		resp := CreateTokenResponse{
			Token:     tokenToResponse(result.Token),
			Displaced: tokensToResponse(result.Displaced),
			Message:   result.Message,
		}
		if result.Slot != nil {
			sr := slotToResponse(result.Slot)
			resp.Slot = &sr
		}
		if resp.Displaced == nil {
			resp.Displaced = []TokenResponse{}
		}

		status := http.StatusCreated
		if result.Idempotent {
			status = http.StatusOK
		}
		writeJSON(w, status, resp)
	}
}

func cancelTokenHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_token_id", "id must be a valid UUID")
			return
		}

		result, err := eng.CancelToken(r.Context(), id)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelResponse{
			Cancelled: tokenToResponse(result.Token),
			Promoted:  outcomesToResponse(result.Promoted),
			Message:   result.Message,
		})
	}
}

func noShowHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_token_id", "id must be a valid UUID")
			return
		}

		result, err := eng.MarkNoShow(r.Context(), id)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelResponse{
			Cancelled: tokenToResponse(result.Token),
			Promoted:  outcomesToResponse(result.Promoted),
			Message:   result.Message,
		})
	}
}

func completeTokenHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_token_id", "id must be a valid UUID")
			return
		}

		result, err := eng.CompleteToken(r.Context(), id)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CompleteResponse{Token: tokenToResponse(result.Token)})
	}
}

func expireWaitingHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}

		date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be DD-MM-YYYY")
			return
		}

		count, err := eng.ExpireWaiting(r.Context(), doctorID, date)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ExpireResponse{Count: count})
	}
}

func slotAvailabilityHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}

		date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be DD-MM-YYYY")
			return
		}

		slots, err := eng.SlotAvailability(r.Context(), doctorID, date)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		resp := make([]SlotResponse, len(slots))
		for i, s := range slots {
			resp[i] = slotToResponse(s)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func waitingListHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}

		date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be DD-MM-YYYY")
			return
		}

		tokens, err := eng.WaitingList(r.Context(), doctorID, date)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, tokensToResponse(tokens))
	}
}

func getTokenHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_token_id", "id must be a valid UUID")
			return
		}

		token, err := eng.GetToken(r.Context(), id)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, tokenToResponse(token))
	}
}

// outcomesToResponse flattens the promoted allocation.Outcome list from a
// cancel/no-show backfill into the tokens that actually landed in a slot.
func outcomesToResponse(outcomes []*allocation.Outcome) []TokenResponse {
	resp := make([]TokenResponse, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Allocated {
			resp = append(resp, tokenToResponse(o.Token))
		}
	}
	return resp
}

// handleEngineError maps an apperr.Kind to an HTTP status and error code,
// generalizing the teacher's handleCreateError/handleConfirmError
// errors.Is-chain dispatch into a single Kind-keyed switch.
func handleEngineError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	switch ae.Kind {
	case apperr.KindDoctorNotFound:
		writeError(w, http.StatusNotFound, "doctor_not_found", ae.Message)
	case apperr.KindTokenNotFound:
		writeError(w, http.StatusNotFound, "token_not_found", ae.Message)
	case apperr.KindInvalidStatus:
		writeError(w, http.StatusConflict, "invalid_status", ae.Message)
	case apperr.KindAlreadyCancelled:
		writeError(w, http.StatusConflict, "already_cancelled", ae.Message)
	case apperr.KindCannotCancelCompleted:
		writeError(w, http.StatusConflict, "cannot_cancel_completed", ae.Message)
	case apperr.KindStorageConflict:
		writeError(w, http.StatusConflict, "storage_conflict", ae.Message)
	case apperr.KindStorageUnavailable:
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", ae.Message)
	case apperr.KindInvalidInput:
		writeError(w, http.StatusBadRequest, "invalid_input", ae.Message)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", ae.Message)
	}
}

// writeJSON and writeError complete the teacher's handlers.go, which
// referenced both but defined neither.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
