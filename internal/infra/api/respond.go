package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"neunovapdf-backend/internal/domain"
	"neunovapdf-backend/internal/infra/logging"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps a pipeline error onto an HTTP status and client message.
func statusFor(err error) (int, string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Msg
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, domain.ErrPayloadTooLarge.Error()
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, domain.ErrQuotaExceeded.Error()
	case errors.Is(err, domain.ErrBusy):
		return http.StatusServiceUnavailable, domain.ErrBusy.Error()
	case errors.Is(err, domain.ErrFilesystem):
		return http.StatusInternalServerError, domain.ErrFilesystem.Error()
	case errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrToolFailure):
		return http.StatusServiceUnavailable, "request timed out"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (s *Server) fail(ctx context.Context, w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status >= 500 {
		logging.With(ctx, s.log).Error().Err(err).Int("status", status).Msg("request failed")
	}
	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "5")
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", "3600")
	}
	writeError(w, status, msg)
}
