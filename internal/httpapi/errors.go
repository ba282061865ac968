package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/mcpvariance/internal/runtime"
	"github.com/vinodismyname/mcpvariance/internal/variance"
	"github.com/vinodismyname/mcpvariance/pkg/mcperr"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, variance.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, variance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, variance.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, variance.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, variance.ErrSchema), errors.Is(err, variance.ErrType),
		errors.Is(err, variance.ErrMappingInvalid), errors.Is(err, variance.ErrMappingUndetermined):
		return http.StatusUnprocessableEntity
	case errors.Is(err, runtime.ErrWorkspaceLimit):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := mcperr.CodeFor(err, mcperr.AnalysisFailed)
	switch {
	case errors.Is(err, errBadRequest):
		code = mcperr.Validation
	case errors.Is(err, runtime.ErrWorkspaceLimit):
		code = mcperr.LimitExceeded
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		msg = "internal error: " + msg
	} else {
		zerolog.Ctx(r.Context()).Warn().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: string(code), Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
