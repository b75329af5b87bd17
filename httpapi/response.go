package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/aryangodara/secure_gate/gate"
)

const (
	categoryUnexpected = "Error"
	unexpectedMessage  = "An unexpected error occurred. Please try again."
)

type errorResponse struct {
	Category          string   `json:"category"`
	Message           string   `json:"message"`
	Details           []string `json:"details,omitempty"`
	RetryAfterSeconds int      `json:"retry_after_seconds,omitempty"`
}

func statusFor(e *gate.Error) int {
	switch {
	case errors.Is(e.Kind, gate.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(e.Kind, gate.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(e.Kind, gate.ErrAuthentication), errors.Is(e.Kind, gate.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(e.Kind, gate.ErrRegistration):
		if e.Status == http.StatusConflict || e.Status == http.StatusUnprocessableEntity {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case errors.Is(e.Kind, gate.ErrAuthorization):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var gateErr *gate.Error
	if !errors.As(err, &gateErr) {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Category: categoryUnexpected,
			Message:  unexpectedMessage,
		})
		return
	}

	resp := errorResponse{
		Category: gateErr.Category,
		Message:  gateErr.Message,
		Details:  gateErr.Details,
	}
	status := statusFor(gateErr)
	if status == http.StatusTooManyRequests {
		seconds := int(math.Ceil(gateErr.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		resp.RetryAfterSeconds = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response body", slog.Any("error", err))
	}
}
