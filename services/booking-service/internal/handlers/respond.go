package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
)

type errorBody struct {
	Error   apperr.Kind    `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindBookingNotFound, apperr.KindRuleNotFound, apperr.KindExceptionNotFound:
		return http.StatusNotFound
	case apperr.KindBookingOverlap, apperr.KindSlotNotAvailable, apperr.KindDailyLimitReached,
		apperr.KindClientDailyLimitReached, apperr.KindInvalidStatusTransition:
		return http.StatusConflict
	case apperr.KindInvalidTimeRange, apperr.KindBookingInPast, apperr.KindInvalidDurationForSlot,
		apperr.KindMaxDurationExceeded, apperr.KindBookingTooClose:
		return http.StatusUnprocessableEntity
	case apperr.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders domain errors with their kind and arguments. Anything else is logged and hidden.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		msg := e.Message
		if msg == "" {
			msg = string(e.Kind)
		}
		writeJSON(w, statusFor(e.Kind), errorBody{Error: e.Kind, Message: msg, Details: e.Args})
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("request timed out", "err", err)
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: apperr.KindInternal, Message: "request timed out"})
		return
	}
	logger.Error("request failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: apperr.KindInternal, Message: "internal error"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

// parseInstant accepts RFC3339 or a bare date, read as midnight in loc.
func parseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return model.ParseDate(s, loc)
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
