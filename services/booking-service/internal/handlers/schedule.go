package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/service"
)

type ScheduleHandler struct {
	svc    *service.ScheduleService
	logger *slog.Logger
}

func NewScheduleHandler(svc *service.ScheduleService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{svc: svc, logger: logger}
}

type ruleResponse struct {
	ID                  string         `json:"id"`
	ProviderID          string         `json:"provider_id"`
	Kind                model.RuleKind `json:"kind"`
	Weekday             *int           `json:"weekday,omitempty"`
	Date                string         `json:"date,omitempty"`
	StartTime           string         `json:"start_time"`
	EndTime             string         `json:"end_time"`
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
	model.Limits
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

func toRuleResponse(r model.AvailabilityRule) ruleResponse {
	out := ruleResponse{
		ID:                  r.ID,
		ProviderID:          r.ProviderID,
		Kind:                r.Kind,
		StartTime:           r.StartTime.String(),
		EndTime:             r.EndTime.String(),
		SlotDurationMinutes: r.SlotDurationMinutes,
		Limits:              r.Limits,
		Metadata:            r.Metadata,
		CreatedAt:           formatTime(r.CreatedAt),
		UpdatedAt:           formatTime(r.UpdatedAt),
	}
	if r.Weekday != nil {
		wd := int(*r.Weekday)
		out.Weekday = &wd
	}
	if r.Date != nil {
		out.Date = r.Date.Format(model.DateLayout)
	}
	return out
}

type exceptionResponse struct {
	ID                  string              `json:"id"`
	ProviderID          string              `json:"provider_id"`
	Date                string              `json:"date"`
	Kind                model.ExceptionKind `json:"kind"`
	StartTime           string              `json:"start_time,omitempty"`
	EndTime             string              `json:"end_time,omitempty"`
	SlotDurationMinutes *int                `json:"slot_duration_minutes,omitempty"`
	Reason              string              `json:"reason,omitempty"`
	CreatedAt           string              `json:"created_at"`
	UpdatedAt           string              `json:"updated_at"`
}

func toExceptionResponse(e model.AvailabilityException) exceptionResponse {
	out := exceptionResponse{
		ID:                  e.ID,
		ProviderID:          e.ProviderID,
		Date:                e.Date.Format(model.DateLayout),
		Kind:                e.Kind,
		SlotDurationMinutes: e.SlotDurationMinutes,
		Reason:              e.Reason,
		CreatedAt:           formatTime(e.CreatedAt),
		UpdatedAt:           formatTime(e.UpdatedAt),
	}
	if e.StartTime != nil {
		out.StartTime = e.StartTime.String()
	}
	if e.EndTime != nil {
		out.EndTime = e.EndTime.String()
	}
	return out
}

// Rules serves GET (list by provider_id) and POST (create).
func (h *ScheduleHandler) Rules(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodGet {
		rules, err := h.svc.ListRules(r.Context(), strings.TrimSpace(r.URL.Query().Get("provider_id")))
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		items := make([]ruleResponse, 0, len(rules))
		for _, rule := range rules {
			items = append(items, toRuleResponse(rule))
		}
		writeJSON(w, http.StatusOK, items)
		return
	}

	var in service.RuleInput
	if !decodeBody(w, r, &in) {
		return
	}
	rule, err := h.svc.CreateRule(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResponse(rule))
}

// RuleItem serves GET, PUT and DELETE for ?id=.
func (h *ScheduleHandler) RuleItem(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPut, http.MethodDelete) {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		rule, err := h.svc.GetRule(r.Context(), id)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toRuleResponse(rule))
	case http.MethodPut:
		var in service.RuleInput
		if !decodeBody(w, r, &in) {
			return
		}
		rule, err := h.svc.UpdateRule(r.Context(), id, in)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toRuleResponse(rule))
	case http.MethodDelete:
		if err := h.svc.DeleteRule(r.Context(), id); err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *ScheduleHandler) Exceptions(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodGet {
		exceptions, err := h.svc.ListExceptions(r.Context(), strings.TrimSpace(r.URL.Query().Get("provider_id")))
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		items := make([]exceptionResponse, 0, len(exceptions))
		for _, e := range exceptions {
			items = append(items, toExceptionResponse(e))
		}
		writeJSON(w, http.StatusOK, items)
		return
	}

	var in service.ExceptionInput
	if !decodeBody(w, r, &in) {
		return
	}
	e, err := h.svc.CreateException(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExceptionResponse(e))
}

func (h *ScheduleHandler) ExceptionItem(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPut, http.MethodDelete) {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		e, err := h.svc.GetException(r.Context(), id)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toExceptionResponse(e))
	case http.MethodPut:
		var in service.ExceptionInput
		if !decodeBody(w, r, &in) {
			return
		}
		e, err := h.svc.UpdateException(r.Context(), id, in)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toExceptionResponse(e))
	case http.MethodDelete:
		if err := h.svc.DeleteException(r.Context(), id); err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
