package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/service"
)

type AvailabilityHandler struct {
	svc    *service.AvailabilityService
	logger *slog.Logger
}

func NewAvailabilityHandler(svc *service.AvailabilityService, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc, logger: logger}
}

type slotItem struct {
	Time    string `json:"time"`
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
}

func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if providerID == "" || dateStr == "" {
		http.Error(w, "provider_id and date are required", http.StatusBadRequest)
		return
	}
	date, err := model.ParseDate(dateStr, h.svc.Location())
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	slots, err := h.svc.GetSlotsForDay(r.Context(), providerID, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{Time: s.Time(), StartAt: formatTime(s.Start), EndAt: formatTime(s.End)})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AvailabilityHandler) Days(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return
	}
	daysAhead := 30
	if raw := strings.TrimSpace(r.URL.Query().Get("days_ahead")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid days_ahead", http.StatusBadRequest)
			return
		}
		daysAhead = n
	}

	days, err := h.svc.GetAvailableDays(r.Context(), providerID, daysAhead)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.Format(model.DateLayout))
	}
	writeJSON(w, http.StatusOK, out)
}
