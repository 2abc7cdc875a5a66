package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/service"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response that returns a booking created by an earlier request.
	ReplayedHeader = "Idempotent-Replayed"
)

type BookingHandler struct {
	svc    *service.BookingService
	loc    *time.Location
	logger *slog.Logger
}

func NewBookingHandler(svc *service.BookingService, loc *time.Location, logger *slog.Logger) *BookingHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingHandler{svc: svc, loc: loc, logger: logger}
}

type createBookingRequest struct {
	ProviderID string `json:"provider_id"`
	ClientID   string `json:"client_id"`
	ServiceID  string `json:"service_id"`
	PriceCents *int64 `json:"price_cents"`
	Notes      string `json:"notes"`
	StartAt    string `json:"start_at"`
	EndAt      string `json:"end_at"`
}

type bookingIDRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type bookingResponse struct {
	ID           string              `json:"id"`
	ProviderID   string              `json:"provider_id"`
	ClientID     string              `json:"client_id"`
	ServiceID    string              `json:"service_id,omitempty"`
	PriceCents   *int64              `json:"price_cents,omitempty"`
	Notes        string              `json:"notes,omitempty"`
	StartAt      string              `json:"start_at"`
	EndAt        string              `json:"end_at"`
	Status       model.BookingStatus `json:"status"`
	CancelledAt  string              `json:"cancelled_at,omitempty"`
	CancelReason string              `json:"cancel_reason,omitempty"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
}

func toBookingResponse(b model.Booking) bookingResponse {
	return bookingResponse{
		ID:           b.ID,
		ProviderID:   b.ProviderID,
		ClientID:     b.ClientID,
		ServiceID:    b.ServiceID,
		PriceCents:   b.PriceCents,
		Notes:        b.Notes,
		StartAt:      formatTime(b.StartAt),
		EndAt:        formatTime(b.EndAt),
		Status:       b.Status,
		CancelledAt:  formatOptionalTime(b.CancelledAt),
		CancelReason: b.CancelReason,
		CreatedAt:    formatTime(b.CreatedAt),
		UpdatedAt:    formatTime(b.UpdatedAt),
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req createBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	startAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartAt))
	if err != nil {
		http.Error(w, "invalid start_at", http.StatusBadRequest)
		return
	}
	endAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndAt))
	if err != nil {
		http.Error(w, "invalid end_at", http.StatusBadRequest)
		return
	}

	res, err := h.svc.Create(r.Context(), service.CreateBookingInput{
		ProviderID:     strings.TrimSpace(req.ProviderID),
		ClientID:       strings.TrimSpace(req.ClientID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		PriceCents:     req.PriceCents,
		Notes:          strings.TrimSpace(req.Notes),
		StartAt:        startAt,
		EndAt:          endAt,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		w.Header().Set(ReplayedHeader, "true")
		status = http.StatusOK
	}
	writeJSON(w, status, toBookingResponse(res.Booking))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, func(ctx context.Context, req bookingIDRequest) (model.Booking, error) {
		return h.svc.Cancel(ctx, req.BookingID, strings.TrimSpace(req.Reason))
	})
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, func(ctx context.Context, req bookingIDRequest) (model.Booking, error) {
		return h.svc.Complete(ctx, req.BookingID)
	})
}

func (h *BookingHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, func(ctx context.Context, req bookingIDRequest) (model.Booking, error) {
		return h.svc.MarkNoShow(ctx, req.BookingID)
	})
}

func (h *BookingHandler) changeStatus(w http.ResponseWriter, r *http.Request, apply func(context.Context, bookingIDRequest) (model.Booking, error)) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req bookingIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}
	b, err := apply(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// List returns bookings starting in [from, to). Both accept RFC3339 or YYYY-MM-DD; to defaults to from plus one day.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	if providerID == "" || strings.TrimSpace(q.Get("from")) == "" {
		http.Error(w, "provider_id and from are required", http.StatusBadRequest)
		return
	}
	from, err := parseInstant(q.Get("from"), h.loc)
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to := from.AddDate(0, 0, 1)
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		if to, err = parseInstant(raw, h.loc); err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
	}

	bookings, err := h.svc.List(r.Context(), providerID, from, to)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, items)
}
