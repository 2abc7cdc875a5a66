package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/availability"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type BookingService struct {
	store        BookingStore
	availability *AvailabilityService
	logger       *slog.Logger
	loc          *time.Location
	now          func() time.Time
	timeout      time.Duration
}

func NewBookingService(store BookingStore, availability *AvailabilityService, opts Options) *BookingService {
	opts = opts.withDefaults()
	return &BookingService{
		store:        store,
		availability: availability,
		logger:       opts.Logger,
		loc:          opts.Location,
		now:          opts.Now,
		timeout:      opts.BookingTimeout,
	}
}

type CreateBookingInput struct {
	ProviderID     string    `json:"provider_id" validate:"required,max=64"`
	ClientID       string    `json:"client_id" validate:"required,max=64"`
	ServiceID      string    `json:"service_id,omitempty" validate:"omitempty,max=64"`
	PriceCents     *int64    `json:"price_cents,omitempty" validate:"omitempty,min=0"`
	Notes          string    `json:"notes,omitempty" validate:"max=1000"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	IdempotencyKey string    `json:"-" validate:"max=128"`
}

type CreateResult struct {
	Booking model.Booking
	// Replayed is set when an earlier request with the same idempotency key already created the booking.
	Replayed bool
}

// Create validates the request against the provider's availability and limits, then reserves the
// range inside a per-provider transaction. The whole operation is bounded by the booking timeout.
func (s *BookingService) Create(ctx context.Context, in CreateBookingInput) (CreateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "booking.create", trace.WithAttributes(
		attribute.String("provider_id", in.ProviderID),
	))
	defer span.End()

	res, err := s.create(ctx, in)
	if err != nil {
		span.RecordError(err)
		if _, ok := apperr.As(err); ok {
			return CreateResult{}, err
		}
		return CreateResult{}, fmt.Errorf("create booking: %w", err)
	}
	span.SetAttributes(attribute.String("booking_id", res.Booking.ID), attribute.Bool("replayed", res.Replayed))
	return res, nil
}

func (s *BookingService) create(ctx context.Context, in CreateBookingInput) (CreateResult, error) {
	if err := validateInput(in); err != nil {
		return CreateResult{}, err
	}

	if in.IdempotencyKey != "" {
		id, err := s.store.LookupIdempotencyKey(ctx, in.ProviderID, in.IdempotencyKey)
		if err != nil {
			return CreateResult{}, err
		}
		if id != "" {
			b, err := s.store.GetBooking(ctx, id)
			if err != nil {
				return CreateResult{}, err
			}
			return CreateResult{Booking: b, Replayed: true}, nil
		}
	}

	start, end := in.StartAt.In(s.loc), in.EndAt.In(s.loc)
	now := s.now()
	if err := availability.CheckTimeRange(start, end); err != nil {
		return CreateResult{}, err
	}
	if err := availability.CheckNotInPast(start, now); err != nil {
		return CreateResult{}, err
	}

	// Pre-flight: the transaction below re-checks, and storage enforces it again.
	existing, err := s.store.FindOverlapping(ctx, in.ProviderID, start, end)
	if err != nil {
		return CreateResult{}, err
	}
	if c, hit := availability.FirstConflict(existing, start, end); hit {
		return CreateResult{}, overlapError(c)
	}

	date := model.DateOf(start, s.loc)
	// Admission reads the schedule from the store; the cache only serves listings.
	windows, err := s.availability.load(ctx, in.ProviderID, date)
	if err != nil {
		return CreateResult{}, err
	}
	w, ok := availability.LocateWindow(date, windows, start, end)
	if !ok {
		return CreateResult{}, apperr.New(apperr.KindSlotNotAvailable, "requested time is outside the provider's availability").
			With("start_at", start.Format(time.RFC3339)).
			With("end_at", end.Format(time.RFC3339))
	}
	if err := availability.CheckRequest(w.Governing, start, end, now); err != nil {
		return CreateResult{}, err
	}

	var res CreateResult
	err = s.store.InProviderTx(ctx, in.ProviderID, func(ctx context.Context, tx BookingTx) error {
		if in.IdempotencyKey != "" {
			id, err := tx.ClaimIdempotencyKey(ctx, in.ProviderID, in.IdempotencyKey)
			if err != nil {
				return err
			}
			if id != "" {
				b, err := tx.GetForUpdate(ctx, id)
				if err != nil {
					return err
				}
				res = CreateResult{Booking: b, Replayed: true}
				return nil
			}
		}

		overlapping, err := tx.FindOverlapping(ctx, in.ProviderID, start, end)
		if err != nil {
			return err
		}
		if c, hit := availability.FirstConflict(overlapping, start, end); hit {
			return overlapError(c)
		}

		var providerCount, clientCount int
		if _, ok := w.MaxPerDay(); ok {
			if providerCount, err = tx.CountByProviderAndDate(ctx, in.ProviderID, date); err != nil {
				return err
			}
		}
		if _, ok := w.MaxPerClientPerDay(); ok {
			if clientCount, err = tx.CountByClientAndProviderAndDate(ctx, in.ClientID, in.ProviderID, date); err != nil {
				return err
			}
		}
		if err := availability.CheckDailyCaps(w.Governing, providerCount, clientCount); err != nil {
			return err
		}

		b := model.Booking{
			ID:         newID(bookingPrefix),
			ProviderID: in.ProviderID,
			ClientID:   in.ClientID,
			ServiceID:  in.ServiceID,
			PriceCents: in.PriceCents,
			Notes:      in.Notes,
			StartAt:    start,
			EndAt:      end,
			Status:     model.StatusConfirmed,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Create(ctx, b); err != nil {
			return err
		}
		if in.IdempotencyKey != "" {
			if err := tx.FinalizeIdempotencyKey(ctx, in.ProviderID, in.IdempotencyKey, b.ID); err != nil {
				return err
			}
		}
		evt, err := outbox.NewBookingEvent(b, now)
		if err != nil {
			return err
		}
		if err := tx.Emit(ctx, evt); err != nil {
			return err
		}
		res = CreateResult{Booking: b}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrBookingOverlap) {
			s.logger.Info("booking race lost", "provider_id", in.ProviderID, "start_at", start)
		}
		return CreateResult{}, err
	}
	return res, nil
}

func overlapError(c model.Booking) error {
	return apperr.New(apperr.KindBookingOverlap, "requested time overlaps an existing booking").
		With("booking_id", c.ID).
		With("start_at", c.StartAt.Format(time.RFC3339)).
		With("end_at", c.EndAt.Format(time.RFC3339))
}

func (s *BookingService) Cancel(ctx context.Context, bookingID, reason string) (model.Booking, error) {
	return s.transition(ctx, bookingID, func(b model.Booking, at time.Time) (model.Booking, model.Transition, error) {
		return b.Cancel(at, reason)
	})
}

func (s *BookingService) Complete(ctx context.Context, bookingID string) (model.Booking, error) {
	return s.transition(ctx, bookingID, model.Booking.Complete)
}

func (s *BookingService) MarkNoShow(ctx context.Context, bookingID string) (model.Booking, error) {
	return s.transition(ctx, bookingID, model.Booking.MarkNoShow)
}

func (s *BookingService) transition(ctx context.Context, bookingID string, apply func(model.Booking, time.Time) (model.Booking, model.Transition, error)) (model.Booking, error) {
	if bookingID == "" {
		return model.Booking{}, apperr.New(apperr.KindValidation, "booking_id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}

	var out model.Booking
	err = s.store.InProviderTx(ctx, current.ProviderID, func(ctx context.Context, tx BookingTx) error {
		locked, err := tx.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		now := s.now()
		next, tr, err := apply(locked, now)
		if err != nil {
			return err
		}
		out = next
		if !tr.Changed {
			return nil
		}
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		evt, err := outbox.NewBookingEvent(next, now)
		if err != nil {
			return err
		}
		return tx.Emit(ctx, evt)
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return model.Booking{}, err
		}
		return model.Booking{}, fmt.Errorf("update booking %s: %w", bookingID, err)
	}
	return out, nil
}

func (s *BookingService) Get(ctx context.Context, bookingID string) (model.Booking, error) {
	if bookingID == "" {
		return model.Booking{}, apperr.New(apperr.KindValidation, "booking_id is required")
	}
	return s.store.GetBooking(ctx, bookingID)
}

// List returns the provider's bookings starting inside [from, to).
func (s *BookingService) List(ctx context.Context, providerID string, from, to time.Time) ([]model.Booking, error) {
	if providerID == "" {
		return nil, apperr.New(apperr.KindValidation, "provider_id is required")
	}
	if !from.Before(to) {
		return nil, apperr.New(apperr.KindInvalidTimeRange, "from must be before to").
			With("from", from.Format(time.RFC3339)).
			With("to", to.Format(time.RFC3339))
	}
	return s.store.ListBookings(ctx, providerID, from, to)
}
