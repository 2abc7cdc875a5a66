package model

import (
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
)

type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
	StatusNoShow    BookingStatus = "no_show"
)

func (s BookingStatus) Terminal() bool { return s != StatusConfirmed }

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

type Booking struct {
	ID           string
	ProviderID   string
	ClientID     string
	ServiceID    string
	PriceCents   *int64
	Notes        string
	StartAt      time.Time
	EndAt        time.Time
	Status       BookingStatus
	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (b Booking) Duration() time.Duration { return b.EndAt.Sub(b.StartAt) }

// Overlaps uses half-open ranges: touching bookings do not overlap.
func (b Booking) Overlaps(start, end time.Time) bool {
	return start.Before(b.EndAt) && b.StartAt.Before(end)
}

// Transition describes the outcome of a status change.
type Transition struct {
	From    BookingStatus
	To      BookingStatus
	Changed bool
}

// Cancel is idempotent for an already cancelled booking.
func (b Booking) Cancel(at time.Time, reason string) (Booking, Transition, error) {
	if b.Status == StatusCancelled {
		return b, Transition{From: b.Status, To: b.Status}, nil
	}
	next, tr, err := b.transition(StatusCancelled, at)
	if err != nil {
		return b, tr, err
	}
	next.CancelledAt = &at
	next.CancelReason = reason
	return next, tr, nil
}

func (b Booking) Complete(at time.Time) (Booking, Transition, error) {
	return b.transition(StatusCompleted, at)
}

func (b Booking) MarkNoShow(at time.Time) (Booking, Transition, error) {
	return b.transition(StatusNoShow, at)
}

func (b Booking) transition(to BookingStatus, at time.Time) (Booking, Transition, error) {
	tr := Transition{From: b.Status, To: to}
	if b.Status != StatusConfirmed {
		return b, tr, apperr.New(apperr.KindInvalidStatusTransition, "booking is no longer confirmed").
			With("booking_id", b.ID).
			With("from", string(b.Status)).
			With("to", string(to))
	}
	b.Status = to
	b.UpdatedAt = at
	tr.Changed = true
	return b, tr, nil
}
