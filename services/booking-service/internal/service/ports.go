package service

import (
	"context"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/availability"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/outbox"
)

// Dates passed to stores are midnight in the service location; stores treat them as [date, date+1d).

type RuleReader interface {
	FindWeeklyByWeekday(ctx context.Context, providerID string, weekday time.Weekday) ([]model.AvailabilityRule, error)
	FindByProviderAndDate(ctx context.Context, providerID string, date time.Time) ([]model.AvailabilityRule, error)
	GetRule(ctx context.Context, id string) (model.AvailabilityRule, error)
	ListRules(ctx context.Context, providerID string) ([]model.AvailabilityRule, error)
}

type ExceptionReader interface {
	ListByProviderAndDate(ctx context.Context, providerID string, date time.Time) ([]model.AvailabilityException, error)
	GetException(ctx context.Context, id string) (model.AvailabilityException, error)
	ListExceptions(ctx context.Context, providerID string) ([]model.AvailabilityException, error)
}

type ScheduleStore interface {
	RuleReader
	ExceptionReader
	// InScheduleTx runs fn atomically. Writes and emitted events are discarded when fn fails.
	InScheduleTx(ctx context.Context, fn func(ctx context.Context, tx ScheduleTx) error) error
}

type ScheduleTx interface {
	InsertRule(ctx context.Context, r model.AvailabilityRule) error
	UpdateRule(ctx context.Context, r model.AvailabilityRule) error
	DeleteRule(ctx context.Context, id string) error
	InsertException(ctx context.Context, e model.AvailabilityException) error
	UpdateException(ctx context.Context, e model.AvailabilityException) error
	DeleteException(ctx context.Context, id string) error
	DeleteProviderSchedule(ctx context.Context, providerID string) (int64, error)
	Emit(ctx context.Context, evt outbox.Event) error
}

type BookingReader interface {
	// FindOverlapping returns confirmed bookings of the provider intersecting [start, end).
	FindOverlapping(ctx context.Context, providerID string, start, end time.Time) ([]model.Booking, error)
}

type BookingStore interface {
	BookingReader
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	// ListBookings returns bookings in any status starting inside [from, to).
	ListBookings(ctx context.Context, providerID string, from, to time.Time) ([]model.Booking, error)
	// LookupIdempotencyKey returns the booking id stored for key, or "" when none.
	LookupIdempotencyKey(ctx context.Context, providerID, key string) (string, error)
	// InProviderTx serialises fn against every other InProviderTx for the same provider.
	InProviderTx(ctx context.Context, providerID string, fn func(ctx context.Context, tx BookingTx) error) error
}

type BookingTx interface {
	FindOverlapping(ctx context.Context, providerID string, start, end time.Time) ([]model.Booking, error)
	CountByProviderAndDate(ctx context.Context, providerID string, date time.Time) (int, error)
	CountByClientAndProviderAndDate(ctx context.Context, clientID, providerID string, date time.Time) (int, error)
	Create(ctx context.Context, b model.Booking) error
	GetForUpdate(ctx context.Context, id string) (model.Booking, error)
	Update(ctx context.Context, b model.Booking) error
	// ClaimIdempotencyKey locks key for the rest of the transaction and returns the booking id
	// already stored for it, or "" for a fresh claim.
	ClaimIdempotencyKey(ctx context.Context, providerID, key string) (string, error)
	FinalizeIdempotencyKey(ctx context.Context, providerID, key, bookingID string) error
	Emit(ctx context.Context, evt outbox.Event) error
}

// WindowCache stores the rules-and-exceptions stage of a provider's day.
//
// Get reports the provider's cache version it read, hit or miss. Set writes under that version,
// so windows loaded before an Invalidate land on an orphaned key.
type WindowCache interface {
	Get(ctx context.Context, providerID string, date time.Time) (windows []availability.Window, version int64, hit bool, err error)
	Set(ctx context.Context, providerID string, date time.Time, version int64, windows []availability.Window) error
	Invalidate(ctx context.Context, providerID string) error
}
