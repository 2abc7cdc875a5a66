// Package memory is an in-process implementation of the booking-service stores.
// Writes made inside a transaction are staged and applied only on commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/outbox"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/service"
)

type idemKey struct {
	providerID string
	key        string
}

type ruleRow struct {
	model.AvailabilityRule
	seq int64
}

type exceptionRow struct {
	model.AvailabilityException
	seq int64
}

type Store struct {
	mu         sync.RWMutex
	seq        int64
	rules      map[string]ruleRow
	exceptions map[string]exceptionRow
	bookings   map[string]model.Booking
	idem       map[idemKey]string
	events     []outbox.Event
	eventLimit int

	schedule chan struct{}

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

var (
	_ service.ScheduleStore = (*Store)(nil)
	_ service.BookingStore  = (*Store)(nil)
)

func New() *Store {
	return &Store{
		rules:      map[string]ruleRow{},
		exceptions: map[string]exceptionRow{},
		bookings:   map[string]model.Booking{},
		idem:       map[idemKey]string{},
		eventLimit: EventLimit,
		schedule:   make(chan struct{}, 1),
		locks:      map[string]chan struct{}{},
	}
}

// EventLimit bounds the committed events a Store keeps; older ones are dropped first.
const EventLimit = 1024

// Events returns a copy of the most recent events emitted by committed transactions.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]outbox.Event(nil), s.events...)
}

// record appends committed events. Callers hold s.mu.
func (s *Store) record(evts ...outbox.Event) {
	s.events = append(s.events, evts...)
	if over := len(s.events) - s.eventLimit; over > 0 {
		n := copy(s.events, s.events[over:])
		clear(s.events[n:])
		s.events = s.events[:n]
	}
}

func acquire(ctx context.Context, lock chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) providerLock(providerID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[providerID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[providerID] = l
	}
	return l
}

// Rules

func (s *Store) FindWeeklyByWeekday(_ context.Context, providerID string, weekday time.Weekday) ([]model.AvailabilityRule, error) {
	return s.selectRules(func(r model.AvailabilityRule) bool {
		return r.ProviderID == providerID && r.Kind == model.RuleWeekly && r.Weekday != nil && *r.Weekday == weekday
	}), nil
}

func (s *Store) FindByProviderAndDate(_ context.Context, providerID string, date time.Time) ([]model.AvailabilityRule, error) {
	return s.selectRules(func(r model.AvailabilityRule) bool {
		return r.ProviderID == providerID && r.Kind == model.RuleSpecificDate && r.Date != nil && model.SameDate(*r.Date, date)
	}), nil
}

func (s *Store) ListRules(_ context.Context, providerID string) ([]model.AvailabilityRule, error) {
	return s.selectRules(func(r model.AvailabilityRule) bool { return r.ProviderID == providerID }), nil
}

func (s *Store) GetRule(_ context.Context, id string) (model.AvailabilityRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rules[id]
	if !ok {
		return model.AvailabilityRule{}, apperr.New(apperr.KindRuleNotFound, "rule not found").With("rule_id", id)
	}
	return row.AvailabilityRule, nil
}

func (s *Store) selectRules(match func(model.AvailabilityRule) bool) []model.AvailabilityRule {
	s.mu.RLock()
	rows := make([]ruleRow, 0)
	for _, row := range s.rules {
		if match(row.AvailabilityRule) {
			rows = append(rows, row)
		}
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]model.AvailabilityRule, len(rows))
	for i, row := range rows {
		out[i] = row.AvailabilityRule
	}
	return out
}

// Exceptions

func (s *Store) ListByProviderAndDate(_ context.Context, providerID string, date time.Time) ([]model.AvailabilityException, error) {
	return s.selectExceptions(func(e model.AvailabilityException) bool {
		return e.ProviderID == providerID && model.SameDate(e.Date, date)
	}), nil
}

func (s *Store) ListExceptions(_ context.Context, providerID string) ([]model.AvailabilityException, error) {
	return s.selectExceptions(func(e model.AvailabilityException) bool { return e.ProviderID == providerID }), nil
}

func (s *Store) GetException(_ context.Context, id string) (model.AvailabilityException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.exceptions[id]
	if !ok {
		return model.AvailabilityException{}, apperr.New(apperr.KindExceptionNotFound, "exception not found").With("exception_id", id)
	}
	return row.AvailabilityException, nil
}

func (s *Store) selectExceptions(match func(model.AvailabilityException) bool) []model.AvailabilityException {
	s.mu.RLock()
	rows := make([]exceptionRow, 0)
	for _, row := range s.exceptions {
		if match(row.AvailabilityException) {
			rows = append(rows, row)
		}
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].seq < rows[j].seq
	})
	out := make([]model.AvailabilityException, len(rows))
	for i, row := range rows {
		out[i] = row.AvailabilityException
	}
	return out
}

// Bookings

func (s *Store) GetBooking(_ context.Context, id string) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, bookingNotFound(id)
	}
	return b, nil
}

func (s *Store) FindOverlapping(_ context.Context, providerID string, start, end time.Time) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return overlapping(s.bookings, nil, providerID, start, end), nil
}

func (s *Store) ListBookings(_ context.Context, providerID string, from, to time.Time) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.ProviderID == providerID && !b.StartAt.Before(from) && b.StartAt.Before(to) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (s *Store) LookupIdempotencyKey(_ context.Context, providerID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idem[idemKey{providerID, key}], nil
}

func bookingNotFound(id string) error {
	return apperr.New(apperr.KindBookingNotFound, "booking not found").With("booking_id", id)
}

// overlapping merges committed bookings with staged ones (staged win) and returns the confirmed
// bookings of providerID intersecting [start, end).
func overlapping(committed, staged map[string]model.Booking, providerID string, start, end time.Time) []model.Booking {
	var out []model.Booking
	for id, b := range committed {
		if _, shadowed := staged[id]; shadowed {
			continue
		}
		if b.ProviderID == providerID && b.Status == model.StatusConfirmed && b.Overlaps(start, end) {
			out = append(out, b)
		}
	}
	for _, b := range staged {
		if b.ProviderID == providerID && b.Status == model.StatusConfirmed && b.Overlaps(start, end) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out
}

func sortBookings(bs []model.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].StartAt.Equal(bs[j].StartAt) {
			return bs[i].StartAt.Before(bs[j].StartAt)
		}
		return bs[i].ID < bs[j].ID
	})
}
