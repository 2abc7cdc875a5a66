package memory

import (
	"context"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/outbox"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/service"
)

type bookingTx struct {
	s      *Store
	staged map[string]model.Booking
	idem   map[idemKey]string
	events []outbox.Event
}

// InProviderTx holds the provider's lock for the duration of fn. The lock wait honours ctx.
func (s *Store) InProviderTx(ctx context.Context, providerID string, fn func(ctx context.Context, tx service.BookingTx) error) error {
	lock := s.providerLock(providerID)
	if err := acquire(ctx, lock); err != nil {
		return err
	}
	defer func() { <-lock }()

	tx := &bookingTx{s: s, staged: map[string]model.Booking{}, idem: map[idemKey]string{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

func (tx *bookingTx) commit() error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	// Same guarantee as the Postgres exclusion constraint.
	for _, b := range tx.staged {
		if b.Status != model.StatusConfirmed {
			continue
		}
		for _, other := range overlapping(s.bookings, tx.staged, b.ProviderID, b.StartAt, b.EndAt) {
			if other.ID != b.ID {
				return apperr.New(apperr.KindBookingOverlap, "booking overlaps an existing booking").With("booking_id", other.ID)
			}
		}
	}

	for id, b := range tx.staged {
		s.bookings[id] = b
	}
	for k, v := range tx.idem {
		s.idem[k] = v
	}
	s.record(tx.events...)
	return nil
}

func (tx *bookingTx) FindOverlapping(_ context.Context, providerID string, start, end time.Time) ([]model.Booking, error) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return overlapping(tx.s.bookings, tx.staged, providerID, start, end), nil
}

func (tx *bookingTx) CountByProviderAndDate(_ context.Context, providerID string, date time.Time) (int, error) {
	return tx.count(date, func(b model.Booking) bool { return b.ProviderID == providerID }), nil
}

func (tx *bookingTx) CountByClientAndProviderAndDate(_ context.Context, clientID, providerID string, date time.Time) (int, error) {
	return tx.count(date, func(b model.Booking) bool { return b.ProviderID == providerID && b.ClientID == clientID }), nil
}

func (tx *bookingTx) count(date time.Time, match func(model.Booking) bool) int {
	from, to := model.DayBounds(date)
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()

	n := 0
	seen := func(b model.Booking) {
		if b.Status == model.StatusConfirmed && match(b) && !b.StartAt.Before(from) && b.StartAt.Before(to) {
			n++
		}
	}
	for id, b := range tx.s.bookings {
		if _, shadowed := tx.staged[id]; !shadowed {
			seen(b)
		}
	}
	for _, b := range tx.staged {
		seen(b)
	}
	return n
}

func (tx *bookingTx) Create(_ context.Context, b model.Booking) error {
	tx.s.mu.RLock()
	_, exists := tx.s.bookings[b.ID]
	tx.s.mu.RUnlock()
	if _, staged := tx.staged[b.ID]; exists || staged {
		return apperr.New(apperr.KindInternal, "duplicate booking id").With("booking_id", b.ID)
	}
	tx.staged[b.ID] = b
	return nil
}

func (tx *bookingTx) GetForUpdate(_ context.Context, id string) (model.Booking, error) {
	if b, ok := tx.staged[id]; ok {
		return b, nil
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	b, ok := tx.s.bookings[id]
	if !ok {
		return model.Booking{}, bookingNotFound(id)
	}
	return b, nil
}

func (tx *bookingTx) Update(ctx context.Context, b model.Booking) error {
	if _, err := tx.GetForUpdate(ctx, b.ID); err != nil {
		return err
	}
	tx.staged[b.ID] = b
	return nil
}

func (tx *bookingTx) ClaimIdempotencyKey(_ context.Context, providerID, key string) (string, error) {
	k := idemKey{providerID, key}
	if id, ok := tx.idem[k]; ok {
		return id, nil
	}
	tx.s.mu.RLock()
	id, ok := tx.s.idem[k]
	tx.s.mu.RUnlock()
	if ok {
		return id, nil
	}
	tx.idem[k] = ""
	return "", nil
}

func (tx *bookingTx) FinalizeIdempotencyKey(_ context.Context, providerID, key, bookingID string) error {
	tx.idem[idemKey{providerID, key}] = bookingID
	return nil
}

func (tx *bookingTx) Emit(_ context.Context, evt outbox.Event) error {
	tx.events = append(tx.events, evt)
	return nil
}
