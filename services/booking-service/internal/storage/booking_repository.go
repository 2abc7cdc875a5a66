package storage

import (
	"context"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

const bookingColumns = `id, provider_id, client_id, service_id, price_cents, notes, start_at, end_at, status,
	cancelled_at, cancel_reason, created_at, updated_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		return model.Booking{}, notFound(err, apperr.KindBookingNotFound, "booking", "booking_id", id)
	}
	return b, nil
}

func (r *Repository) FindOverlapping(ctx context.Context, providerID string, start, end time.Time) ([]model.Booking, error) {
	return findOverlapping(ctx, r.pool, providerID, start, end)
}

func (r *Repository) ListBookings(ctx context.Context, providerID string, from, to time.Time) ([]model.Booking, error) {
	return queryBookings(ctx, r.pool, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE provider_id = $1 AND start_at >= $2 AND start_at < $3
		ORDER BY start_at, id
	`, providerID, from, to)
}

func (r *Repository) LookupIdempotencyKey(ctx context.Context, providerID, key string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(booking_id, '')
		FROM booking_idempotency_keys
		WHERE provider_id = $1 AND idempotency_key = $2
	`, providerID, key).Scan(&id)
	if IsNotFound(err) {
		return "", nil
	}
	return id, err
}

func findOverlapping(ctx context.Context, q querier, providerID string, start, end time.Time) ([]model.Booking, error) {
	return queryBookings(ctx, q, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE provider_id = $1
			AND status = 'confirmed'
			AND start_at < $3
			AND end_at > $2
		ORDER BY start_at, id
	`, providerID, start, end)
}

func queryBookings(ctx context.Context, q querier, sql string, args ...any) ([]model.Booking, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bookings, nil
}

func scanBooking(row scanner) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&b.ClientID,
		&b.ServiceID,
		&b.PriceCents,
		&b.Notes,
		&b.StartAt,
		&b.EndAt,
		&b.Status,
		&b.CancelledAt,
		&b.CancelReason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

type bookingTx struct {
	r  *Repository
	tx pgx.Tx
}

func (t *bookingTx) FindOverlapping(ctx context.Context, providerID string, start, end time.Time) ([]model.Booking, error) {
	return findOverlapping(ctx, t.tx, providerID, start, end)
}

func (t *bookingTx) CountByProviderAndDate(ctx context.Context, providerID string, date time.Time) (int, error) {
	from, to := model.DayBounds(date)
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings
		WHERE provider_id = $1 AND status = 'confirmed' AND start_at >= $2 AND start_at < $3
	`, providerID, from, to).Scan(&n)
	return n, err
}

func (t *bookingTx) CountByClientAndProviderAndDate(ctx context.Context, clientID, providerID string, date time.Time) (int, error) {
	from, to := model.DayBounds(date)
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings
		WHERE provider_id = $1 AND client_id = $2 AND status = 'confirmed' AND start_at >= $3 AND start_at < $4
	`, providerID, clientID, from, to).Scan(&n)
	return n, err
}

func (t *bookingTx) Create(ctx context.Context, b model.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings
			(id, provider_id, client_id, service_id, price_cents, notes, start_at, end_at, status,
			 cancelled_at, cancel_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, b.ID, b.ProviderID, b.ClientID, b.ServiceID, b.PriceCents, b.Notes, b.StartAt, b.EndAt, b.Status,
		b.CancelledAt, b.CancelReason, b.CreatedAt, b.UpdatedAt)
	return translate(err)
}

func (t *bookingTx) GetForUpdate(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Booking{}, notFound(err, apperr.KindBookingNotFound, "booking", "booking_id", id)
	}
	return b, nil
}

func (t *bookingTx) Update(ctx context.Context, b model.Booking) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
			cancelled_at = $3,
			cancel_reason = $4,
			notes = $5,
			updated_at = $6
		WHERE id = $1
	`, b.ID, b.Status, b.CancelledAt, b.CancelReason, b.Notes, b.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindBookingNotFound, "booking not found").With("booking_id", b.ID)
	}
	return nil
}

// ClaimIdempotencyKey inserts the key if absent and locks its row for the rest of the transaction.
func (t *bookingTx) ClaimIdempotencyKey(ctx context.Context, providerID, key string) (string, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (provider_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (provider_id, idempotency_key) DO NOTHING
	`, providerID, key); err != nil {
		return "", err
	}
	var id string
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(booking_id, '')
		FROM booking_idempotency_keys
		WHERE provider_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, providerID, key).Scan(&id)
	return id, err
}

func (t *bookingTx) FinalizeIdempotencyKey(ctx context.Context, providerID, key, bookingID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3,
			updated_at = now()
		WHERE provider_id = $1 AND idempotency_key = $2
	`, providerID, key, bookingID)
	return err
}

func (t *bookingTx) Emit(ctx context.Context, evt outbox.Event) error {
	return emit(ctx, t.r, t.tx, evt)
}
