// Package storage is the Postgres implementation of the booking-service stores.
package storage

import (
	"context"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/libs/db"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/outbox"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/service"
	"github.com/jackc/pgx/v5"
)

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	loc    *time.Location
}

var (
	_ service.ScheduleStore = (*Repository)(nil)
	_ service.BookingStore  = (*Repository)(nil)
)

// NewRepository returns a repository whose DATE columns are read as midnight in loc.
func NewRepository(pool *db.Pool, loc *time.Location) *Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &Repository{pool: pool, outbox: outbox.NewRepository(pool), loc: loc}
}

type scanner interface {
	Scan(dest ...any) error
}

// InProviderTx runs fn in a transaction holding the provider's advisory lock until commit.
func (r *Repository) InProviderTx(ctx context.Context, providerID string, fn func(ctx context.Context, tx service.BookingTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "booking:"+providerID); err != nil {
		return err
	}
	if err := fn(ctx, &bookingTx{r: r, tx: tx}); err != nil {
		return translate(err)
	}
	return translate(tx.Commit(ctx))
}

func (r *Repository) InScheduleTx(ctx context.Context, fn func(ctx context.Context, tx service.ScheduleTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &scheduleTx{r: r, tx: tx}); err != nil {
		return translate(err)
	}
	return translate(tx.Commit(ctx))
}

func emit(ctx context.Context, r *Repository, tx pgx.Tx, evt outbox.Event) error {
	return r.outbox.Insert(ctx, tx, evt)
}
