package storage

import (
	"errors"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeExclusionViolation = "23P01"
	codeUniqueViolation    = "23505"
)

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeExclusionViolation
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// translate maps an exclusion-constraint violation to BookingOverlap and a duplicate key to an
// internal error naming the constraint. Everything else passes through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeExclusionViolation:
		return apperr.New(apperr.KindBookingOverlap, "booking overlaps an existing booking").Wrap(err)
	case codeUniqueViolation:
		return apperr.New(apperr.KindInternal, "duplicate key").With("constraint", pgErr.ConstraintName).Wrap(err)
	}
	return err
}

func notFound(err error, kind apperr.Kind, what, idKey, id string) error {
	if IsNotFound(err) {
		return apperr.New(kind, what+" not found").With(idKey, id)
	}
	return err
}
