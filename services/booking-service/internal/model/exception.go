package model

import (
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
)

type ExceptionKind string

const (
	ExceptionBlock    ExceptionKind = "block"
	ExceptionOverride ExceptionKind = "override"
)

type AvailabilityException struct {
	ID                  string
	ProviderID          string
	Date                time.Time
	Kind                ExceptionKind
	StartTime           *TimeOfDay
	EndTime             *TimeOfDay
	SlotDurationMinutes *int
	Reason              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (e AvailabilityException) HasTimes() bool {
	return e.StartTime != nil && e.EndTime != nil
}

// FullDay is true for a block with no times at all.
func (e AvailabilityException) FullDay() bool {
	return e.Kind == ExceptionBlock && e.StartTime == nil && e.EndTime == nil
}

func (e AvailabilityException) Validate() error {
	if e.ProviderID == "" {
		return apperr.New(apperr.KindValidation, "provider_id is required")
	}
	if e.Date.IsZero() {
		return apperr.New(apperr.KindValidation, "date is required")
	}
	if (e.StartTime == nil) != (e.EndTime == nil) {
		return apperr.New(apperr.KindValidation, "start_time and end_time must be set together")
	}
	if e.HasTimes() && (!e.StartTime.Valid() || !e.EndTime.Valid() || *e.StartTime >= *e.EndTime) {
		return apperr.New(apperr.KindInvalidTimeRange, "start_time must be before end_time").
			With("start_time", e.StartTime.String()).
			With("end_time", e.EndTime.String())
	}
	switch e.Kind {
	case ExceptionBlock:
		if e.SlotDurationMinutes != nil {
			return apperr.New(apperr.KindValidation, "block exception must not carry slot_duration_minutes")
		}
	case ExceptionOverride:
		if !e.HasTimes() {
			return apperr.New(apperr.KindValidation, "override exception requires start_time and end_time")
		}
		if e.SlotDurationMinutes == nil || *e.SlotDurationMinutes <= 0 {
			return apperr.New(apperr.KindValidation, "override exception requires a positive slot_duration_minutes")
		}
	default:
		return apperr.New(apperr.KindValidation, "unknown exception kind").With("kind", string(e.Kind))
	}
	return nil
}
