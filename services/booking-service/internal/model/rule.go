package model

import (
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
)

type RuleKind string

const (
	RuleWeekly       RuleKind = "weekly"
	RuleSpecificDate RuleKind = "specific_date"
)

// Limits are the optional booking constraints a rule carries. A nil or non-positive value means unlimited.
type Limits struct {
	MinAdvanceMinutes          *int `json:"min_advance_minutes,omitempty"`
	MaxDurationMinutes         *int `json:"max_duration_minutes,omitempty"`
	MaxBookingsPerDay          *int `json:"max_bookings_per_day,omitempty"`
	MaxBookingsPerClientPerDay *int `json:"max_bookings_per_client_per_day,omitempty"`
}

func limit(v *int) (int, bool) {
	if v == nil || *v <= 0 {
		return 0, false
	}
	return *v, true
}

func (l Limits) MinAdvance() (time.Duration, bool) {
	n, ok := limit(l.MinAdvanceMinutes)
	return time.Duration(n) * time.Minute, ok
}

func (l Limits) MaxDuration() (time.Duration, bool) {
	n, ok := limit(l.MaxDurationMinutes)
	return time.Duration(n) * time.Minute, ok
}

func (l Limits) MaxPerDay() (int, bool)          { return limit(l.MaxBookingsPerDay) }
func (l Limits) MaxPerClientPerDay() (int, bool) { return limit(l.MaxBookingsPerClientPerDay) }

// Equal compares the effective limits, treating unset and zero alike.
func (l Limits) Equal(o Limits) bool {
	eq := func(a, b *int) bool {
		x, okA := limit(a)
		y, okB := limit(b)
		return okA == okB && x == y
	}
	return eq(l.MinAdvanceMinutes, o.MinAdvanceMinutes) &&
		eq(l.MaxDurationMinutes, o.MaxDurationMinutes) &&
		eq(l.MaxBookingsPerDay, o.MaxBookingsPerDay) &&
		eq(l.MaxBookingsPerClientPerDay, o.MaxBookingsPerClientPerDay)
}

type AvailabilityRule struct {
	ID                  string
	ProviderID          string
	Kind                RuleKind
	Weekday             *time.Weekday
	Date                *time.Time
	StartTime           TimeOfDay
	EndTime             TimeOfDay
	SlotDurationMinutes int
	Limits
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r AvailabilityRule) SlotDuration() time.Duration {
	return time.Duration(r.SlotDurationMinutes) * time.Minute
}

// AppliesOn reports whether the rule's selector matches date.
func (r AvailabilityRule) AppliesOn(date time.Time) bool {
	switch r.Kind {
	case RuleWeekly:
		return r.Weekday != nil && *r.Weekday == date.Weekday()
	case RuleSpecificDate:
		return r.Date != nil && SameDate(*r.Date, date)
	default:
		return false
	}
}

func (r AvailabilityRule) Validate() error {
	if r.ProviderID == "" {
		return apperr.New(apperr.KindValidation, "provider_id is required")
	}
	switch r.Kind {
	case RuleWeekly:
		if r.Weekday == nil || *r.Weekday < time.Sunday || *r.Weekday > time.Saturday {
			return apperr.New(apperr.KindValidation, "weekly rule requires weekday 0-6")
		}
		if r.Date != nil {
			return apperr.New(apperr.KindValidation, "weekly rule must not carry a date")
		}
	case RuleSpecificDate:
		if r.Date == nil {
			return apperr.New(apperr.KindValidation, "specific_date rule requires date")
		}
		if r.Weekday != nil {
			return apperr.New(apperr.KindValidation, "specific_date rule must not carry a weekday")
		}
	default:
		return apperr.New(apperr.KindValidation, "unknown rule kind").With("kind", string(r.Kind))
	}
	if !r.StartTime.Valid() || !r.EndTime.Valid() || r.StartTime >= r.EndTime {
		return apperr.New(apperr.KindInvalidTimeRange, "start_time must be before end_time").
			With("start_time", r.StartTime.String()).
			With("end_time", r.EndTime.String())
	}
	if r.SlotDurationMinutes <= 0 {
		return apperr.New(apperr.KindValidation, "slot_duration_minutes must be positive")
	}
	return nil
}
