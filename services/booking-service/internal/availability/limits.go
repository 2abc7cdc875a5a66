package availability

import (
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
)

func CheckTimeRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return apperr.New(apperr.KindInvalidTimeRange, "start must be before end").
			With("start_at", start.Format(time.RFC3339)).
			With("end_at", end.Format(time.RFC3339))
	}
	return nil
}

func CheckNotInPast(start, now time.Time) error {
	if start.Before(now) {
		return apperr.New(apperr.KindBookingInPast, "booking starts in the past").
			With("start_at", start.Format(time.RFC3339))
	}
	return nil
}

// CheckRequest applies the per-request limits of g in order: slot multiple, max duration, min advance.
func CheckRequest(g Governing, start, end, now time.Time) error {
	dur := end.Sub(start)
	slot := time.Duration(g.SlotMinutes) * time.Minute
	if slot <= 0 || dur%slot != 0 {
		return apperr.New(apperr.KindInvalidDurationForSlot, "duration must be a multiple of the slot duration").
			With("duration_minutes", int(dur/time.Minute)).
			With("slot_duration_minutes", g.SlotMinutes)
	}
	if limit, ok := g.MaxDuration(); ok && dur > limit {
		return apperr.New(apperr.KindMaxDurationExceeded, "booking exceeds the maximum duration").
			With("duration_minutes", int(dur/time.Minute)).
			With("max_duration_minutes", int(limit/time.Minute))
	}
	if adv, ok := g.MinAdvance(); ok && start.Before(now.Add(adv)) {
		return apperr.New(apperr.KindBookingTooClose, "booking is too close to the current time").
			With("minutes_until_start", int(start.Sub(now)/time.Minute)).
			With("min_advance_minutes", int(adv/time.Minute))
	}
	return nil
}

// CheckDailyCaps compares confirmed booking counts for the day against the caps of g.
func CheckDailyCaps(g Governing, providerCount, clientCount int) error {
	if limit, ok := g.MaxPerDay(); ok && providerCount >= limit {
		return apperr.New(apperr.KindDailyLimitReached, "provider has reached the daily booking limit").
			With("count", providerCount).
			With("max", limit)
	}
	if limit, ok := g.MaxPerClientPerDay(); ok && clientCount >= limit {
		return apperr.New(apperr.KindClientDailyLimitReached, "client has reached the daily booking limit for this provider").
			With("count", clientCount).
			With("max", limit)
	}
	return nil
}
