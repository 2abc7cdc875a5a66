package availability

import (
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
)

// ApplyExceptions adjusts base windows with the exceptions recorded for date.
//
// An override replaces the day outright with its own window and slot duration. Otherwise a
// block without times closes the whole day, and each timed block is cut out of the windows.
func ApplyExceptions(date time.Time, base []Window, exceptions []model.AvailabilityException) []Window {
	var todays []model.AvailabilityException
	for _, e := range exceptions {
		if model.SameDate(e.Date, date) {
			todays = append(todays, e)
		}
	}

	for _, e := range todays {
		if e.Kind != model.ExceptionOverride || !e.HasTimes() || e.SlotDurationMinutes == nil || *e.SlotDurationMinutes <= 0 {
			continue
		}
		w := Window{
			Start: *e.StartTime,
			End:   *e.EndTime,
			Governing: Governing{
				Source:      SourceOverride,
				SourceID:    e.ID,
				SlotMinutes: *e.SlotDurationMinutes,
			},
		}
		if w.Empty() {
			return nil
		}
		return []Window{w}
	}

	for _, e := range todays {
		if e.FullDay() {
			return nil
		}
	}

	out := append([]Window(nil), base...)
	for _, e := range todays {
		if e.Kind != model.ExceptionBlock || !e.HasTimes() {
			continue
		}
		next := make([]Window, 0, len(out))
		for _, w := range out {
			next = append(next, Subtract(w, *e.StartTime, *e.EndTime)...)
		}
		out = next
	}
	return out
}
