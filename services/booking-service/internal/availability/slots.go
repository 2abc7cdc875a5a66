package availability

import (
	"sort"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
)

// Slot is a candidate booking range on a concrete date.
type Slot struct {
	Start time.Time
	End   time.Time
	Governing
}

// Time renders the slot start as HH:MM in its own location.
func (s Slot) Time() string { return s.Start.Format("15:04") }

// GenerateSlots cuts each window into back-to-back slots of its slot duration, starting at the
// window start. A trailing remainder shorter than one slot is dropped. Slots that overlap an
// earlier slot are discarded.
func GenerateSlots(date time.Time, windows []Window) []Slot {
	var out []Slot
	for _, w := range windows {
		step := model.TimeOfDay(w.SlotMinutes)
		if step <= 0 {
			continue
		}
		for m := w.Start; m+step <= w.End; m += step {
			out = append(out, Slot{Start: m.On(date), End: (m + step).On(date), Governing: w.Governing})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })

	deduped := out[:0]
	for _, s := range out {
		if n := len(deduped); n > 0 && s.Start.Before(deduped[n-1].End) {
			continue
		}
		deduped = append(deduped, s)
	}
	return deduped
}

// FilterLeadTime drops slots that start before now plus the governing minimum advance.
// Slots already in the past are always dropped.
func FilterLeadTime(slots []Slot, now time.Time) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		earliest := now
		if adv, ok := s.MinAdvance(); ok {
			earliest = now.Add(adv)
		}
		if s.Start.Before(earliest) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// RemoveBooked drops every slot that overlaps a confirmed booking.
func RemoveBooked(slots []Slot, bookings []model.Booking) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if _, hit := FirstConflict(bookings, s.Start, s.End); hit {
			continue
		}
		out = append(out, s)
	}
	return out
}

// LocateWindow finds the window on date that fully contains [start, end) with start on the
// window's slot grid.
func LocateWindow(date time.Time, windows []Window, start, end time.Time) (Window, bool) {
	for _, w := range windows {
		if w.SlotMinutes <= 0 {
			continue
		}
		ws, we := w.Start.On(date), w.End.On(date)
		if start.Before(ws) || end.After(we) {
			continue
		}
		if start.Sub(ws)%(time.Duration(w.SlotMinutes)*time.Minute) != 0 {
			continue
		}
		return w, true
	}
	return Window{}, false
}

// FirstConflict returns the first confirmed booking overlapping [start, end).
func FirstConflict(bookings []model.Booking, start, end time.Time) (model.Booking, bool) {
	for _, b := range bookings {
		if b.Status != model.StatusConfirmed {
			continue
		}
		if b.Overlaps(start, end) {
			return b, true
		}
	}
	return model.Booking{}, false
}
