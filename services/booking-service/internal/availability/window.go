// Package availability computes bookable slots from rules, exceptions and existing bookings.
// Every function here is pure: inputs are fetched by the caller.
package availability

import (
	"sort"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
)

type Source string

const (
	SourceRule     Source = "rule"
	SourceOverride Source = "override"
)

// Governing is the rule (or override) whose terms apply to a window and the slots cut from it.
type Governing struct {
	Source       Source       `json:"source"`
	SourceID     string       `json:"source_id"`
	SlotMinutes  int          `json:"slot_minutes"`
	model.Limits `json:"limits"`
}

func (g Governing) SameTerms(o Governing) bool {
	return g.SlotMinutes == o.SlotMinutes && g.Limits.Equal(o.Limits)
}

// Window is a half-open time-of-day range [Start, End) on some date.
type Window struct {
	Start model.TimeOfDay `json:"start"`
	End   model.TimeOfDay `json:"end"`
	Governing
}

func (w Window) Empty() bool { return w.Start >= w.End }

func (w Window) Minutes() int { return int(w.End - w.Start) }

// Union sorts windows and removes overlap. Overlapping windows with the same terms are merged;
// otherwise the earlier window keeps the shared range and the later one is trimmed.
func Union(windows []Window) []Window {
	sorted := make([]Window, 0, len(windows))
	for _, w := range windows {
		if !w.Empty() && w.SlotMinutes > 0 {
			sorted = append(sorted, w)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]Window, 0, len(sorted))
	for _, w := range sorted {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if w.End <= last.End {
				continue
			}
			if w.Start <= last.End && last.SameTerms(w.Governing) {
				last.End = w.End
				continue
			}
			if w.Start < last.End {
				w.Start = last.End
			}
		}
		out = append(out, w)
	}
	return out
}

// Subtract removes [from, to) from w and returns what is left, in order.
func Subtract(w Window, from, to model.TimeOfDay) []Window {
	if from >= to || to <= w.Start || from >= w.End {
		return []Window{w}
	}
	var out []Window
	if from > w.Start {
		left := w
		left.End = from
		out = append(out, left)
	}
	if to < w.End {
		right := w
		right.Start = to
		out = append(out, right)
	}
	return out
}
