package availability

import (
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
)

// ResolveRules builds the base windows for date. Specific-date rules win over weekly rules:
// weekly rules are only consulted when no specific-date rule applies.
func ResolveRules(date time.Time, specific, weekly []model.AvailabilityRule) []Window {
	windows := rulesToWindows(date, specific, model.RuleSpecificDate)
	if len(windows) == 0 {
		windows = rulesToWindows(date, weekly, model.RuleWeekly)
	}
	return Union(windows)
}

func rulesToWindows(date time.Time, rules []model.AvailabilityRule, kind model.RuleKind) []Window {
	var out []Window
	for _, r := range rules {
		if r.Kind != kind || !r.AppliesOn(date) {
			continue
		}
		if r.StartTime >= r.EndTime || r.SlotDurationMinutes <= 0 {
			continue
		}
		out = append(out, Window{
			Start: r.StartTime,
			End:   r.EndTime,
			Governing: Governing{
				Source:      SourceRule,
				SourceID:    r.ID,
				SlotMinutes: r.SlotDurationMinutes,
				Limits:      r.Limits,
			},
		})
	}
	return out
}
