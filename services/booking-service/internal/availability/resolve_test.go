package availability

import (
	"testing"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
)

var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func weeklyRule(id string, wd time.Weekday, start, end string, slot int) model.AvailabilityRule {
	return model.AvailabilityRule{
		ID:                  id,
		ProviderID:          "prov_1",
		Kind:                model.RuleWeekly,
		Weekday:             &wd,
		StartTime:           tod(start),
		EndTime:             tod(end),
		SlotDurationMinutes: slot,
	}
}

func specificRule(id string, date time.Time, start, end string, slot int) model.AvailabilityRule {
	d := date
	return model.AvailabilityRule{
		ID:                  id,
		ProviderID:          "prov_1",
		Kind:                model.RuleSpecificDate,
		Date:                &d,
		StartTime:           tod(start),
		EndTime:             tod(end),
		SlotDurationMinutes: slot,
	}
}

func TestResolveRulesSpecificDateWins(t *testing.T) {
	weekly := []model.AvailabilityRule{weeklyRule("brl_w", time.Monday, "09:00", "18:00", 30)}
	specific := []model.AvailabilityRule{specificRule("brl_s", monday, "14:00", "16:00", 60)}

	got := ResolveRules(monday, specific, weekly)
	if len(got) != 1 || got[0].SourceID != "brl_s" || got[0].Start != tod("14:00") {
		t.Fatalf("expected only the specific-date window, got %+v", got)
	}

	got = ResolveRules(monday, nil, weekly)
	if len(got) != 1 || got[0].SourceID != "brl_w" {
		t.Fatalf("expected weekly window, got %+v", got)
	}
}

func TestResolveRulesIgnoresOtherDays(t *testing.T) {
	weekly := []model.AvailabilityRule{
		weeklyRule("brl_tue", time.Tuesday, "09:00", "12:00", 30),
		weeklyRule("brl_mon", time.Monday, "13:00", "15:00", 30),
	}
	specific := []model.AvailabilityRule{specificRule("brl_other", monday.AddDate(0, 0, 1), "09:00", "10:00", 30)}

	got := ResolveRules(monday, specific, weekly)
	if len(got) != 1 || got[0].SourceID != "brl_mon" {
		t.Fatalf("expected only the Monday rule, got %+v", got)
	}
}

func TestApplyExceptions(t *testing.T) {
	base := []Window{win("09:00", "18:00", 30)}
	start, end := tod("12:00"), tod("13:00")
	block := model.AvailabilityException{ID: "bex_1", Date: monday, Kind: model.ExceptionBlock, StartTime: &start, EndTime: &end}

	got := ApplyExceptions(monday, base, []model.AvailabilityException{block})
	if len(got) != 2 || got[0].End != tod("12:00") || got[1].Start != tod("13:00") {
		t.Fatalf("expected lunch cut out, got %+v", got)
	}

	fullDay := model.AvailabilityException{ID: "bex_2", Date: monday, Kind: model.ExceptionBlock}
	if got := ApplyExceptions(monday, base, []model.AvailabilityException{block, fullDay}); len(got) != 0 {
		t.Fatalf("expected full-day block to close the day, got %+v", got)
	}

	oStart, oEnd, slot := tod("10:00"), tod("14:00"), 60
	override := model.AvailabilityException{ID: "bex_3", Date: monday, Kind: model.ExceptionOverride, StartTime: &oStart, EndTime: &oEnd, SlotDurationMinutes: &slot}
	got = ApplyExceptions(monday, base, []model.AvailabilityException{fullDay, override})
	if len(got) != 1 || got[0].Source != SourceOverride || got[0].SlotMinutes != 60 || got[0].Start != oStart {
		t.Fatalf("expected override to replace the day, got %+v", got)
	}

	otherDay := block
	otherDay.Date = monday.AddDate(0, 0, 1)
	if got := ApplyExceptions(monday, base, []model.AvailabilityException{otherDay}); len(got) != 1 || got[0].Minutes() != 9*60 {
		t.Fatalf("exceptions for another date must be ignored, got %+v", got)
	}
}
