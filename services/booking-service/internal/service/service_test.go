package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/availability"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/outbox"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/service"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/storage/memory"
)

// 2025-01-06 is a Monday.
var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type harness struct {
	store    *memory.Store
	clock    *clock
	schedule *service.ScheduleService
	avail    *service.AvailabilityService
	bookings *service.BookingService
}

func newHarness(t *testing.T, cache service.WindowCache) *harness {
	t.Helper()
	c := &clock{now: monday.Add(7 * time.Hour)}
	store := memory.New()
	opts := service.Options{Location: time.UTC, Now: c.Now, MaxDaysAhead: 30, DayConcurrency: 3, BookingTimeout: 2 * time.Second}
	avail := service.NewAvailabilityService(store, store, store, cache, opts)
	return &harness{
		store:    store,
		clock:    c,
		schedule: service.NewScheduleService(store, cache, opts),
		avail:    avail,
		bookings: service.NewBookingService(store, avail, opts),
	}
}

func intp(v int) *int { return &v }

func (h *harness) weekly(t *testing.T, wd time.Weekday, start, end string, slot int, mutate ...func(*service.RuleInput)) model.AvailabilityRule {
	t.Helper()
	in := service.RuleInput{
		ProviderID:          "prov_1",
		Kind:                model.RuleWeekly,
		Weekday:             intp(int(wd)),
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: slot,
	}
	for _, m := range mutate {
		m(&in)
	}
	r, err := h.schedule.CreateRule(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	return r
}

func (h *harness) slots(t *testing.T, date time.Time) []string {
	t.Helper()
	slots, err := h.avail.GetSlotsForDay(context.Background(), "prov_1", date)
	if err != nil {
		t.Fatalf("GetSlotsForDay: %v", err)
	}
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Time())
	}
	return out
}

func (h *harness) book(start, end time.Time, client string) (model.Booking, error) {
	res, err := h.bookings.Create(context.Background(), service.CreateBookingInput{
		ProviderID: "prov_1",
		ClientID:   client,
		StartAt:    start,
		EndAt:      end,
	})
	return res.Booking, err
}

func at(date time.Time, hhmm string) time.Time { return model.MustTimeOfDay(hhmm).On(date) }

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScenarioA_WeeklyRuleSlots(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30)

	want := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}
	if got := h.slots(t, monday); !equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	// Same query twice without a mutation returns the same answer.
	if got := h.slots(t, monday); !equal(got, want) {
		t.Fatalf("second call differs: %v", got)
	}
	if got := h.slots(t, monday.AddDate(0, 0, 1)); len(got) != 0 {
		t.Fatalf("expected no slots on Tuesday, got %v", got)
	}
}

func TestScenarioB_BookingRemovesSlot(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30)
	if _, err := h.book(at(monday, "10:00"), at(monday, "10:30"), "cli_1"); err != nil {
		t.Fatalf("book: %v", err)
	}

	want := []string{"09:00", "09:30", "10:30", "11:00", "11:30"}
	if got := h.slots(t, monday); !equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestScenarioC_FullDayBlock(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30)
	if _, err := h.schedule.CreateException(context.Background(), service.ExceptionInput{
		ProviderID: "prov_1",
		Date:       "2025-01-06",
		Kind:       model.ExceptionBlock,
		Reason:     "holiday",
	}); err != nil {
		t.Fatalf("CreateException: %v", err)
	}
	if got := h.slots(t, monday); len(got) != 0 {
		t.Fatalf("expected no slots, got %v", got)
	}
}

func TestScenarioD_DailyLimit(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30, func(in *service.RuleInput) { in.MaxBookingsPerDay = intp(1) })

	if _, err := h.book(at(monday, "09:00"), at(monday, "09:30"), "cli_1"); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	_, err := h.book(at(monday, "10:00"), at(monday, "10:30"), "cli_2")
	if !errors.Is(err, apperr.ErrDailyLimitReached) {
		t.Fatalf("expected DailyLimitReached, got %v", err)
	}
}

func TestScenarioE_TooClose(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30, func(in *service.RuleInput) { in.MinAdvanceMinutes = intp(60) })
	h.clock.Set(at(monday, "09:30"))

	_, err := h.book(at(monday, "10:00"), at(monday, "10:30"), "cli_1")
	if !errors.Is(err, apperr.ErrBookingTooClose) {
		t.Fatalf("expected BookingTooClose, got %v", err)
	}
	if got := h.slots(t, monday); !equal(got, []string{"10:30", "11:00", "11:30"}) {
		t.Fatalf("expected slots from 10:30, got %v", got)
	}
}

func TestDailyCapsRejectZeroAndNegative(t *testing.T) {
	h := newHarness(t, nil)
	base := service.RuleInput{
		ProviderID: "prov_1", Kind: model.RuleWeekly, Weekday: intp(int(time.Monday)),
		StartTime: "09:00", EndTime: "12:00", SlotDurationMinutes: 30,
	}
	for _, v := range []int{0, -2} {
		in := base
		in.MaxBookingsPerDay = intp(v)
		if _, err := h.schedule.CreateRule(context.Background(), in); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("max_bookings_per_day=%d: expected validation error, got %v", v, err)
		}
		in = base
		in.MaxBookingsPerClientPerDay = intp(v)
		if _, err := h.schedule.CreateRule(context.Background(), in); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("max_bookings_per_client_per_day=%d: expected validation error, got %v", v, err)
		}
	}
	rules, err := h.schedule.ListRules(context.Background(), "prov_1")
	if err != nil || len(rules) != 0 {
		t.Fatalf("no rule may be stored, got %d %v", len(rules), err)
	}

	// -1 is the explicit unlimited value.
	h.weekly(t, time.Monday, "09:00", "12:00", 30, func(in *service.RuleInput) {
		in.MaxBookingsPerDay = intp(-1)
		in.MaxBookingsPerClientPerDay = intp(-1)
	})
	for _, hhmm := range []string{"09:00", "09:30", "10:00"} {
		start := at(monday, hhmm)
		if _, err := h.book(start, start.Add(30*time.Minute), "cli_1"); err != nil {
			t.Fatalf("unlimited caps must admit %s: %v", hhmm, err)
		}
	}
}

func TestClientDailyLimit(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30, func(in *service.RuleInput) { in.MaxBookingsPerClientPerDay = intp(1) })

	if _, err := h.book(at(monday, "09:00"), at(monday, "09:30"), "cli_1"); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := h.book(at(monday, "10:00"), at(monday, "10:30"), "cli_1"); !errors.Is(err, apperr.ErrClientDailyLimitReached) {
		t.Fatalf("expected ClientDailyLimitReached, got %v", err)
	}
	if _, err := h.book(at(monday, "10:00"), at(monday, "10:30"), "cli_2"); err != nil {
		t.Fatalf("other client must still book: %v", err)
	}
}

func TestCreateValidationOrder(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30, func(in *service.RuleInput) { in.MaxDurationMinutes = intp(60) })
	if _, err := h.book(at(monday, "09:00"), at(monday, "09:30"), "cli_1"); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	cases := []struct {
		name       string
		start, end time.Time
		want       error
	}{
		{"inverted", at(monday, "10:00"), at(monday, "09:30"), apperr.ErrInvalidTimeRange},
		{"past", at(monday, "06:00"), at(monday, "06:30"), apperr.ErrBookingInPast},
		{"overlap", at(monday, "09:15"), at(monday, "09:45"), apperr.ErrBookingOverlap},
		{"outside hours", at(monday, "13:00"), at(monday, "13:30"), apperr.ErrSlotNotAvailable},
		{"off grid", at(monday, "10:10"), at(monday, "10:40"), apperr.ErrSlotNotAvailable},
		{"not a slot multiple", at(monday, "10:00"), at(monday, "10:45"), apperr.ErrInvalidDurationForSlot},
		{"too long", at(monday, "10:00"), at(monday, "11:30"), apperr.ErrMaxDurationExceeded},
		{"closed day", at(monday.AddDate(0, 0, 1), "10:00"), at(monday.AddDate(0, 0, 1), "10:30"), apperr.ErrSlotNotAvailable},
	}
	for _, tc := range cases {
		if _, err := h.book(tc.start, tc.end, "cli_2"); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if _, err := h.book(at(monday, "10:00"), at(monday, "11:00"), "cli_2"); err != nil {
		t.Fatalf("two-slot booking must succeed: %v", err)
	}
	if _, err := h.bookings.Create(context.Background(), service.CreateBookingInput{ProviderID: "prov_1"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for missing client, got %v", err)
	}
}

func TestConcurrentCreateExactlyOneWins(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = h.book(at(monday, "10:00"), at(monday, "10:30"), "cli_1")
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperr.ErrBookingOverlap):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	booked, err := h.bookings.List(context.Background(), "prov_1", monday, monday.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(booked) != 1 {
		t.Fatalf("expected one stored booking, got %d", len(booked))
	}
}

func TestIdempotencyKeyReplaysBooking(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30)

	in := service.CreateBookingInput{
		ProviderID:     "prov_1",
		ClientID:       "cli_1",
		StartAt:        at(monday, "10:00"),
		EndAt:          at(monday, "10:30"),
		IdempotencyKey: "req-123",
	}
	first, err := h.bookings.Create(context.Background(), in)
	if err != nil || first.Replayed {
		t.Fatalf("first create: %+v %v", first, err)
	}
	second, err := h.bookings.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("replay must not fail: %v", err)
	}
	if !second.Replayed || second.Booking.ID != first.Booking.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Booking.ID, second)
	}

	created := 0
	for _, evt := range h.store.Events() {
		if evt.EventType == outbox.EventBookingCreated {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected one created event, got %d", created)
	}
}

func TestCancelFreesSlotAndIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30)
	b, err := h.book(at(monday, "10:00"), at(monday, "10:30"), "cli_1")
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	cancelled, err := h.bookings.Cancel(context.Background(), b.ID, "changed plans")
	if err != nil || cancelled.Status != model.StatusCancelled {
		t.Fatalf("cancel: %+v %v", cancelled, err)
	}
	again, err := h.bookings.Cancel(context.Background(), b.ID, "twice")
	if err != nil || again.CancelReason != "changed plans" {
		t.Fatalf("re-cancel must be a no-op: %+v %v", again, err)
	}
	if got := h.slots(t, monday); len(got) != 6 {
		t.Fatalf("expected the slot back, got %v", got)
	}
	if _, err := h.bookings.Complete(context.Background(), b.ID); !errors.Is(err, apperr.ErrInvalidStatusTransition) {
		t.Fatalf("expected InvalidStatusTransition, got %v", err)
	}

	var cancelEvents int
	for _, evt := range h.store.Events() {
		if evt.EventType == outbox.EventBookingCancelled {
			cancelEvents++
		}
	}
	if cancelEvents != 1 {
		t.Fatalf("expected one cancel event, got %d", cancelEvents)
	}

	if _, err := h.book(at(monday, "10:00"), at(monday, "10:30"), "cli_2"); err != nil {
		t.Fatalf("slot must be bookable again: %v", err)
	}
}

func TestCompleteAndNoShow(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30)
	a, _ := h.book(at(monday, "09:00"), at(monday, "09:30"), "cli_1")
	b, _ := h.book(at(monday, "09:30"), at(monday, "10:00"), "cli_2")

	done, err := h.bookings.Complete(context.Background(), a.ID)
	if err != nil || done.Status != model.StatusCompleted {
		t.Fatalf("complete: %+v %v", done, err)
	}
	missed, err := h.bookings.MarkNoShow(context.Background(), b.ID)
	if err != nil || missed.Status != model.StatusNoShow {
		t.Fatalf("no-show: %+v %v", missed, err)
	}
	if _, err := h.bookings.Cancel(context.Background(), b.ID, ""); !errors.Is(err, apperr.ErrInvalidStatusTransition) {
		t.Fatalf("no-show booking must not be cancellable, got %v", err)
	}
	if _, err := h.bookings.Cancel(context.Background(), "book_missing", ""); !errors.Is(err, apperr.ErrBookingNotFound) {
		t.Fatalf("expected BookingNotFound, got %v", err)
	}

	got, err := h.bookings.Get(context.Background(), a.ID)
	if err != nil || got.Status != model.StatusCompleted {
		t.Fatalf("get: %+v %v", got, err)
	}
}

func TestSpecificDateAndOverridePrecedence(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30)
	h.weekly(t, time.Monday, "14:00", "15:00", 30)

	if got := h.slots(t, monday); len(got) != 8 {
		t.Fatalf("expected split shift union of 8 slots, got %v", got)
	}

	if _, err := h.schedule.CreateRule(context.Background(), service.RuleInput{
		ProviderID:          "prov_1",
		Kind:                model.RuleSpecificDate,
		Date:                "2025-01-06",
		StartTime:           "16:00",
		EndTime:             "17:00",
		SlotDurationMinutes: 60,
	}); err != nil {
		t.Fatalf("CreateRule specific: %v", err)
	}
	if got := h.slots(t, monday); !equal(got, []string{"16:00"}) {
		t.Fatalf("expected specific-date rule only, got %v", got)
	}

	if _, err := h.schedule.CreateException(context.Background(), service.ExceptionInput{
		ProviderID:          "prov_1",
		Date:                "2025-01-06",
		Kind:                model.ExceptionOverride,
		StartTime:           "08:00",
		EndTime:             "09:00",
		SlotDurationMinutes: intp(20),
	}); err != nil {
		t.Fatalf("CreateException override: %v", err)
	}
	if got := h.slots(t, monday); !equal(got, []string{"08:00", "08:20", "08:40"}) {
		t.Fatalf("expected override slots, got %v", got)
	}

	// Booking on an override day follows the override's grid.
	if _, err := h.book(at(monday, "08:20"), at(monday, "08:40"), "cli_1"); err != nil {
		t.Fatalf("book on override: %v", err)
	}
}

func TestTimedBlockSplitsDay(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 60)
	if _, err := h.schedule.CreateException(context.Background(), service.ExceptionInput{
		ProviderID: "prov_1",
		Date:       "2025-01-06",
		Kind:       model.ExceptionBlock,
		StartTime:  "10:00",
		EndTime:    "10:30",
	}); err != nil {
		t.Fatalf("CreateException: %v", err)
	}
	// 10:30-12:00 leaves one full hour plus a 30 minute sliver.
	if got := h.slots(t, monday); !equal(got, []string{"09:00", "10:30"}) {
		t.Fatalf("expected [09:00 10:30], got %v", got)
	}
}

func TestGetAvailableDaysInclusive(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30)
	h.weekly(t, time.Wednesday, "09:00", "12:00", 30)

	days, err := h.avail.GetAvailableDays(context.Background(), "prov_1", 7)
	if err != nil {
		t.Fatalf("GetAvailableDays: %v", err)
	}
	want := []string{"2025-01-06", "2025-01-08", "2025-01-13"}
	got := make([]string, 0, len(days))
	for _, d := range days {
		got = append(got, d.Format(model.DateLayout))
	}
	if !equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if _, err := h.avail.GetAvailableDays(context.Background(), "prov_1", -1); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Past the working hours of today, today drops out.
	h.clock.Set(at(monday, "12:30"))
	days, err = h.avail.GetAvailableDays(context.Background(), "prov_1", 2)
	if err != nil {
		t.Fatalf("GetAvailableDays: %v", err)
	}
	if len(days) != 1 || days[0].Format(model.DateLayout) != "2025-01-08" {
		t.Fatalf("expected only Wednesday, got %v", days)
	}
}

func TestRuleCRUD(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	r := h.weekly(t, time.Monday, "09:00", "12:00", 30)
	if len(r.ID) < 5 || r.ID[:4] != "brl_" {
		t.Fatalf("expected brl_ id, got %q", r.ID)
	}

	updated, err := h.schedule.UpdateRule(ctx, r.ID, service.RuleInput{
		ProviderID:          "prov_1",
		Kind:                model.RuleWeekly,
		Weekday:             intp(int(time.Monday)),
		StartTime:           "10:00",
		EndTime:             "11:00",
		SlotDurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if updated.ID != r.ID || !updated.CreatedAt.Equal(r.CreatedAt) {
		t.Fatalf("update must keep identity: %+v", updated)
	}
	if got := h.slots(t, monday); !equal(got, []string{"10:00"}) {
		t.Fatalf("expected updated slots, got %v", got)
	}

	if _, err := h.schedule.CreateRule(ctx, service.RuleInput{
		ProviderID: "prov_1", Kind: model.RuleWeekly, Weekday: intp(1), StartTime: "12:00", EndTime: "09:00", SlotDurationMinutes: 30,
	}); !errors.Is(err, apperr.ErrInvalidTimeRange) {
		t.Fatalf("expected InvalidTimeRange, got %v", err)
	}
	if _, err := h.schedule.CreateRule(ctx, service.RuleInput{
		ProviderID: "prov_1", Kind: model.RuleWeekly, StartTime: "09:00", EndTime: "12:00", SlotDurationMinutes: 30,
	}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for missing weekday, got %v", err)
	}

	rules, err := h.schedule.ListRules(ctx, "prov_1")
	if err != nil || len(rules) != 1 {
		t.Fatalf("ListRules: %v %v", rules, err)
	}
	if err := h.schedule.DeleteRule(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if _, err := h.schedule.GetRule(ctx, r.ID); !errors.Is(err, apperr.ErrRuleNotFound) {
		t.Fatalf("expected RuleNotFound, got %v", err)
	}
	if err := h.schedule.DeleteRule(ctx, r.ID); !errors.Is(err, apperr.ErrRuleNotFound) {
		t.Fatalf("expected RuleNotFound on second delete, got %v", err)
	}
}

func TestExceptionCRUDAndPurge(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.weekly(t, time.Monday, "09:00", "12:00", 30)

	e, err := h.schedule.CreateException(ctx, service.ExceptionInput{ProviderID: "prov_1", Date: "2025-01-06", Kind: model.ExceptionBlock})
	if err != nil {
		t.Fatalf("CreateException: %v", err)
	}
	if _, err := h.schedule.UpdateException(ctx, e.ID, service.ExceptionInput{
		ProviderID: "prov_1", Date: "2025-01-06", Kind: model.ExceptionBlock, StartTime: "09:00", EndTime: "10:00",
	}); err != nil {
		t.Fatalf("UpdateException: %v", err)
	}
	if got := h.slots(t, monday); len(got) != 4 {
		t.Fatalf("expected 4 slots after narrowing the block, got %v", got)
	}
	if _, err := h.schedule.CreateException(ctx, service.ExceptionInput{
		ProviderID: "prov_1", Date: "2025-01-06", Kind: model.ExceptionOverride, StartTime: "09:00", EndTime: "10:00",
	}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("override without slot duration must fail validation, got %v", err)
	}

	n, err := h.schedule.PurgeProvider(ctx, "prov_1")
	if err != nil || n != 2 {
		t.Fatalf("PurgeProvider: %d %v", n, err)
	}
	if got := h.slots(t, monday); len(got) != 0 {
		t.Fatalf("expected no slots after purge, got %v", got)
	}
	if _, err := h.schedule.GetException(ctx, e.ID); !errors.Is(err, apperr.ErrExceptionNotFound) {
		t.Fatalf("expected ExceptionNotFound, got %v", err)
	}
}

// fakeCache keys days by provider version the way SlotCache does.
type fakeCache struct {
	mu          sync.Mutex
	entries     map[string][]availability.Window
	versions    map[string]int64
	hits        int
	invalidated int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]availability.Window{}, versions: map[string]int64{}}
}

func (c *fakeCache) key(providerID string, version int64, date time.Time) string {
	return fmt.Sprintf("%s|%d|%s", providerID, version, date.Format(model.DateLayout))
}

func (c *fakeCache) Get(_ context.Context, providerID string, date time.Time) ([]availability.Window, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.versions[providerID]
	w, ok := c.entries[c.key(providerID, v, date)]
	if ok {
		c.hits++
	}
	return w, v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, providerID string, date time.Time, version int64, windows []availability.Window) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(providerID, version, date)] = windows
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, providerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[providerID]++
	c.invalidated++
	return nil
}

// hookedExceptions runs afterRead once, after the exception read and before its result is returned.
type hookedExceptions struct {
	*memory.Store
	once      sync.Once
	afterRead func()
}

func (e *hookedExceptions) ListByProviderAndDate(ctx context.Context, providerID string, date time.Time) ([]model.AvailabilityException, error) {
	out, err := e.Store.ListByProviderAndDate(ctx, providerID, date)
	e.once.Do(e.afterRead)
	return out, err
}

func TestWindowCacheIsInvalidatedOnScheduleChange(t *testing.T) {
	cache := newFakeCache()
	h := newHarness(t, cache)
	r := h.weekly(t, time.Monday, "09:00", "12:00", 30)

	h.slots(t, monday)
	h.slots(t, monday)
	if cache.hits != 1 {
		t.Fatalf("expected one cache hit, got %d", cache.hits)
	}

	if err := h.schedule.DeleteRule(context.Background(), r.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if cache.invalidated != 2 {
		t.Fatalf("expected invalidation on create and delete, got %d", cache.invalidated)
	}
	if got := h.slots(t, monday); len(got) != 0 {
		t.Fatalf("stale cache served after delete: %v", got)
	}
}

func TestScheduleChangeDuringCacheFillIsNotCached(t *testing.T) {
	cache := newFakeCache()
	h := newHarness(t, cache)
	h.weekly(t, time.Monday, "09:00", "12:00", 30)

	opts := service.Options{Location: time.UTC, Now: h.clock.Now, MaxDaysAhead: 30}
	exceptions := &hookedExceptions{Store: h.store}
	exceptions.afterRead = func() {
		if _, err := h.schedule.CreateException(context.Background(), service.ExceptionInput{
			ProviderID: "prov_1",
			Date:       "2025-01-06",
			Kind:       model.ExceptionBlock,
			Reason:     "closed",
		}); err != nil {
			t.Errorf("CreateException: %v", err)
		}
	}
	filler := service.NewAvailabilityService(h.store, exceptions, h.store, cache, opts)

	// The filling read saw the day before the block committed.
	stale, err := filler.GetSlotsForDay(context.Background(), "prov_1", monday)
	if err != nil {
		t.Fatalf("GetSlotsForDay: %v", err)
	}
	if len(stale) != 6 {
		t.Fatalf("expected the pre-block read to see 6 slots, got %d", len(stale))
	}

	if got := h.slots(t, monday); len(got) != 0 {
		t.Fatalf("windows loaded before the block were served after it: %v", got)
	}
	if _, err := h.book(at(monday, "10:00"), at(monday, "10:30"), "cli_1"); !errors.Is(err, apperr.ErrSlotNotAvailable) {
		t.Fatalf("expected SlotNotAvailable on a blocked day, got %v", err)
	}
}

func TestCreateReadsScheduleFromStore(t *testing.T) {
	cache := newFakeCache()
	h := newHarness(t, cache)
	h.weekly(t, time.Monday, "09:00", "12:00", 30)
	h.slots(t, monday)

	// A lost invalidation leaves the old day cached.
	if err := h.store.InScheduleTx(context.Background(), func(ctx context.Context, tx service.ScheduleTx) error {
		return tx.InsertException(ctx, model.AvailabilityException{
			ID:         "bex_direct",
			ProviderID: "prov_1",
			Date:       monday,
			Kind:       model.ExceptionBlock,
		})
	}); err != nil {
		t.Fatalf("InScheduleTx: %v", err)
	}
	if got := h.slots(t, monday); len(got) != 6 {
		t.Fatalf("expected cached listing of 6 slots, got %v", got)
	}
	if _, err := h.book(at(monday, "10:00"), at(monday, "10:30"), "cli_1"); !errors.Is(err, apperr.ErrSlotNotAvailable) {
		t.Fatalf("expected SlotNotAvailable from the store's schedule, got %v", err)
	}
}

func TestCreateHonoursCancelledContext(t *testing.T) {
	h := newHarness(t, nil)
	h.weekly(t, time.Monday, "09:00", "12:00", 30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.bookings.Create(ctx, service.CreateBookingInput{
		ProviderID: "prov_1",
		ClientID:   "cli_1",
		StartAt:    at(monday, "10:00"),
		EndAt:      at(monday, "10:30"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	booked, _ := h.bookings.List(context.Background(), "prov_1", monday, monday.AddDate(0, 0, 1))
	if len(booked) != 0 {
		t.Fatalf("no booking may be persisted, got %d", len(booked))
	}
}
