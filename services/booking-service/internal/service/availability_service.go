package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/availability"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("booking-service/service")

type AvailabilityService struct {
	rules       RuleReader
	exceptions  ExceptionReader
	bookings    BookingReader
	cache       WindowCache
	logger      *slog.Logger
	loc         *time.Location
	now         func() time.Time
	maxDays     int
	concurrency int
}

// NewAvailabilityService wires the read path. cache may be nil.
func NewAvailabilityService(rules RuleReader, exceptions ExceptionReader, bookings BookingReader, cache WindowCache, opts Options) *AvailabilityService {
	opts = opts.withDefaults()
	return &AvailabilityService{
		rules:       rules,
		exceptions:  exceptions,
		bookings:    bookings,
		cache:       cache,
		logger:      opts.Logger,
		loc:         opts.Location,
		now:         opts.Now,
		maxDays:     opts.MaxDaysAhead,
		concurrency: opts.DayConcurrency,
	}
}

func (s *AvailabilityService) Location() *time.Location { return s.loc }

// Windows resolves rules and exceptions for the provider's date into governed windows.
// The cache version is read before the store so a concurrent schedule change cannot be
// cached as current.
func (s *AvailabilityService) Windows(ctx context.Context, providerID string, date time.Time) ([]availability.Window, error) {
	date = model.DateOf(date, s.loc)
	if s.cache == nil {
		return s.load(ctx, providerID, date)
	}

	cached, version, hit, err := s.cache.Get(ctx, providerID, date)
	if err != nil {
		s.logger.Warn("slot cache read failed", "err", err, "provider_id", providerID)
		return s.load(ctx, providerID, date)
	}
	if hit {
		return cached, nil
	}

	windows, err := s.load(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, providerID, date, version, windows); err != nil {
		s.logger.Warn("slot cache write failed", "err", err, "provider_id", providerID)
	}
	return windows, nil
}

// load reads the day straight from the store, bypassing the cache.
func (s *AvailabilityService) load(ctx context.Context, providerID string, date time.Time) ([]availability.Window, error) {
	date = model.DateOf(date, s.loc)
	specific, err := s.rules.FindByProviderAndDate(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("find specific-date rules: %w", err)
	}
	var weekly []model.AvailabilityRule
	if len(specific) == 0 {
		weekly, err = s.rules.FindWeeklyByWeekday(ctx, providerID, date.Weekday())
		if err != nil {
			return nil, fmt.Errorf("find weekly rules: %w", err)
		}
	}
	exceptions, err := s.exceptions.ListByProviderAndDate(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	return availability.ApplyExceptions(date, availability.ResolveRules(date, specific, weekly), exceptions), nil
}

// GetSlotsForDay returns the bookable slots of date in chronological order.
func (s *AvailabilityService) GetSlotsForDay(ctx context.Context, providerID string, date time.Time) ([]availability.Slot, error) {
	if providerID == "" {
		return nil, apperr.New(apperr.KindValidation, "provider_id is required")
	}
	date = model.DateOf(date, s.loc)

	ctx, span := tracer.Start(ctx, "availability.day", trace.WithAttributes(
		attribute.String("provider_id", providerID),
		attribute.String("date", date.Format(model.DateLayout)),
	))
	defer span.End()

	windows, err := s.Windows(ctx, providerID, date)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	slots := availability.FilterLeadTime(availability.GenerateSlots(date, windows), s.now())
	if len(slots) == 0 {
		return nil, nil
	}

	booked, err := s.bookings.FindOverlapping(ctx, providerID, slots[0].Start, slots[len(slots)-1].End)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("find bookings: %w", err)
	}
	slots = availability.RemoveBooked(slots, booked)
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return slots, nil
}

// GetAvailableDays returns every date from today through today+daysAhead with at least one slot.
// daysAhead is capped at the configured maximum.
func (s *AvailabilityService) GetAvailableDays(ctx context.Context, providerID string, daysAhead int) ([]time.Time, error) {
	if providerID == "" {
		return nil, apperr.New(apperr.KindValidation, "provider_id is required")
	}
	if daysAhead < 0 {
		return nil, apperr.New(apperr.KindValidation, "days_ahead must not be negative").With("days_ahead", daysAhead)
	}
	if daysAhead > s.maxDays {
		daysAhead = s.maxDays
	}

	today := model.DateOf(s.now(), s.loc)
	open := make([]bool, daysAhead+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range open {
		date := today.AddDate(0, 0, i)
		g.Go(func() error {
			slots, err := s.GetSlotsForDay(gctx, providerID, date)
			if err != nil {
				return fmt.Errorf("%s: %w", date.Format(model.DateLayout), err)
			}
			open[i] = len(slots) > 0
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var days []time.Time
	for i, ok := range open {
		if ok {
			days = append(days, today.AddDate(0, 0, i))
		}
	}
	return days, nil
}
