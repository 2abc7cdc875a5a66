package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/outbox"
)

// ScheduleService manages availability rules and exceptions.
type ScheduleService struct {
	store  ScheduleStore
	cache  WindowCache
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewScheduleService(store ScheduleStore, cache WindowCache, opts Options) *ScheduleService {
	opts = opts.withDefaults()
	return &ScheduleService{store: store, cache: cache, logger: opts.Logger, loc: opts.Location, now: opts.Now}
}

type RuleInput struct {
	ProviderID                 string         `json:"provider_id" validate:"required,max=64"`
	Kind                       model.RuleKind `json:"kind" validate:"required,oneof=weekly specific_date"`
	Weekday                    *int           `json:"weekday,omitempty" validate:"omitempty,min=0,max=6"`
	Date                       string         `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartTime                  string         `json:"start_time" validate:"required"`
	EndTime                    string         `json:"end_time" validate:"required"`
	SlotDurationMinutes        int            `json:"slot_duration_minutes" validate:"required,min=1,max=1440"`
	MinAdvanceMinutes          *int           `json:"min_advance_minutes,omitempty" validate:"omitempty,min=0"`
	MaxDurationMinutes         *int           `json:"max_duration_minutes,omitempty" validate:"omitempty,min=0"`
	MaxBookingsPerDay          *int           `json:"max_bookings_per_day,omitempty" validate:"omitempty,eq=-1|min=1"`
	MaxBookingsPerClientPerDay *int           `json:"max_bookings_per_client_per_day,omitempty" validate:"omitempty,eq=-1|min=1"`
	Metadata                   map[string]any `json:"metadata,omitempty"`
}

type ExceptionInput struct {
	ProviderID          string              `json:"provider_id" validate:"required,max=64"`
	Date                string              `json:"date" validate:"required,datetime=2006-01-02"`
	Kind                model.ExceptionKind `json:"kind" validate:"required,oneof=block override"`
	StartTime           string              `json:"start_time,omitempty"`
	EndTime             string              `json:"end_time,omitempty"`
	SlotDurationMinutes *int                `json:"slot_duration_minutes,omitempty" validate:"omitempty,min=1,max=1440"`
	Reason              string              `json:"reason,omitempty" validate:"max=500"`
}

func (s *ScheduleService) CreateRule(ctx context.Context, in RuleInput) (model.AvailabilityRule, error) {
	now := s.now()
	r, err := s.buildRule(in)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	r.ID = newID(rulePrefix)
	r.CreatedAt, r.UpdatedAt = now, now

	err = s.mutate(ctx, r.ProviderID, func(ctx context.Context, tx ScheduleTx) error {
		if err := tx.InsertRule(ctx, r); err != nil {
			return err
		}
		return emitSchedule(ctx, tx, r.ProviderID, "rule", r.ID, "created", now)
	})
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	return r, nil
}

// UpdateRule replaces every field of the rule except its id, provider and creation time.
func (s *ScheduleService) UpdateRule(ctx context.Context, id string, in RuleInput) (model.AvailabilityRule, error) {
	existing, err := s.GetRule(ctx, id)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	if in.ProviderID != existing.ProviderID {
		return model.AvailabilityRule{}, apperr.New(apperr.KindValidation, "provider_id cannot change").With("rule_id", id)
	}
	r, err := s.buildRule(in)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	now := s.now()
	r.ID, r.CreatedAt, r.UpdatedAt = existing.ID, existing.CreatedAt, now

	err = s.mutate(ctx, r.ProviderID, func(ctx context.Context, tx ScheduleTx) error {
		if err := tx.UpdateRule(ctx, r); err != nil {
			return err
		}
		return emitSchedule(ctx, tx, r.ProviderID, "rule", r.ID, "updated", now)
	})
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	return r, nil
}

func (s *ScheduleService) DeleteRule(ctx context.Context, id string) error {
	existing, err := s.GetRule(ctx, id)
	if err != nil {
		return err
	}
	return s.mutate(ctx, existing.ProviderID, func(ctx context.Context, tx ScheduleTx) error {
		if err := tx.DeleteRule(ctx, id); err != nil {
			return err
		}
		return emitSchedule(ctx, tx, existing.ProviderID, "rule", id, "deleted", s.now())
	})
}

func (s *ScheduleService) GetRule(ctx context.Context, id string) (model.AvailabilityRule, error) {
	if id == "" {
		return model.AvailabilityRule{}, apperr.New(apperr.KindValidation, "id is required")
	}
	return s.store.GetRule(ctx, id)
}

func (s *ScheduleService) ListRules(ctx context.Context, providerID string) ([]model.AvailabilityRule, error) {
	if providerID == "" {
		return nil, apperr.New(apperr.KindValidation, "provider_id is required")
	}
	return s.store.ListRules(ctx, providerID)
}

func (s *ScheduleService) CreateException(ctx context.Context, in ExceptionInput) (model.AvailabilityException, error) {
	now := s.now()
	e, err := s.buildException(in)
	if err != nil {
		return model.AvailabilityException{}, err
	}
	e.ID = newID(exceptionPrefix)
	e.CreatedAt, e.UpdatedAt = now, now

	err = s.mutate(ctx, e.ProviderID, func(ctx context.Context, tx ScheduleTx) error {
		if err := tx.InsertException(ctx, e); err != nil {
			return err
		}
		return emitSchedule(ctx, tx, e.ProviderID, "exception", e.ID, "created", now, e.Date)
	})
	if err != nil {
		return model.AvailabilityException{}, err
	}
	return e, nil
}

func (s *ScheduleService) UpdateException(ctx context.Context, id string, in ExceptionInput) (model.AvailabilityException, error) {
	existing, err := s.GetException(ctx, id)
	if err != nil {
		return model.AvailabilityException{}, err
	}
	if in.ProviderID != existing.ProviderID {
		return model.AvailabilityException{}, apperr.New(apperr.KindValidation, "provider_id cannot change").With("exception_id", id)
	}
	e, err := s.buildException(in)
	if err != nil {
		return model.AvailabilityException{}, err
	}
	now := s.now()
	e.ID, e.CreatedAt, e.UpdatedAt = existing.ID, existing.CreatedAt, now

	err = s.mutate(ctx, e.ProviderID, func(ctx context.Context, tx ScheduleTx) error {
		if err := tx.UpdateException(ctx, e); err != nil {
			return err
		}
		return emitSchedule(ctx, tx, e.ProviderID, "exception", e.ID, "updated", now, existing.Date, e.Date)
	})
	if err != nil {
		return model.AvailabilityException{}, err
	}
	return e, nil
}

func (s *ScheduleService) DeleteException(ctx context.Context, id string) error {
	existing, err := s.GetException(ctx, id)
	if err != nil {
		return err
	}
	return s.mutate(ctx, existing.ProviderID, func(ctx context.Context, tx ScheduleTx) error {
		if err := tx.DeleteException(ctx, id); err != nil {
			return err
		}
		return emitSchedule(ctx, tx, existing.ProviderID, "exception", id, "deleted", s.now(), existing.Date)
	})
}

func (s *ScheduleService) GetException(ctx context.Context, id string) (model.AvailabilityException, error) {
	if id == "" {
		return model.AvailabilityException{}, apperr.New(apperr.KindValidation, "id is required")
	}
	return s.store.GetException(ctx, id)
}

func (s *ScheduleService) ListExceptions(ctx context.Context, providerID string) ([]model.AvailabilityException, error) {
	if providerID == "" {
		return nil, apperr.New(apperr.KindValidation, "provider_id is required")
	}
	return s.store.ListExceptions(ctx, providerID)
}

// PurgeProvider removes every rule and exception of a provider. Bookings are kept as history.
func (s *ScheduleService) PurgeProvider(ctx context.Context, providerID string) (int64, error) {
	if providerID == "" {
		return 0, apperr.New(apperr.KindValidation, "provider_id is required")
	}
	var removed int64
	err := s.mutate(ctx, providerID, func(ctx context.Context, tx ScheduleTx) error {
		n, err := tx.DeleteProviderSchedule(ctx, providerID)
		if err != nil {
			return err
		}
		removed = n
		if n == 0 {
			return nil
		}
		return emitSchedule(ctx, tx, providerID, "provider", providerID, "purged", s.now())
	})
	return removed, err
}

func (s *ScheduleService) mutate(ctx context.Context, providerID string, fn func(ctx context.Context, tx ScheduleTx) error) error {
	if err := s.store.InScheduleTx(ctx, fn); err != nil {
		if _, ok := apperr.As(err); ok {
			return err
		}
		return fmt.Errorf("update schedule of %s: %w", providerID, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, providerID); err != nil {
			s.logger.Warn("slot cache invalidation failed", "err", err, "provider_id", providerID)
		}
	}
	return nil
}

func emitSchedule(ctx context.Context, tx ScheduleTx, providerID, entity, entityID, action string, at time.Time, dates ...time.Time) error {
	p := outbox.SchedulePayload{
		ProviderID: providerID,
		Entity:     entity,
		EntityID:   entityID,
		Action:     action,
		OccurredAt: at,
	}
	if len(dates) > 0 {
		p.Date = dates[len(dates)-1].Format(model.DateLayout)
	}
	evt, err := outbox.NewScheduleEvent(p)
	if err != nil {
		return err
	}
	return tx.Emit(ctx, evt)
}

func (s *ScheduleService) buildRule(in RuleInput) (model.AvailabilityRule, error) {
	if err := validateInput(in); err != nil {
		return model.AvailabilityRule{}, err
	}
	start, err := model.ParseTimeOfDay(in.StartTime)
	if err != nil {
		return model.AvailabilityRule{}, apperr.New(apperr.KindValidation, "invalid start_time").Wrap(err)
	}
	end, err := model.ParseTimeOfDay(in.EndTime)
	if err != nil {
		return model.AvailabilityRule{}, apperr.New(apperr.KindValidation, "invalid end_time").Wrap(err)
	}

	r := model.AvailabilityRule{
		ProviderID:          in.ProviderID,
		Kind:                in.Kind,
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: in.SlotDurationMinutes,
		Limits: model.Limits{
			MinAdvanceMinutes:          in.MinAdvanceMinutes,
			MaxDurationMinutes:         in.MaxDurationMinutes,
			MaxBookingsPerDay:          in.MaxBookingsPerDay,
			MaxBookingsPerClientPerDay: in.MaxBookingsPerClientPerDay,
		},
		Metadata: in.Metadata,
	}
	if in.Weekday != nil {
		wd := time.Weekday(*in.Weekday)
		r.Weekday = &wd
	}
	if in.Date != "" {
		d, err := model.ParseDate(in.Date, s.loc)
		if err != nil {
			return model.AvailabilityRule{}, apperr.New(apperr.KindValidation, "invalid date").Wrap(err)
		}
		r.Date = &d
	}
	if err := r.Validate(); err != nil {
		return model.AvailabilityRule{}, err
	}
	return r, nil
}

func (s *ScheduleService) buildException(in ExceptionInput) (model.AvailabilityException, error) {
	if err := validateInput(in); err != nil {
		return model.AvailabilityException{}, err
	}
	d, err := model.ParseDate(in.Date, s.loc)
	if err != nil {
		return model.AvailabilityException{}, apperr.New(apperr.KindValidation, "invalid date").Wrap(err)
	}
	e := model.AvailabilityException{
		ProviderID:          in.ProviderID,
		Date:                d,
		Kind:                in.Kind,
		SlotDurationMinutes: in.SlotDurationMinutes,
		Reason:              in.Reason,
	}
	if in.StartTime != "" {
		t, err := model.ParseTimeOfDay(in.StartTime)
		if err != nil {
			return model.AvailabilityException{}, apperr.New(apperr.KindValidation, "invalid start_time").Wrap(err)
		}
		e.StartTime = &t
	}
	if in.EndTime != "" {
		t, err := model.ParseTimeOfDay(in.EndTime)
		if err != nil {
			return model.AvailabilityException{}, apperr.New(apperr.KindValidation, "invalid end_time").Wrap(err)
		}
		e.EndTime = &t
	}
	if err := e.Validate(); err != nil {
		return model.AvailabilityException{}, err
	}
	return e, nil
}
