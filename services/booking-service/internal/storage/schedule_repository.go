package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

const ruleColumns = `id, provider_id, kind, weekday, rule_date::text, start_minute, end_minute, slot_duration_minutes,
	min_advance_minutes, max_duration_minutes, max_bookings_per_day, max_bookings_per_client_per_day,
	metadata, created_at, updated_at`

const exceptionColumns = `id, provider_id, exception_date::text, kind, start_minute, end_minute, slot_duration_minutes,
	reason, created_at, updated_at`

func (r *Repository) FindWeeklyByWeekday(ctx context.Context, providerID string, weekday time.Weekday) ([]model.AvailabilityRule, error) {
	return r.queryRules(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE provider_id = $1 AND kind = 'weekly' AND weekday = $2
		ORDER BY created_at, id
	`, providerID, int(weekday))
}

func (r *Repository) FindByProviderAndDate(ctx context.Context, providerID string, date time.Time) ([]model.AvailabilityRule, error) {
	return r.queryRules(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE provider_id = $1 AND kind = 'specific_date' AND rule_date = $2::date
		ORDER BY created_at, id
	`, providerID, date.Format(model.DateLayout))
}

func (r *Repository) ListRules(ctx context.Context, providerID string) ([]model.AvailabilityRule, error) {
	return r.queryRules(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE provider_id = $1
		ORDER BY created_at, id
	`, providerID)
}

func (r *Repository) GetRule(ctx context.Context, id string) (model.AvailabilityRule, error) {
	rule, err := r.scanRule(r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM availability_rules WHERE id = $1`, id))
	if err != nil {
		return model.AvailabilityRule{}, notFound(err, apperr.KindRuleNotFound, "rule", "rule_id", id)
	}
	return rule, nil
}

func (r *Repository) queryRules(ctx context.Context, sql string, args ...any) ([]model.AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.AvailabilityRule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

func (r *Repository) scanRule(row scanner) (model.AvailabilityRule, error) {
	var (
		rule       model.AvailabilityRule
		weekday    *int16
		date       *string
		start, end int
		metadata   []byte
	)
	if err := row.Scan(
		&rule.ID,
		&rule.ProviderID,
		&rule.Kind,
		&weekday,
		&date,
		&start,
		&end,
		&rule.SlotDurationMinutes,
		&rule.MinAdvanceMinutes,
		&rule.MaxDurationMinutes,
		&rule.MaxBookingsPerDay,
		&rule.MaxBookingsPerClientPerDay,
		&metadata,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return model.AvailabilityRule{}, err
	}
	rule.StartTime, rule.EndTime = model.TimeOfDay(start), model.TimeOfDay(end)
	if weekday != nil {
		wd := time.Weekday(*weekday)
		rule.Weekday = &wd
	}
	if date != nil {
		d, err := model.ParseDate(*date, r.loc)
		if err != nil {
			return model.AvailabilityRule{}, err
		}
		rule.Date = &d
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rule.Metadata); err != nil {
			return model.AvailabilityRule{}, err
		}
	}
	return rule, nil
}

func (r *Repository) ListByProviderAndDate(ctx context.Context, providerID string, date time.Time) ([]model.AvailabilityException, error) {
	return r.queryExceptions(ctx, `
		SELECT `+exceptionColumns+`
		FROM availability_exceptions
		WHERE provider_id = $1 AND exception_date = $2::date
		ORDER BY created_at, id
	`, providerID, date.Format(model.DateLayout))
}

func (r *Repository) ListExceptions(ctx context.Context, providerID string) ([]model.AvailabilityException, error) {
	return r.queryExceptions(ctx, `
		SELECT `+exceptionColumns+`
		FROM availability_exceptions
		WHERE provider_id = $1
		ORDER BY exception_date, created_at, id
	`, providerID)
}

func (r *Repository) GetException(ctx context.Context, id string) (model.AvailabilityException, error) {
	e, err := r.scanException(r.pool.QueryRow(ctx, `SELECT `+exceptionColumns+` FROM availability_exceptions WHERE id = $1`, id))
	if err != nil {
		return model.AvailabilityException{}, notFound(err, apperr.KindExceptionNotFound, "exception", "exception_id", id)
	}
	return e, nil
}

func (r *Repository) queryExceptions(ctx context.Context, sql string, args ...any) ([]model.AvailabilityException, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityException
	for rows.Next() {
		e, err := r.scanException(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) scanException(row scanner) (model.AvailabilityException, error) {
	var (
		e          model.AvailabilityException
		date       string
		start, end *int
	)
	if err := row.Scan(
		&e.ID,
		&e.ProviderID,
		&date,
		&e.Kind,
		&start,
		&end,
		&e.SlotDurationMinutes,
		&e.Reason,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return model.AvailabilityException{}, err
	}
	d, err := model.ParseDate(date, r.loc)
	if err != nil {
		return model.AvailabilityException{}, err
	}
	e.Date = d
	e.StartTime, e.EndTime = toTimeOfDay(start), toTimeOfDay(end)
	return e, nil
}

type scheduleTx struct {
	r  *Repository
	tx pgx.Tx
}

func (t *scheduleTx) InsertRule(ctx context.Context, rule model.AvailabilityRule) error {
	metadata, err := marshalMetadata(rule.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO availability_rules
			(id, provider_id, kind, weekday, rule_date, start_minute, end_minute, slot_duration_minutes,
			 min_advance_minutes, max_duration_minutes, max_bookings_per_day, max_bookings_per_client_per_day,
			 metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, rule.ID, rule.ProviderID, rule.Kind, weekdayParam(rule.Weekday), dateParam(rule.Date),
		int(rule.StartTime), int(rule.EndTime), rule.SlotDurationMinutes,
		rule.MinAdvanceMinutes, rule.MaxDurationMinutes, rule.MaxBookingsPerDay, rule.MaxBookingsPerClientPerDay,
		metadata, rule.CreatedAt, rule.UpdatedAt)
	return err
}

func (t *scheduleTx) UpdateRule(ctx context.Context, rule model.AvailabilityRule) error {
	metadata, err := marshalMetadata(rule.Metadata)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE availability_rules
		SET kind = $2,
			weekday = $3,
			rule_date = $4::date,
			start_minute = $5,
			end_minute = $6,
			slot_duration_minutes = $7,
			min_advance_minutes = $8,
			max_duration_minutes = $9,
			max_bookings_per_day = $10,
			max_bookings_per_client_per_day = $11,
			metadata = $12,
			updated_at = $13
		WHERE id = $1
	`, rule.ID, rule.Kind, weekdayParam(rule.Weekday), dateParam(rule.Date),
		int(rule.StartTime), int(rule.EndTime), rule.SlotDurationMinutes,
		rule.MinAdvanceMinutes, rule.MaxDurationMinutes, rule.MaxBookingsPerDay, rule.MaxBookingsPerClientPerDay,
		metadata, rule.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindRuleNotFound, "rule not found").With("rule_id", rule.ID)
	}
	return nil
}

func (t *scheduleTx) DeleteRule(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM availability_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindRuleNotFound, "rule not found").With("rule_id", id)
	}
	return nil
}

func (t *scheduleTx) InsertException(ctx context.Context, e model.AvailabilityException) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO availability_exceptions
			(id, provider_id, exception_date, kind, start_minute, end_minute, slot_duration_minutes, reason, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.ProviderID, e.Date.Format(model.DateLayout), e.Kind, minutesParam(e.StartTime), minutesParam(e.EndTime),
		e.SlotDurationMinutes, e.Reason, e.CreatedAt, e.UpdatedAt)
	return err
}

func (t *scheduleTx) UpdateException(ctx context.Context, e model.AvailabilityException) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE availability_exceptions
		SET exception_date = $2::date,
			kind = $3,
			start_minute = $4,
			end_minute = $5,
			slot_duration_minutes = $6,
			reason = $7,
			updated_at = $8
		WHERE id = $1
	`, e.ID, e.Date.Format(model.DateLayout), e.Kind, minutesParam(e.StartTime), minutesParam(e.EndTime),
		e.SlotDurationMinutes, e.Reason, e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindExceptionNotFound, "exception not found").With("exception_id", e.ID)
	}
	return nil
}

func (t *scheduleTx) DeleteException(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM availability_exceptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindExceptionNotFound, "exception not found").With("exception_id", id)
	}
	return nil
}

func (t *scheduleTx) DeleteProviderSchedule(ctx context.Context, providerID string) (int64, error) {
	rules, err := t.tx.Exec(ctx, `DELETE FROM availability_rules WHERE provider_id = $1`, providerID)
	if err != nil {
		return 0, err
	}
	exceptions, err := t.tx.Exec(ctx, `DELETE FROM availability_exceptions WHERE provider_id = $1`, providerID)
	if err != nil {
		return 0, err
	}
	return rules.RowsAffected() + exceptions.RowsAffected(), nil
}

func (t *scheduleTx) Emit(ctx context.Context, evt outbox.Event) error {
	return emit(ctx, t.r, t.tx, evt)
}

func weekdayParam(wd *time.Weekday) *int {
	if wd == nil {
		return nil
	}
	v := int(*wd)
	return &v
}

func dateParam(d *time.Time) *string {
	if d == nil {
		return nil
	}
	s := d.Format(model.DateLayout)
	return &s
}

func minutesParam(t *model.TimeOfDay) *int {
	if t == nil {
		return nil
	}
	v := int(*t)
	return &v
}

func toTimeOfDay(v *int) *model.TimeOfDay {
	if v == nil {
		return nil
	}
	t := model.TimeOfDay(*v)
	return &t
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
