package memory

import (
	"context"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/apperr"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/outbox"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/service"
)

type scheduleTx struct {
	s   *Store
	ops []func()
}

// InScheduleTx serialises schedule writers and applies staged writes once fn succeeds.
func (s *Store) InScheduleTx(ctx context.Context, fn func(ctx context.Context, tx service.ScheduleTx) error) error {
	if err := acquire(ctx, s.schedule); err != nil {
		return err
	}
	defer func() { <-s.schedule }()

	tx := &scheduleTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range tx.ops {
		op()
	}
	return nil
}

func (tx *scheduleTx) InsertRule(_ context.Context, r model.AvailabilityRule) error {
	tx.ops = append(tx.ops, func() {
		tx.s.seq++
		tx.s.rules[r.ID] = ruleRow{AvailabilityRule: r, seq: tx.s.seq}
	})
	return nil
}

func (tx *scheduleTx) UpdateRule(_ context.Context, r model.AvailabilityRule) error {
	tx.s.mu.RLock()
	row, ok := tx.s.rules[r.ID]
	tx.s.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.KindRuleNotFound, "rule not found").With("rule_id", r.ID)
	}
	tx.ops = append(tx.ops, func() { tx.s.rules[r.ID] = ruleRow{AvailabilityRule: r, seq: row.seq} })
	return nil
}

func (tx *scheduleTx) DeleteRule(_ context.Context, id string) error {
	tx.s.mu.RLock()
	_, ok := tx.s.rules[id]
	tx.s.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.KindRuleNotFound, "rule not found").With("rule_id", id)
	}
	tx.ops = append(tx.ops, func() { delete(tx.s.rules, id) })
	return nil
}

func (tx *scheduleTx) InsertException(_ context.Context, e model.AvailabilityException) error {
	tx.ops = append(tx.ops, func() {
		tx.s.seq++
		tx.s.exceptions[e.ID] = exceptionRow{AvailabilityException: e, seq: tx.s.seq}
	})
	return nil
}

func (tx *scheduleTx) UpdateException(_ context.Context, e model.AvailabilityException) error {
	tx.s.mu.RLock()
	row, ok := tx.s.exceptions[e.ID]
	tx.s.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.KindExceptionNotFound, "exception not found").With("exception_id", e.ID)
	}
	tx.ops = append(tx.ops, func() { tx.s.exceptions[e.ID] = exceptionRow{AvailabilityException: e, seq: row.seq} })
	return nil
}

func (tx *scheduleTx) DeleteException(_ context.Context, id string) error {
	tx.s.mu.RLock()
	_, ok := tx.s.exceptions[id]
	tx.s.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.KindExceptionNotFound, "exception not found").With("exception_id", id)
	}
	tx.ops = append(tx.ops, func() { delete(tx.s.exceptions, id) })
	return nil
}

func (tx *scheduleTx) DeleteProviderSchedule(_ context.Context, providerID string) (int64, error) {
	tx.s.mu.RLock()
	var n int64
	for _, row := range tx.s.rules {
		if row.ProviderID == providerID {
			n++
		}
	}
	for _, row := range tx.s.exceptions {
		if row.ProviderID == providerID {
			n++
		}
	}
	tx.s.mu.RUnlock()

	tx.ops = append(tx.ops, func() {
		for id, row := range tx.s.rules {
			if row.ProviderID == providerID {
				delete(tx.s.rules, id)
			}
		}
		for id, row := range tx.s.exceptions {
			if row.ProviderID == providerID {
				delete(tx.s.exceptions, id)
			}
		}
	})
	return n, nil
}

func (tx *scheduleTx) Emit(_ context.Context, evt outbox.Event) error {
	tx.ops = append(tx.ops, func() { tx.s.record(evt) })
	return nil
}
