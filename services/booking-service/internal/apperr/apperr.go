// Package apperr defines the typed domain errors returned by the booking engine.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindInvalidTimeRange        Kind = "invalid_time_range"
	KindBookingInPast           Kind = "booking_in_past"
	KindBookingOverlap          Kind = "booking_overlap"
	KindSlotNotAvailable        Kind = "slot_not_available"
	KindInvalidDurationForSlot  Kind = "invalid_duration_for_slot"
	KindMaxDurationExceeded     Kind = "max_duration_exceeded"
	KindBookingTooClose         Kind = "booking_too_close"
	KindDailyLimitReached       Kind = "daily_limit_reached"
	KindClientDailyLimitReached Kind = "client_daily_limit_reached"
	KindBookingNotFound         Kind = "booking_not_found"
	KindRuleNotFound            Kind = "rule_not_found"
	KindExceptionNotFound       Kind = "exception_not_found"
	KindInvalidStatusTransition Kind = "invalid_status_transition"
	KindValidation              Kind = "validation"
	KindInternal                Kind = "internal"
)

// Error carries a kind, a human message and the structured arguments that explain it.
type Error struct {
	Kind    Kind
	Message string
	Args    map[string]any
	wrapped error
}

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrInvalidTimeRange        = &Error{Kind: KindInvalidTimeRange}
	ErrBookingInPast           = &Error{Kind: KindBookingInPast}
	ErrBookingOverlap          = &Error{Kind: KindBookingOverlap}
	ErrSlotNotAvailable        = &Error{Kind: KindSlotNotAvailable}
	ErrInvalidDurationForSlot  = &Error{Kind: KindInvalidDurationForSlot}
	ErrMaxDurationExceeded     = &Error{Kind: KindMaxDurationExceeded}
	ErrBookingTooClose         = &Error{Kind: KindBookingTooClose}
	ErrDailyLimitReached       = &Error{Kind: KindDailyLimitReached}
	ErrClientDailyLimitReached = &Error{Kind: KindClientDailyLimitReached}
	ErrBookingNotFound         = &Error{Kind: KindBookingNotFound}
	ErrRuleNotFound            = &Error{Kind: KindRuleNotFound}
	ErrExceptionNotFound       = &Error{Kind: KindExceptionNotFound}
	ErrInvalidStatusTransition = &Error{Kind: KindInvalidStatusTransition}
	ErrValidation              = &Error{Kind: KindValidation}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// With attaches an argument and returns the same error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Args == nil {
		e.Args = map[string]any{}
	}
	e.Args[key] = value
	return e
}

func (e *Error) Wrap(err error) *Error {
	e.wrapped = err
	return e
}

func (e *Error) Unwrap() error { return e.wrapped }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
	}
	if len(e.Args) > 0 {
		keys := make([]string, 0, len(e.Args))
		for k := range e.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Args[k])
		}
		b.WriteString(")")
	}
	if e.wrapped != nil {
		b.WriteString(": ")
		b.WriteString(e.wrapped.Error())
	}
	return b.String()
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
