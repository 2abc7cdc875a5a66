package service

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Options struct {
	Location       *time.Location
	Now            func() time.Time
	MaxDaysAhead   int
	DayConcurrency int
	BookingTimeout time.Duration
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.MaxDaysAhead <= 0 {
		o.MaxDaysAhead = 90
	}
	if o.DayConcurrency <= 0 {
		o.DayConcurrency = 4
	}
	if o.BookingTimeout <= 0 {
		o.BookingTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

const (
	rulePrefix      = "brl_"
	exceptionPrefix = "bex_"
	bookingPrefix   = "book_"
)

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
