// Package cache keeps resolved availability windows in Redis.
//
// Keys are versioned per provider: grid:{provider}:{version}:{date}. Invalidate bumps the version,
// which orphans every cached day at once; orphans expire through their TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/availability"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/model"
	"github.com/appbelezeiro/belezeiro-sub003/services/booking-service/internal/service"
	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 10 * time.Minute

type SlotCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

var _ service.WindowCache = (*SlotCache)(nil)

func NewSlotCache(rdb redis.Cmdable, ttl time.Duration) *SlotCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SlotCache{rdb: rdb, ttl: ttl, prefix: "grid"}
}

func (c *SlotCache) versionKey(providerID string) string {
	return c.prefix + ":ver:" + providerID
}

func (c *SlotCache) dayKey(providerID string, version int64, date time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%s", c.prefix, providerID, version, date.Format(model.DateLayout))
}

func (c *SlotCache) version(ctx context.Context, providerID string) (int64, error) {
	v, err := c.rdb.Get(ctx, c.versionKey(providerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *SlotCache) Get(ctx context.Context, providerID string, date time.Time) ([]availability.Window, int64, bool, error) {
	v, err := c.version(ctx, providerID)
	if err != nil {
		return nil, 0, false, err
	}
	raw, err := c.rdb.Get(ctx, c.dayKey(providerID, v, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, v, false, nil
	}
	if err != nil {
		return nil, v, false, err
	}
	windows, err := decode(raw)
	if err != nil {
		return nil, v, false, err
	}
	return windows, v, true, nil
}

// Set stores windows under the version the caller saw before loading them.
func (c *SlotCache) Set(ctx context.Context, providerID string, date time.Time, version int64, windows []availability.Window) error {
	raw, err := encode(windows)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.dayKey(providerID, version, date), raw, c.ttl).Err()
}

func (c *SlotCache) Invalidate(ctx context.Context, providerID string) error {
	return c.rdb.Incr(ctx, c.versionKey(providerID)).Err()
}

// An empty day is stored as [] so it is still a hit.
func encode(windows []availability.Window) ([]byte, error) {
	if windows == nil {
		windows = []availability.Window{}
	}
	return json.Marshal(windows)
}

func decode(raw []byte) ([]availability.Window, error) {
	var windows []availability.Window
	if err := json.Unmarshal(raw, &windows); err != nil {
		return nil, fmt.Errorf("decode cached windows: %w", err)
	}
	return windows, nil
}

func ReadyCheck(rdb redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
