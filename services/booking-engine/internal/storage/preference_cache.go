package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/accounts"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

// PreferenceCache is a Redis-backed copy of account notification preferences,
// written by the accounts.preferences.updated consumer and read by the
// reminder sweep. Implements accounts.PreferenceStore.
type PreferenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPreferenceCache(client *redis.Client, ttl time.Duration) *PreferenceCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PreferenceCache{client: client, ttl: ttl}
}

type cachedPreference struct {
	ReminderOffsetHours int                         `json:"reminder_offset_hours"`
	EmailEnabled        bool                        `json:"email_enabled"`
	InAppEnabled        bool                        `json:"in_app_enabled"`
	DayBeforeEnabled    bool                        `json:"day_before_enabled"`
	HoursBeforeEnabled  bool                        `json:"hours_before_enabled"`
	EnabledKinds        map[model.ReminderKind]bool `json:"enabled_kinds,omitempty"`
}

func prefKey(userID string) string {
	return "prefs:" + userID
}

func (c *PreferenceCache) Get(ctx context.Context, userID string) (model.NotificationPreference, error) {
	raw, err := c.client.Get(ctx, prefKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.NotificationPreference{}, accounts.ErrCacheMiss
	}
	if err != nil {
		return model.NotificationPreference{}, err
	}
	var cached cachedPreference
	if err := json.Unmarshal(raw, &cached); err != nil {
		return model.NotificationPreference{}, err
	}
	return model.NotificationPreference{
		ReminderOffsetHours: cached.ReminderOffsetHours,
		EmailEnabled:        cached.EmailEnabled,
		InAppEnabled:        cached.InAppEnabled,
		DayBeforeEnabled:    cached.DayBeforeEnabled,
		HoursBeforeEnabled:  cached.HoursBeforeEnabled,
		EnabledKinds:        cached.EnabledKinds,
	}, nil
}

func (c *PreferenceCache) Set(ctx context.Context, userID string, prefs model.NotificationPreference) error {
	raw, err := json.Marshal(cachedPreference{
		ReminderOffsetHours: prefs.ReminderOffsetHours,
		EmailEnabled:        prefs.EmailEnabled,
		InAppEnabled:        prefs.InAppEnabled,
		DayBeforeEnabled:    prefs.DayBeforeEnabled,
		HoursBeforeEnabled:  prefs.HoursBeforeEnabled,
		EnabledKinds:        prefs.EnabledKinds,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, prefKey(userID), raw, c.ttl).Err()
}
