package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/storage"
)

// TopicPreferencesUpdated is published by the accounts system whenever a
// user changes notification settings.
const TopicPreferencesUpdated = "accounts.preferences.updated.v1"

type preferencesUpdated struct {
	UserID              string                      `json:"user_id"`
	ReminderOffsetHours int                         `json:"reminder_offset_hours"`
	EmailEnabled        bool                        `json:"email_enabled"`
	InAppEnabled        bool                        `json:"in_app_enabled"`
	DayBeforeEnabled    bool                        `json:"day_before_enabled"`
	HoursBeforeEnabled  bool                        `json:"hours_before_enabled"`
	EnabledKinds        map[model.ReminderKind]bool `json:"enabled_kinds,omitempty"`
}

// PreferencesHandler upserts the local preference cache from account events,
// keeping the reminder sweep off the accounts hot path.
func PreferencesHandler(cache *storage.PreferenceCache, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt preferencesUpdated
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			// A malformed payload never becomes valid; log and move on.
			logger.Error("malformed preferences event", "err", err)
			return nil
		}
		if evt.UserID == "" {
			logger.Warn("preferences event without user_id")
			return nil
		}
		err := cache.Set(ctx, evt.UserID, model.NotificationPreference{
			ReminderOffsetHours: evt.ReminderOffsetHours,
			EmailEnabled:        evt.EmailEnabled,
			InAppEnabled:        evt.InAppEnabled,
			DayBeforeEnabled:    evt.DayBeforeEnabled,
			HoursBeforeEnabled:  evt.HoursBeforeEnabled,
			EnabledKinds:        evt.EnabledKinds,
		})
		if err != nil {
			return err
		}
		logger.Info("preference cache updated", "user_id", evt.UserID)
		return nil
	}
}
