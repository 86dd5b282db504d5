package model

import "time"

type ReminderKind string

const (
	ReminderDayBefore   ReminderKind = "day_before"
	ReminderHoursBefore ReminderKind = "hours_before"

	// ReminderGeneric is the documented fallback for unrecognized kind strings
	// written by upstream producers; the sweep logs when it is hit.
	ReminderGeneric ReminderKind = "reminder"
)

// Normalize maps unknown kind strings to the generic kind instead of failing.
func NormalizeReminderKind(s string) ReminderKind {
	switch ReminderKind(s) {
	case ReminderDayBefore, ReminderHoursBefore:
		return ReminderKind(s)
	default:
		return ReminderGeneric
	}
}

// ReminderTask is a pending notice owned by the reminder scheduler. It holds a
// weak reference to its appointment by id; retiring an appointment's unsent
// tasks never touches the appointment row. At most one unsent task exists per
// (appointment, kind).
type ReminderTask struct {
	ID            int64
	UserID        string
	AppointmentID string
	Kind          ReminderKind
	FiresAt       time.Time
	Sent          bool
	CreatedAt     time.Time
}

// NotificationPreference is owned by the user's account and read-only here.
type NotificationPreference struct {
	ReminderOffsetHours int
	EmailEnabled        bool
	InAppEnabled        bool
	DayBeforeEnabled    bool
	HoursBeforeEnabled  bool
	EnabledKinds        map[ReminderKind]bool
}

const (
	MinReminderOffsetHours = 1
	MaxReminderOffsetHours = 6
)

// OffsetHours clamps the configured hours-before offset into [1,6].
func (p NotificationPreference) OffsetHours() int {
	if p.ReminderOffsetHours < MinReminderOffsetHours {
		return MinReminderOffsetHours
	}
	if p.ReminderOffsetHours > MaxReminderOffsetHours {
		return MaxReminderOffsetHours
	}
	return p.ReminderOffsetHours
}

// KindEnabled consults the explicit kind set when present, falling back to the
// per-kind booleans. Unknown kinds inherit the generic entry (default on).
func (p NotificationPreference) KindEnabled(kind ReminderKind) bool {
	if p.EnabledKinds != nil {
		if v, ok := p.EnabledKinds[kind]; ok {
			return v
		}
	}
	switch kind {
	case ReminderDayBefore:
		return p.DayBeforeEnabled
	case ReminderHoursBefore:
		return p.HoursBeforeEnabled
	default:
		return true
	}
}

func DefaultPreferences() NotificationPreference {
	return NotificationPreference{
		ReminderOffsetHours: 2,
		EmailEnabled:        true,
		InAppEnabled:        true,
		DayBeforeEnabled:    true,
		HoursBeforeEnabled:  true,
	}
}
