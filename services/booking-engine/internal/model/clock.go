package model

import (
	"fmt"
	"time"
)

// ClockTime is a wall-clock time of day expressed as minutes since midnight.
// Availability windows and booking slots are confined to a single calendar
// day, so a bare minute offset is enough; windows never span midnight.
type ClockTime int

const MinutesPerDay = 24 * 60

func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

func (c ClockTime) Valid() bool {
	return c >= 0 && c < MinutesPerDay
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// At anchors the clock time onto a calendar day in the given location.
func (c ClockTime) At(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, loc)
}

func ClockOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}
