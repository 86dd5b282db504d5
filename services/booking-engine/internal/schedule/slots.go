package schedule

import (
	"time"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// FreeSlots returns slot start times inside the operator's active windows on
// the given day where a booking of length duration would not overlap any busy
// interval. All times are half-open and anchored in loc.
func FreeSlots(windows []model.AvailabilityWindow, day time.Time, loc *time.Location, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}

	var slots []time.Time
	for i := range windows {
		if !windows[i].Active {
			continue
		}
		winStart := windows[i].Start.At(day, loc)
		winEnd := windows[i].End.At(day, loc)
		if winStart.Add(duration).After(winEnd) {
			continue
		}
		for t := winStart; !t.Add(duration).After(winEnd); t = t.Add(step) {
			if t.Before(now) {
				continue
			}
			if !overlapsAny(t, t.Add(duration), busy) {
				slots = append(slots, t)
			}
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
