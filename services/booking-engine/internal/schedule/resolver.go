package schedule

import (
	"context"
	"time"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

// WindowSource yields an operator's active windows for one weekday.
type WindowSource interface {
	ActiveWindows(ctx context.Context, operatorID string, weekday time.Weekday) ([]model.AvailabilityWindow, error)
}

// Resolver answers availability questions over the recurring weekly calendar.
// Pure reads; no side effects.
type Resolver struct {
	windows WindowSource
}

func NewResolver(windows WindowSource) *Resolver {
	return &Resolver{windows: windows}
}

// WorksOn reports whether the operator has at least one active window on the
// given weekday. An operator with zero active windows never works that day.
func (r *Resolver) WorksOn(ctx context.Context, operatorID string, weekday time.Weekday) (bool, error) {
	wins, err := r.windows.ActiveWindows(ctx, operatorID, weekday)
	if err != nil {
		return false, err
	}
	return len(wins) > 0, nil
}

// FitsSchedule reports whether [start,end) is fully contained in one active
// window. Merely overlapping a window is not enough; out-of-range requests are
// rejected rather than wrapped (windows never span midnight).
func (r *Resolver) FitsSchedule(ctx context.Context, operatorID string, weekday time.Weekday, start, end model.ClockTime) (bool, error) {
	if !start.Valid() || end <= start || end > model.MinutesPerDay {
		return false, nil
	}
	wins, err := r.windows.ActiveWindows(ctx, operatorID, weekday)
	if err != nil {
		return false, err
	}
	for i := range wins {
		if wins[i].Contains(start, end) {
			return true, nil
		}
	}
	return false, nil
}
