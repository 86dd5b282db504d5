package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

type fakeWindows struct {
	byDay map[time.Weekday][]model.AvailabilityWindow
}

func (f *fakeWindows) ActiveWindows(_ context.Context, _ string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	return f.byDay[weekday], nil
}

func clock(h, m int) model.ClockTime {
	return model.ClockTime(h*60 + m)
}

func TestWorksOn(t *testing.T) {
	r := NewResolver(&fakeWindows{byDay: map[time.Weekday][]model.AvailabilityWindow{
		time.Monday: {{Start: clock(9, 0), End: clock(17, 0), Active: true}},
	}})

	works, err := r.WorksOn(context.Background(), "op-1", time.Monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !works {
		t.Fatalf("operator with a window should work Monday")
	}

	works, err = r.WorksOn(context.Background(), "op-1", time.Tuesday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if works {
		t.Fatalf("operator without windows should not work Tuesday")
	}
}

func TestFitsSchedule_FullContainment(t *testing.T) {
	r := NewResolver(&fakeWindows{byDay: map[time.Weekday][]model.AvailabilityWindow{
		time.Monday: {
			{Start: clock(9, 0), End: clock(12, 0), Active: true},
			{Start: clock(13, 0), End: clock(17, 0), Active: true},
		},
	}})
	ctx := context.Background()

	fits, err := r.FitsSchedule(ctx, "op-1", time.Monday, clock(9, 0), clock(10, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fits {
		t.Fatalf("09:00-10:00 should fit inside 09:00-12:00")
	}

	// Touching the window end is allowed (half-open slot, inclusive bound).
	fits, _ = r.FitsSchedule(ctx, "op-1", time.Monday, clock(11, 0), clock(12, 0))
	if !fits {
		t.Fatalf("11:00-12:00 should fit inside 09:00-12:00")
	}

	// Spanning the gap between two windows is not contained in either.
	fits, _ = r.FitsSchedule(ctx, "op-1", time.Monday, clock(11, 0), clock(14, 0))
	if fits {
		t.Fatalf("11:00-14:00 spans two windows and should be rejected")
	}

	// Overlapping a window edge is not containment.
	fits, _ = r.FitsSchedule(ctx, "op-1", time.Monday, clock(8, 30), clock(9, 30))
	if fits {
		t.Fatalf("08:30-09:30 sticks out of the window and should be rejected")
	}
}

func TestFitsSchedule_InvalidRange(t *testing.T) {
	r := NewResolver(&fakeWindows{byDay: map[time.Weekday][]model.AvailabilityWindow{
		time.Monday: {{Start: clock(0, 0), End: clock(24, 0), Active: true}},
	}})
	ctx := context.Background()

	cases := []struct{ start, end model.ClockTime }{
		{clock(10, 0), clock(10, 0)},  // empty
		{clock(10, 0), clock(9, 0)},   // inverted
		{-10, clock(9, 0)},            // negative start
		{clock(23, 0), clock(25, 0)},  // past midnight
	}
	for _, c := range cases {
		fits, err := r.FitsSchedule(ctx, "op-1", time.Monday, c.start, c.end)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fits {
			t.Fatalf("range %d-%d should be rejected", c.start, c.end)
		}
	}
}
