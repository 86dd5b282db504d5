package schedule

import (
	"testing"
	"time"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

func window(startH, endH int) model.AvailabilityWindow {
	return model.AvailabilityWindow{
		Start:  clock(startH, 0),
		End:    clock(endH, 0),
		Active: true,
	}
}

func TestFreeSlots_Basic(t *testing.T) {
	day := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	busy := []Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)},
	}

	slots := FreeSlots([]model.AvailabilityWindow{window(9, 10)}, day, time.UTC,
		15*time.Minute, 15*time.Minute, busy, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Format(time.RFC3339))
	}
	if !slots[1].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected second slot 09:45, got %s", slots[1].Format(time.RFC3339))
	}
}

func TestFreeSlots_SkipsPastAndInactive(t *testing.T) {
	day := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	now := day.Add(9*time.Hour + 31*time.Minute)

	slots := FreeSlots([]model.AvailabilityWindow{window(9, 10)}, day, time.UTC,
		15*time.Minute, 15*time.Minute, nil, now)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected slot 09:45, got %s", slots[0].Format(time.RFC3339))
	}

	inactive := window(9, 10)
	inactive.Active = false
	if got := FreeSlots([]model.AvailabilityWindow{inactive}, day, time.UTC, 15*time.Minute, 15*time.Minute, nil, day); got != nil {
		t.Fatalf("inactive window should yield no slots, got %d", len(got))
	}
}

func TestFreeSlots_DurationLongerThanWindow(t *testing.T) {
	day := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	slots := FreeSlots([]model.AvailabilityWindow{window(9, 10)}, day, time.UTC,
		2*time.Hour, 30*time.Minute, nil, day)
	if slots != nil {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
}
