package model

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != ClockTime(9*60+30) {
		t.Fatalf("expected 570 minutes, got %d", c)
	}
	if c.String() != "09:30" {
		t.Fatalf("expected 09:30, got %s", c)
	}
}

func TestParseClock_Invalid(t *testing.T) {
	for _, raw := range []string{"", "9:30am", "25:00", "12:61", "noon"} {
		if _, err := ParseClock(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestClockTimeAt(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	c := ClockTime(14*60 + 15)
	got := c.At(day, time.UTC)
	want := time.Date(2026, 3, 10, 14, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusScheduled, StatusInProgress} {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestAppointmentActive(t *testing.T) {
	appt := Appointment{Status: StatusScheduled}
	if !appt.Active() {
		t.Fatalf("scheduled appointment should occupy its slot")
	}
	appt.Status = StatusCancelled
	if appt.Active() {
		t.Fatalf("cancelled appointment should not occupy its slot")
	}
	appt.Status = StatusScheduled
	appt.Deleted = true
	if appt.Active() {
		t.Fatalf("deleted appointment should not occupy its slot")
	}
	// Completed appointments keep their historical slot.
	appt = Appointment{Status: StatusCompleted}
	if !appt.Active() {
		t.Fatalf("completed appointment should keep its slot")
	}
}
