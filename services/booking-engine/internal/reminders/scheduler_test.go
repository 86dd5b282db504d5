package reminders

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/accounts"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

func TestDayBeforeAt(t *testing.T) {
	start := time.Date(2026, 4, 15, 14, 30, 0, 0, time.UTC)
	got := DayBeforeAt(start, time.UTC)
	want := time.Date(2026, 4, 14, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestDayBeforeAt_MonthBoundary(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	got := DayBeforeAt(start, time.UTC)
	want := time.Date(2026, 4, 30, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestHoursBeforeAt(t *testing.T) {
	start := time.Date(2026, 4, 15, 14, 0, 0, 0, time.UTC)

	if got := HoursBeforeAt(start, 3); !got.Equal(start.Add(-3 * time.Hour)) {
		t.Fatalf("expected start-3h, got %s", got)
	}
	// Offsets clamp into [1,6].
	if got := HoursBeforeAt(start, 0); !got.Equal(start.Add(-1 * time.Hour)) {
		t.Fatalf("expected clamp to 1h, got %s", got)
	}
	if got := HoursBeforeAt(start, 24); !got.Equal(start.Add(-6 * time.Hour)) {
		t.Fatalf("expected clamp to 6h, got %s", got)
	}
}

// fakeTaskStore mirrors the partial unique index: at most one unsent task per
// (appointment, kind).
type fakeTaskStore struct {
	tasks  []model.ReminderTask
	nextID int64
}

func (f *fakeTaskStore) Insert(_ context.Context, _ pgx.Tx, task model.ReminderTask) error {
	for _, existing := range f.tasks {
		if existing.AppointmentID == task.AppointmentID && existing.Kind == task.Kind && !existing.Sent {
			return nil
		}
	}
	f.nextID++
	task.ID = f.nextID
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeTaskStore) DeleteUnsent(_ context.Context, _ pgx.Tx, appointmentID string) (int64, error) {
	var kept []model.ReminderTask
	var removed int64
	for _, task := range f.tasks {
		if task.AppointmentID == appointmentID && !task.Sent {
			removed++
			continue
		}
		kept = append(kept, task)
	}
	f.tasks = kept
	return removed, nil
}

func (f *fakeTaskStore) unsent(appointmentID string, kind model.ReminderKind) []model.ReminderTask {
	var out []model.ReminderTask
	for _, task := range f.tasks {
		if task.AppointmentID == appointmentID && task.Kind == kind && !task.Sent {
			out = append(out, task)
		}
	}
	return out
}

func testScheduler(store *fakeTaskStore, provider accounts.Provider, now time.Time) *Scheduler {
	s := NewScheduler(store, provider, slog.New(slog.NewTextHandler(io.Discard, nil)), time.UTC)
	s.now = func() time.Time { return now }
	return s
}

func testAppointment(start time.Time) model.Appointment {
	return model.Appointment{
		ID:         "appt-1",
		CustomerID: "cust-1",
		OperatorID: "op-1",
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
		Status:     model.StatusScheduled,
	}
}

func TestSchedule_IdempotentPerKind(t *testing.T) {
	start := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, 4, 13, 8, 0, 0, 0, time.UTC)
	store := &fakeTaskStore{}
	s := testScheduler(store, accounts.NewStaticProvider(), now)
	appt := testAppointment(start)

	if err := s.Schedule(context.Background(), nil, &appt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Schedule(context.Background(), nil, &appt); err != nil {
		t.Fatalf("unexpected error on repeat: %v", err)
	}

	if got := len(store.tasks); got != 2 {
		t.Fatalf("expected one task per kind after double schedule, got %d", got)
	}
	if len(store.unsent(appt.ID, model.ReminderDayBefore)) != 1 ||
		len(store.unsent(appt.ID, model.ReminderHoursBefore)) != 1 {
		t.Fatalf("expected exactly one unsent task per kind, got %+v", store.tasks)
	}
}

func TestSchedule_SkipsDisabledKind(t *testing.T) {
	start := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, 4, 13, 8, 0, 0, 0, time.UTC)
	provider := accounts.NewStaticProvider()
	provider.Prefs["cust-1"] = model.NotificationPreference{
		ReminderOffsetHours: 2,
		EmailEnabled:        true,
		InAppEnabled:        true,
		DayBeforeEnabled:    false,
		HoursBeforeEnabled:  true,
	}
	store := &fakeTaskStore{}
	s := testScheduler(store, provider, now)
	appt := testAppointment(start)

	if err := s.Schedule(context.Background(), nil, &appt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.unsent(appt.ID, model.ReminderDayBefore)) != 0 {
		t.Fatalf("expected no day-before task for a disabled kind, got %+v", store.tasks)
	}
	if len(store.unsent(appt.ID, model.ReminderHoursBefore)) != 1 {
		t.Fatalf("expected the hours-before task, got %+v", store.tasks)
	}
}

func TestReschedule_RecreatesHoursBefore(t *testing.T) {
	oldStart := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, 4, 13, 8, 0, 0, 0, time.UTC)
	store := &fakeTaskStore{}
	s := testScheduler(store, accounts.NewStaticProvider(), now)
	appt := testAppointment(oldStart)

	if err := s.Schedule(context.Background(), nil, &appt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	newStart := oldStart.Add(time.Hour)
	appt.StartTime = newStart
	appt.EndTime = newStart.Add(30 * time.Minute)
	if err := s.Reschedule(context.Background(), nil, &appt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hours := store.unsent(appt.ID, model.ReminderHoursBefore)
	if len(hours) != 1 {
		t.Fatalf("expected one hours-before task after reschedule, got %+v", store.tasks)
	}
	// Default offset is 2h; the task must follow the new start.
	if want := newStart.Add(-2 * time.Hour); !hours[0].FiresAt.Equal(want) {
		t.Fatalf("expected fires_at %s from the new start, got %s", want, hours[0].FiresAt)
	}
	if got := len(store.tasks); got != 2 {
		t.Fatalf("expected the old unsent tasks replaced, got %d tasks", got)
	}
}
