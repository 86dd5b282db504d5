package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/accounts"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

// TaskStore is the reminder-task surface the scheduler writes through.
// *storage.ReminderRepository implements it.
type TaskStore interface {
	Insert(ctx context.Context, tx pgx.Tx, task model.ReminderTask) error
	DeleteUnsent(ctx context.Context, tx pgx.Tx, appointmentID string) (int64, error)
}

// DayBeforeHour is the fixed local hour for day-before reminders.
const DayBeforeHour = 9

// DayBeforeAt returns 09:00 on the calendar day before start, in loc.
func DayBeforeAt(start time.Time, loc *time.Location) time.Time {
	s := start.In(loc)
	prior := s.AddDate(0, 0, -1)
	return time.Date(prior.Year(), prior.Month(), prior.Day(), DayBeforeHour, 0, 0, 0, loc)
}

// HoursBeforeAt returns start minus the clamped offset.
func HoursBeforeAt(start time.Time, offsetHours int) time.Time {
	if offsetHours < model.MinReminderOffsetHours {
		offsetHours = model.MinReminderOffsetHours
	}
	if offsetHours > model.MaxReminderOffsetHours {
		offsetHours = model.MaxReminderOffsetHours
	}
	return start.Add(-time.Duration(offsetHours) * time.Hour)
}

// Scheduler creates reminder tasks inside the booking transaction, so an
// appointment never commits without its reminders. Only kinds enabled at
// creation time get a task; the delivery sweep re-checks the live preference
// before dispatching.
type Scheduler struct {
	tasks    TaskStore
	provider accounts.Provider
	logger   *slog.Logger
	loc      *time.Location
	now      func() time.Time
}

func NewScheduler(tasks TaskStore, provider accounts.Provider, logger *slog.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		tasks:    tasks,
		provider: provider,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}
}

// Schedule creates a task per enabled reminder kind. Past fire times are
// skipped, so a same-day booking only gets the reminders that can still fire.
// Inserts are idempotent per (appointment, kind).
func (s *Scheduler) Schedule(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	prefs, err := s.provider.Preferences(ctx, appt.CustomerID)
	if err != nil {
		s.logger.Warn("preference lookup failed, using defaults", "err", err, "user_id", appt.CustomerID)
		prefs = model.DefaultPreferences()
	}

	now := s.now()
	plan := []model.ReminderTask{
		{
			UserID:        appt.CustomerID,
			AppointmentID: appt.ID,
			Kind:          model.ReminderDayBefore,
			FiresAt:       DayBeforeAt(appt.StartTime, s.loc),
		},
		{
			UserID:        appt.CustomerID,
			AppointmentID: appt.ID,
			Kind:          model.ReminderHoursBefore,
			FiresAt:       HoursBeforeAt(appt.StartTime, prefs.OffsetHours()),
		},
	}
	for _, task := range plan {
		if !prefs.KindEnabled(task.Kind) {
			continue
		}
		if !task.FiresAt.After(now) {
			continue
		}
		if err := s.tasks.Insert(ctx, tx, task); err != nil {
			return err
		}
	}
	return nil
}

// Reschedule retires the appointment's unsent tasks and recreates them from
// the new slot. Already sent tasks are history and are left alone.
func (s *Scheduler) Reschedule(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	retired, err := s.tasks.DeleteUnsent(ctx, tx, appt.ID)
	if err != nil {
		return err
	}
	if retired > 0 {
		s.logger.Info("retired pending reminders", "appointment_id", appt.ID, "count", retired)
	}
	return s.Schedule(ctx, tx, appt)
}

// Retire drops the appointment's unsent tasks without replacement; used when
// the appointment leaves the scheduled state.
func (s *Scheduler) Retire(ctx context.Context, tx pgx.Tx, appointmentID string) error {
	_, err := s.tasks.DeleteUnsent(ctx, tx, appointmentID)
	return err
}
