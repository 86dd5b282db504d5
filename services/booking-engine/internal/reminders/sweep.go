package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/accounts"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/notify"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/outbox"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/storage"
)

// Outcome is the delivery plan for one due task under the recipient's
// preferences.
type Outcome struct {
	// Suppress marks the task sent without dispatching anything; the
	// reminder kind is disabled.
	Suppress bool
	// SendEmail dispatches the reminder over SMTP.
	SendEmail bool
	// InApp writes an inbox record and marks the task sent.
	InApp bool
	// Drop deletes the task row instead of marking it sent; there is no
	// in-app inbox to keep it for.
	Drop bool
}

// Decide applies preference gating. Kind gating wins over channel gating: a
// disabled kind suppresses regardless of channels.
func Decide(kind model.ReminderKind, prefs model.NotificationPreference) Outcome {
	if !prefs.KindEnabled(kind) {
		return Outcome{Suppress: true}
	}
	return Outcome{
		SendEmail: prefs.EmailEnabled,
		InApp:     prefs.InAppEnabled,
		Drop:      !prefs.InAppEnabled,
	}
}

// Sweep delivers due reminder tasks. Each run is a function of now: it
// claims due unsent tasks, dispatches per the recipient's preferences, then
// marks or deletes the rows in the same transaction. Dispatch happens before
// the mark commits, so delivery is at-least-once; a crash between SMTP send
// and commit re-sends on the next run.
type Sweep struct {
	tasks    *storage.ReminderRepository
	appts    *storage.AppointmentRepository
	provider accounts.Provider
	sender   notify.Sender
	inbox    *notify.Store
	events   *outbox.Repository
	lock     *SweepLock
	logger   *slog.Logger
	loc      *time.Location
	every    time.Duration
	batch    int
	now      func() time.Time
}

type SweepConfig struct {
	Every     time.Duration
	BatchSize int
}

func NewSweep(
	tasks *storage.ReminderRepository,
	appts *storage.AppointmentRepository,
	provider accounts.Provider,
	sender notify.Sender,
	inbox *notify.Store,
	events *outbox.Repository,
	lock *SweepLock,
	logger *slog.Logger,
	loc *time.Location,
	cfg SweepConfig,
) *Sweep {
	if cfg.Every <= 0 {
		cfg.Every = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Sweep{
		tasks:    tasks,
		appts:    appts,
		provider: provider,
		sender:   sender,
		inbox:    inbox,
		events:   events,
		lock:     lock,
		logger:   logger,
		loc:      loc,
		every:    cfg.Every,
		batch:    cfg.BatchSize,
		now:      time.Now,
	}
}

func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx, s.now()); err != nil {
				s.logger.Error("reminder sweep failed", "err", err)
			}
		}
	}
}

func (s *Sweep) RunOnce(ctx context.Context, now time.Time) error {
	won, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logger.Warn("sweep lock release failed", "err", err)
		}
	}()

	tx, err := s.tasks.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := s.tasks.FetchDue(ctx, tx, now, s.batch)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return tx.Commit(ctx)
	}

	var sent, dropped []int64
	for _, task := range due {
		drop, err := s.process(ctx, tx, task)
		if err != nil {
			return err
		}
		if drop {
			dropped = append(dropped, task.ID)
		} else {
			sent = append(sent, task.ID)
		}
	}
	if err := s.tasks.MarkSent(ctx, tx, sent); err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, tx, dropped); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.logger.Info("reminder sweep", "delivered", len(sent), "dropped", len(dropped))
	return nil
}

// process handles one task; the returned bool asks for row deletion instead
// of the sent mark. Dispatch failures are logged and published, never
// returned: one broken mailbox must not wedge the whole batch.
func (s *Sweep) process(ctx context.Context, tx pgx.Tx, task model.ReminderTask) (bool, error) {
	appt, err := s.appts.Get(ctx, task.AppointmentID)
	if storage.IsNotFound(err) {
		s.logger.Warn("reminder task for missing appointment", "task_id", task.ID, "appointment_id", task.AppointmentID)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if !appt.Active() || appt.Status.Terminal() {
		// The appointment settled after the task was created; nothing
		// left to remind about.
		return true, nil
	}

	kind := model.NormalizeReminderKind(string(task.Kind))
	if kind == model.ReminderGeneric && task.Kind != model.ReminderGeneric {
		s.logger.Warn("unknown reminder kind, treating as generic", "task_id", task.ID, "kind", task.Kind)
	}
	task.Kind = kind

	prefs, err := s.provider.Preferences(ctx, task.UserID)
	if err != nil {
		s.logger.Warn("preference lookup failed, using defaults", "err", err, "user_id", task.UserID)
		prefs = model.DefaultPreferences()
	}

	out := Decide(kind, prefs)
	if out.Suppress {
		if err := s.emit(ctx, tx, outbox.TopicReminderSuppressed, task, "kind disabled"); err != nil {
			return false, err
		}
		return false, nil
	}

	subject, body := composeMessage(kind, &appt, s.loc)
	delivered := false
	if out.SendEmail {
		if err := s.sendEmail(ctx, task, subject, body); err != nil {
			s.logger.Error("reminder email failed", "err", err, "task_id", task.ID, "user_id", task.UserID)
			if err := s.emit(ctx, tx, outbox.TopicReminderFailed, task, err.Error()); err != nil {
				return false, err
			}
		} else {
			delivered = true
		}
	}
	if out.InApp {
		if err := s.inbox.InsertTx(ctx, tx, notify.Record{
			UserID:        task.UserID,
			AppointmentID: task.AppointmentID,
			Kind:          string(kind),
			Subject:       subject,
			Body:          body,
		}); err != nil {
			return false, err
		}
		delivered = true
	}
	if delivered {
		if err := s.emit(ctx, tx, outbox.TopicReminderSent, task, ""); err != nil {
			return false, err
		}
	}
	return out.Drop, nil
}

func (s *Sweep) sendEmail(ctx context.Context, task model.ReminderTask, subject, body string) error {
	addr, err := s.provider.Email(ctx, task.UserID)
	if err != nil {
		return err
	}
	if addr == "" {
		return fmt.Errorf("no email address for user %s", task.UserID)
	}
	return s.sender.Send(addr, subject, body)
}

func (s *Sweep) emit(ctx context.Context, tx pgx.Tx, topic string, task model.ReminderTask, reason string) error {
	evt, err := outbox.ReminderEvent(topic, task, reason)
	if err != nil {
		return err
	}
	return s.events.Insert(ctx, tx, evt)
}

func composeMessage(kind model.ReminderKind, appt *model.Appointment, loc *time.Location) (string, string) {
	when := appt.StartTime.In(loc).Format("Mon, 02 Jan 2006 at 15:04")
	title := appt.Title
	if title == "" {
		title = "your appointment"
	}
	switch kind {
	case model.ReminderDayBefore:
		return "Appointment tomorrow", fmt.Sprintf("Reminder: %s is tomorrow, %s.", title, when)
	case model.ReminderHoursBefore:
		return "Appointment coming up", fmt.Sprintf("Reminder: %s starts soon, %s.", title, when)
	default:
		return "Appointment reminder", fmt.Sprintf("Reminder: %s is scheduled for %s.", title, when)
	}
}
