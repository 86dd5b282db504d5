package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/accounts"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/matcher"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/notify"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/outbox"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/schedule"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/storage"
)

// MinDuration is the shortest bookable appointment.
const MinDuration = 5 * time.Minute

// Actor identifies the authenticated caller for authorization decisions.
type Actor struct {
	UserID string
	Role   accounts.Role
}

func (a Actor) admin() bool { return a.Role == accounts.RoleAdmin }

// AppointmentStore is the ledger surface the service writes through.
// *storage.AppointmentRepository implements it.
type AppointmentStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginPartition(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	Get(ctx context.Context, id string) (model.Appointment, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error)
	HasConflict(ctx context.Context, tx pgx.Tx, operatorID string, day time.Time, start, end time.Time, excludeID string) (bool, error)
	HasConflictRead(ctx context.Context, operatorID string, day time.Time, start, end time.Time) (bool, error)
	UpdateSlot(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	Cancel(ctx context.Context, tx pgx.Tx, id, reason string) (time.Time, error)
	Complete(ctx context.Context, tx pgx.Tx, id string, status model.Status, attendance model.Attendance, note string, rating *int) (time.Time, error)
	Rate(ctx context.Context, tx pgx.Tx, id string, rating int, note string) error
	ListByCustomer(ctx context.Context, customerID string, includeDeleted bool, limit int) ([]model.Appointment, error)
	ListByOperator(ctx context.Context, operatorID string, includeDeleted bool, limit int) ([]model.Appointment, error)
	ListUpcoming(ctx context.Context, userID string, from, until time.Time) ([]model.Appointment, error)
	ListOccupied(ctx context.Context, operatorID string, start, end time.Time) ([]model.Appointment, error)
	ListPendingCompletion(ctx context.Context, operatorID string, now time.Time, limit int) ([]model.Appointment, error)
}

// ReminderScheduler keeps reminder tasks in step with the appointment inside
// the same transaction.
type ReminderScheduler interface {
	Schedule(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	Reschedule(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	Retire(ctx context.Context, tx pgx.Tx, appointmentID string) error
}

// EventStore is the transactional outbox surface.
type EventStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// NoticeStore writes in-app notification records inside lifecycle
// transactions.
type NoticeStore interface {
	InsertTx(ctx context.Context, tx pgx.Tx, rec notify.Record) error
}

// RoleSource re-checks the caller's role with the accounts collaborator so a
// stale token claim cannot widen a transition's authorization.
type RoleSource interface {
	Role(ctx context.Context, userID string) (accounts.Role, error)
}

// Service owns the booking ledger and the appointment lifecycle. All writes
// run in a transaction with a lock timeout; losing a slot race surfaces as a
// conflict, losing a lock race as a retryable conflict.
type Service struct {
	appts     AppointmentStore
	windows   schedule.WindowStore
	match     *matcher.Matcher
	scheduler ReminderScheduler
	events    EventStore
	notices   NoticeStore
	roles     RoleSource
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

func NewService(
	appts AppointmentStore,
	windows schedule.WindowStore,
	match *matcher.Matcher,
	scheduler ReminderScheduler,
	events EventStore,
	notices NoticeStore,
	roles RoleSource,
	logger *slog.Logger,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		appts:     appts,
		windows:   windows,
		match:     match,
		scheduler: scheduler,
		events:    events,
		notices:   notices,
		roles:     roles,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

type BookInput struct {
	CustomerID string
	OperatorID string // optional; empty means let the matcher assign
	CategoryID string
	Title      string
	Day        time.Time
	Start      model.ClockTime
	End        model.ClockTime
}

// txConflicts binds the booking-ledger conflict check to an open transaction
// so a matcher verdict holds until commit.
type txConflicts struct {
	repo      AppointmentStore
	tx        pgx.Tx
	excludeID string
}

func (c txConflicts) HasConflict(ctx context.Context, operatorID string, day time.Time, start, end time.Time) (bool, error) {
	return c.repo.HasConflict(ctx, c.tx, operatorID, day, start, end, c.excludeID)
}

// readConflicts answers from the pool without a transaction; used on listing
// surfaces where the answer is advisory.
type readConflicts struct {
	repo AppointmentStore
}

func (c readConflicts) HasConflict(ctx context.Context, operatorID string, day time.Time, start, end time.Time) (bool, error) {
	return c.repo.HasConflictRead(ctx, operatorID, day, start, end)
}

// Book creates an appointment. With an explicit operator the same three gates
// apply (works that day, slot inside a window, no overlap); without one the
// matcher assigns the first capable operator passing them.
func (s *Service) Book(ctx context.Context, actor Actor, in BookInput) (model.Appointment, error) {
	actor = s.verifyRole(ctx, actor)
	if actor.Role == accounts.RoleCustomer {
		in.CustomerID = actor.UserID
	}
	slot, err := s.validateSlot(in.CustomerID, in.Day, in.Start, in.End)
	if err != nil {
		return model.Appointment{}, err
	}

	tx, err := s.appts.BeginPartition(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	conflicts := txConflicts{repo: s.appts, tx: tx}
	operatorID := in.OperatorID
	if operatorID == "" {
		operatorID, err = s.match.FindOne(ctx, in.CategoryID, slot, conflicts)
		if err != nil {
			return model.Appointment{}, mapLockErr(err)
		}
	} else if err := s.match.Check(ctx, operatorID, in.CategoryID, slot, conflicts); err != nil {
		return model.Appointment{}, mapLockErr(err)
	}

	appt := model.Appointment{
		ID:         uuid.NewString(),
		CustomerID: in.CustomerID,
		OperatorID: operatorID,
		CategoryID: in.CategoryID,
		Title:      in.Title,
		Date:       slot.Day,
		StartTime:  slot.StartTime,
		EndTime:    slot.EndTime,
		Status:     model.StatusScheduled,
		Attendance: model.AttendancePending,
	}
	if err := s.appts.Create(ctx, tx, &appt); err != nil {
		return model.Appointment{}, mapLockErr(err)
	}
	if err := s.scheduler.Schedule(ctx, tx, &appt); err != nil {
		return model.Appointment{}, err
	}
	if err := s.notice(ctx, tx, appt.OperatorID, &appt, "assigned",
		"New appointment", "You have been assigned a new appointment."); err != nil {
		return model.Appointment{}, err
	}
	if err := s.emit(ctx, tx, outbox.TopicAppointmentBooked, &appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, mapLockErr(err)
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"customer_id", appt.CustomerID,
		"operator_id", appt.OperatorID,
		"start", appt.StartTime)
	return appt, nil
}

type RescheduleInput struct {
	Day   time.Time
	Start model.ClockTime
	End   model.ClockTime
}

// Reschedule moves a scheduled appointment to a new slot with the same
// operator. The operator's gates are re-checked against the new slot, the
// appointment's own row excluded from the overlap check. Pending reminders
// are retired and recreated from the new start.
func (s *Service) Reschedule(ctx context.Context, actor Actor, id string, in RescheduleInput) (model.Appointment, error) {
	actor = s.verifyRole(ctx, actor)
	tx, err := s.appts.BeginPartition(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.lockVisible(ctx, tx, actor, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.authorizeParticipant(actor, &appt); err != nil {
		return model.Appointment{}, err
	}
	if appt.Status != model.StatusScheduled {
		return model.Appointment{}, model.Statef("cannot reschedule a %s appointment", appt.Status)
	}

	slot, err := s.validateSlot(appt.CustomerID, in.Day, in.Start, in.End)
	if err != nil {
		return model.Appointment{}, err
	}
	conflicts := txConflicts{repo: s.appts, tx: tx, excludeID: appt.ID}
	if err := s.match.Check(ctx, appt.OperatorID, appt.CategoryID, slot, conflicts); err != nil {
		return model.Appointment{}, mapLockErr(err)
	}

	appt.Date = slot.Day
	appt.StartTime = slot.StartTime
	appt.EndTime = slot.EndTime
	if err := s.appts.UpdateSlot(ctx, tx, &appt); err != nil {
		return model.Appointment{}, mapLockErr(err)
	}
	if err := s.scheduler.Reschedule(ctx, tx, &appt); err != nil {
		return model.Appointment{}, err
	}
	if err := s.emit(ctx, tx, outbox.TopicAppointmentRescheduled, &appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, mapLockErr(err)
	}

	s.logger.Info("appointment rescheduled", "appointment_id", appt.ID, "start", appt.StartTime)
	return appt, nil
}

// Cancel moves a scheduled appointment to cancelled and soft-deletes it.
// Only scheduled appointments cancel; everything else is already under way
// or settled.
func (s *Service) Cancel(ctx context.Context, actor Actor, id, reason string) error {
	actor = s.verifyRole(ctx, actor)
	tx, err := s.appts.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.lockVisible(ctx, tx, actor, id)
	if err != nil {
		return err
	}
	if err := s.authorizeParticipant(actor, &appt); err != nil {
		return err
	}
	if !CanTransition(appt.Status, model.StatusCancelled) {
		return model.Statef("cannot cancel a %s appointment", appt.Status)
	}

	if _, err := s.appts.Cancel(ctx, tx, appt.ID, reason); err != nil {
		return err
	}
	if err := s.scheduler.Retire(ctx, tx, appt.ID); err != nil {
		return err
	}
	appt.Status = model.StatusCancelled
	appt.CancelReason = reason
	for _, userID := range []string{appt.CustomerID, appt.OperatorID} {
		if userID == actor.UserID {
			continue
		}
		if err := s.notice(ctx, tx, userID, &appt, "cancelled",
			"Appointment cancelled", "Your appointment has been cancelled."); err != nil {
			return err
		}
	}
	if err := s.emit(ctx, tx, outbox.TopicAppointmentCancelled, &appt); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.logger.Info("appointment cancelled", "appointment_id", appt.ID, "by", actor.UserID)
	return nil
}

type CompleteInput struct {
	Attended bool
	Note     string
	Rating   *int // operator's rating of the customer, 1..5
}

// Complete records the operator's verdict: attended appointments complete,
// no-shows fail. Attendance is written exactly once, here; the terminal
// status makes a second verdict a state error.
func (s *Service) Complete(ctx context.Context, actor Actor, id string, in CompleteInput) (model.Appointment, error) {
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return model.Appointment{}, model.Validationf("rating must be between 1 and 5")
	}
	actor = s.verifyRole(ctx, actor)

	tx, err := s.appts.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.lockVisible(ctx, tx, actor, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.OperatorID != actor.UserID && !actor.admin() {
		return model.Appointment{}, &model.AuthorizationError{Msg: "only the assigned operator may complete an appointment"}
	}

	status := model.StatusCompleted
	attendance := model.AttendanceAttended
	if !in.Attended {
		status = model.StatusFailed
		attendance = model.AttendanceNotAttended
	}
	if !CanTransition(appt.Status, status) {
		return model.Appointment{}, model.Statef("appointment is already %s", appt.Status)
	}
	completedAt, err := s.appts.Complete(ctx, tx, appt.ID, status, attendance, in.Note, in.Rating)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.scheduler.Retire(ctx, tx, appt.ID); err != nil {
		return model.Appointment{}, err
	}
	appt.Status = status
	appt.Attendance = attendance
	appt.OperatorNote = in.Note
	appt.OperatorRating = in.Rating
	appt.CompletedAt = &completedAt
	if err := s.notice(ctx, tx, appt.CustomerID, &appt, "completed",
		"Appointment closed", "Your appointment has been closed by the operator."); err != nil {
		return model.Appointment{}, err
	}
	if err := s.emit(ctx, tx, outbox.TopicAppointmentCompleted, &appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}

	s.logger.Info("appointment completed",
		"appointment_id", appt.ID,
		"status", appt.Status,
		"attendance", appt.Attendance)
	return appt, nil
}

type RateInput struct {
	Rating int
	Note   string
}

// Rate records the customer's one-time rating. Allowed only on completed,
// attended appointments; a second rating is a state error.
func (s *Service) Rate(ctx context.Context, actor Actor, id string, in RateInput) (model.Appointment, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return model.Appointment{}, model.Validationf("rating must be between 1 and 5")
	}
	actor = s.verifyRole(ctx, actor)

	tx, err := s.appts.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.lockVisible(ctx, tx, actor, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.CustomerID != actor.UserID && !actor.admin() {
		return model.Appointment{}, &model.AuthorizationError{Msg: "only the customer may rate an appointment"}
	}
	if appt.Status != model.StatusCompleted || appt.Attendance != model.AttendanceAttended {
		return model.Appointment{}, model.Statef("only completed, attended appointments can be rated")
	}
	if appt.Rated() {
		return model.Appointment{}, model.Statef("appointment is already rated")
	}

	if err := s.appts.Rate(ctx, tx, appt.ID, in.Rating, in.Note); err != nil {
		return model.Appointment{}, err
	}
	appt.CustomerRating = &in.Rating
	appt.CustomerNote = in.Note
	if err := s.notice(ctx, tx, appt.OperatorID, &appt, "rated",
		"New rating", "A customer rated a completed appointment."); err != nil {
		return model.Appointment{}, err
	}
	if err := s.emit(ctx, tx, outbox.TopicAppointmentRated, &appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}

	s.logger.Info("appointment rated", "appointment_id", appt.ID, "rating", in.Rating)
	return appt, nil
}

// Get returns one appointment. Soft-deleted rows are visible to admins only;
// participants see their own, everyone else gets an authorization error.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (model.Appointment, error) {
	appt, err := s.appts.Get(ctx, id)
	if storage.IsNotFound(err) {
		return model.Appointment{}, &model.NotFoundError{Entity: "appointment", ID: id}
	}
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Deleted && !actor.admin() {
		return model.Appointment{}, &model.NotFoundError{Entity: "appointment", ID: id}
	}
	if err := s.authorizeParticipant(actor, &appt); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) ListForCustomer(ctx context.Context, actor Actor, customerID string, includeDeleted bool, limit int) ([]model.Appointment, error) {
	if customerID != actor.UserID && !actor.admin() {
		return nil, &model.AuthorizationError{Msg: "cannot list another customer's appointments"}
	}
	if !actor.admin() {
		includeDeleted = false
	}
	return s.appts.ListByCustomer(ctx, customerID, includeDeleted, limit)
}

func (s *Service) ListForOperator(ctx context.Context, actor Actor, operatorID string, includeDeleted bool, limit int) ([]model.Appointment, error) {
	if operatorID != actor.UserID && !actor.admin() {
		return nil, &model.AuthorizationError{Msg: "cannot list another operator's appointments"}
	}
	if !actor.admin() {
		includeDeleted = false
	}
	return s.appts.ListByOperator(ctx, operatorID, includeDeleted, limit)
}

// ListUpcoming returns the actor's scheduled appointments over the next days
// (default 7), whether they participate as customer or as operator.
func (s *Service) ListUpcoming(ctx context.Context, actor Actor, days int) ([]model.Appointment, error) {
	if days <= 0 {
		days = 7
	}
	from := s.now()
	return s.appts.ListUpcoming(ctx, actor.UserID, from, from.AddDate(0, 0, days))
}

// ListPendingCompletion returns the operator's past appointments still
// waiting on an attendance verdict.
func (s *Service) ListPendingCompletion(ctx context.Context, actor Actor, operatorID string, limit int) ([]model.Appointment, error) {
	if operatorID != actor.UserID && !actor.admin() {
		return nil, &model.AuthorizationError{Msg: "cannot list another operator's appointments"}
	}
	return s.appts.ListPendingCompletion(ctx, operatorID, s.now(), limit)
}

// AvailableOperators lists every capable operator free for the slot, in the
// matcher's first-fit order.
func (s *Service) AvailableOperators(ctx context.Context, categoryID string, day time.Time, start, end model.ClockTime) ([]string, error) {
	slot, err := s.buildSlot(day, start, end)
	if err != nil {
		return nil, err
	}
	return s.match.FindAll(ctx, categoryID, slot, readConflicts{repo: s.appts})
}

// FreeSlots lists open start times for one operator on one day.
func (s *Service) FreeSlots(ctx context.Context, operatorID string, day time.Time, duration, step time.Duration) ([]time.Time, error) {
	if duration < MinDuration {
		return nil, model.Validationf("duration must be at least %s", MinDuration)
	}
	if step <= 0 {
		step = 30 * time.Minute
	}
	wins, err := s.windows.ActiveWindows(ctx, operatorID, day.Weekday())
	if err != nil {
		return nil, err
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
	occupied, err := s.appts.ListOccupied(ctx, operatorID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	busy := make([]schedule.Interval, 0, len(occupied))
	for i := range occupied {
		busy = append(busy, schedule.Interval{Start: occupied[i].StartTime, End: occupied[i].EndTime})
	}
	return schedule.FreeSlots(wins, day, s.loc, duration, step, busy, s.now()), nil
}

func (s *Service) validateSlot(customerID string, day time.Time, start, end model.ClockTime) (matcher.Slot, error) {
	if customerID == "" {
		return matcher.Slot{}, model.Validationf("customer_id is required")
	}
	slot, err := s.buildSlot(day, start, end)
	if err != nil {
		return matcher.Slot{}, err
	}
	if !slot.StartTime.After(s.now()) {
		return matcher.Slot{}, model.Validationf("appointment must start in the future")
	}
	return slot, nil
}

func (s *Service) buildSlot(day time.Time, start, end model.ClockTime) (matcher.Slot, error) {
	if day.IsZero() {
		return matcher.Slot{}, model.Validationf("day is required")
	}
	if !start.Valid() || end <= start || end > model.MinutesPerDay {
		return matcher.Slot{}, model.Validationf("slot must satisfy 00:00 <= start < end <= 24:00")
	}
	if time.Duration(end-start)*time.Minute < MinDuration {
		return matcher.Slot{}, model.Validationf("appointment must last at least %s", MinDuration)
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return matcher.Slot{
		Day:       day,
		Start:     start,
		End:       end,
		StartTime: start.At(day, s.loc),
		EndTime:   end.At(day, s.loc),
	}, nil
}

// lockVisible locks the row and applies soft-delete visibility: non-admins
// never see deleted appointments.
func (s *Service) lockVisible(ctx context.Context, tx pgx.Tx, actor Actor, id string) (model.Appointment, error) {
	appt, err := s.appts.GetForUpdate(ctx, tx, id)
	if storage.IsNotFound(err) {
		return model.Appointment{}, &model.NotFoundError{Entity: "appointment", ID: id}
	}
	if err != nil {
		return model.Appointment{}, mapLockErr(err)
	}
	if appt.Deleted && !actor.admin() {
		return model.Appointment{}, &model.NotFoundError{Entity: "appointment", ID: id}
	}
	return appt, nil
}

func (s *Service) authorizeParticipant(actor Actor, appt *model.Appointment) error {
	if actor.admin() || actor.UserID == appt.CustomerID || actor.UserID == appt.OperatorID {
		return nil
	}
	return &model.AuthorizationError{Msg: "not a participant of this appointment"}
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, topic string, appt *model.Appointment) error {
	evt, err := outbox.AppointmentEvent(topic, appt)
	if err != nil {
		return err
	}
	return s.events.Insert(ctx, tx, evt)
}

// notice records an in-app notification in the same transaction as the
// lifecycle change it announces.
func (s *Service) notice(ctx context.Context, tx pgx.Tx, userID string, appt *model.Appointment, kind, subject, body string) error {
	if userID == "" {
		return nil
	}
	return s.notices.InsertTx(ctx, tx, notify.Record{
		UserID:        userID,
		AppointmentID: appt.ID,
		Kind:          kind,
		Subject:       subject,
		Body:          body,
	})
}

// verifyRole replaces the token's role claim with the accounts collaborator's
// answer. A lookup failure keeps the claim rather than blocking the action.
func (s *Service) verifyRole(ctx context.Context, actor Actor) Actor {
	role, err := s.roles.Role(ctx, actor.UserID)
	if err != nil {
		s.logger.Warn("role lookup failed, trusting token claim", "err", err, "user_id", actor.UserID)
		return actor
	}
	actor.Role = role
	return actor
}

// mapLockErr turns driver-level contention failures into typed conflicts.
// The exclusion constraint firing means another transaction committed the
// slot first; a lock timeout means the partition is busy and worth a retry.
func mapLockErr(err error) error {
	switch {
	case err == nil:
		return nil
	case storage.IsConflict(err):
		return &model.ConflictError{Msg: "slot was taken by a concurrent booking"}
	case storage.IsLockTimeout(err):
		return &model.ConflictError{Msg: "booking contention, retry", Retryable: true}
	default:
		return err
	}
}
