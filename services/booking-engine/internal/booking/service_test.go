package booking

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/accounts"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/matcher"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/notify"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/outbox"
)

// fakeTx satisfies pgx.Tx for stores that never touch the connection. Only
// Commit and Rollback are callable.
type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

// memApptStore keeps the ledger in a map and reproduces the repository's
// overlap semantics.
type memApptStore struct {
	appts map[string]*model.Appointment
}

func newMemApptStore() *memApptStore {
	return &memApptStore{appts: map[string]*model.Appointment{}}
}

func (m *memApptStore) Begin(context.Context) (pgx.Tx, error)          { return fakeTx{}, nil }
func (m *memApptStore) BeginPartition(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (m *memApptStore) Create(_ context.Context, _ pgx.Tx, appt *model.Appointment) error {
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	stored := *appt
	m.appts[appt.ID] = &stored
	return nil
}

func (m *memApptStore) Get(_ context.Context, id string) (model.Appointment, error) {
	appt, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return *appt, nil
}

func (m *memApptStore) GetForUpdate(ctx context.Context, _ pgx.Tx, id string) (model.Appointment, error) {
	return m.Get(ctx, id)
}

func (m *memApptStore) HasConflict(_ context.Context, _ pgx.Tx, operatorID string, day time.Time, start, end time.Time, excludeID string) (bool, error) {
	for _, appt := range m.appts {
		if appt.ID == excludeID || appt.OperatorID != operatorID || !appt.Date.Equal(day) || !appt.Active() {
			continue
		}
		if appt.StartTime.Before(end) && start.Before(appt.EndTime) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memApptStore) HasConflictRead(ctx context.Context, operatorID string, day time.Time, start, end time.Time) (bool, error) {
	return m.HasConflict(ctx, nil, operatorID, day, start, end, "")
}

func (m *memApptStore) UpdateSlot(_ context.Context, _ pgx.Tx, appt *model.Appointment) error {
	stored := m.appts[appt.ID]
	stored.Date = appt.Date
	stored.StartTime = appt.StartTime
	stored.EndTime = appt.EndTime
	stored.UpdatedAt = time.Now()
	return nil
}

func (m *memApptStore) Cancel(_ context.Context, _ pgx.Tx, id, reason string) (time.Time, error) {
	stored, ok := m.appts[id]
	if !ok {
		return time.Time{}, pgx.ErrNoRows
	}
	now := time.Now()
	stored.Status = model.StatusCancelled
	stored.CancelReason = reason
	stored.Deleted = true
	stored.DeletedAt = &now
	return now, nil
}

func (m *memApptStore) Complete(_ context.Context, _ pgx.Tx, id string, status model.Status, attendance model.Attendance, note string, rating *int) (time.Time, error) {
	stored, ok := m.appts[id]
	if !ok {
		return time.Time{}, pgx.ErrNoRows
	}
	now := time.Now()
	stored.Status = status
	stored.Attendance = attendance
	stored.OperatorNote = note
	stored.OperatorRating = rating
	stored.CompletedAt = &now
	return now, nil
}

func (m *memApptStore) Rate(_ context.Context, _ pgx.Tx, id string, rating int, note string) error {
	stored, ok := m.appts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.CustomerRating = &rating
	stored.CustomerNote = note
	return nil
}

func (m *memApptStore) ListByCustomer(_ context.Context, customerID string, includeDeleted bool, _ int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range m.appts {
		if appt.CustomerID == customerID && (!appt.Deleted || includeDeleted) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (m *memApptStore) ListByOperator(_ context.Context, operatorID string, includeDeleted bool, _ int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range m.appts {
		if appt.OperatorID == operatorID && (!appt.Deleted || includeDeleted) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (m *memApptStore) ListUpcoming(_ context.Context, userID string, from, until time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range m.appts {
		if (appt.CustomerID == userID || appt.OperatorID == userID) &&
			!appt.Deleted && appt.Status == model.StatusScheduled &&
			!appt.StartTime.Before(from) && appt.StartTime.Before(until) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (m *memApptStore) ListOccupied(_ context.Context, operatorID string, start, end time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range m.appts {
		if appt.OperatorID == operatorID && appt.Active() &&
			appt.StartTime.Before(end) && start.Before(appt.EndTime) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (m *memApptStore) ListPendingCompletion(_ context.Context, operatorID string, now time.Time, _ int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range m.appts {
		if appt.OperatorID == operatorID && !appt.Status.Terminal() && !appt.EndTime.After(now) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

type fakeScheduler struct {
	scheduled   []string
	rescheduled []string
	retired     []string
}

func (f *fakeScheduler) Schedule(_ context.Context, _ pgx.Tx, appt *model.Appointment) error {
	f.scheduled = append(f.scheduled, appt.ID)
	return nil
}

func (f *fakeScheduler) Reschedule(_ context.Context, _ pgx.Tx, appt *model.Appointment) error {
	f.rescheduled = append(f.rescheduled, appt.ID)
	return nil
}

func (f *fakeScheduler) Retire(_ context.Context, _ pgx.Tx, appointmentID string) error {
	f.retired = append(f.retired, appointmentID)
	return nil
}

type fakeEvents struct {
	topics []string
}

func (f *fakeEvents) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.topics = append(f.topics, evt.EventType)
	return nil
}

type fakeNotices struct {
	records []notify.Record
}

func (f *fakeNotices) InsertTx(_ context.Context, _ pgx.Tx, rec notify.Record) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeNotices) forUser(userID string) []notify.Record {
	var out []notify.Record
	for _, rec := range f.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out
}

// openAvailability passes every calendar gate; these tests exercise the
// ledger and lifecycle, not the calendar.
type openAvailability struct{}

func (openAvailability) WorksOn(context.Context, string, time.Weekday) (bool, error) {
	return true, nil
}

func (openAvailability) FitsSchedule(context.Context, string, time.Weekday, model.ClockTime, model.ClockTime) (bool, error) {
	return true, nil
}

type testEnv struct {
	svc       *Service
	store     *memApptStore
	provider  *accounts.StaticProvider
	scheduler *fakeScheduler
	events    *fakeEvents
	notices   *fakeNotices
}

func newTestEnv() *testEnv {
	provider := accounts.NewStaticProvider()
	provider.Operators["cat"] = []string{"op-1"}
	store := newMemApptStore()
	scheduler := &fakeScheduler{}
	events := &fakeEvents{}
	notices := &fakeNotices{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, nil, matcher.New(provider, openAvailability{}), scheduler, events, notices, provider, logger, time.UTC)
	svc.now = func() time.Time { return time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC) }
	return &testEnv{svc: svc, store: store, provider: provider, scheduler: scheduler, events: events, notices: notices}
}

func (e *testEnv) seed(appt model.Appointment) {
	stored := appt
	e.store.appts[appt.ID] = &stored
}

func bookInput() BookInput {
	return BookInput{
		CustomerID: "cust-1",
		CategoryID: "cat",
		Day:        time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC),
		Start:      model.ClockTime(9 * 60),
		End:        model.ClockTime(10 * 60),
	}
}

func seededAppointment(status model.Status) model.Appointment {
	start := time.Date(2026, 1, 19, 9, 0, 0, 0, time.UTC)
	return model.Appointment{
		ID:         "appt-1",
		CustomerID: "cust-1",
		OperatorID: "op-1",
		CategoryID: "cat",
		Date:       time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC),
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
		Status:     status,
		Attendance: model.AttendancePending,
	}
}

func TestBook_AssignsOperatorAndNotifies(t *testing.T) {
	env := newTestEnv()
	actor := Actor{UserID: "cust-1", Role: accounts.RoleCustomer}

	appt, err := env.svc.Book(context.Background(), actor, bookInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.OperatorID != "op-1" {
		t.Fatalf("expected matcher to assign op-1, got %s", appt.OperatorID)
	}
	if len(env.scheduler.scheduled) != 1 {
		t.Fatalf("expected reminders scheduled once, got %v", env.scheduler.scheduled)
	}
	if got := env.notices.forUser("op-1"); len(got) != 1 || got[0].Kind != "assigned" {
		t.Fatalf("expected an assignment notice for the operator, got %+v", env.notices.records)
	}
}

func TestBook_RejectsShortDuration(t *testing.T) {
	env := newTestEnv()
	in := bookInput()
	in.End = in.Start + 3

	_, err := env.svc.Book(context.Background(), Actor{UserID: "cust-1", Role: accounts.RoleCustomer}, in)
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error for a 3 minute slot, got %v", err)
	}
}

func TestBook_ExplicitOperatorOutsideCategory(t *testing.T) {
	env := newTestEnv()
	in := bookInput()
	in.OperatorID = "op-2"

	_, err := env.svc.Book(context.Background(), Actor{UserID: "cust-1", Role: accounts.RoleCustomer}, in)
	if !model.IsConflict(err) {
		t.Fatalf("expected conflict error for an operator outside the category, got %v", err)
	}
}

func TestComplete_NoShowThenRateRejected(t *testing.T) {
	env := newTestEnv()
	env.seed(seededAppointment(model.StatusScheduled))
	operator := Actor{UserID: "op-1", Role: accounts.RoleOperator}

	appt, err := env.svc.Complete(context.Background(), operator, "appt-1", CompleteInput{Attended: false, Note: "no-show"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != model.StatusFailed || appt.Attendance != model.AttendanceNotAttended {
		t.Fatalf("expected failed/not_attended, got %s/%s", appt.Status, appt.Attendance)
	}

	_, err = env.svc.Rate(context.Background(), Actor{UserID: "cust-1", Role: accounts.RoleCustomer}, "appt-1", RateInput{Rating: 4})
	if !model.IsState(err) {
		t.Fatalf("expected state error rating a failed appointment, got %v", err)
	}
}

func TestRate_OnceOnly(t *testing.T) {
	env := newTestEnv()
	env.seed(seededAppointment(model.StatusScheduled))
	customer := Actor{UserID: "cust-1", Role: accounts.RoleCustomer}

	if _, err := env.svc.Complete(context.Background(), Actor{UserID: "op-1", Role: accounts.RoleOperator}, "appt-1", CompleteInput{Attended: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.svc.Rate(context.Background(), customer, "appt-1", RateInput{Rating: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := env.svc.Rate(context.Background(), customer, "appt-1", RateInput{Rating: 1})
	if !model.IsState(err) {
		t.Fatalf("expected state error on a second rating, got %v", err)
	}
}

func TestCancel_InProgressRejected(t *testing.T) {
	env := newTestEnv()
	env.seed(seededAppointment(model.StatusInProgress))

	err := env.svc.Cancel(context.Background(), Actor{UserID: "cust-1", Role: accounts.RoleCustomer}, "appt-1", "changed my mind")
	if !model.IsState(err) {
		t.Fatalf("expected state error cancelling an in-progress appointment, got %v", err)
	}
}

func TestComplete_ProviderRoleOverridesClaim(t *testing.T) {
	env := newTestEnv()
	env.seed(seededAppointment(model.StatusScheduled))
	// The token claims admin but the accounts collaborator knows better.
	env.provider.Roles["impostor"] = accounts.RoleCustomer

	_, err := env.svc.Complete(context.Background(), Actor{UserID: "impostor", Role: accounts.RoleAdmin}, "appt-1", CompleteInput{Attended: true})
	if !model.IsAuthorization(err) {
		t.Fatalf("expected authorization error for a demoted caller, got %v", err)
	}
}

func TestComplete_NotifiesCustomer(t *testing.T) {
	env := newTestEnv()
	env.seed(seededAppointment(model.StatusScheduled))

	if _, err := env.svc.Complete(context.Background(), Actor{UserID: "op-1", Role: accounts.RoleOperator}, "appt-1", CompleteInput{Attended: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := env.notices.forUser("cust-1"); len(got) != 1 || got[0].Kind != "completed" {
		t.Fatalf("expected a completion notice for the customer, got %+v", env.notices.records)
	}
}
