package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmarin-v/slotbook/libs/db"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

// ReminderRepository persists reminder tasks. A partial unique index on
// (appointment_id, kind) over unsent rows backs the at-most-one-unsent
// invariant; Insert rides it with ON CONFLICT DO NOTHING so scheduling is
// idempotent under concurrent calls.
type ReminderRepository struct {
	pool *db.Pool
}

func NewReminderRepository(pool *db.Pool) *ReminderRepository {
	return &ReminderRepository{pool: pool}
}

func (r *ReminderRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *ReminderRepository) Insert(ctx context.Context, tx pgx.Tx, task model.ReminderTask) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reminder_tasks (user_id, appointment_id, kind, fires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (appointment_id, kind) WHERE NOT sent DO NOTHING
	`, task.UserID, task.AppointmentID, task.Kind, task.FiresAt)
	return err
}

// DeleteUnsent retires every pending task for the appointment. Sent rows are
// history and stay put.
func (r *ReminderRepository) DeleteUnsent(ctx context.Context, tx pgx.Tx, appointmentID string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM reminder_tasks
		WHERE appointment_id = $1 AND NOT sent
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FetchDue claims a batch of due unsent tasks. SKIP LOCKED lets concurrent
// sweep instances partition the backlog instead of serializing on it.
func (r *ReminderRepository) FetchDue(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]model.ReminderTask, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, user_id, appointment_id, kind, fires_at, sent, created_at
		FROM reminder_tasks
		WHERE NOT sent AND fires_at <= $1
		ORDER BY fires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.ReminderTask
	for rows.Next() {
		var t model.ReminderTask
		if err := rows.Scan(&t.ID, &t.UserID, &t.AppointmentID, &t.Kind, &t.FiresAt, &t.Sent, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tasks, nil
}

func (r *ReminderRepository) MarkSent(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_tasks
		SET sent = TRUE
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *ReminderRepository) Delete(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		DELETE FROM reminder_tasks
		WHERE id = ANY($1)
	`, ids)
	return err
}

// ListByAppointment exists for the reschedule and cancel paths' logging and
// for tests; delivery never reads per-appointment.
func (r *ReminderRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]model.ReminderTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, appointment_id, kind, fires_at, sent, created_at
		FROM reminder_tasks
		WHERE appointment_id = $1
		ORDER BY fires_at
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.ReminderTask
	for rows.Next() {
		var t model.ReminderTask
		if err := rows.Scan(&t.ID, &t.UserID, &t.AppointmentID, &t.Kind, &t.FiresAt, &t.Sent, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tasks, nil
}
