package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmarin-v/slotbook/libs/db"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

const apptColumns = `id, customer_id, operator_id, category_id, COALESCE(title, ''), day, start_time, end_time,
	status, attendance, COALESCE(operator_note, ''), operator_rating, COALESCE(customer_note, ''), customer_rating,
	COALESCE(cancel_reason, ''), deleted, deleted_at, completed_at, created_at, updated_at`

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// BeginPartition opens a transaction with a short lock timeout so contention
// on one (operator, day) partition surfaces as a retryable conflict instead
// of an unbounded wait.
func (r *AppointmentRepository) BeginPartition(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `SET LOCAL lock_timeout = '3s'`); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, customer_id, operator_id, category_id, title, day, start_time, end_time, status, attendance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, appt.ID, appt.CustomerID, appt.OperatorID, appt.CategoryID, appt.Title,
		appt.Date, appt.StartTime, appt.EndTime, appt.Status, appt.Attendance).
		Scan(&appt.CreatedAt, &appt.UpdatedAt)
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+apptColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, `SELECT `+apptColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HasConflict reports whether any slot-occupying appointment of the operator
// on the given day overlaps [start,end). Half-open: back-to-back bookings do
// not conflict. excludeID skips the appointment being rescheduled.
func (r *AppointmentRepository) HasConflict(ctx context.Context, tx pgx.Tx, operatorID string, day time.Time, start, end time.Time, excludeID string) (bool, error) {
	return hasConflict(ctx, tx, operatorID, day, start, end, excludeID)
}

// HasConflictRead is the untransacted variant used by read-only surfaces
// (operator listings, free-slot views) where the answer may go stale.
func (r *AppointmentRepository) HasConflictRead(ctx context.Context, operatorID string, day time.Time, start, end time.Time) (bool, error) {
	return hasConflict(ctx, r.pool, operatorID, day, start, end, "")
}

func hasConflict(ctx context.Context, q rowQuerier, operatorID string, day time.Time, start, end time.Time, excludeID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE operator_id = $1
				AND day = $2
				AND NOT deleted
				AND status NOT IN ('cancelled', 'failed')
				AND start_time < $4
				AND end_time > $3
				AND id::text <> $5
		)
	`, operatorID, day, start, end, excludeID).Scan(&exists)
	return exists, err
}

func (r *AppointmentRepository) UpdateSlot(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	return tx.QueryRow(ctx, `
		UPDATE appointments
		SET operator_id = $2,
			day = $3,
			start_time = $4,
			end_time = $5,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, appt.ID, appt.OperatorID, appt.Date, appt.StartTime, appt.EndTime).Scan(&appt.UpdatedAt)
}

func (r *AppointmentRepository) Cancel(ctx context.Context, tx pgx.Tx, id, reason string) (time.Time, error) {
	var deletedAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancel_reason = $2,
			deleted = TRUE,
			deleted_at = now(),
			updated_at = now()
		WHERE id = $1
		RETURNING deleted_at
	`, id, reason).Scan(&deletedAt)
	return deletedAt, err
}

func (r *AppointmentRepository) Complete(ctx context.Context, tx pgx.Tx, id string, status model.Status, attendance model.Attendance, note string, rating *int) (time.Time, error) {
	var completedAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			attendance = $3,
			operator_note = $4,
			operator_rating = $5,
			completed_at = now(),
			updated_at = now()
		WHERE id = $1
		RETURNING completed_at
	`, id, status, attendance, note, rating).Scan(&completedAt)
	return completedAt, err
}

func (r *AppointmentRepository) Rate(ctx context.Context, tx pgx.Tx, id string, rating int, note string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET customer_rating = $2,
			customer_note = $3,
			updated_at = now()
		WHERE id = $1
	`, id, rating, note)
	return err
}

func (r *AppointmentRepository) ListByCustomer(ctx context.Context, customerID string, includeDeleted bool, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE customer_id = $1 AND (NOT deleted OR $2)
		ORDER BY start_time DESC
		LIMIT $3
	`, customerID, includeDeleted, limit)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *AppointmentRepository) ListByOperator(ctx context.Context, operatorID string, includeDeleted bool, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE operator_id = $1 AND (NOT deleted OR $2)
		ORDER BY start_time DESC
		LIMIT $3
	`, operatorID, includeDeleted, limit)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

// ListUpcoming returns a participant's live appointments starting within [from,until).
func (r *AppointmentRepository) ListUpcoming(ctx context.Context, userID string, from, until time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE (customer_id = $1 OR operator_id = $1)
			AND NOT deleted
			AND status = 'scheduled'
			AND start_time >= $2
			AND start_time < $3
		ORDER BY start_time ASC
	`, userID, from, until)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

// ListOccupied returns the operator's slot-occupying appointments whose
// interval intersects [start,end). Feeds the free-slot listing.
func (r *AppointmentRepository) ListOccupied(ctx context.Context, operatorID string, start, end time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE operator_id = $1
			AND NOT deleted
			AND status NOT IN ('cancelled', 'failed')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, operatorID, start, end)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

// ListPendingCompletion returns the operator's appointments past their end
// time that still await an explicit attendance verdict.
func (r *AppointmentRepository) ListPendingCompletion(ctx context.Context, operatorID string, now time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE operator_id = $1
			AND NOT deleted
			AND status IN ('scheduled', 'in_progress')
			AND end_time <= $2
		ORDER BY end_time ASC
		LIMIT $3
	`, operatorID, now, limit)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

// MarkInProgress flips scheduled appointments whose interval contains now.
// The status guard makes the sweep idempotent and keeps it from touching
// rows an operator already moved to a terminal state.
func (r *AppointmentRepository) MarkInProgress(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE appointments
		SET status = 'in_progress', updated_at = now()
		WHERE status = 'scheduled'
			AND NOT deleted
			AND start_time <= $1
			AND end_time > $1
		RETURNING id
	`, now)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// AutoComplete closes out appointments whose end time has passed without an
// operator verdict. Attendance stays pending; only an explicit complete call
// records attendance.
func (r *AppointmentRepository) AutoComplete(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE appointments
		SET status = 'completed', completed_at = now(), updated_at = now()
		WHERE status IN ('scheduled', 'in_progress')
			AND NOT deleted
			AND end_time <= $1
		RETURNING id
	`, now)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// IsConflict matches the exclusion-constraint violation raised when two
// transactions race the same operator slot.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

// IsLockTimeout matches SQLSTATE 55P03, raised when the partition lock
// timeout fires. Callers surface it as a retryable conflict.
func IsLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.CustomerID,
		&appt.OperatorID,
		&appt.CategoryID,
		&appt.Title,
		&appt.Date,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&appt.Attendance,
		&appt.OperatorNote,
		&appt.OperatorRating,
		&appt.CustomerNote,
		&appt.CustomerRating,
		&appt.CancelReason,
		&appt.Deleted,
		&appt.DeletedAt,
		&appt.CompletedAt,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}
