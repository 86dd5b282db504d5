package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmarin-v/slotbook/libs/db"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

// WindowRepository persists the recurring weekly availability calendar.
// Implements schedule.WindowStore.
type WindowRepository struct {
	pool *db.Pool
}

func NewWindowRepository(pool *db.Pool) *WindowRepository {
	return &WindowRepository{pool: pool}
}

func (r *WindowRepository) ActiveWindows(ctx context.Context, operatorID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, operator_id, weekday, start_minute, end_minute, active, created_at
		FROM availability_windows
		WHERE operator_id = $1 AND weekday = $2 AND active
		ORDER BY start_minute ASC
	`, operatorID, int(weekday))
	if err != nil {
		return nil, err
	}
	return scanWindows(rows)
}

func (r *WindowRepository) Get(ctx context.Context, id string) (model.AvailabilityWindow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, operator_id, weekday, start_minute, end_minute, active, created_at
		FROM availability_windows
		WHERE id = $1
	`, id)
	w, err := scanWindow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AvailabilityWindow{}, &model.NotFoundError{Entity: "availability window", ID: id}
	}
	return w, err
}

func (r *WindowRepository) Insert(ctx context.Context, w model.AvailabilityWindow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_windows (id, operator_id, weekday, start_minute, end_minute, active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, w.ID, w.OperatorID, int(w.Weekday), int(w.Start), int(w.End), w.Active)
	return err
}

func (r *WindowRepository) Update(ctx context.Context, w model.AvailabilityWindow) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE availability_windows
		SET weekday = $2,
			start_minute = $3,
			end_minute = $4,
			active = $5
		WHERE id = $1
	`, w.ID, int(w.Weekday), int(w.Start), int(w.End), w.Active)
	return err
}

func (r *WindowRepository) ListByOperator(ctx context.Context, operatorID string, includeInactive bool) ([]model.AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, operator_id, weekday, start_minute, end_minute, active, created_at
		FROM availability_windows
		WHERE operator_id = $1 AND (active OR $2)
		ORDER BY weekday ASC, start_minute ASC
	`, operatorID, includeInactive)
	if err != nil {
		return nil, err
	}
	return scanWindows(rows)
}

func scanWindow(row pgx.Row) (model.AvailabilityWindow, error) {
	var w model.AvailabilityWindow
	var weekday, start, end int
	err := row.Scan(&w.ID, &w.OperatorID, &weekday, &start, &end, &w.Active, &w.CreatedAt)
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	w.Weekday = time.Weekday(weekday)
	w.Start = model.ClockTime(start)
	w.End = model.ClockTime(end)
	return w, nil
}

func scanWindows(rows pgx.Rows) ([]model.AvailabilityWindow, error) {
	defer rows.Close()
	var wins []model.AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		wins = append(wins, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return wins, nil
}
