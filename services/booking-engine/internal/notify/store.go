package notify

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmarin-v/slotbook/libs/db"
)

// Record is one in-app notification as shown in the user's inbox.
type Record struct {
	ID            int64
	UserID        string
	AppointmentID string
	Kind          string
	Subject       string
	Body          string
	Read          bool
	CreatedAt     time.Time
}

// Store persists in-app notifications. InsertTx runs inside the reminder
// sweep transaction so the inbox entry and the task's sent flag commit
// together.
type Store struct {
	pool *db.Pool
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) InsertTx(ctx context.Context, tx pgx.Tx, rec Record) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (user_id, appointment_id, kind, subject, body)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.UserID, rec.AppointmentID, rec.Kind, rec.Subject, rec.Body)
	return err
}

func (s *Store) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, appointment_id, kind, subject, body, read, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT read OR NOT $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.AppointmentID, &rec.Kind, &rec.Subject, &rec.Body, &rec.Read, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return recs, nil
}

// MarkRead flips one notification for its owner. Returns false when the row
// does not exist or belongs to someone else.
func (s *Store) MarkRead(ctx context.Context, userID string, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET read = TRUE
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
