package model

import "time"

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further status transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type Attendance string

const (
	AttendancePending     Attendance = "pending"
	AttendanceAttended    Attendance = "attended"
	AttendanceNotAttended Attendance = "not_attended"
)

// Appointment is the aggregate root of the booking ledger. It references
// customer, operator and category by id only; operator assignment is immutable
// for the appointment's active lifetime (cancel + recreate to move it).
type Appointment struct {
	ID             string
	CustomerID     string
	OperatorID     string
	CategoryID     string
	Title          string
	Date           time.Time // midnight UTC on the appointment's calendar day
	StartTime      time.Time
	EndTime        time.Time
	Status         Status
	Attendance     Attendance
	OperatorNote   string
	OperatorRating *int
	CustomerNote   string
	CustomerRating *int
	CancelReason   string
	Deleted        bool
	DeletedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Active reports whether the appointment still occupies its operator's slot.
// Cancelled and failed appointments (and soft-deleted rows) never block.
func (a *Appointment) Active() bool {
	return !a.Deleted && a.Status != StatusCancelled && a.Status != StatusFailed
}

func (a *Appointment) Rated() bool {
	return a.CustomerRating != nil
}
