package outbox

import (
	"encoding/json"
	"time"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	TopicAppointmentBooked      = "booking.appointment.booked.v1"
	TopicAppointmentRescheduled = "booking.appointment.rescheduled.v1"
	TopicAppointmentCancelled   = "booking.appointment.cancelled.v1"
	TopicAppointmentCompleted   = "booking.appointment.completed.v1"
	TopicAppointmentRated       = "booking.appointment.rated.v1"

	TopicReminderSent       = "reminder.sent.v1"
	TopicReminderSuppressed = "reminder.suppressed.v1"
	TopicReminderFailed     = "reminder.failed.v1"
)

type appointmentPayload struct {
	AppointmentID string    `json:"appointment_id"`
	CustomerID    string    `json:"customer_id"`
	OperatorID    string    `json:"operator_id"`
	CategoryID    string    `json:"category_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	Attendance    string    `json:"attendance,omitempty"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
}

// AppointmentEvent builds the envelope for an appointment lifecycle topic.
func AppointmentEvent(topic string, appt *model.Appointment) (Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID: appt.ID,
		CustomerID:    appt.CustomerID,
		OperatorID:    appt.OperatorID,
		CategoryID:    appt.CategoryID,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		Status:        string(appt.Status),
		Attendance:    string(appt.Attendance),
		CancelReason:  appt.CancelReason,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     topic,
		Payload:       payload,
	}, nil
}

type reminderPayload struct {
	TaskID        int64     `json:"task_id"`
	AppointmentID string    `json:"appointment_id"`
	UserID        string    `json:"user_id"`
	Kind          string    `json:"kind"`
	FiresAt       time.Time `json:"fires_at"`
	Reason        string    `json:"reason,omitempty"`
}

// ReminderEvent builds the envelope for a reminder delivery topic. The reason
// is only set on suppression and failure.
func ReminderEvent(topic string, task model.ReminderTask, reason string) (Event, error) {
	payload, err := json.Marshal(reminderPayload{
		TaskID:        task.ID,
		AppointmentID: task.AppointmentID,
		UserID:        task.UserID,
		Kind:          string(task.Kind),
		FiresAt:       task.FiresAt,
		Reason:        reason,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "reminder_task",
		AggregateID:   task.AppointmentID,
		EventType:     topic,
		Payload:       payload,
	}, nil
}
