package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/booking"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type appointmentResponse struct {
	AppointmentID  string `json:"appointment_id"`
	CustomerID     string `json:"customer_id"`
	OperatorID     string `json:"operator_id"`
	CategoryID     string `json:"category_id"`
	Title          string `json:"title,omitempty"`
	Day            string `json:"day"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Status         string `json:"status"`
	Attendance     string `json:"attendance"`
	OperatorNote   string `json:"operator_note,omitempty"`
	OperatorRating *int   `json:"operator_rating,omitempty"`
	CustomerNote   string `json:"customer_note,omitempty"`
	CustomerRating *int   `json:"customer_rating,omitempty"`
	CancelReason   string `json:"cancel_reason,omitempty"`
	Deleted        bool   `json:"deleted,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toAppointmentResponse(a *model.Appointment) appointmentResponse {
	return appointmentResponse{
		AppointmentID:  a.ID,
		CustomerID:     a.CustomerID,
		OperatorID:     a.OperatorID,
		CategoryID:     a.CategoryID,
		Title:          a.Title,
		Day:            a.Date.Format("2006-01-02"),
		StartTime:      a.StartTime.Format(time.RFC3339),
		EndTime:        a.EndTime.Format(time.RFC3339),
		Status:         string(a.Status),
		Attendance:     string(a.Attendance),
		OperatorNote:   a.OperatorNote,
		OperatorRating: a.OperatorRating,
		CustomerNote:   a.CustomerNote,
		CustomerRating: a.CustomerRating,
		CancelReason:   a.CancelReason,
		Deleted:        a.Deleted,
		CreatedAt:      a.CreatedAt.Format(time.RFC3339),
	}
}

func toAppointmentList(appts []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

type createAppointmentRequest struct {
	CustomerID string `json:"customer_id"`
	OperatorID string `json:"operator_id"`
	CategoryID string `json:"category_id"`
	Title      string `json:"title"`
	Day        string `json:"day"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

func parseSlotFields(dayRaw, startRaw, endRaw string) (time.Time, model.ClockTime, model.ClockTime, error) {
	day, err := time.Parse("2006-01-02", strings.TrimSpace(dayRaw))
	if err != nil {
		return time.Time{}, 0, 0, model.Validationf("invalid day, want YYYY-MM-DD")
	}
	start, err := model.ParseClock(strings.TrimSpace(startRaw))
	if err != nil {
		return time.Time{}, 0, 0, model.Validationf("invalid start, want HH:MM")
	}
	end, err := model.ParseClock(strings.TrimSpace(endRaw))
	if err != nil {
		return time.Time{}, 0, 0, model.Validationf("invalid end, want HH:MM")
	}
	return day, start, end, nil
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	day, start, end, err := parseSlotFields(req.Day, req.Start, req.End)
	if err != nil {
		writeError(w, err)
		return
	}

	appt, err := h.svc.Book(r.Context(), actor, booking.BookInput{
		CustomerID: strings.TrimSpace(req.CustomerID),
		OperatorID: strings.TrimSpace(req.OperatorID),
		CategoryID: strings.TrimSpace(req.CategoryID),
		Title:      strings.TrimSpace(req.Title),
		Day:        day,
		Start:      start,
		End:        end,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(&appt))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(&appt))
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	Day           string `json:"day"`
	Start         string `json:"start"`
	End           string `json:"end"`
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	day, start, end, err := parseSlotFields(req.Day, req.Start, req.End)
	if err != nil {
		writeError(w, err)
		return
	}
	appt, err := h.svc.Reschedule(r.Context(), actor, strings.TrimSpace(req.AppointmentID), booking.RescheduleInput{
		Day:   day,
		Start: start,
		End:   end,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(&appt))
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(req.AppointmentID)
	if id == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	if err := h.svc.Cancel(r.Context(), actor, id, strings.TrimSpace(req.Reason)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"appointment_id": id, "status": string(model.StatusCancelled)})
}

type completeRequest struct {
	AppointmentID string `json:"appointment_id"`
	Attended      bool   `json:"attended"`
	Note          string `json:"note"`
	Rating        *int   `json:"rating"`
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.Complete(r.Context(), actor, strings.TrimSpace(req.AppointmentID), booking.CompleteInput{
		Attended: req.Attended,
		Note:     strings.TrimSpace(req.Note),
		Rating:   req.Rating,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(&appt))
}

type rateRequest struct {
	AppointmentID string `json:"appointment_id"`
	Rating        int    `json:"rating"`
	Note          string `json:"note"`
}

func (h *BookingHandler) Rate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.Rate(r.Context(), actor, strings.TrimSpace(req.AppointmentID), booking.RateInput{
		Rating: req.Rating,
		Note:   strings.TrimSpace(req.Note),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(&appt))
}

// List serves both participant views: ?customer_id= or ?operator_id=, with
// ?include_deleted=true honored for admins only.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	includeDeleted := q.Get("include_deleted") == "true"
	limit, _ := strconv.Atoi(q.Get("limit"))

	var (
		appts []model.Appointment
		err   error
	)
	switch {
	case q.Get("customer_id") != "":
		appts, err = h.svc.ListForCustomer(r.Context(), actor, q.Get("customer_id"), includeDeleted, limit)
	case q.Get("operator_id") != "":
		appts, err = h.svc.ListForOperator(r.Context(), actor, q.Get("operator_id"), includeDeleted, limit)
	default:
		appts, err = h.svc.ListForCustomer(r.Context(), actor, actor.UserID, includeDeleted, limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toAppointmentList(appts)})
}

// PendingCompletion lists the operator's past appointments awaiting a verdict.
func (h *BookingHandler) PendingCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	operatorID := r.URL.Query().Get("operator_id")
	if operatorID == "" {
		operatorID = actor.UserID
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	appts, err := h.svc.ListPendingCompletion(r.Context(), actor, operatorID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toAppointmentList(appts)})
}

// Upcoming lists the caller's scheduled appointments over the next days.
func (h *BookingHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	appts, err := h.svc.ListUpcoming(r.Context(), actor, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toAppointmentList(appts)})
}

// AvailableOperators lists every operator free for the requested slot.
func (h *BookingHandler) AvailableOperators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	categoryID := strings.TrimSpace(q.Get("category_id"))
	if categoryID == "" {
		http.Error(w, "category_id is required", http.StatusBadRequest)
		return
	}
	day, start, end, err := parseSlotFields(q.Get("day"), q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, err)
		return
	}
	operators, err := h.svc.AvailableOperators(r.Context(), categoryID, day, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	if operators == nil {
		operators = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operators": operators})
}

// Slots lists open start times for one operator on one day.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	operatorID := strings.TrimSpace(q.Get("operator_id"))
	if operatorID == "" {
		http.Error(w, "operator_id is required", http.StatusBadRequest)
		return
	}
	day, err := time.Parse("2006-01-02", q.Get("day"))
	if err != nil {
		http.Error(w, "invalid day, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	durationMins, err := strconv.Atoi(q.Get("duration_minutes"))
	if err != nil || durationMins <= 0 {
		http.Error(w, "duration_minutes must be a positive integer", http.StatusBadRequest)
		return
	}
	stepMins, _ := strconv.Atoi(q.Get("step_minutes"))

	slots, err := h.svc.FreeSlots(r.Context(), operatorID, day,
		time.Duration(durationMins)*time.Minute, time.Duration(stepMins)*time.Minute)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": out})
}
