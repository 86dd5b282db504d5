package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/notify"
)

type NotificationHandler struct {
	store  *notify.Store
	logger *slog.Logger
}

func NewNotificationHandler(store *notify.Store, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{store: store, logger: logger}
}

type notificationResponse struct {
	ID            int64  `json:"id"`
	AppointmentID string `json:"appointment_id"`
	Kind          string `json:"kind"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	Read          bool   `json:"read"`
	CreatedAt     string `json:"created_at"`
}

// List returns the caller's in-app inbox, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recs, err := h.store.ListByUser(r.Context(), actor.UserID, unreadOnly, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]notificationResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, notificationResponse{
			ID:            rec.ID,
			AppointmentID: rec.AppointmentID,
			Kind:          rec.Kind,
			Subject:       rec.Subject,
			Body:          rec.Body,
			Read:          rec.Read,
			CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

type markReadRequest struct {
	ID int64 `json:"id"`
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	updated, err := h.store.MarkRead(r.Context(), actor.UserID, req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !updated {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "read": true})
}
