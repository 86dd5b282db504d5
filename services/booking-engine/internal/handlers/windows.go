package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/accounts"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/schedule"
)

type WindowHandler struct {
	svc    *schedule.Service
	logger *slog.Logger
}

func NewWindowHandler(svc *schedule.Service, logger *slog.Logger) *WindowHandler {
	return &WindowHandler{svc: svc, logger: logger}
}

type windowResponse struct {
	WindowID   string `json:"window_id"`
	OperatorID string `json:"operator_id"`
	Weekday    string `json:"weekday"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Active     bool   `json:"active"`
}

func toWindowResponse(w *model.AvailabilityWindow) windowResponse {
	return windowResponse{
		WindowID:   w.ID,
		OperatorID: w.OperatorID,
		Weekday:    w.Weekday.String(),
		Start:      w.Start.String(),
		End:        w.End.String(),
		Active:     w.Active,
	}
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, model.Validationf("invalid weekday %q", s)
	}
	return day, nil
}

type windowRequest struct {
	WindowID   string `json:"window_id"`
	OperatorID string `json:"operator_id"`
	Weekday    string `json:"weekday"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

// operatorFor resolves which operator the request acts on: operators manage
// their own calendar, admins anyone's.
func operatorFor(r *http.Request, requested string) (string, error) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		return "", &model.AuthorizationError{Msg: "unauthenticated"}
	}
	requested = strings.TrimSpace(requested)
	if actor.Role == accounts.RoleAdmin {
		if requested == "" {
			return actor.UserID, nil
		}
		return requested, nil
	}
	if actor.Role != accounts.RoleOperator {
		return "", &model.AuthorizationError{Msg: "only operators manage availability windows"}
	}
	if requested != "" && requested != actor.UserID {
		return "", &model.AuthorizationError{Msg: "cannot manage another operator's windows"}
	}
	return actor.UserID, nil
}

func (h *WindowHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	operatorID, err := operatorFor(r, req.OperatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	weekday, err := parseWeekday(req.Weekday)
	if err != nil {
		writeError(w, err)
		return
	}
	start, err := model.ParseClock(strings.TrimSpace(req.Start))
	if err != nil {
		writeError(w, model.Validationf("invalid start, want HH:MM"))
		return
	}
	end, err := model.ParseClock(strings.TrimSpace(req.End))
	if err != nil {
		writeError(w, model.Validationf("invalid end, want HH:MM"))
		return
	}

	win, err := h.svc.CreateWindow(r.Context(), schedule.WindowInput{
		OperatorID: operatorID,
		Weekday:    weekday,
		Start:      start,
		End:        end,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWindowResponse(&win))
}

func (h *WindowHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.WindowID) == "" {
		http.Error(w, "window_id is required", http.StatusBadRequest)
		return
	}
	if err := h.authorizeWindow(r, strings.TrimSpace(req.WindowID)); err != nil {
		writeError(w, err)
		return
	}
	weekday, err := parseWeekday(req.Weekday)
	if err != nil {
		writeError(w, err)
		return
	}
	start, err := model.ParseClock(strings.TrimSpace(req.Start))
	if err != nil {
		writeError(w, model.Validationf("invalid start, want HH:MM"))
		return
	}
	end, err := model.ParseClock(strings.TrimSpace(req.End))
	if err != nil {
		writeError(w, model.Validationf("invalid end, want HH:MM"))
		return
	}

	win, err := h.svc.UpdateWindow(r.Context(), strings.TrimSpace(req.WindowID), schedule.WindowInput{
		Weekday: weekday,
		Start:   start,
		End:     end,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindowResponse(&win))
}

func (h *WindowHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(req.WindowID)
	if id == "" {
		http.Error(w, "window_id is required", http.StatusBadRequest)
		return
	}
	if err := h.authorizeWindow(r, id); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.DeactivateWindow(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"window_id": id, "active": false})
}

func (h *WindowHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	operatorID, err := operatorFor(r, r.URL.Query().Get("operator_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	wins, err := h.svc.ListWindows(r.Context(), operatorID, includeInactive)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]windowResponse, 0, len(wins))
	for i := range wins {
		out = append(out, toWindowResponse(&wins[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": out})
}

// authorizeWindow checks the window belongs to the caller (or the caller is
// an admin) before mutating it.
func (h *WindowHandler) authorizeWindow(r *http.Request, windowID string) error {
	actor, ok := actorFrom(r.Context())
	if !ok {
		return &model.AuthorizationError{Msg: "unauthenticated"}
	}
	if actor.Role == accounts.RoleAdmin {
		return nil
	}
	win, err := h.svc.GetWindow(r.Context(), windowID)
	if err != nil {
		return err
	}
	if win.OperatorID != actor.UserID {
		return &model.AuthorizationError{Msg: "cannot manage another operator's windows"}
	}
	return nil
}
