package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

// WindowStore is the persistence surface for the weekly calendar.
type WindowStore interface {
	WindowSource
	Get(ctx context.Context, id string) (model.AvailabilityWindow, error)
	Insert(ctx context.Context, w model.AvailabilityWindow) error
	Update(ctx context.Context, w model.AvailabilityWindow) error
	ListByOperator(ctx context.Context, operatorID string, includeInactive bool) ([]model.AvailabilityWindow, error)
}

// Service owns availability-window CRUD. Deactivation is soft; a window
// referenced by past appointments is never removed.
type Service struct {
	store  WindowStore
	logger *slog.Logger
}

func NewService(store WindowStore, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

type WindowInput struct {
	OperatorID string
	Weekday    time.Weekday
	Start      model.ClockTime
	End        model.ClockTime
}

func (s *Service) CreateWindow(ctx context.Context, in WindowInput) (model.AvailabilityWindow, error) {
	if err := s.validate(ctx, in, ""); err != nil {
		return model.AvailabilityWindow{}, err
	}
	w := model.AvailabilityWindow{
		ID:         uuid.NewString(),
		OperatorID: in.OperatorID,
		Weekday:    in.Weekday,
		Start:      in.Start,
		End:        in.End,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, w); err != nil {
		return model.AvailabilityWindow{}, err
	}
	s.logger.Info("availability window created", "window_id", w.ID, "operator_id", w.OperatorID, "weekday", w.Weekday.String())
	return w, nil
}

func (s *Service) UpdateWindow(ctx context.Context, id string, in WindowInput) (model.AvailabilityWindow, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	// The owning operator never changes on update.
	in.OperatorID = existing.OperatorID
	if err := s.validate(ctx, in, id); err != nil {
		return model.AvailabilityWindow{}, err
	}
	existing.Weekday = in.Weekday
	existing.Start = in.Start
	existing.End = in.End
	if err := s.store.Update(ctx, existing); err != nil {
		return model.AvailabilityWindow{}, err
	}
	return existing, nil
}

func (s *Service) DeactivateWindow(ctx context.Context, id string) error {
	w, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !w.Active {
		return nil
	}
	w.Active = false
	if err := s.store.Update(ctx, w); err != nil {
		return err
	}
	s.logger.Info("availability window deactivated", "window_id", id)
	return nil
}

func (s *Service) GetWindow(ctx context.Context, id string) (model.AvailabilityWindow, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListWindows(ctx context.Context, operatorID string, includeInactive bool) ([]model.AvailabilityWindow, error) {
	return s.store.ListByOperator(ctx, operatorID, includeInactive)
}

// validate enforces well-formed bounds and the no-overlapping-active-windows
// invariant for a given operator/weekday. excludeID skips the window being
// edited.
func (s *Service) validate(ctx context.Context, in WindowInput, excludeID string) error {
	if in.OperatorID == "" {
		return model.Validationf("operator_id is required")
	}
	if !in.Start.Valid() || in.End <= in.Start || in.End > model.MinutesPerDay {
		return model.Validationf("window must satisfy 00:00 <= start < end <= 24:00")
	}
	active, err := s.store.ActiveWindows(ctx, in.OperatorID, in.Weekday)
	if err != nil {
		return err
	}
	for i := range active {
		if active[i].ID == excludeID {
			continue
		}
		if active[i].Overlaps(in.Start, in.End) {
			return model.Conflictf("window %s-%s overlaps active window %s-%s on %s",
				in.Start, in.End, active[i].Start, active[i].End, in.Weekday)
		}
	}
	return nil
}
