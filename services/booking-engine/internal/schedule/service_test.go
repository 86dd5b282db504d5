package schedule

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

type memWindowStore struct {
	windows map[string]model.AvailabilityWindow
}

func newMemWindowStore() *memWindowStore {
	return &memWindowStore{windows: map[string]model.AvailabilityWindow{}}
}

func (s *memWindowStore) ActiveWindows(_ context.Context, operatorID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	var out []model.AvailabilityWindow
	for _, w := range s.windows {
		if w.OperatorID == operatorID && w.Weekday == weekday && w.Active {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *memWindowStore) Get(_ context.Context, id string) (model.AvailabilityWindow, error) {
	w, ok := s.windows[id]
	if !ok {
		return model.AvailabilityWindow{}, &model.NotFoundError{Entity: "availability window", ID: id}
	}
	return w, nil
}

func (s *memWindowStore) Insert(_ context.Context, w model.AvailabilityWindow) error {
	s.windows[w.ID] = w
	return nil
}

func (s *memWindowStore) Update(_ context.Context, w model.AvailabilityWindow) error {
	s.windows[w.ID] = w
	return nil
}

func (s *memWindowStore) ListByOperator(_ context.Context, operatorID string, includeInactive bool) ([]model.AvailabilityWindow, error) {
	var out []model.AvailabilityWindow
	for _, w := range s.windows {
		if w.OperatorID == operatorID && (w.Active || includeInactive) {
			out = append(out, w)
		}
	}
	return out, nil
}

func newTestService() (*Service, *memWindowStore) {
	store := newMemWindowStore()
	return NewService(store, slog.Default()), store
}

func TestCreateWindow(t *testing.T) {
	svc, _ := newTestService()
	w, err := svc.CreateWindow(context.Background(), WindowInput{
		OperatorID: "op-1",
		Weekday:    time.Monday,
		Start:      clock(9, 0),
		End:        clock(17, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.ID == "" || !w.Active {
		t.Fatalf("expected an active window with an id, got %+v", w)
	}
}

func TestCreateWindow_RejectsOverlap(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateWindow(ctx, WindowInput{OperatorID: "op-1", Weekday: time.Monday, Start: clock(9, 0), End: clock(12, 0)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := svc.CreateWindow(ctx, WindowInput{OperatorID: "op-1", Weekday: time.Monday, Start: clock(11, 0), End: clock(14, 0)})
	if !model.IsConflict(err) {
		t.Fatalf("expected conflict for overlapping window, got %v", err)
	}

	// Touching windows do not overlap.
	if _, err := svc.CreateWindow(ctx, WindowInput{OperatorID: "op-1", Weekday: time.Monday, Start: clock(12, 0), End: clock(14, 0)}); err != nil {
		t.Fatalf("back-to-back windows should be allowed, got %v", err)
	}

	// A different weekday is a different axis.
	if _, err := svc.CreateWindow(ctx, WindowInput{OperatorID: "op-1", Weekday: time.Tuesday, Start: clock(9, 0), End: clock(12, 0)}); err != nil {
		t.Fatalf("other weekday should be allowed, got %v", err)
	}
}

func TestCreateWindow_RejectsBadBounds(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []WindowInput{
		{OperatorID: "", Weekday: time.Monday, Start: clock(9, 0), End: clock(10, 0)},
		{OperatorID: "op-1", Weekday: time.Monday, Start: clock(10, 0), End: clock(10, 0)},
		{OperatorID: "op-1", Weekday: time.Monday, Start: clock(10, 0), End: clock(9, 0)},
		{OperatorID: "op-1", Weekday: time.Monday, Start: clock(23, 0), End: clock(25, 0)},
	}
	for _, in := range cases {
		if _, err := svc.CreateWindow(ctx, in); !model.IsValidation(err) {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}
}

func TestUpdateWindow_ExcludesSelfFromOverlap(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	w, err := svc.CreateWindow(ctx, WindowInput{OperatorID: "op-1", Weekday: time.Monday, Start: clock(9, 0), End: clock(12, 0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Widening the same window overlaps only itself and must pass.
	updated, err := svc.UpdateWindow(ctx, w.ID, WindowInput{Weekday: time.Monday, Start: clock(9, 0), End: clock(13, 0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.End != clock(13, 0) {
		t.Fatalf("expected end 13:00, got %s", updated.End)
	}
	if updated.OperatorID != "op-1" {
		t.Fatalf("operator must not change on update")
	}
}

func TestDeactivateWindow(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	w, err := svc.CreateWindow(ctx, WindowInput{OperatorID: "op-1", Weekday: time.Monday, Start: clock(9, 0), End: clock(12, 0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.DeactivateWindow(ctx, w.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.windows[w.ID].Active {
		t.Fatalf("window should be inactive")
	}
	// Deactivating again is a no-op.
	if err := svc.DeactivateWindow(ctx, w.ID); err != nil {
		t.Fatalf("second deactivate should be a no-op, got %v", err)
	}

	// The slot is free again for a new window.
	if _, err := svc.CreateWindow(ctx, WindowInput{OperatorID: "op-1", Weekday: time.Monday, Start: clock(10, 0), End: clock(11, 0)}); err != nil {
		t.Fatalf("inactive windows should not block, got %v", err)
	}
}
