package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/storage"
)

// transitions is the full status machine. Terminal states have no outgoing
// edges; nothing may leave cancelled, completed or failed.
var transitions = map[model.Status][]model.Status{
	model.StatusScheduled:  {model.StatusInProgress, model.StatusCompleted, model.StatusFailed, model.StatusCancelled},
	model.StatusInProgress: {model.StatusCompleted, model.StatusFailed},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to model.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LifecycleSweeper advances appointments with the clock: scheduled rows whose
// interval contains now become in_progress, and rows past their end time
// auto-complete without an attendance verdict. Both updates are guarded on
// the current status, so repeated runs with the same now are no-ops.
type LifecycleSweeper struct {
	appts  *storage.AppointmentRepository
	logger *slog.Logger
	every  time.Duration
	now    func() time.Time
}

func NewLifecycleSweeper(appts *storage.AppointmentRepository, logger *slog.Logger, every time.Duration) *LifecycleSweeper {
	if every <= 0 {
		every = time.Minute
	}
	return &LifecycleSweeper{appts: appts, logger: logger, every: every, now: time.Now}
}

func (s *LifecycleSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx, s.now()); err != nil {
				s.logger.Error("lifecycle sweep failed", "err", err)
			}
		}
	}
}

func (s *LifecycleSweeper) RunOnce(ctx context.Context, now time.Time) error {
	started, err := s.appts.MarkInProgress(ctx, now)
	if err != nil {
		return err
	}
	completed, err := s.appts.AutoComplete(ctx, now)
	if err != nil {
		return err
	}
	if len(started) > 0 || len(completed) > 0 {
		s.logger.Info("lifecycle sweep", "in_progress", len(started), "auto_completed", len(completed))
	}
	return nil
}
