package booking

import (
	"testing"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to model.Status }{
		{model.StatusScheduled, model.StatusInProgress},
		{model.StatusScheduled, model.StatusCompleted},
		{model.StatusScheduled, model.StatusFailed},
		{model.StatusScheduled, model.StatusCancelled},
		{model.StatusInProgress, model.StatusCompleted},
		{model.StatusInProgress, model.StatusFailed},
	}
	for _, c := range allowed {
		if !CanTransition(c.from, c.to) {
			t.Fatalf("%s -> %s should be allowed", c.from, c.to)
		}
	}
}

func TestCanTransition_TerminalsAreFinal(t *testing.T) {
	terminals := []model.Status{model.StatusCompleted, model.StatusFailed, model.StatusCancelled}
	all := []model.Status{
		model.StatusScheduled, model.StatusInProgress,
		model.StatusCompleted, model.StatusFailed, model.StatusCancelled,
	}
	for _, from := range terminals {
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("terminal %s must not transition to %s", from, to)
			}
		}
	}
}

func TestCanTransition_NoCancelOnceStarted(t *testing.T) {
	if CanTransition(model.StatusInProgress, model.StatusCancelled) {
		t.Fatalf("in_progress appointments cannot be cancelled")
	}
}
