package matcher

import (
	"context"
	"time"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

// OperatorSource yields the operators capable of serving a category, in a
// stable order. Order determines first-fit assignment.
type OperatorSource interface {
	CapableOperators(ctx context.Context, categoryID string) ([]string, error)
}

// Availability answers the calendar gates for one operator.
type Availability interface {
	WorksOn(ctx context.Context, operatorID string, weekday time.Weekday) (bool, error)
	FitsSchedule(ctx context.Context, operatorID string, weekday time.Weekday, start, end model.ClockTime) (bool, error)
}

// ConflictChecker reports whether the operator already has a slot-occupying
// appointment overlapping [start,end) on the given day. The booking service
// binds this to its open transaction so the answer holds until commit.
type ConflictChecker interface {
	HasConflict(ctx context.Context, operatorID string, day time.Time, start, end time.Time) (bool, error)
}

// Slot is one concrete candidate interval on a calendar day.
type Slot struct {
	Day   time.Time
	Start model.ClockTime
	End   model.ClockTime
	// StartTime/EndTime are Start/End anchored on Day.
	StartTime time.Time
	EndTime   time.Time
}

// Matcher assigns operators to slots: capability, then the weekly calendar,
// then the booking ledger. Every gate is evaluated in that order for every
// candidate.
type Matcher struct {
	operators OperatorSource
	avail     Availability
}

func New(operators OperatorSource, avail Availability) *Matcher {
	return &Matcher{operators: operators, avail: avail}
}

// FindOne returns the first capable operator who works that weekday, whose
// window fully contains the slot, and who has no overlapping booking.
// Returns model.ErrNoOperatorAvailable when every candidate fails a gate,
// including when the category has no capable operators at all.
func (m *Matcher) FindOne(ctx context.Context, categoryID string, slot Slot, conflicts ConflictChecker) (string, error) {
	candidates, err := m.operators.CapableOperators(ctx, categoryID)
	if err != nil {
		return "", err
	}
	for _, operatorID := range candidates {
		ok, err := m.eligible(ctx, operatorID, slot, conflicts)
		if err != nil {
			return "", err
		}
		if ok {
			return operatorID, nil
		}
	}
	return "", model.ErrNoOperatorAvailable
}

// FindAll returns every capable operator passing all three gates, preserving
// the capability order. An empty result is not an error here; callers render
// it as an empty list.
func (m *Matcher) FindAll(ctx context.Context, categoryID string, slot Slot, conflicts ConflictChecker) ([]string, error) {
	candidates, err := m.operators.CapableOperators(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	var matched []string
	for _, operatorID := range candidates {
		ok, err := m.eligible(ctx, operatorID, slot, conflicts)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, operatorID)
		}
	}
	return matched, nil
}

// Check runs the same gates for an explicitly requested operator, returning a
// typed error naming the first gate that failed. The operator must be in the
// category's capable set, then pass the calendar and ledger gates. All gate
// failures are conflicts: the slot and operator are well-formed, they just
// cannot be combined, and the caller can retry with a different pair.
func (m *Matcher) Check(ctx context.Context, operatorID, categoryID string, slot Slot, conflicts ConflictChecker) error {
	capable, err := m.operators.CapableOperators(ctx, categoryID)
	if err != nil {
		return err
	}
	if !contains(capable, operatorID) {
		return model.Conflictf("operator %s does not serve category %s", operatorID, categoryID)
	}
	works, err := m.avail.WorksOn(ctx, operatorID, slot.Day.Weekday())
	if err != nil {
		return err
	}
	if !works {
		return model.Conflictf("operator %s does not work on %s", operatorID, slot.Day.Weekday())
	}
	fits, err := m.avail.FitsSchedule(ctx, operatorID, slot.Day.Weekday(), slot.Start, slot.End)
	if err != nil {
		return err
	}
	if !fits {
		return model.Conflictf("slot %s-%s is outside operator %s's availability", slot.Start, slot.End, operatorID)
	}
	taken, err := conflicts.HasConflict(ctx, operatorID, slot.Day, slot.StartTime, slot.EndTime)
	if err != nil {
		return err
	}
	if taken {
		return model.Conflictf("operator %s already has a booking overlapping %s-%s", operatorID, slot.Start, slot.End)
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func (m *Matcher) eligible(ctx context.Context, operatorID string, slot Slot, conflicts ConflictChecker) (bool, error) {
	works, err := m.avail.WorksOn(ctx, operatorID, slot.Day.Weekday())
	if err != nil {
		return false, err
	}
	if !works {
		return false, nil
	}
	fits, err := m.avail.FitsSchedule(ctx, operatorID, slot.Day.Weekday(), slot.Start, slot.End)
	if err != nil {
		return false, err
	}
	if !fits {
		return false, nil
	}
	taken, err := conflicts.HasConflict(ctx, operatorID, slot.Day, slot.StartTime, slot.EndTime)
	if err != nil {
		return false, err
	}
	return !taken, nil
}
