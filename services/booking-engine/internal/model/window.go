package model

import "time"

// AvailabilityWindow is one recurring weekly interval during which an operator
// takes appointments. Windows are soft-deactivated, never hard-deleted, so
// historical appointments keep a valid reference.
type AvailabilityWindow struct {
	ID         string
	OperatorID string
	Weekday    time.Weekday
	Start      ClockTime
	End        ClockTime
	Active     bool
	CreatedAt  time.Time
}

// Contains reports whether [start,end) fits entirely inside the window.
func (w *AvailabilityWindow) Contains(start, end ClockTime) bool {
	return w.Start <= start && end <= w.End
}

// Overlaps uses half-open interval semantics: touching edges do not overlap.
func (w *AvailabilityWindow) Overlaps(start, end ClockTime) bool {
	return start < w.End && end > w.Start
}
