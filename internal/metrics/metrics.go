// Package metrics holds the pure functions that turn walked Classroom data into
// dashboard indicators: due instants, lateness, pending flags and risk levels.
package metrics

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/semillerodigital/classroomplus/internal/model"
)

// Default wall-clock time for coursework that has a due date but no due time.
const (
	DefaultDueHour   = 23
	DefaultDueMinute = 59
)

// DueInstant combines Classroom's separate date and time fields into one
// instant in loc. The second return is false when the coursework has no due date.
func DueInstant(d *model.Date, t *model.TimeOfDay, loc *time.Location) (time.Time, bool) {
	if d == nil || d.Year == 0 || d.Month == 0 || d.Day == 0 {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	hour, minute := DefaultDueHour, DefaultDueMinute
	if t != nil {
		hour, minute = t.Hours, t.Minutes
	}
	return time.Date(d.Year, time.Month(d.Month), d.Day, hour, minute, 0, 0, loc), true
}

// DueOf is DueInstant applied to a CourseWork item, returned as a pointer
// suitable for JSON fields.
func DueOf(cw model.CourseWork, loc *time.Location) *time.Time {
	due, ok := DueInstant(cw.DueDate, cw.DueTime, loc)
	if !ok {
		return nil
	}
	return &due
}

// IsCompleted reports whether the student has handed the work in.
func IsCompleted(state model.SubmissionState) bool {
	return state == model.StateTurnedIn || state == model.StateReturned
}

// IsPending reports whether the work still awaits the student. A missing
// submission (StateNone) is pending.
func IsPending(state model.SubmissionState) bool {
	switch state {
	case model.StateNone, model.StateNew, model.StateCreated, model.StateReclaimed:
		return true
	}
	return false
}

// IsLate reports whether the due instant has passed without the work being
// handed in. Coursework without a due date is never late.
func IsLate(due *time.Time, state model.SubmissionState, now time.Time) bool {
	if due == nil {
		return false
	}
	return now.After(*due) && !IsCompleted(state)
}

// CompletionRate returns done/total as a percentage, 0 when total is 0.
func CompletionRate(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

// Percent normalizes a grade to a 0..100 scale. Without maxPoints the raw grade
// is returned.
func Percent(grade, maxPoints float64) float64 {
	if maxPoints <= 0 {
		return grade
	}
	return grade / maxPoints * 100
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SortByDue sorts items ascending by due instant. Items without a due instant
// go last, and equal keys keep their input order.
func SortByDue[T any](items []T, due func(T) *time.Time) {
	slices.SortStableFunc(items, func(a, b T) int {
		da, db := due(a), due(b)
		switch {
		case da == nil && db == nil:
			return 0
		case da == nil:
			return 1
		case db == nil:
			return -1
		}
		return da.Compare(*db)
	})
}

// SortByRisk orders assessments most severe first, stable among equals.
func SortByRisk(items []model.RiskAssessment) {
	slices.SortStableFunc(items, func(a, b model.RiskAssessment) int {
		return cmp.Compare(b.RiskLevel.Rank(), a.RiskLevel.Rank())
	})
}
