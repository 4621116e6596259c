package metrics

import (
	"testing"
	"time"

	"github.com/semillerodigital/classroomplus/internal/model"
)

func date(y, m, d int) *model.Date { return &model.Date{Year: y, Month: m, Day: d} }

func TestDueInstant(t *testing.T) {
	loc := time.UTC

	t.Run("no due date", func(t *testing.T) {
		if _, ok := DueInstant(nil, &model.TimeOfDay{Hours: 10}, loc); ok {
			t.Error("expected no due instant")
		}
		if _, ok := DueInstant(&model.Date{}, nil, loc); ok {
			t.Error("expected no due instant for zero date")
		}
	})

	t.Run("missing time defaults to 23:59", func(t *testing.T) {
		got, ok := DueInstant(date(2024, 1, 10), nil, loc)
		if !ok {
			t.Fatal("expected due instant")
		}
		want := time.Date(2024, 1, 10, 23, 59, 0, 0, loc)
		if !got.Equal(want) {
			t.Errorf("DueInstant = %v, want %v", got, want)
		}
	})

	t.Run("explicit time", func(t *testing.T) {
		got, _ := DueInstant(date(2024, 3, 5), &model.TimeOfDay{Hours: 8, Minutes: 30}, loc)
		want := time.Date(2024, 3, 5, 8, 30, 0, 0, loc)
		if !got.Equal(want) {
			t.Errorf("DueInstant = %v, want %v", got, want)
		}
	})

	t.Run("explicit midnight stays midnight", func(t *testing.T) {
		got, _ := DueInstant(date(2024, 3, 5), &model.TimeOfDay{}, loc)
		if got.Hour() != 0 || got.Minute() != 0 {
			t.Errorf("expected 00:00, got %v", got)
		}
	})
}

func TestIsPending(t *testing.T) {
	tests := []struct {
		state model.SubmissionState
		want  bool
	}{
		{model.StateNone, true},
		{model.StateNew, true},
		{model.StateCreated, true},
		{model.StateReclaimed, true},
		{model.StateTurnedIn, false},
		{model.StateReturned, false},
	}
	for _, tt := range tests {
		if got := IsPending(tt.state); got != tt.want {
			t.Errorf("IsPending(%q) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestIsLate(t *testing.T) {
	due := time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC)
	before := due.Add(-24 * time.Hour)
	after := due.Add(24 * time.Hour)

	tests := []struct {
		name  string
		due   *time.Time
		state model.SubmissionState
		now   time.Time
		want  bool
	}{
		{"no due date", nil, model.StateNew, after, false},
		{"no due date no submission", nil, model.StateNone, after, false},
		{"before due", &due, model.StateNew, before, false},
		{"past due new", &due, model.StateNew, after, true},
		{"past due no submission", &due, model.StateNone, after, true},
		{"past due reclaimed", &due, model.StateReclaimed, after, true},
		{"past due turned in", &due, model.StateTurnedIn, after, false},
		{"past due returned", &due, model.StateReturned, after, false},
		{"exactly at due", &due, model.StateNew, due, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLate(tt.due, tt.state, tt.now); got != tt.want {
				t.Errorf("IsLate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTurnedInNeverLate(t *testing.T) {
	due := time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC)
	for _, offset := range []time.Duration{-time.Hour, 0, time.Hour, 24 * time.Hour, 365 * 24 * time.Hour} {
		if IsLate(&due, model.StateTurnedIn, due.Add(offset)) {
			t.Errorf("turned in work reported late at offset %v", offset)
		}
	}
}

func TestExampleScenarios(t *testing.T) {
	loc := time.UTC
	due := DueOf(model.CourseWork{DueDate: date(2024, 1, 10)}, loc)
	now := time.Date(2024, 1, 11, 12, 0, 0, 0, loc)

	// Unsubmitted past the deadline.
	if !IsLate(due, model.StateNew, now) || !IsPending(model.StateNew) {
		t.Error("scenario 1: expected isLate=true, isPending=true")
	}
	// Turned in before the deadline.
	if IsLate(due, model.StateTurnedIn, now) || IsPending(model.StateTurnedIn) {
		t.Error("scenario 2: expected isLate=false, isPending=false")
	}
}

type item struct {
	name string
	due  *time.Time
}

func TestSortByDue(t *testing.T) {
	d := func(day int) *time.Time {
		v := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
		return &v
	}
	items := []item{
		{"undated-a", nil},
		{"jan5-a", d(5)},
		{"jan2", d(2)},
		{"undated-b", nil},
		{"jan5-b", d(5)},
		{"jan1", d(1)},
	}
	SortByDue(items, func(i item) *time.Time { return i.due })

	want := []string{"jan1", "jan2", "jan5-a", "jan5-b", "undated-a", "undated-b"}
	for i, w := range want {
		if items[i].name != w {
			t.Errorf("position %d: got %q, want %q", i, items[i].name, w)
		}
	}
}

func TestCompletionRateAndPercent(t *testing.T) {
	if got := CompletionRate(0, 0); got != 0 {
		t.Errorf("CompletionRate(0,0) = %v, want 0", got)
	}
	if got := CompletionRate(3, 4); got != 75 {
		t.Errorf("CompletionRate(3,4) = %v, want 75", got)
	}
	if got := Percent(8, 10); got != 80 {
		t.Errorf("Percent(8,10) = %v, want 80", got)
	}
	if got := Percent(42, 0); got != 42 {
		t.Errorf("Percent(42,0) = %v, want 42", got)
	}
	if got := Round2(66.6666); got != 66.67 {
		t.Errorf("Round2 = %v, want 66.67", got)
	}
}

func TestSortByRisk(t *testing.T) {
	items := []model.RiskAssessment{
		{StudentID: "a", RiskLevel: model.RiskMedium},
		{StudentID: "b", RiskLevel: model.RiskCritical},
		{StudentID: "c", RiskLevel: model.RiskMedium},
		{StudentID: "d", RiskLevel: model.RiskHigh},
	}
	SortByRisk(items)
	want := []string{"b", "d", "a", "c"}
	for i, w := range want {
		if items[i].StudentID != w {
			t.Errorf("position %d: got %q, want %q", i, items[i].StudentID, w)
		}
	}
}
