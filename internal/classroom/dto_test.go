package classroom

import (
	"testing"

	"github.com/semillerodigital/classroomplus/internal/model"
)

func TestToCourseWorkValidation(t *testing.T) {
	tests := []struct {
		name    string
		dto     courseWorkDTO
		wantErr bool
	}{
		{"minimal", courseWorkDTO{ID: "w", CourseID: "c"}, false},
		{"missing id", courseWorkDTO{CourseID: "c"}, true},
		{"bad month", courseWorkDTO{ID: "w", CourseID: "c", DueDate: &dateDTO{Year: 2024, Month: 13, Day: 1}}, true},
		{"bad hour", courseWorkDTO{ID: "w", CourseID: "c", DueDate: &dateDTO{Year: 2024, Month: 1, Day: 1}, DueTime: &timeOfDayDTO{Hours: 25}}, true},
		{"negative points", courseWorkDTO{ID: "w", CourseID: "c", MaxPoints: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := toCourseWork(tt.dto)
			if (err != nil) != tt.wantErr {
				t.Errorf("toCourseWork() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestToCourseWorkDropsTimeWithoutDate(t *testing.T) {
	cw, err := toCourseWork(courseWorkDTO{ID: "w", CourseID: "c", DueTime: &timeOfDayDTO{Hours: 9}})
	if err != nil {
		t.Fatal(err)
	}
	if cw.DueDate != nil || cw.DueTime != nil {
		t.Errorf("expected no deadline, got %+v %+v", cw.DueDate, cw.DueTime)
	}
}

func TestToSubmissionState(t *testing.T) {
	s, err := toSubmission(submissionDTO{ID: "s", UserID: "u", State: "SUBMISSION_STATE_UNSPECIFIED"})
	if err != nil {
		t.Fatal(err)
	}
	if s.State != model.StateNew {
		t.Errorf("State = %q, want NEW", s.State)
	}
	if _, err := toSubmission(submissionDTO{ID: "s", UserID: "u", State: "LOST"}); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestParseTime(t *testing.T) {
	if got := parseTime("2024-01-10T08:30:00.123Z"); got.Hour() != 8 || got.Minute() != 30 {
		t.Errorf("parseTime = %v", got)
	}
	if !parseTime("").IsZero() || !parseTime("yesterday").IsZero() {
		t.Error("expected zero time for empty or malformed input")
	}
}

func TestPhotoURL(t *testing.T) {
	if got := photoURL("//lh3.googleusercontent.com/x"); got != "https://lh3.googleusercontent.com/x" {
		t.Errorf("photoURL = %q", got)
	}
	if got := photoURL("https://a/b"); got != "https://a/b" {
		t.Errorf("photoURL = %q", got)
	}
}
