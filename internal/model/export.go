package model

import "time"

// ReportExport is the top-level JSON structure written by the report command.
type ReportExport struct {
	Kind        string    `json:"kind"`
	GeneratedAt time.Time `json:"generated_at"`
	UserEmail   string    `json:"user_email,omitempty"`
	CourseID    string    `json:"course_id,omitempty"`
	Data        any       `json:"data"`
}
