package classroom

import (
	"fmt"
	"strings"
	"time"

	"github.com/semillerodigital/classroomplus/internal/model"
)

// Wire shapes of the Classroom resources this client reads. Each is validated
// before it is mapped into a model type; invalid records are dropped from
// listings.

type courseDTO struct {
	ID                string `json:"id" validate:"required"`
	Name              string `json:"name"`
	Section           string `json:"section"`
	Description       string `json:"description"`
	Room              string `json:"room"`
	OwnerID           string `json:"ownerId"`
	CourseState       string `json:"courseState" validate:"omitempty,oneof=COURSE_STATE_UNSPECIFIED ACTIVE ARCHIVED PROVISIONED DECLINED SUSPENDED"`
	EnrollmentCode    string `json:"enrollmentCode"`
	AlternateLink     string `json:"alternateLink"`
	TeacherGroupEmail string `json:"teacherGroupEmail"`
	CourseGroupEmail  string `json:"courseGroupEmail"`
	CalendarID        string `json:"calendarId"`
	GuardiansEnabled  bool   `json:"guardiansEnabled"`
	CreationTime      string `json:"creationTime"`
	UpdateTime        string `json:"updateTime"`
}

type dateDTO struct {
	Year  int `json:"year" validate:"min=1"`
	Month int `json:"month" validate:"min=1,max=12"`
	Day   int `json:"day" validate:"min=1,max=31"`
}

type timeOfDayDTO struct {
	Hours   int `json:"hours" validate:"min=0,max=23"`
	Minutes int `json:"minutes" validate:"min=0,max=59"`
}

type courseWorkDTO struct {
	ID            string        `json:"id" validate:"required"`
	CourseID      string        `json:"courseId" validate:"required"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	State         string        `json:"state"`
	DueDate       *dateDTO      `json:"dueDate"`
	DueTime       *timeOfDayDTO `json:"dueTime"`
	MaxPoints     float64       `json:"maxPoints" validate:"gte=0"`
	WorkType      string        `json:"workType"`
	AlternateLink string        `json:"alternateLink"`
	CreationTime  string        `json:"creationTime"`
	UpdateTime    string        `json:"updateTime"`
}

type submissionDTO struct {
	ID            string   `json:"id" validate:"required"`
	CourseID      string   `json:"courseId"`
	CourseWorkID  string   `json:"courseWorkId"`
	UserID        string   `json:"userId" validate:"required"`
	State         string   `json:"state" validate:"omitempty,oneof=SUBMISSION_STATE_UNSPECIFIED NEW CREATED TURNED_IN RETURNED RECLAIMED_BY_STUDENT"`
	AssignedGrade *float64 `json:"assignedGrade"`
	Late          bool     `json:"late"`
	CreationTime  string   `json:"creationTime"`
	UpdateTime    string   `json:"updateTime"`
}

type nameDTO struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	FullName   string `json:"fullName"`
}

type profileDTO struct {
	ID           string  `json:"id"`
	Name         nameDTO `json:"name"`
	EmailAddress string  `json:"emailAddress"`
	PhotoURL     string  `json:"photoUrl"`
}

type personDTO struct {
	CourseID string     `json:"courseId"`
	UserID   string     `json:"userId" validate:"required"`
	Profile  profileDTO `json:"profile"`
}

type userInfoDTO struct {
	Sub     string `json:"sub" validate:"required"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// parseTime accepts Classroom's RFC 3339 timestamps; empty or malformed
// values map to the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// photoURL turns Classroom's protocol-relative photo links into absolute ones.
func photoURL(s string) string {
	if strings.HasPrefix(s, "//") {
		return "https:" + s
	}
	return s
}

func toCourse(d courseDTO) (model.Course, error) {
	if err := validate.Struct(d); err != nil {
		return model.Course{}, fmt.Errorf("course %q: %w", d.ID, err)
	}
	return model.Course{
		ID:                d.ID,
		Name:              d.Name,
		Section:           d.Section,
		Description:       d.Description,
		Room:              d.Room,
		OwnerID:           d.OwnerID,
		State:             model.CourseState(d.CourseState),
		EnrollmentCode:    d.EnrollmentCode,
		AlternateLink:     d.AlternateLink,
		TeacherGroupEmail: d.TeacherGroupEmail,
		CourseGroupEmail:  d.CourseGroupEmail,
		CalendarID:        d.CalendarID,
		GuardiansEnabled:  d.GuardiansEnabled,
		CreationTime:      parseTime(d.CreationTime),
		UpdateTime:        parseTime(d.UpdateTime),
	}, nil
}

func toCourseWork(d courseWorkDTO) (model.CourseWork, error) {
	if err := validate.Struct(d); err != nil {
		return model.CourseWork{}, fmt.Errorf("coursework %q: %w", d.ID, err)
	}
	cw := model.CourseWork{
		ID:            d.ID,
		CourseID:      d.CourseID,
		Title:         d.Title,
		Description:   d.Description,
		State:         d.State,
		MaxPoints:     d.MaxPoints,
		WorkType:      d.WorkType,
		AlternateLink: d.AlternateLink,
		CreationTime:  parseTime(d.CreationTime),
		UpdateTime:    parseTime(d.UpdateTime),
	}
	if d.DueDate != nil {
		cw.DueDate = &model.Date{Year: d.DueDate.Year, Month: d.DueDate.Month, Day: d.DueDate.Day}
		// A due time is meaningless without a due date.
		if d.DueTime != nil {
			cw.DueTime = &model.TimeOfDay{Hours: d.DueTime.Hours, Minutes: d.DueTime.Minutes}
		}
	}
	return cw, nil
}

func toSubmission(d submissionDTO) (model.Submission, error) {
	if err := validate.Struct(d); err != nil {
		return model.Submission{}, fmt.Errorf("submission %q: %w", d.ID, err)
	}
	state := model.SubmissionState(d.State)
	if d.State == "SUBMISSION_STATE_UNSPECIFIED" {
		state = model.StateNew
	}
	return model.Submission{
		ID:            d.ID,
		CourseID:      d.CourseID,
		CourseWorkID:  d.CourseWorkID,
		UserID:        d.UserID,
		State:         state,
		AssignedGrade: d.AssignedGrade,
		Late:          d.Late,
		CreationTime:  parseTime(d.CreationTime),
		UpdateTime:    parseTime(d.UpdateTime),
	}, nil
}

func toPerson(d personDTO) (model.Person, error) {
	if err := validate.Struct(d); err != nil {
		return model.Person{}, fmt.Errorf("person %q: %w", d.UserID, err)
	}
	id := d.Profile.ID
	if id == "" {
		id = d.UserID
	}
	return model.Person{
		UserID:   d.UserID,
		CourseID: d.CourseID,
		Profile: model.Profile{
			ID:           id,
			GivenName:    d.Profile.Name.GivenName,
			FamilyName:   d.Profile.Name.FamilyName,
			FullName:     d.Profile.Name.FullName,
			EmailAddress: d.Profile.EmailAddress,
			PhotoURL:     photoURL(d.Profile.PhotoURL),
		},
	}, nil
}
