package model

import (
	"context"
	"strings"
	"time"
)

// Role is the dashboard perspective a user has selected (distinct from RosterRole,
// which is the Classroom roster a person was listed in).
type Role string

const (
	// RoleStudent sees their own coursework across enrolled courses.
	RoleStudent Role = "student"
	// RoleTeacher sees the courses they teach.
	RoleTeacher Role = "teacher"
	// RoleCoordinator sees every active course visible to the account.
	RoleCoordinator Role = "coordinator"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleStudent, RoleTeacher, RoleCoordinator:
		return r, true
	}
	return "", false
}

// RosterRole names a Classroom roster endpoint.
type RosterRole string

const (
	RosterStudents RosterRole = "students"
	RosterTeachers RosterRole = "teachers"
)

// CourseState mirrors Classroom's courseState enum.
type CourseState string

const (
	CourseActive      CourseState = "ACTIVE"
	CourseArchived    CourseState = "ARCHIVED"
	CourseProvisioned CourseState = "PROVISIONED"
	CourseDeclined    CourseState = "DECLINED"
	CourseSuspended   CourseState = "SUSPENDED"
)

// SubmissionState mirrors Classroom's submission state enum. StateNone marks
// coursework for which no submission record exists at all.
type SubmissionState string

const (
	StateNone      SubmissionState = ""
	StateNew       SubmissionState = "NEW"
	StateCreated   SubmissionState = "CREATED"
	StateTurnedIn  SubmissionState = "TURNED_IN"
	StateReturned  SubmissionState = "RETURNED"
	StateReclaimed SubmissionState = "RECLAIMED_BY_STUDENT"
)

// Date is a calendar date without a time zone.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// TimeOfDay is a wall-clock time.
type TimeOfDay struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// Course is a Classroom course.
type Course struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Section           string      `json:"section,omitempty"`
	Description       string      `json:"description,omitempty"`
	Room              string      `json:"room,omitempty"`
	OwnerID           string      `json:"ownerId,omitempty"`
	State             CourseState `json:"courseState,omitempty"`
	EnrollmentCode    string      `json:"enrollmentCode,omitempty"`
	AlternateLink     string      `json:"alternateLink,omitempty"`
	TeacherGroupEmail string      `json:"teacherGroupEmail,omitempty"`
	CourseGroupEmail  string      `json:"courseGroupEmail,omitempty"`
	CalendarID        string      `json:"calendarId,omitempty"`
	GuardiansEnabled  bool        `json:"guardiansEnabled"`
	CreationTime      time.Time   `json:"creationTime"`
	UpdateTime        time.Time   `json:"updateTime"`
}

// Cohort groups courses by section, falling back to the first word of the name.
func (c Course) Cohort() string {
	if c.Section != "" {
		return c.Section
	}
	if f := strings.Fields(c.Name); len(f) > 0 {
		return f[0]
	}
	return "General"
}

// CourseWork is an assignment or question inside a course.
type CourseWork struct {
	ID            string     `json:"id"`
	CourseID      string     `json:"courseId"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	State         string     `json:"state,omitempty"`
	DueDate       *Date      `json:"dueDate,omitempty"`
	DueTime       *TimeOfDay `json:"dueTime,omitempty"`
	MaxPoints     float64    `json:"maxPoints,omitempty"`
	WorkType      string     `json:"workType,omitempty"`
	AlternateLink string     `json:"alternateLink,omitempty"`
	CreationTime  time.Time  `json:"creationTime"`
	UpdateTime    time.Time  `json:"updateTime"`
}

// Submission is one student's response to a CourseWork item.
type Submission struct {
	ID            string          `json:"id"`
	CourseID      string          `json:"courseId"`
	CourseWorkID  string          `json:"courseWorkId"`
	UserID        string          `json:"userId"`
	State         SubmissionState `json:"state"`
	AssignedGrade *float64        `json:"assignedGrade,omitempty"`
	Late          bool            `json:"late"`
	CreationTime  time.Time       `json:"creationTime"`
	UpdateTime    time.Time       `json:"updateTime"`
}

// Profile is a Classroom user profile.
type Profile struct {
	ID           string `json:"id"`
	GivenName    string `json:"givenName,omitempty"`
	FamilyName   string `json:"familyName,omitempty"`
	FullName     string `json:"fullName,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
	PhotoURL     string `json:"photoUrl,omitempty"`
}

// Person is a roster entry. Whether it is a student or a teacher depends on
// which roster returned it.
type Person struct {
	UserID   string  `json:"userId"`
	CourseID string  `json:"courseId"`
	Profile  Profile `json:"profile"`
}

// DisplayName picks the best available human-readable name.
func (p Person) DisplayName() string {
	if p.Profile.FullName != "" {
		return p.Profile.FullName
	}
	if n := strings.TrimSpace(p.Profile.GivenName + " " + p.Profile.FamilyName); n != "" {
		return n
	}
	if local, _, ok := strings.Cut(p.Profile.EmailAddress, "@"); ok && local != "" {
		return local
	}
	return ""
}

// Identity is the authenticated caller together with their delegated Google tokens.
type Identity struct {
	UserID       string
	Email        string
	Name         string
	AccessToken  string
	RefreshToken string
}

// AuthSession is a stored sign-in session deposited by the identity provider.
type AuthSession struct {
	ID                   string
	UserID               string
	Email                string
	DisplayName          string
	ProviderToken        string
	ProviderRefreshToken string
	CreatedAt            time.Time
	ExpiresAt            time.Time
}

type identityCtxKey struct{}

// ContextWithIdentity stores the caller identity in the request context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the caller identity from context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*Identity)
	return id
}

// Envelope is the uniform JSON response shape.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	SecureCookies     bool
	CacheTTL          time.Duration
	CacheCooldown     time.Duration
	AtRiskLimit       int      // teacher at-risk list size, 0 means unlimited
	RecentLimit       int      // recent submissions list size
	ImageAllowedHosts []string // suffixes accepted by the image proxy
}
