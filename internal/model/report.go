package model

import "time"

// RiskLevel is a coarse summary of a student's assignment and grade health.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders levels so that a higher rank is more severe.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return 0
}

// CourseError reports a course whose data could not be fetched while walking many.
type CourseError struct {
	CourseID   string `json:"courseId"`
	CourseName string `json:"courseName,omitempty"`
	Error      string `json:"error"`
}

// StudentAssignment is CourseWork joined with the caller's submission.
type StudentAssignment struct {
	ID            string          `json:"id"`
	CourseID      string          `json:"courseId"`
	CourseName    string          `json:"courseName"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	DueDate       *time.Time      `json:"dueDate,omitempty"`
	CreationTime  time.Time       `json:"creationTime"`
	State         SubmissionState `json:"state"`
	Submitted     bool            `json:"hasSubmission"`
	AssignedGrade *float64        `json:"assignedGrade,omitempty"`
	MaxPoints     float64         `json:"maxPoints,omitempty"`
	AlternateLink string          `json:"alternateLink,omitempty"`
	WorkType      string          `json:"workType"`
	IsLate        bool            `json:"isLate"`
	IsPending     bool            `json:"isPending"`
}

// AssignmentStats summarizes a list of student assignments.
type AssignmentStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Late      int `json:"late"`
}

// StudentAssignmentsReport is the student's assignment list.
type StudentAssignmentsReport struct {
	Assignments []StudentAssignment `json:"assignments"`
	Stats       AssignmentStats     `json:"stats"`
	Errors      []CourseError       `json:"errors,omitempty"`
}

// CourseProgress is a student's progress within one course.
type CourseProgress struct {
	CourseID             string   `json:"courseId"`
	CourseName           string   `json:"courseName"`
	TotalAssignments     int      `json:"totalAssignments"`
	CompletedAssignments int      `json:"completedAssignments"`
	PendingAssignments   int      `json:"pendingAssignments"`
	LateAssignments      int      `json:"lateAssignments"`
	AverageGrade         *float64 `json:"averageGrade,omitempty"`
	CompletionRate       float64  `json:"completionRate"`
	Error                string   `json:"error,omitempty"`
}

// StudentProgress is the student's overall progress.
type StudentProgress struct {
	StudentID            string           `json:"studentId"`
	StudentName          string           `json:"studentName"`
	StudentEmail         string           `json:"studentEmail"`
	TotalAssignments     int              `json:"totalAssignments"`
	CompletedAssignments int              `json:"completedAssignments"`
	PendingAssignments   int              `json:"pendingAssignments"`
	LateAssignments      int              `json:"lateAssignments"`
	AverageGrade         *float64         `json:"averageGrade,omitempty"`
	RiskLevel            RiskLevel        `json:"riskLevel"`
	Reasons              []string         `json:"reasons"`
	Courses              []CourseProgress `json:"courseProgress"`
}

// CourseSummary is a course with roster and coursework counts.
type CourseSummary struct {
	Course
	StudentCount    int    `json:"studentCount"`
	AssignmentCount int    `json:"assignmentCount"`
	Error           string `json:"error,omitempty"`
}

// AssignmentSummary is a teacher's view of one coursework item.
type AssignmentSummary struct {
	CourseWork
	DueInstant     *time.Time `json:"dueInstant,omitempty"`
	TotalStudents  int        `json:"totalStudents"`
	SubmittedCount int        `json:"submittedCount"`
	GradedCount    int        `json:"gradedCount"`
	PendingCount   int        `json:"pendingCount"`
	LateCount      int        `json:"lateCount"`
	AverageGrade   *float64   `json:"averageGrade,omitempty"`
	CompletionRate float64    `json:"completionRate"`
	IsActive       bool       `json:"isActive"`
}

// CourseAssignmentsReport is a teacher's per-course assignment list.
type CourseAssignmentsReport struct {
	CourseID          string              `json:"courseId"`
	Assignments       []AssignmentSummary `json:"assignments"`
	Total             int                 `json:"total"`
	ActiveAssignments int                 `json:"activeAssignments"`
	TotalStudents     int                 `json:"totalStudents"`
	ClassAverage      float64             `json:"classAverage"`
}

// CourseStudentsReport is a course roster.
type CourseStudentsReport struct {
	CourseID string   `json:"courseId"`
	Students []Person `json:"students"`
	Total    int      `json:"total"`
}

// StudentGrade is one student's grade summary for a course.
type StudentGrade struct {
	StudentID            string  `json:"studentId"`
	StudentName          string  `json:"studentName"`
	TotalPoints          float64 `json:"totalPoints"`
	MaxPoints            float64 `json:"maxPoints"`
	CompletedAssignments int     `json:"completedAssignments"`
	TotalAssignments     int     `json:"totalAssignments"`
	Average              float64 `json:"average"`
}

// CourseGradesReport is a teacher's gradebook summary for a course.
type CourseGradesReport struct {
	CourseID         string         `json:"courseId"`
	CourseName       string         `json:"courseName"`
	ClassAverage     float64        `json:"classAverage"`
	TotalStudents    int            `json:"totalStudents"`
	TotalAssignments int            `json:"totalAssignments"`
	PendingReview    int            `json:"pendingReview"`
	Students         []StudentGrade `json:"studentStats"`
}

// RiskAssessment is one student's risk within one course.
type RiskAssessment struct {
	StudentID            string    `json:"studentId"`
	StudentName          string    `json:"studentName"`
	CourseID             string    `json:"courseId"`
	CourseName           string    `json:"courseName"`
	Cohort               string    `json:"cohort"`
	RiskLevel            RiskLevel `json:"riskLevel"`
	Reasons              []string  `json:"reasons"`
	TotalAssignments     int       `json:"totalAssignments"`
	CompletedAssignments int       `json:"completedAssignments"`
	MissedAssignments    int       `json:"missedAssignments"`
	LateAssignments      int       `json:"lateAssignments"`
	LowGradeAssignments  int       `json:"lowGradeAssignments"`
	AverageGrade         float64   `json:"averageGrade"`
}

// AtRiskReport lists students at risk, most severe first.
type AtRiskReport struct {
	Students      []RiskAssessment `json:"studentsAtRisk"`
	Total         int              `json:"total"`
	CriticalCount int              `json:"criticalCount"`
	HighCount     int              `json:"highCount"`
	MediumCount   int              `json:"mediumCount"`
	LowCount      int              `json:"lowCount"`
	Errors        []CourseError    `json:"errors,omitempty"`
}

// RecentSubmission is a turned-in or returned submission.
type RecentSubmission struct {
	StudentID       string          `json:"studentId"`
	StudentName     string          `json:"studentName"`
	CourseID        string          `json:"courseId"`
	CourseName      string          `json:"courseName"`
	AssignmentID    string          `json:"assignmentId"`
	AssignmentTitle string          `json:"assignmentTitle"`
	SubmissionTime  time.Time       `json:"submissionTime"`
	IsLate          bool            `json:"isLate"`
	Grade           *float64        `json:"grade,omitempty"`
	MaxPoints       float64         `json:"maxPoints,omitempty"`
	Status          SubmissionState `json:"status"`
}

// RecentSubmissionsReport lists the most recent submissions.
type RecentSubmissionsReport struct {
	Submissions []RecentSubmission `json:"recentSubmissions"`
	Total       int                `json:"total"`
}

// OverviewTotals are coordinator-wide totals.
type OverviewTotals struct {
	TotalStudents      int `json:"totalStudents"`
	TotalAssignments   int `json:"totalAssignments"`
	TotalSubmissions   int `json:"totalSubmissions"`
	TotalPendingReview int `json:"totalPendingReview"`
	OverallAverage     int `json:"overallAverage"`
	ActiveCourses      int `json:"activeCourses"`
	StudentsAtRisk     int `json:"studentsAtRisk"`
}

// CourseOverview is a coordinator's per-course row.
type CourseOverview struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Section        string `json:"section,omitempty"`
	Students       int    `json:"students"`
	Assignments    int    `json:"assignments"`
	Submissions    int    `json:"submissions"`
	PendingReview  int    `json:"pendingReview"`
	Average        int    `json:"average"`
	StudentsAtRisk int    `json:"studentsAtRisk"`
	Cohort         string `json:"cohort"`
	Error          string `json:"error,omitempty"`
}

// CohortOverview aggregates courses sharing a cohort.
type CohortOverview struct {
	Name        string `json:"name"`
	Students    int    `json:"students"`
	Assignments int    `json:"assignments"`
	Average     int    `json:"average"`
	Courses     int    `json:"courses"`
}

// Overview is the coordinator dashboard.
type Overview struct {
	Totals  OverviewTotals   `json:"overview"`
	Courses []CourseOverview `json:"courses"`
	Cohorts []CohortOverview `json:"cohorts"`
}
