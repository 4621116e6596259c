package dashboard

import (
	"cmp"
	"math"
	"slices"
	"time"

	"golang.org/x/text/collate"

	"github.com/semillerodigital/classroomplus/internal/metrics"
	"github.com/semillerodigital/classroomplus/internal/model"
)

func courseErrors(snaps []CourseSnapshot) []model.CourseError {
	var out []model.CourseError
	for _, s := range snaps {
		if s.Err != nil {
			out = append(out, model.CourseError{CourseID: s.Course.ID, CourseName: s.Course.Name, Error: s.Err.Error()})
		}
	}
	return out
}

func (s *Service) collator() *collate.Collator {
	return collate.New(s.Lang, collate.IgnoreCase, collate.IgnoreDiacritics)
}

func (s *Service) sortPeople(people []model.Person) {
	c := s.collator()
	slices.SortStableFunc(people, func(a, b model.Person) int {
		return c.CompareString(a.DisplayName(), b.DisplayName())
	})
}

func ownSubmission(snap CourseSnapshot, cwID string) *model.Submission {
	subs := snap.Submissions[cwID]
	if len(subs) == 0 {
		return nil
	}
	return &subs[0]
}

// StudentAssignments joins the caller's coursework with their own submissions.
// Snapshots must come from a student walk with OwnSubmissions.
func (s *Service) StudentAssignments(snaps []CourseSnapshot) model.StudentAssignmentsReport {
	now := s.now()
	out := model.StudentAssignmentsReport{Assignments: []model.StudentAssignment{}, Errors: courseErrors(snaps)}
	for _, snap := range snaps {
		if snap.Err != nil {
			continue
		}
		for _, cw := range snap.CourseWork {
			sub := ownSubmission(snap, cw.ID)
			state := model.StateNone
			var grade *float64
			if sub != nil {
				state, grade = sub.State, sub.AssignedGrade
			}
			due := metrics.DueOf(cw, s.Location)
			a := model.StudentAssignment{
				ID:            cw.ID,
				CourseID:      snap.Course.ID,
				CourseName:    snap.Course.Name,
				Title:         cw.Title,
				Description:   cw.Description,
				DueDate:       due,
				CreationTime:  cw.CreationTime,
				State:         state,
				Submitted:     sub != nil,
				AssignedGrade: grade,
				MaxPoints:     cw.MaxPoints,
				AlternateLink: cw.AlternateLink,
				WorkType:      cw.WorkType,
				IsLate:        metrics.IsLate(due, state, now),
				IsPending:     metrics.IsPending(state),
			}
			out.Assignments = append(out.Assignments, a)

			out.Stats.Total++
			if a.IsPending {
				out.Stats.Pending++
			}
			if metrics.IsCompleted(state) {
				out.Stats.Completed++
			}
			if a.IsLate {
				out.Stats.Late++
			}
		}
	}
	metrics.SortByDue(out.Assignments, func(a model.StudentAssignment) *time.Time { return a.DueDate })
	return out
}

// StudentProgress summarizes the caller's progress per course and overall.
func (s *Service) StudentProgress(snaps []CourseSnapshot, id *model.Identity) model.StudentProgress {
	now := s.now()
	out := model.StudentProgress{Courses: []model.CourseProgress{}, Reasons: []string{}}
	if id != nil {
		out.StudentID, out.StudentName, out.StudentEmail = id.UserID, id.Name, id.Email
	}

	var all tally
	for _, snap := range snaps {
		cp := model.CourseProgress{CourseID: snap.Course.ID, CourseName: snap.Course.Name}
		if snap.Err != nil {
			cp.Error = snap.Err.Error()
			out.Courses = append(out.Courses, cp)
			continue
		}
		var t tally
		for _, cw := range snap.CourseWork {
			sub := ownSubmission(snap, cw.ID)
			t.add(cw, sub, now, s.Location)
			all.add(cw, sub, now, s.Location)
		}
		cp.TotalAssignments = t.total
		cp.CompletedAssignments = t.completed
		cp.PendingAssignments = t.pending
		cp.LateAssignments = t.late
		cp.AverageGrade = t.averagePtr()
		cp.CompletionRate = metrics.Round2(metrics.CompletionRate(t.completed, t.total))
		out.Courses = append(out.Courses, cp)
	}

	out.TotalAssignments = all.total
	out.CompletedAssignments = all.completed
	out.PendingAssignments = all.pending
	out.LateAssignments = all.late
	out.AverageGrade = all.averagePtr()
	out.RiskLevel, out.Reasons = all.risk()
	if out.Reasons == nil {
		out.Reasons = []string{}
	}
	return out
}

// TeacherCourses lists courses with roster and coursework counts, most
// recently updated first.
func (s *Service) TeacherCourses(snaps []CourseSnapshot) []model.CourseSummary {
	out := make([]model.CourseSummary, 0, len(snaps))
	for _, snap := range snaps {
		cs := model.CourseSummary{
			Course:          snap.Course,
			StudentCount:    len(snap.Students),
			AssignmentCount: len(snap.CourseWork),
		}
		if snap.Err != nil {
			cs.Error = snap.Err.Error()
		}
		out = append(out, cs)
	}
	slices.SortStableFunc(out, func(a, b model.CourseSummary) int {
		return b.UpdateTime.Compare(a.UpdateTime)
	})
	return out
}

// CourseAssignments summarizes every coursework item of one course from the
// teacher's side. The snapshot needs coursework, all submissions and students.
func (s *Service) CourseAssignments(snap CourseSnapshot) model.CourseAssignmentsReport {
	now := s.now()
	out := model.CourseAssignmentsReport{
		CourseID:      snap.Course.ID,
		Assignments:   []model.AssignmentSummary{},
		TotalStudents: len(snap.Students),
	}

	var avgSum float64
	var avgCount int
	for _, cw := range snap.CourseWork {
		due := metrics.DueOf(cw, s.Location)
		as := model.AssignmentSummary{
			CourseWork:    cw,
			DueInstant:    due,
			TotalStudents: len(snap.Students),
			IsActive:      due == nil || !now.After(*due),
		}
		var pctSum float64
		for _, sub := range snap.Submissions[cw.ID] {
			if metrics.IsCompleted(sub.State) {
				as.SubmittedCount++
			}
			if sub.Late {
				as.LateCount++
			}
			if sub.AssignedGrade != nil {
				as.GradedCount++
				pctSum += metrics.Percent(*sub.AssignedGrade, cw.MaxPoints)
			}
		}
		as.PendingCount = max(as.TotalStudents-as.SubmittedCount, 0)
		if as.GradedCount > 0 {
			avg := metrics.Round2(pctSum / float64(as.GradedCount))
			as.AverageGrade = &avg
			avgSum += avg
			avgCount++
		}
		as.CompletionRate = metrics.Round2(metrics.CompletionRate(as.SubmittedCount, as.TotalStudents))
		if as.IsActive {
			out.ActiveAssignments++
		}
		out.Assignments = append(out.Assignments, as)
	}
	metrics.SortByDue(out.Assignments, func(a model.AssignmentSummary) *time.Time { return a.DueInstant })

	out.Total = len(out.Assignments)
	if avgCount > 0 {
		out.ClassAverage = metrics.Round2(avgSum / float64(avgCount))
	}
	return out
}

// CourseStudents is the course roster sorted by name.
func (s *Service) CourseStudents(snap CourseSnapshot) model.CourseStudentsReport {
	students := slices.Clone(snap.Students)
	if students == nil {
		students = []model.Person{}
	}
	s.sortPeople(students)
	return model.CourseStudentsReport{CourseID: snap.Course.ID, Students: students, Total: len(students)}
}

// CourseGrades is the gradebook summary of one course.
func (s *Service) CourseGrades(snap CourseSnapshot) model.CourseGradesReport {
	now := s.now()
	idx := byUser(snap)
	out := model.CourseGradesReport{
		CourseID:         snap.Course.ID,
		CourseName:       snap.Course.Name,
		TotalStudents:    len(snap.Students),
		TotalAssignments: len(snap.CourseWork),
		Students:         []model.StudentGrade{},
	}
	for _, subs := range snap.Submissions {
		for _, sub := range subs {
			if sub.State == model.StateTurnedIn && sub.AssignedGrade == nil {
				out.PendingReview++
			}
		}
	}

	students := slices.Clone(snap.Students)
	s.sortPeople(students)
	var avgSum float64
	var avgCount int
	for _, p := range students {
		t := studentTally(snap, idx, p.UserID, now, s.Location)
		g := model.StudentGrade{
			StudentID:            p.UserID,
			StudentName:          p.DisplayName(),
			TotalPoints:          t.points,
			MaxPoints:            t.maxPoints,
			CompletedAssignments: t.completed,
			TotalAssignments:     t.total,
		}
		if avg, ok := t.average(); ok {
			g.Average = avg
			avgSum += avg
			avgCount++
		}
		out.Students = append(out.Students, g)
	}
	if avgCount > 0 {
		out.ClassAverage = metrics.Round2(avgSum / float64(avgCount))
	}
	return out
}

// StudentsAtRisk assesses every student of every course, most severe first.
// Students at low risk are counted but listed only when includeLow is set and
// a rule still flagged them (the late notice); limit caps the list after
// sorting when positive.
func (s *Service) StudentsAtRisk(snaps []CourseSnapshot, includeLow bool, limit int) model.AtRiskReport {
	now := s.now()
	out := model.AtRiskReport{Students: []model.RiskAssessment{}, Errors: courseErrors(snaps)}
	for _, snap := range snaps {
		if snap.Err != nil {
			continue
		}
		idx := byUser(snap)
		for _, p := range snap.Students {
			t := studentTally(snap, idx, p.UserID, now, s.Location)
			level, reasons := t.risk()
			switch level {
			case model.RiskCritical:
				out.CriticalCount++
			case model.RiskHigh:
				out.HighCount++
			case model.RiskMedium:
				out.MediumCount++
			default:
				out.LowCount++
				if !includeLow || len(reasons) == 0 {
					continue
				}
			}
			avg, _ := t.average()
			out.Students = append(out.Students, model.RiskAssessment{
				StudentID:            p.UserID,
				StudentName:          p.DisplayName(),
				CourseID:             snap.Course.ID,
				CourseName:           snap.Course.Name,
				Cohort:               snap.Course.Cohort(),
				RiskLevel:            level,
				Reasons:              reasons,
				TotalAssignments:     t.total,
				CompletedAssignments: t.completed,
				MissedAssignments:    t.missed,
				LateAssignments:      t.lateFlag,
				LowGradeAssignments:  t.lowGrade,
				AverageGrade:         avg,
			})
		}
	}
	metrics.SortByRisk(out.Students)
	out.Total = len(out.Students)
	if limit > 0 && len(out.Students) > limit {
		out.Students = out.Students[:limit]
	}
	return out
}

// RecentSubmissions lists handed-in work, newest first.
func (s *Service) RecentSubmissions(snaps []CourseSnapshot, limit int) model.RecentSubmissionsReport {
	out := model.RecentSubmissionsReport{Submissions: []model.RecentSubmission{}}
	for _, snap := range snaps {
		if snap.Err != nil {
			continue
		}
		names := make(map[string]string, len(snap.Students))
		for _, p := range snap.Students {
			names[p.UserID] = p.DisplayName()
		}
		for _, cw := range snap.CourseWork {
			for _, sub := range snap.Submissions[cw.ID] {
				if !metrics.IsCompleted(sub.State) {
					continue
				}
				out.Submissions = append(out.Submissions, model.RecentSubmission{
					StudentID:       sub.UserID,
					StudentName:     names[sub.UserID],
					CourseID:        snap.Course.ID,
					CourseName:      snap.Course.Name,
					AssignmentID:    cw.ID,
					AssignmentTitle: cw.Title,
					SubmissionTime:  sub.UpdateTime,
					IsLate:          sub.Late,
					Grade:           sub.AssignedGrade,
					MaxPoints:       cw.MaxPoints,
					Status:          sub.State,
				})
			}
		}
	}
	slices.SortStableFunc(out.Submissions, func(a, b model.RecentSubmission) int {
		return b.SubmissionTime.Compare(a.SubmissionTime)
	})
	out.Total = len(out.Submissions)
	if limit > 0 && len(out.Submissions) > limit {
		out.Submissions = out.Submissions[:limit]
	}
	return out
}

// Overview is the coordinator dashboard over every walked course.
func (s *Service) Overview(snaps []CourseSnapshot) model.Overview {
	now := s.now()
	out := model.Overview{Courses: []model.CourseOverview{}, Cohorts: []model.CohortOverview{}}

	type cohortAcc struct {
		model.CohortOverview
		avgSum   float64
		avgCount int
	}
	cohorts := map[string]*cohortAcc{}
	var avgSum float64
	var avgCount int

	for _, snap := range snaps {
		co := model.CourseOverview{
			ID:      snap.Course.ID,
			Name:    snap.Course.Name,
			Section: snap.Course.Section,
			Cohort:  snap.Course.Cohort(),
		}
		if snap.Err != nil {
			co.Error = snap.Err.Error()
			out.Courses = append(out.Courses, co)
			continue
		}
		co.Students = len(snap.Students)
		co.Assignments = len(snap.CourseWork)

		var pctSum float64
		var graded int
		for _, cw := range snap.CourseWork {
			for _, sub := range snap.Submissions[cw.ID] {
				if metrics.IsCompleted(sub.State) {
					co.Submissions++
				}
				if sub.State == model.StateTurnedIn && sub.AssignedGrade == nil {
					co.PendingReview++
				}
				if sub.AssignedGrade != nil {
					pctSum += metrics.Percent(*sub.AssignedGrade, cw.MaxPoints)
					graded++
				}
			}
		}
		hasAvg := graded > 0
		if hasAvg {
			co.Average = int(math.Round(pctSum / float64(graded)))
			avgSum += float64(co.Average)
			avgCount++
		}

		idx := byUser(snap)
		for _, p := range snap.Students {
			t := studentTally(snap, idx, p.UserID, now, s.Location)
			if level, _ := t.risk(); level != model.RiskLow {
				co.StudentsAtRisk++
			}
		}

		out.Courses = append(out.Courses, co)
		out.Totals.ActiveCourses++
		out.Totals.TotalStudents += co.Students
		out.Totals.TotalAssignments += co.Assignments
		out.Totals.TotalSubmissions += co.Submissions
		out.Totals.TotalPendingReview += co.PendingReview
		out.Totals.StudentsAtRisk += co.StudentsAtRisk

		acc, ok := cohorts[co.Cohort]
		if !ok {
			acc = &cohortAcc{CohortOverview: model.CohortOverview{Name: co.Cohort}}
			cohorts[co.Cohort] = acc
		}
		acc.Students += co.Students
		acc.Assignments += co.Assignments
		acc.Courses++
		if hasAvg {
			acc.avgSum += float64(co.Average)
			acc.avgCount++
		}
	}
	if avgCount > 0 {
		out.Totals.OverallAverage = int(math.Round(avgSum / float64(avgCount)))
	}

	c := s.collator()
	for _, acc := range cohorts {
		if acc.avgCount > 0 {
			acc.Average = int(math.Round(acc.avgSum / float64(acc.avgCount)))
		}
		out.Cohorts = append(out.Cohorts, acc.CohortOverview)
	}
	slices.SortFunc(out.Cohorts, func(a, b model.CohortOverview) int {
		if r := c.CompareString(a.Name, b.Name); r != 0 {
			return r
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}
