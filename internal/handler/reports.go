package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/semillerodigital/classroomplus/internal/dashboard"
	appI18n "github.com/semillerodigital/classroomplus/internal/i18n"
	"github.com/semillerodigital/classroomplus/internal/model"
)

func localizeReasons(r *http.Request, ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = appI18n.T(r.Context(), id)
	}
	return out
}

func localizeRisk(r *http.Request, rep *model.AtRiskReport) {
	for i := range rep.Students {
		rep.Students[i].Reasons = localizeReasons(r, rep.Students[i].Reasons)
	}
}

// unavailableMessage tells the caller how many courses are missing from a
// multi-course report.
func unavailableMessage(r *http.Request, failed int) string {
	if failed == 0 {
		return ""
	}
	return appI18n.Tp(r.Context(), "CoursesUnavailable", failed)
}

func (h *Handler) walk(w http.ResponseWriter, r *http.Request, opts dashboard.WalkOptions) ([]dashboard.CourseSnapshot, bool) {
	snaps, err := h.svc.Walk(r.Context(), h.client(r), opts)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return snaps, true
}

// walkCourse walks the course in the URL as its teacher.
func (h *Handler) walkCourse(w http.ResponseWriter, r *http.Request, opts dashboard.WalkOptions) (dashboard.CourseSnapshot, bool) {
	opts.Role = model.RoleTeacher
	opts.CourseID = chi.URLParam(r, "courseID")
	snaps, ok := h.walk(w, r, opts)
	if !ok {
		return dashboard.CourseSnapshot{}, false
	}
	return snaps[0], true
}

var studentRoster = []model.RosterRole{model.RosterStudents}

func (h *Handler) handleTeacherCourses(w http.ResponseWriter, r *http.Request) {
	snaps, ok := h.walk(w, r, dashboard.WalkOptions{Role: model.RoleTeacher, CourseWork: true, Roster: studentRoster})
	if !ok {
		return
	}
	writeData(w, h.svc.TeacherCourses(snaps))
}

func (h *Handler) handleCourseAssignments(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.walkCourse(w, r, dashboard.WalkOptions{Roster: studentRoster, Submissions: dashboard.AllSubmissions})
	if !ok {
		return
	}
	writeData(w, h.svc.CourseAssignments(snap))
}

func (h *Handler) handleCourseStudents(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.walkCourse(w, r, dashboard.WalkOptions{Roster: studentRoster})
	if !ok {
		return
	}
	writeData(w, h.svc.CourseStudents(snap))
}

func (h *Handler) handleCourseGrades(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.walkCourse(w, r, dashboard.WalkOptions{Roster: studentRoster, Submissions: dashboard.AllSubmissions})
	if !ok {
		return
	}
	writeData(w, h.svc.CourseGrades(snap))
}

func (h *Handler) handleTeacherAtRisk(w http.ResponseWriter, r *http.Request) {
	snaps, ok := h.walk(w, r, dashboard.WalkOptions{
		Role:        model.RoleTeacher,
		Roster:      studentRoster,
		Submissions: dashboard.AllSubmissions,
	})
	if !ok {
		return
	}
	rep := h.svc.StudentsAtRisk(snaps, false, h.config.AtRiskLimit)
	localizeRisk(r, &rep)
	writeJSON(w, http.StatusOK, model.Envelope{Success: true, Data: rep, Message: unavailableMessage(r, len(rep.Errors))})
}

func (h *Handler) handleRecentSubmissions(w http.ResponseWriter, r *http.Request) {
	snaps, ok := h.walk(w, r, dashboard.WalkOptions{
		Role:        model.RoleTeacher,
		Roster:      studentRoster,
		Submissions: dashboard.AllSubmissions,
	})
	if !ok {
		return
	}
	writeData(w, h.svc.RecentSubmissions(snaps, h.config.RecentLimit))
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	snaps, ok := h.walk(w, r, dashboard.WalkOptions{
		Role:        model.RoleCoordinator,
		Roster:      studentRoster,
		Submissions: dashboard.AllSubmissions,
	})
	if !ok {
		return
	}
	writeData(w, h.svc.Overview(snaps))
}

func (h *Handler) handleCoordinatorAtRisk(w http.ResponseWriter, r *http.Request) {
	snaps, ok := h.walk(w, r, dashboard.WalkOptions{
		Role:        model.RoleCoordinator,
		Roster:      studentRoster,
		Submissions: dashboard.AllSubmissions,
	})
	if !ok {
		return
	}
	rep := h.svc.StudentsAtRisk(snaps, true, 0)
	localizeRisk(r, &rep)
	writeJSON(w, http.StatusOK, model.Envelope{Success: true, Data: rep, Message: unavailableMessage(r, len(rep.Errors))})
}
