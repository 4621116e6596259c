package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/semillerodigital/classroomplus/internal/cache"
	"github.com/semillerodigital/classroomplus/internal/classroom"
	"github.com/semillerodigital/classroomplus/internal/dashboard"
	"github.com/semillerodigital/classroomplus/internal/model"
)

// client acts as the caller. Token refreshes are not tied to the request so
// that a cached fetch outliving it can still refresh.
func (h *Handler) client(r *http.Request) *classroom.Client {
	ctx := r.Context()
	return h.clients.ForIdentity(context.WithoutCancel(ctx), model.IdentityFromContext(ctx))
}

// parseStates reads a comma-separated courseStates parameter.
func parseStates(raw string) ([]model.CourseState, error) {
	var out []model.CourseState
	for _, s := range strings.Split(raw, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		switch st := model.CourseState(s); st {
		case model.CourseActive, model.CourseArchived, model.CourseProvisioned, model.CourseDeclined, model.CourseSuspended:
			out = append(out, st)
		default:
			return nil, badRequest("ErrInvalidState", map[string]any{"State": s})
		}
	}
	return out, nil
}

func items[T any](l classroom.Listing[T]) []T {
	if l.Items == nil {
		return []T{}
	}
	return l.Items
}

// handleListCourses lists courses, optionally only those the caller studies
// (?role=student) or teaches (?role=teacher).
func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	states, err := parseStates(r.URL.Query().Get("courseStates"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f := classroom.CourseFilter{States: states}
	if v := r.URL.Query().Get("role"); v != "" {
		role, ok := model.ParseRole(v)
		if !ok {
			h.writeError(w, r, badRequest("ErrInvalidRole", nil))
			return
		}
		switch role {
		case model.RoleStudent:
			f.StudentID = classroom.Me
		case model.RoleTeacher:
			f.TeacherID = classroom.Me
		}
	}
	list, err := h.client(r).ListCourses(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, items(list))
}

func (h *Handler) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.client(r).GetCourse(r.Context(), chi.URLParam(r, "courseID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, course)
}

func (h *Handler) handleListCourseWork(w http.ResponseWriter, r *http.Request) {
	list, err := h.client(r).ListCourseWork(r.Context(), chi.URLParam(r, "courseID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, items(list))
}

func (h *Handler) handleGetCourseWork(w http.ResponseWriter, r *http.Request) {
	cw, err := h.client(r).GetCourseWork(r.Context(), chi.URLParam(r, "courseID"), chi.URLParam(r, "courseWorkID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, cw)
}

func (h *Handler) handleListRoster(role model.RosterRole) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := h.client(r).ListRoster(r.Context(), chi.URLParam(r, "courseID"), role)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeData(w, items(list))
	}
}

func studentAssignmentsKey(userID string) string {
	return userKeyPrefix(userID) + "student-assignments"
}

// handleStudentAssignments serves the caller's assignments through the result
// cache. ?refresh=true bypasses it.
func (h *Handler) handleStudentAssignments(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	force, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	c := h.client(r)

	res, err := h.assignments.GetOrFetch(r.Context(), studentAssignmentsKey(id.UserID),
		cache.Options{TTL: h.config.CacheTTL, Force: force},
		func(ctx context.Context) (model.StudentAssignmentsReport, error) {
			snaps, err := h.svc.Walk(ctx, c, dashboard.WalkOptions{
				Role:        model.RoleStudent,
				Submissions: dashboard.OwnSubmissions,
			})
			if err != nil {
				return model.StudentAssignmentsReport{}, err
			}
			return h.svc.StudentAssignments(snaps), nil
		})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("X-Cache", string(res.Source))
	w.Header().Set("Last-Modified", res.FetchedAt.UTC().Format(http.TimeFormat))
	writeJSON(w, http.StatusOK, model.Envelope{
		Success: true,
		Data:    res.Value,
		Message: unavailableMessage(r, len(res.Value.Errors)),
	})
}

func (h *Handler) handleStudentProgress(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.svc.Walk(r.Context(), h.client(r), dashboard.WalkOptions{
		Role:        model.RoleStudent,
		Submissions: dashboard.OwnSubmissions,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p := h.svc.StudentProgress(snaps, model.IdentityFromContext(r.Context()))
	p.Reasons = localizeReasons(r, p.Reasons)
	writeData(w, p)
}
