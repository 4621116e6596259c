// Package handler serves the dashboard JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/semillerodigital/classroomplus/internal/cache"
	"github.com/semillerodigital/classroomplus/internal/classroom"
	"github.com/semillerodigital/classroomplus/internal/dashboard"
	appI18n "github.com/semillerodigital/classroomplus/internal/i18n"
	"github.com/semillerodigital/classroomplus/internal/model"
	"github.com/semillerodigital/classroomplus/internal/store"
)

var (
	// ErrUnauthenticated means the request carries no valid session.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrMissingProviderToken means the session has no Google access token.
	ErrMissingProviderToken = errors.New("session has no provider token")
)

// Defaults for zero ServerConfig fields.
const (
	DefaultCacheTTL      = 10 * time.Minute
	DefaultCacheCooldown = 2 * time.Minute
	DefaultAtRiskLimit   = 10
	DefaultRecentLimit   = 10
)

// DefaultImageHosts are the host suffixes the image proxy serves from.
var DefaultImageHosts = []string{"googleusercontent.com"}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store       *store.Store
	clients     classroom.Factory
	svc         *dashboard.Service
	assignments *cache.Coordinator[model.StudentAssignmentsReport]
	images      *http.Client
	config      model.ServerConfig
}

// New creates a new Handler. Cached student assignments are persisted in s.
func New(s *store.Store, clients classroom.Factory, svc *dashboard.Service, cfg model.ServerConfig) (*Handler, error) {
	if s == nil || svc == nil {
		return nil, errors.New("handler: store and dashboard service are required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheCooldown < 0 {
		cfg.CacheCooldown = 0
	} else if cfg.CacheCooldown == 0 {
		cfg.CacheCooldown = DefaultCacheCooldown
	}
	if cfg.AtRiskLimit < 0 {
		cfg.AtRiskLimit = 0
	} else if cfg.AtRiskLimit == 0 {
		cfg.AtRiskLimit = DefaultAtRiskLimit
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = DefaultRecentLimit
	}
	if len(cfg.ImageAllowedHosts) == 0 {
		cfg.ImageAllowedHosts = DefaultImageHosts
	}
	h := &Handler{
		store:   s,
		clients: clients,
		svc:     svc,
		assignments: cache.New[model.StudentAssignmentsReport](
			cache.WithCooldown(cfg.CacheCooldown),
			cache.WithPersister(s),
		),
		config: cfg,
	}
	h.images = &http.Client{Timeout: 10 * time.Second, CheckRedirect: h.checkImageRedirect}
	return h, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/api/image-proxy", h.handleImageProxy)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/me", h.handleMe)
		r.Put("/me/role", h.handleSetRole)
		r.Post("/logout", h.handleLogout)

		r.Route("/classroom", func(r chi.Router) {
			r.Get("/courses", h.handleListCourses)
			r.Get("/courses/{courseID}", h.handleGetCourse)
			r.Get("/courses/{courseID}/coursework", h.handleListCourseWork)
			r.Get("/courses/{courseID}/coursework/{courseWorkID}", h.handleGetCourseWork)
			r.Get("/courses/{courseID}/students", h.handleListRoster(model.RosterStudents))
			r.Get("/courses/{courseID}/teachers", h.handleListRoster(model.RosterTeachers))
			r.Get("/student-assignments", h.handleStudentAssignments)
		})
		r.Get("/progress/student", h.handleStudentProgress)

		r.Route("/teacher", func(r chi.Router) {
			r.Get("/courses", h.handleTeacherCourses)
			r.Get("/courses/{courseID}/assignments", h.handleCourseAssignments)
			r.Get("/courses/{courseID}/students", h.handleCourseStudents)
			r.Get("/courses/{courseID}/grades", h.handleCourseGrades)
			r.Get("/students-at-risk", h.handleTeacherAtRisk)
			r.Get("/recent-submissions", h.handleRecentSubmissions)
		})

		r.Route("/coordinator", func(r chi.Router) {
			r.Get("/overview", h.handleOverview)
			r.Get("/students-at-risk", h.handleCoordinatorAtRisk)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Envelope{Success: true, Data: map[string]string{"status": "ok"}})
}

// requestError is a failure with a known status and a localized message.
type requestError struct {
	status int
	msgID  string
	data   map[string]any
	err    error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.msgID + ": " + e.err.Error()
	}
	return e.msgID
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(msgID string, data map[string]any) error {
	return &requestError{status: http.StatusBadRequest, msgID: msgID, data: data}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, model.Envelope{Success: true, Data: data})
}

// classify maps an error to a status code and message ID.
func classify(err error) (int, string) {
	var re *requestError
	var fe *classroom.ResourceFetchError
	var oe *oauth2.RetrieveError
	switch {
	case errors.As(err, &re):
		return re.status, re.msgID
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrMissingProviderToken):
		return http.StatusUnauthorized, authMessage(err)
	case errors.Is(err, classroom.ErrPermissionDenied):
		return http.StatusForbidden, "ErrPermissionDenied"
	case errors.Is(err, classroom.ErrNotFound):
		return http.StatusNotFound, "ErrNotFound"
	case errors.As(err, &oe):
		// The refresh token was rejected.
		return http.StatusUnauthorized, "ErrUnauthenticated"
	case errors.As(err, &fe) && fe.Status == http.StatusUnauthorized:
		return http.StatusUnauthorized, "ErrUnauthenticated"
	}
	return http.StatusInternalServerError, "ErrInternal"
}

func authMessage(err error) string {
	if errors.Is(err, ErrMissingProviderToken) {
		return "ErrMissingProviderToken"
	}
	return "ErrUnauthenticated"
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msgID := classify(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	var data map[string]any
	var re *requestError
	if errors.As(err, &re) {
		data = re.data
	}
	msg := appI18n.T(r.Context(), msgID)
	if data != nil {
		msg = appI18n.Td(r.Context(), msgID, data)
	}
	writeJSON(w, status, model.Envelope{Success: false, Error: msg})
}
