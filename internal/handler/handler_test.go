package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/semillerodigital/classroomplus/internal/classroom"
	"github.com/semillerodigital/classroomplus/internal/classroom/classroomtest"
	"github.com/semillerodigital/classroomplus/internal/dashboard"
	appI18n "github.com/semillerodigital/classroomplus/internal/i18n"
	"github.com/semillerodigital/classroomplus/internal/model"
	"github.com/semillerodigital/classroomplus/internal/store"
)

const upstreamToken = "ya29.test"

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type env struct {
	t      *testing.T
	srv    *classroomtest.Server
	store  *store.Store
	router chi.Router
}

// newEnv serves a handler backed by a fake acting as me. The fake has one
// course c1 taught by t1 with students s1 and s2; s1 handed in w1, s2 did not.
func newEnv(t *testing.T, me string, cfg model.ServerConfig) *env {
	t.Helper()
	srv := classroomtest.NewServer(t, me)
	srv.Token = upstreamToken
	srv.AddPerson(classroomtest.Person{ID: "s1", GivenName: "Ana", FamilyName: "Ruiz"})
	srv.AddPerson(classroomtest.Person{ID: "s2", GivenName: "Bruno", FamilyName: "Díaz"})
	srv.AddCourse(classroomtest.Course{ID: "c1", Name: "Math 101", State: "ACTIVE",
		Students: []string{"s1", "s2"}, Teachers: []string{"t1"}})
	srv.AddCourseWork(classroomtest.CourseWork{ID: "w1", CourseID: "c1", Title: "Fractions",
		DueDate: &model.Date{Year: 2024, Month: 1, Day: 10}, MaxPoints: 10})
	g := 8.0
	srv.AddSubmission(classroomtest.Submission{ID: "x1", CourseID: "c1", CourseWorkID: "w1", UserID: "s1",
		State: "TURNED_IN", AssignedGrade: &g, UpdateTime: time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)})
	srv.AddSubmission(classroomtest.Submission{ID: "x2", CourseID: "c1", CourseWorkID: "w1", UserID: "s2", State: "NEW"})

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc := dashboard.New(2, time.UTC, language.English)
	svc.Now = func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) }

	h, err := New(st, classroom.Factory{Options: srv.Options()}, svc, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	h.Routes(r)
	return &env{t: t, srv: srv, store: st, router: r}
}

func (e *env) session(userID, providerToken string) string {
	e.t.Helper()
	token, err := e.store.CreateAuthSession(model.AuthSession{
		UserID:        userID,
		Email:         userID + "@example.com",
		DisplayName:   "User " + userID,
		ProviderToken: providerToken,
	}, time.Hour)
	if err != nil {
		e.t.Fatalf("CreateAuthSession: %v", err)
	}
	return token
}

func (e *env) do(method, path, token string, body string, header ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, "s1", model.ServerConfig{})
	if rec := e.do(http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAuthentication(t *testing.T) {
	e := newEnv(t, "s1", model.ServerConfig{})
	noProvider := e.session("s1", "")

	tests := []struct {
		name    string
		token   string
		wantMsg string
	}{
		{"no session", "", "sign in again"},
		{"unknown session", "deadbeef", "sign in again"},
		{"session without provider token", noProvider, "no Google access"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodGet, "/api/classroom/student-assignments", tt.token, "")
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			got := decode[any](t, rec)
			if got.Success || !strings.Contains(got.Error, tt.wantMsg) {
				t.Errorf("envelope = %+v, want error containing %q", got, tt.wantMsg)
			}
		})
	}
	if n := e.srv.Calls(""); n != 0 {
		t.Errorf("Classroom was called %d times for unauthenticated requests", n)
	}
}

func TestBearerToken(t *testing.T) {
	e := newEnv(t, "s1", model.ServerConfig{})
	token := e.session("s1", upstreamToken)
	rec := e.do(http.MethodGet, "/api/me", "", "", "Authorization", "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if me := decode[meResponse](t, rec).Data; me.UserID != "s1" || me.Email != "s1@example.com" {
		t.Errorf("me = %+v", me)
	}
}

func TestStudentAssignmentsCache(t *testing.T) {
	e := newEnv(t, "s1", model.ServerConfig{})
	token := e.session("s1", upstreamToken)
	path := "/api/classroom/student-assignments"

	first := e.do(http.MethodGet, path, token, "")
	if first.Code != http.StatusOK || first.Header().Get("X-Cache") != "fresh" {
		t.Fatalf("first: status %d cache %q: %s", first.Code, first.Header().Get("X-Cache"), first.Body)
	}
	rep := decode[model.StudentAssignmentsReport](t, first).Data
	if rep.Stats.Total != 1 || rep.Stats.Completed != 1 || rep.Assignments[0].IsLate {
		t.Errorf("report = %+v", rep)
	}
	calls := e.srv.Calls("")

	second := e.do(http.MethodGet, path, token, "")
	if second.Header().Get("X-Cache") != "cache" || e.srv.Calls("") != calls {
		t.Errorf("second request should be served from cache: %q, %d calls", second.Header().Get("X-Cache"), e.srv.Calls("")-calls)
	}

	forced := e.do(http.MethodGet, path+"?refresh=true", token, "")
	if forced.Header().Get("X-Cache") != "fresh" || e.srv.Calls("") == calls {
		t.Errorf("refresh should refetch: %q", forced.Header().Get("X-Cache"))
	}
}

func TestLogout(t *testing.T) {
	e := newEnv(t, "s1", model.ServerConfig{})
	token := e.session("s1", upstreamToken)

	e.do(http.MethodGet, "/api/classroom/student-assignments", token, "")
	e.do(http.MethodPut, "/api/me/role", token, `{"role":"student"}`)

	rec := e.do(http.MethodPost, "/api/logout", token, "")
	if rec.Code != http.StatusOK || decode[any](t, rec).Message != "Signed out." {
		t.Fatalf("logout: %d %s", rec.Code, rec.Body)
	}
	if c := rec.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Errorf("session cookie not cleared: %+v", c)
	}
	if rec := e.do(http.MethodGet, "/api/me", token, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("old session still works: %d", rec.Code)
	}
	if role, _ := e.store.GetRolePreference("s1"); role != "" {
		t.Errorf("role preference survived logout: %q", role)
	}

	again := e.do(http.MethodGet, "/api/classroom/student-assignments", e.session("s1", upstreamToken), "")
	if again.Header().Get("X-Cache") != "fresh" {
		t.Errorf("cache survived logout: %q", again.Header().Get("X-Cache"))
	}
}

func TestRolePreference(t *testing.T) {
	e := newEnv(t, "t1", model.ServerConfig{})
	token := e.session("t1", upstreamToken)

	if rec := e.do(http.MethodPut, "/api/me/role", token, `{"role":"principal"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid role: status %d", rec.Code)
	}
	if rec := e.do(http.MethodPut, "/api/me/role", token, `{"role":"Teacher"}`); rec.Code != http.StatusOK {
		t.Fatalf("set role: %d %s", rec.Code, rec.Body)
	}
	me := decode[meResponse](t, e.do(http.MethodGet, "/api/me", token, "")).Data
	if me.Role != model.RoleTeacher {
		t.Errorf("role = %q, want teacher", me.Role)
	}
}

func TestErrorStatuses(t *testing.T) {
	e := newEnv(t, "t1", model.ServerConfig{})
	token := e.session("t1", upstreamToken)
	stale := e.session("t1", "ya29.revoked")
	e.srv.AddCourse(classroomtest.Course{ID: "c2", Name: "Secret", State: "ACTIVE"})
	e.srv.Fail("/v1/courses/c2", http.StatusForbidden)
	e.srv.AddCourse(classroomtest.Course{ID: "c3", Name: "Broken", State: "ACTIVE"})
	e.srv.Fail("/v1/courses/c3/courseWork", http.StatusInternalServerError)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"ok", "/api/classroom/courses/c1", token, http.StatusOK},
		{"unknown course", "/api/classroom/courses/nope", token, http.StatusNotFound},
		{"forbidden course", "/api/classroom/courses/c2", token, http.StatusForbidden},
		{"forbidden teacher view", "/api/teacher/courses/c2/assignments", token, http.StatusForbidden},
		{"upstream failure", "/api/classroom/courses/c3/coursework", token, http.StatusInternalServerError},
		{"upstream rejects token", "/api/classroom/courses", stale, http.StatusUnauthorized},
		{"bad course state", "/api/classroom/courses?courseStates=BOGUS", token, http.StatusBadRequest},
		{"bad role filter", "/api/classroom/courses?role=janitor", token, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodGet, tt.path, tt.token, "")
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}

	rec := e.do(http.MethodGet, "/api/classroom/courses/c3/coursework", token, "")
	if msg := decode[any](t, rec).Error; msg != "Something went wrong. Please try again later." {
		t.Errorf("500 message leaks detail: %q", msg)
	}
	rec = e.do(http.MethodGet, "/api/classroom/courses?courseStates=active,BOGUS", token, "")
	if msg := decode[any](t, rec).Error; !strings.Contains(msg, "BOGUS") {
		t.Errorf("state error = %q", msg)
	}
}

func TestForbiddenCourseListIsForbidden(t *testing.T) {
	e := newEnv(t, "t1", model.ServerConfig{})
	token := e.session("t1", upstreamToken)
	e.srv.Fail("/v1/courses", http.StatusForbidden)

	for _, path := range []string{"/api/teacher/courses", "/api/coordinator/overview", "/api/classroom/student-assignments"} {
		if rec := e.do(http.MethodGet, path, token, ""); rec.Code != http.StatusForbidden {
			t.Errorf("%s: status = %d, want 403: %s", path, rec.Code, rec.Body)
		}
	}
}

func TestForbiddenListIsEmpty(t *testing.T) {
	e := newEnv(t, "t1", model.ServerConfig{})
	token := e.session("t1", upstreamToken)
	e.srv.Fail("/v1/courses/c1/teachers", http.StatusForbidden)

	rec := e.do(http.MethodGet, "/api/classroom/courses/c1/teachers", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if people := decode[[]model.Person](t, rec).Data; people == nil || len(people) != 0 {
		t.Errorf("data = %#v, want empty list", people)
	}
}

func TestTeacherViews(t *testing.T) {
	e := newEnv(t, "t1", model.ServerConfig{})
	token := e.session("t1", upstreamToken)

	rec := e.do(http.MethodGet, "/api/teacher/students-at-risk", token, "", "Accept-Language", "es-MX,es;q=0.9")
	if rec.Code != http.StatusOK {
		t.Fatalf("at risk: %d %s", rec.Code, rec.Body)
	}
	risk := decode[model.AtRiskReport](t, rec).Data
	if len(risk.Students) != 1 || risk.Students[0].StudentID != "s2" {
		t.Fatalf("at risk = %+v", risk.Students)
	}
	if got := risk.Students[0].Reasons; len(got) != 1 || got[0] != "No entregó más del 30% de las tareas" {
		t.Errorf("reasons = %v, want Spanish text", got)
	}

	grades := decode[model.CourseGradesReport](t, e.do(http.MethodGet, "/api/teacher/courses/c1/grades", token, "")).Data
	if grades.ClassAverage != 80 || grades.TotalStudents != 2 {
		t.Errorf("grades = %+v", grades)
	}

	recent := decode[model.RecentSubmissionsReport](t, e.do(http.MethodGet, "/api/teacher/recent-submissions", token, "")).Data
	if recent.Total != 1 || recent.Submissions[0].StudentName != "Ana Ruiz" {
		t.Errorf("recent = %+v", recent)
	}
}

func TestNonMemberGetsEmptyCourse(t *testing.T) {
	e := newEnv(t, "s1", model.ServerConfig{})
	token := e.session("s1", upstreamToken)

	// s1 is a student of c1, not a teacher.
	rec := e.do(http.MethodGet, "/api/teacher/courses/c1/assignments", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if rep := decode[model.CourseAssignmentsReport](t, rec).Data; rep.Total != 0 || rep.CourseID != "c1" {
		t.Errorf("report = %+v", rep)
	}
}

func TestCoordinatorOverview(t *testing.T) {
	e := newEnv(t, "t1", model.ServerConfig{})
	token := e.session("t1", upstreamToken)

	ov := decode[model.Overview](t, e.do(http.MethodGet, "/api/coordinator/overview", token, "")).Data
	if ov.Totals.ActiveCourses != 1 || ov.Totals.TotalStudents != 2 || ov.Totals.StudentsAtRisk != 1 {
		t.Errorf("totals = %+v", ov.Totals)
	}
	all := decode[model.AtRiskReport](t, e.do(http.MethodGet, "/api/coordinator/students-at-risk", token, "")).Data
	// s1 is low risk with nothing flagged: counted, not listed.
	if len(all.Students) != 1 || all.Students[0].StudentID != "s2" || all.LowCount != 1 {
		t.Errorf("coordinator at risk = %d students, %d low", len(all.Students), all.LowCount)
	}
}

func TestImageProxy(t *testing.T) {
	var img *httptest.Server
	img = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hop":
			http.Redirect(w, r, img.URL+"/photo.png", http.StatusFound)
			return
		case "/bounce":
			// Same server under a host name the allowlist does not cover.
			http.Redirect(w, r, strings.Replace(img.URL, "127.0.0.1", "localhost", 1)+"/internal", http.StatusFound)
			return
		case "/internal":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("INTERNAL"))
			return
		}
		if r.URL.Path == "/text" {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG"))
	}))
	t.Cleanup(img.Close)
	e := newEnv(t, "s1", model.ServerConfig{ImageAllowedHosts: []string{"127.0.0.1"}})

	rec := e.do(http.MethodGet, "/api/image-proxy?url="+img.URL+"/photo.png", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if rec.Header().Get("Content-Type") != "image/png" || rec.Body.String() != "\x89PNG" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing url", "", http.StatusBadRequest},
		{"foreign host", "?url=https://evil.example.com/a.png", http.StatusBadRequest},
		{"lookalike host", "?url=https://127.0.0.1.evil.example.com/a.png", http.StatusBadRequest},
		{"not an image", "?url=" + img.URL + "/text", http.StatusBadGateway},
		{"redirect within allowed hosts", "?url=" + img.URL + "/hop", http.StatusOK},
		{"redirect to foreign host", "?url=" + img.URL + "/bounce", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodGet, "/api/image-proxy"+tt.query, "", "")
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if strings.Contains(rec.Body.String(), "INTERNAL") {
				t.Errorf("served content from a host outside the allowlist")
			}
		})
	}
}

func TestAllowedImageHost(t *testing.T) {
	h := &Handler{config: model.ServerConfig{ImageAllowedHosts: DefaultImageHosts}}
	for host, want := range map[string]bool{
		"lh3.googleusercontent.com":     true,
		"googleusercontent.com":         true,
		"LH3.GoogleUserContent.com":     true,
		"googleusercontent.com.evil.io": false,
		"notgoogleusercontent.com":      false,
	} {
		if got := h.allowedImageHost(host); got != want {
			t.Errorf("allowedImageHost(%q) = %v, want %v", host, got, want)
		}
	}
}
