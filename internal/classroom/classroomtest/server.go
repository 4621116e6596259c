// Package classroomtest provides an in-memory Classroom API server for tests.
package classroomtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/semillerodigital/classroomplus/internal/classroom"
	"github.com/semillerodigital/classroomplus/internal/model"
)

// Course is a course as the fake stores it. Students and Teachers are user ids
// from the server's people.
type Course struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Section    string    `json:"section,omitempty"`
	OwnerID    string    `json:"ownerId,omitempty"`
	State      string    `json:"courseState,omitempty"`
	UpdateTime time.Time `json:"updateTime"`
	Students   []string  `json:"-"`
	Teachers   []string  `json:"-"`
}

// CourseWork is a coursework item in Classroom's wire shape.
type CourseWork struct {
	ID           string           `json:"id"`
	CourseID     string           `json:"courseId"`
	Title        string           `json:"title"`
	State        string           `json:"state,omitempty"`
	DueDate      *model.Date      `json:"dueDate,omitempty"`
	DueTime      *model.TimeOfDay `json:"dueTime,omitempty"`
	MaxPoints    float64          `json:"maxPoints,omitempty"`
	WorkType     string           `json:"workType,omitempty"`
	CreationTime time.Time        `json:"creationTime"`
}

// Submission is a student submission in Classroom's wire shape.
type Submission struct {
	ID            string    `json:"id"`
	CourseID      string    `json:"courseId"`
	CourseWorkID  string    `json:"courseWorkId"`
	UserID        string    `json:"userId"`
	State         string    `json:"state"`
	AssignedGrade *float64  `json:"assignedGrade,omitempty"`
	Late          bool      `json:"late,omitempty"`
	UpdateTime    time.Time `json:"updateTime"`
}

// Person is a user known to the fake.
type Person struct {
	ID         string
	GivenName  string
	FamilyName string
	Email      string
	PhotoURL   string
}

// Server is a fake Classroom API. Add data before issuing requests; the
// setters are safe to call concurrently with requests.
type Server struct {
	*httptest.Server

	// Me is the user id the "me" alias resolves to.
	Me string
	// Token, when set, is the only bearer token accepted.
	Token string

	mu          sync.Mutex
	people      map[string]Person
	courses     []Course
	coursework  map[string][]CourseWork
	submissions map[string][]Submission
	failures    map[string]int
	failAfter   map[string][2]int
	calls       map[string]int
}

// NewServer starts a fake acting for user me. It is closed on test cleanup
// when t is non-nil.
func NewServer(t interface{ Cleanup(func()) }, me string) *Server {
	s := &Server{
		Me:          me,
		people:      make(map[string]Person),
		coursework:  make(map[string][]CourseWork),
		submissions: make(map[string][]Submission),
		failures:    make(map[string]int),
		failAfter:   make(map[string][2]int),
		calls:       make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	if t != nil {
		t.Cleanup(s.Close)
	}
	return s
}

// Options returns client options pointing at the fake.
func (s *Server) Options() classroom.Options {
	return classroom.Options{BaseURL: s.URL, UserInfoURL: s.URL + "/userinfo"}
}

// ClassroomClient returns a classroom client authorized with token. The base
// URLs in opts are replaced with the fake's.
func (s *Server) ClassroomClient(token string, opts classroom.Options) *classroom.Client {
	base := s.Options()
	opts.BaseURL, opts.UserInfoURL = base.BaseURL, base.UserInfoURL
	return classroom.New(classroom.OAuthConfig{}.HTTPClient(context.Background(), token, ""), opts)
}

func (s *Server) AddPerson(p Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people[p.ID] = p
}

func (s *Server) AddCourse(c Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses = append(s.courses, c)
}

func (s *Server) AddCourseWork(cw CourseWork) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coursework[cw.CourseID] = append(s.coursework[cw.CourseID], cw)
}

func (s *Server) AddSubmission(sub Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sub.CourseID + "/" + sub.CourseWorkID
	s.submissions[key] = append(s.submissions[key], sub)
}

// Fail makes every request whose path equals path answer with status.
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = status
}

// FailAfter lets the first n requests to path through and answers later ones
// with status.
func (s *Server) FailAfter(path string, n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter[path] = [2]int{n, status}
}

// Calls returns how many requests hit path. An empty path counts all requests.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		n := 0
		for _, c := range s.calls {
			n += c
		}
		return n
	}
	return s.calls[path]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": msg, "status": http.StatusText(status)},
	})
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[r.URL.Path]++

	if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
		writeError(w, http.StatusUnauthorized, "Request had invalid authentication credentials.")
		return
	}
	if status, ok := s.failures[r.URL.Path]; ok {
		writeError(w, status, "injected failure")
		return
	}
	if fa, ok := s.failAfter[r.URL.Path]; ok && s.calls[r.URL.Path] > fa[0] {
		writeError(w, fa[1], "injected failure")
		return
	}

	if r.URL.Path == "/userinfo" {
		p := s.people[s.Me]
		writeJSON(w, http.StatusOK, map[string]string{
			"sub":   s.Me,
			"email": p.Email,
			"name":  strings.TrimSpace(p.GivenName + " " + p.FamilyName),
		})
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1"), "/"), "/")
	if len(parts) == 0 || parts[0] != "courses" {
		writeError(w, http.StatusNotFound, "unknown path")
		return
	}
	q := r.URL.Query()

	switch len(parts) {
	case 1:
		s.listCourses(w, q)
		return
	case 2:
		c, ok := s.course(parts[1])
		if !ok {
			writeError(w, http.StatusNotFound, "course not found")
			return
		}
		writeJSON(w, http.StatusOK, c)
		return
	}

	c, ok := s.course(parts[1])
	if !ok {
		writeError(w, http.StatusNotFound, "course not found")
		return
	}
	switch {
	case parts[2] == "students" || parts[2] == "teachers":
		ids := c.Students
		if parts[2] == "teachers" {
			ids = c.Teachers
		}
		if len(parts) == 4 {
			id := s.resolve(parts[3])
			if !slices.Contains(ids, id) {
				writeError(w, http.StatusNotFound, "not a member")
				return
			}
			writeJSON(w, http.StatusOK, s.person(c.ID, id))
			return
		}
		people := make([]any, 0, len(ids))
		for _, id := range ids {
			people = append(people, s.person(c.ID, id))
		}
		page, next := paginate(people, q)
		writeJSON(w, http.StatusOK, map[string]any{parts[2]: page, "nextPageToken": next})
	case parts[2] == "courseWork" && len(parts) == 3:
		items := make([]any, 0, len(s.coursework[c.ID]))
		for _, cw := range s.coursework[c.ID] {
			items = append(items, cw)
		}
		page, next := paginate(items, q)
		writeJSON(w, http.StatusOK, map[string]any{"courseWork": page, "nextPageToken": next})
	case parts[2] == "courseWork" && len(parts) == 4:
		for _, cw := range s.coursework[c.ID] {
			if cw.ID == parts[3] {
				writeJSON(w, http.StatusOK, cw)
				return
			}
		}
		writeError(w, http.StatusNotFound, "coursework not found")
	case parts[2] == "courseWork" && len(parts) == 5 && parts[4] == "studentSubmissions":
		user := ""
		if u := q.Get("userId"); u != "" {
			user = s.resolve(u)
		}
		items := []any{}
		for _, sub := range s.submissions[c.ID+"/"+parts[3]] {
			if user == "" || sub.UserID == user {
				items = append(items, sub)
			}
		}
		page, next := paginate(items, q)
		writeJSON(w, http.StatusOK, map[string]any{"studentSubmissions": page, "nextPageToken": next})
	default:
		writeError(w, http.StatusNotFound, "unknown path")
	}
}

func (s *Server) listCourses(w http.ResponseWriter, q map[string][]string) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	student, teacher := get("studentId"), get("teacherId")
	states := q["courseStates"]

	items := []any{}
	for _, c := range s.courses {
		if student != "" && !slices.Contains(c.Students, s.resolve(student)) {
			continue
		}
		if teacher != "" && !slices.Contains(c.Teachers, s.resolve(teacher)) {
			continue
		}
		if len(states) > 0 && !slices.Contains(states, c.State) {
			continue
		}
		items = append(items, c)
	}
	page, next := paginate(items, q)
	writeJSON(w, http.StatusOK, map[string]any{"courses": page, "nextPageToken": next})
}

func (s *Server) course(id string) (Course, bool) {
	for _, c := range s.courses {
		if c.ID == id {
			return c, true
		}
	}
	return Course{}, false
}

func (s *Server) resolve(id string) string {
	if id == classroom.Me {
		return s.Me
	}
	return id
}

func (s *Server) person(courseID, id string) map[string]any {
	p := s.people[id]
	return map[string]any{
		"courseId": courseID,
		"userId":   id,
		"profile": map[string]any{
			"id": id,
			"name": map[string]string{
				"givenName":  p.GivenName,
				"familyName": p.FamilyName,
				"fullName":   strings.TrimSpace(p.GivenName + " " + p.FamilyName),
			},
			"emailAddress": p.Email,
			"photoUrl":     p.PhotoURL,
		},
	}
}

// paginate honours pageSize using the item offset as page token.
func paginate(items []any, q map[string][]string) ([]any, string) {
	size := len(items)
	if v := q["pageSize"]; len(v) > 0 {
		if n, err := strconv.Atoi(v[0]); err == nil && n > 0 {
			size = n
		}
	}
	start := 0
	if v := q["pageToken"]; len(v) > 0 {
		start, _ = strconv.Atoi(v[0])
	}
	if start > len(items) {
		start = len(items)
	}
	end := min(start+size, len(items))
	next := ""
	if end < len(items) {
		next = fmt.Sprint(end)
	}
	return items[start:end], next
}
