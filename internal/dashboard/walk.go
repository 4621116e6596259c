// Package dashboard walks Classroom data for one caller and turns it into the
// dashboard reports. All walking goes through Service.Walk; reports are
// computed from its snapshots without further network access.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/language"

	"github.com/semillerodigital/classroomplus/internal/classroom"
	"github.com/semillerodigital/classroomplus/internal/model"
)

// DefaultFanOut bounds concurrent upstream requests per walk.
const DefaultFanOut = 8

// Source is the subset of the Classroom client the walk needs.
type Source interface {
	ListCourses(ctx context.Context, f classroom.CourseFilter) (classroom.Listing[model.Course], error)
	GetCourse(ctx context.Context, courseID string) (model.Course, error)
	ListCourseWork(ctx context.Context, courseID string) (classroom.Listing[model.CourseWork], error)
	ListSubmissions(ctx context.Context, courseID, courseWorkID, userID string) (classroom.Listing[model.Submission], error)
	ListRoster(ctx context.Context, courseID string, role model.RosterRole) (classroom.Listing[model.Person], error)
	GetRosterMember(ctx context.Context, courseID string, role model.RosterRole, userID string) (model.Person, error)
}

// SubmissionScope selects whose submissions a walk fetches.
type SubmissionScope int

const (
	NoSubmissions SubmissionScope = iota
	OwnSubmissions
	AllSubmissions
)

// WalkOptions parameterize a walk.
type WalkOptions struct {
	Role         model.Role
	CourseID     string // walk only this course; empty walks every course visible to Role
	CourseStates []model.CourseState
	CourseWork   bool // fetch coursework; implied by Submissions
	Roster       []model.RosterRole
	Submissions  SubmissionScope
}

// CourseSnapshot is everything a walk fetched for one course.
type CourseSnapshot struct {
	Course     model.Course
	CourseWork []model.CourseWork
	Students   []model.Person
	Teachers   []model.Person
	// Submissions by coursework id.
	Submissions map[string][]model.Submission
	// Forbidden lists the collections upstream refused to show.
	Forbidden []classroom.Resource
	// Err is set when the course could not be walked completely. Only
	// multi-course walks report errors this way.
	Err error
}

// Service walks Classroom and builds reports.
type Service struct {
	FanOut   int
	Location *time.Location
	Lang     language.Tag
	Now      func() time.Time
}

// New returns a Service with defaults for zero arguments.
func New(fanOut int, loc *time.Location, lang language.Tag) *Service {
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{FanOut: fanOut, Location: loc, Lang: lang, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func rosterFor(role model.Role) model.RosterRole {
	if role == model.RoleTeacher {
		return model.RosterTeachers
	}
	return model.RosterStudents
}

// Walk fetches the courses selected by opts and their requested contents.
// Snapshots come back in course list order.
//
// For a single course, upstream errors on the course itself are returned; if
// the caller is not on the course roster for their role an empty snapshot is
// returned. For many courses, per-course failures land in CourseSnapshot.Err.
func (s *Service) Walk(ctx context.Context, src Source, opts WalkOptions) ([]CourseSnapshot, error) {
	fanOut := s.FanOut
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}
	w := &walker{src: src, opts: opts, sem: semaphore.NewWeighted(int64(fanOut))}

	if opts.CourseID != "" {
		return w.one(ctx)
	}

	courses, err := w.courses(ctx)
	if err != nil {
		return nil, err
	}
	snaps := make([]CourseSnapshot, len(courses))
	var g errgroup.Group
	g.SetLimit(fanOut)
	for i, c := range courses {
		i, c := i, c
		g.Go(func() error {
			snaps[i] = w.fill(ctx, c)
			if snaps[i].Err != nil {
				slog.Warn("course walk failed", "course_id", c.ID, "error", snaps[i].Err)
			}
			return nil
		})
	}
	g.Wait()
	return snaps, ctx.Err()
}

type walker struct {
	src  Source
	opts WalkOptions
	sem  *semaphore.Weighted
}

// call runs one upstream request under the fan-out limit.
func (w *walker) call(ctx context.Context, f func() error) error {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer w.sem.Release(1)
	return f()
}

func (w *walker) courses(ctx context.Context) ([]model.Course, error) {
	f := classroom.CourseFilter{States: w.opts.CourseStates}
	switch w.opts.Role {
	case model.RoleStudent:
		f.StudentID = classroom.Me
	case model.RoleTeacher:
		f.TeacherID = classroom.Me
	case model.RoleCoordinator:
		if len(f.States) == 0 {
			f.States = []model.CourseState{model.CourseActive}
		}
	}

	var list classroom.Listing[model.Course]
	err := w.call(ctx, func() (err error) {
		list, err = w.src.ListCourses(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	if list.Forbidden {
		// The course list is the walk's primary resource.
		return nil, fmt.Errorf("list courses as %s: %w", w.opts.Role, classroom.ErrPermissionDenied)
	}
	return list.Items, nil
}

func (w *walker) one(ctx context.Context) ([]CourseSnapshot, error) {
	id := w.opts.CourseID
	var course model.Course
	err := w.call(ctx, func() (err error) {
		course, err = w.src.GetCourse(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get course %s: %w", id, err)
	}

	if w.opts.Role == model.RoleStudent || w.opts.Role == model.RoleTeacher {
		err := w.call(ctx, func() error {
			_, err := w.src.GetRosterMember(ctx, id, rosterFor(w.opts.Role), classroom.Me)
			return err
		})
		switch {
		case errors.Is(err, classroom.ErrPermissionDenied), errors.Is(err, classroom.ErrNotFound):
			slog.Debug("caller not on course roster", "course_id", id, "role", w.opts.Role)
			return []CourseSnapshot{{Course: course}}, nil
		case err != nil:
			return nil, fmt.Errorf("check membership in %s: %w", id, err)
		}
	}

	snap := w.fill(ctx, course)
	if snap.Err != nil {
		return nil, snap.Err
	}
	return []CourseSnapshot{snap}, nil
}

// fill fetches coursework and rosters concurrently, then submissions for each
// coursework item.
func (w *walker) fill(ctx context.Context, c model.Course) CourseSnapshot {
	snap := CourseSnapshot{Course: c}
	var mu sync.Mutex
	forbid := func(r classroom.Resource) {
		mu.Lock()
		snap.Forbidden = append(snap.Forbidden, r)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	needWork := w.opts.CourseWork || w.opts.Submissions != NoSubmissions
	if needWork {
		g.Go(func() error {
			var list classroom.Listing[model.CourseWork]
			err := w.call(gctx, func() (err error) {
				list, err = w.src.ListCourseWork(gctx, c.ID)
				return err
			})
			if err != nil {
				return err
			}
			if list.Forbidden {
				forbid(classroom.ResourceCourseWork)
			}
			snap.CourseWork = list.Items
			if w.opts.Submissions == NoSubmissions || len(list.Items) == 0 {
				return nil
			}
			return w.submissions(gctx, &snap, &mu, forbid)
		})
	}
	for _, role := range w.opts.Roster {
		role := role
		g.Go(func() error {
			var list classroom.Listing[model.Person]
			err := w.call(gctx, func() (err error) {
				list, err = w.src.ListRoster(gctx, c.ID, role)
				return err
			})
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			switch role {
			case model.RosterStudents:
				snap.Students = list.Items
				if list.Forbidden {
					snap.Forbidden = append(snap.Forbidden, classroom.ResourceStudents)
				}
			case model.RosterTeachers:
				snap.Teachers = list.Items
				if list.Forbidden {
					snap.Forbidden = append(snap.Forbidden, classroom.ResourceTeachers)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Keep the course itself so callers can still name it.
		return CourseSnapshot{Course: c, Err: err}
	}
	return snap
}

func (w *walker) submissions(ctx context.Context, snap *CourseSnapshot, mu *sync.Mutex, forbid func(classroom.Resource)) error {
	user := ""
	if w.opts.Submissions == OwnSubmissions {
		user = classroom.Me
	}
	subs := make(map[string][]model.Submission, len(snap.CourseWork))

	g, gctx := errgroup.WithContext(ctx)
	forbidden := false
	for _, cw := range snap.CourseWork {
		cw := cw
		g.Go(func() error {
			var list classroom.Listing[model.Submission]
			err := w.call(gctx, func() (err error) {
				list, err = w.src.ListSubmissions(gctx, snap.Course.ID, cw.ID, user)
				return err
			})
			if err != nil {
				return err
			}
			mu.Lock()
			subs[cw.ID] = list.Items
			if list.Forbidden {
				forbidden = true
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if forbidden {
		forbid(classroom.ResourceSubmissions)
	}
	mu.Lock()
	snap.Submissions = subs
	mu.Unlock()
	return nil
}
