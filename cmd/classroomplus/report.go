package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/semillerodigital/classroomplus/internal/dashboard"
	"github.com/semillerodigital/classroomplus/internal/handler"
	appI18n "github.com/semillerodigital/classroomplus/internal/i18n"
	"github.com/semillerodigital/classroomplus/internal/model"
	"github.com/semillerodigital/classroomplus/internal/store"
)

// Report kinds accepted by the report command.
const (
	reportStudentAssignments = "student-assignments"
	reportStudentProgress    = "student-progress"
	reportTeacherCourses     = "teacher-courses"
	reportCourseGrades       = "course-grades"
	reportAtRisk             = "at-risk"
	reportOverview           = "overview"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report KIND",
		Short: "Compute a dashboard report for a session and print it as JSON",
		Long: `Compute a dashboard report and write it as JSON.

KIND is one of: student-assignments, student-progress, teacher-courses,
course-grades (needs --course), at-risk, overview.`,
		Args: cobra.ExactArgs(1),
		ValidArgs: []string{
			reportStudentAssignments, reportStudentProgress, reportTeacherCourses,
			reportCourseGrades, reportAtRisk, reportOverview,
		},
		RunE: runReport,
	}
	addCommonFlags(cmd)
	addClassroomFlags(cmd)
	f := cmd.Flags()
	f.String("session", "", "Session token to act as (required)")
	f.String("course", "", "Course ID for course reports")
	f.Bool("coordinator", false, "Compute at-risk over every active course instead of taught ones")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")

	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	kind := args[0]

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	id, err := handler.ResolveSession(db, v.GetString("session"))
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	svc, err := dashboardService(v)
	if err != nil {
		return err
	}
	src := clientFactory(v).ForIdentity(cmd.Context(), id)

	data, failed, err := buildReport(cmd.Context(), svc, src, id, kind, v.GetString("course"), v.GetBool("coordinator"))
	if err != nil {
		return err
	}
	if failed > 0 {
		slog.Warn(appI18n.Tp(cmd.Context(), "CoursesUnavailable", failed))
	}

	export := model.ReportExport{
		Kind:        kind,
		GeneratedAt: time.Now().UTC(),
		UserEmail:   id.Email,
		CourseID:    v.GetString("course"),
		Data:        data,
	}
	out, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

// buildReport walks Classroom for kind and returns the report together with
// the number of courses that could not be loaded.
func buildReport(ctx context.Context, svc *dashboard.Service, src dashboard.Source, id *model.Identity, kind, courseID string, coordinator bool) (any, int, error) {
	walk := func(opts dashboard.WalkOptions) ([]dashboard.CourseSnapshot, error) {
		snaps, err := svc.Walk(ctx, src, opts)
		if err != nil {
			return nil, fmt.Errorf("walk classroom: %w", err)
		}
		return snaps, nil
	}
	students := []model.RosterRole{model.RosterStudents}

	switch kind {
	case reportStudentAssignments, reportStudentProgress:
		snaps, err := walk(dashboard.WalkOptions{Role: model.RoleStudent, Submissions: dashboard.OwnSubmissions})
		if err != nil {
			return nil, 0, err
		}
		if kind == reportStudentProgress {
			p := svc.StudentProgress(snaps, id)
			p.Reasons = localize(ctx, p.Reasons)
			return p, countErrors(snaps), nil
		}
		rep := svc.StudentAssignments(snaps)
		return rep, len(rep.Errors), nil

	case reportTeacherCourses:
		snaps, err := walk(dashboard.WalkOptions{Role: model.RoleTeacher, CourseWork: true, Roster: students})
		if err != nil {
			return nil, 0, err
		}
		return svc.TeacherCourses(snaps), countErrors(snaps), nil

	case reportCourseGrades:
		if courseID == "" {
			return nil, 0, fmt.Errorf("%s needs --course", kind)
		}
		snaps, err := walk(dashboard.WalkOptions{
			Role:        model.RoleTeacher,
			CourseID:    courseID,
			Roster:      students,
			Submissions: dashboard.AllSubmissions,
		})
		if err != nil {
			return nil, 0, err
		}
		return svc.CourseGrades(snaps[0]), 0, nil

	case reportAtRisk:
		role := model.RoleTeacher
		if coordinator {
			role = model.RoleCoordinator
		}
		snaps, err := walk(dashboard.WalkOptions{Role: role, Roster: students, Submissions: dashboard.AllSubmissions})
		if err != nil {
			return nil, 0, err
		}
		rep := svc.StudentsAtRisk(snaps, coordinator, 0)
		for i := range rep.Students {
			rep.Students[i].Reasons = localize(ctx, rep.Students[i].Reasons)
		}
		return rep, len(rep.Errors), nil

	case reportOverview:
		snaps, err := walk(dashboard.WalkOptions{Role: model.RoleCoordinator, Roster: students, Submissions: dashboard.AllSubmissions})
		if err != nil {
			return nil, 0, err
		}
		return svc.Overview(snaps), countErrors(snaps), nil
	}
	return nil, 0, fmt.Errorf("unknown report kind %q", kind)
}

func countErrors(snaps []dashboard.CourseSnapshot) int {
	n := 0
	for _, s := range snaps {
		if s.Err != nil {
			n++
		}
	}
	return n
}

func localize(ctx context.Context, ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = appI18n.T(ctx, id)
	}
	return out
}
