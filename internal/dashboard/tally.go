package dashboard

import (
	"time"

	"github.com/semillerodigital/classroomplus/internal/metrics"
	"github.com/semillerodigital/classroomplus/internal/model"
)

// tally accumulates one student's standing over a set of coursework.
type tally struct {
	total     int
	completed int
	pending   int
	late      int // past due and not handed in
	lateFlag  int // marked late by Classroom
	missed    int
	graded    int
	lowGrade  int
	pctSum    float64
	points    float64
	maxPoints float64
}

// add counts one coursework item. sub is nil when the student has no submission.
func (t *tally) add(cw model.CourseWork, sub *model.Submission, now time.Time, loc *time.Location) {
	t.total++
	state := model.StateNone
	if sub != nil {
		state = sub.State
	}
	due := metrics.DueOf(cw, loc)

	if metrics.IsCompleted(state) {
		t.completed++
	}
	if metrics.IsPending(state) {
		t.pending++
	}
	if metrics.IsLate(due, state, now) {
		t.late++
		t.missed++
	}
	if sub == nil {
		return
	}
	if sub.Late {
		t.lateFlag++
	}
	if sub.AssignedGrade != nil {
		pct := metrics.Percent(*sub.AssignedGrade, cw.MaxPoints)
		t.graded++
		t.pctSum += pct
		t.points += *sub.AssignedGrade
		t.maxPoints += cw.MaxPoints
		if pct < metrics.LowGradePercent {
			t.lowGrade++
		}
	}
}

// average is the mean grade in percent over graded work.
func (t tally) average() (float64, bool) {
	if t.graded == 0 {
		return 0, false
	}
	return metrics.Round2(t.pctSum / float64(t.graded)), true
}

func (t tally) averagePtr() *float64 {
	if avg, ok := t.average(); ok {
		return &avg
	}
	return nil
}

func (t tally) risk() (model.RiskLevel, []string) {
	avg, _ := t.average()
	level, reasons := metrics.AssessRisk(metrics.RiskInput{
		Total:    t.total,
		Missed:   t.missed,
		Late:     t.lateFlag,
		Graded:   t.graded,
		LowGrade: t.lowGrade,
		Average:  avg,
	})
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return level, out
}

// byUser indexes a course's submissions by coursework and user.
func byUser(snap CourseSnapshot) map[string]map[string]*model.Submission {
	idx := make(map[string]map[string]*model.Submission, len(snap.Submissions))
	for cwID, subs := range snap.Submissions {
		m := make(map[string]*model.Submission, len(subs))
		for i := range subs {
			m[subs[i].UserID] = &subs[i]
		}
		idx[cwID] = m
	}
	return idx
}

// studentTally tallies one student across a course's coursework.
func studentTally(snap CourseSnapshot, idx map[string]map[string]*model.Submission, userID string, now time.Time, loc *time.Location) tally {
	var t tally
	for _, cw := range snap.CourseWork {
		t.add(cw, idx[cw.ID][userID], now, loc)
	}
	return t
}
