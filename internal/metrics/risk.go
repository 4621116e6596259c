package metrics

import "github.com/semillerodigital/classroomplus/internal/model"

// Thresholds for the risk rules. Ratios are exclusive lower bounds.
const (
	MissedCriticalRatio = 0.3
	MissedHighRatio     = 0.2
	LateMediumRatio     = 0.4
	LateNoticeRatio     = 0.2
	AverageCritical     = 50.0
	AverageMedium       = 70.0
	LowGradeMediumRatio = 0.5
	// LowGradePercent is the grade below which a single assignment counts as low.
	LowGradePercent = 60.0
)

// Reason identifies why a risk rule fired. The values double as message IDs
// for localization.
type Reason string

const (
	ReasonManyMissed     Reason = "RiskManyMissed"
	ReasonMissed         Reason = "RiskMissed"
	ReasonManyLate       Reason = "RiskManyLate"
	ReasonSomeLate       Reason = "RiskSomeLate"
	ReasonVeryLowAverage Reason = "RiskVeryLowAverage"
	ReasonLowAverage     Reason = "RiskLowAverage"
	ReasonManyLowGrades  Reason = "RiskManyLowGrades"
)

// RiskInput are the per-student counts the risk rules look at.
type RiskInput struct {
	Total    int     // assignments in scope
	Missed   int     // not handed in
	Late     int     // handed in after the deadline
	Graded   int     // assignments with a grade
	LowGrade int     // graded below LowGradePercent
	Average  float64 // average grade in percent, 0 when nothing is graded
}

func ratio(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func escalate(cur, to model.RiskLevel) model.RiskLevel {
	if to.Rank() > cur.Rank() {
		return to
	}
	return cur
}

// AssessRisk evaluates every rule independently; a rule may only raise the
// level, so the most severe firing rule decides the result.
func AssessRisk(in RiskInput) (model.RiskLevel, []Reason) {
	level := model.RiskLow
	var reasons []Reason

	missed := ratio(in.Missed, in.Total)
	switch {
	case missed > MissedCriticalRatio:
		level = escalate(level, model.RiskCritical)
		reasons = append(reasons, ReasonManyMissed)
	case missed > MissedHighRatio:
		level = escalate(level, model.RiskHigh)
		reasons = append(reasons, ReasonMissed)
	}

	late := ratio(in.Late, in.Total)
	switch {
	case late > LateMediumRatio:
		level = escalate(level, model.RiskMedium)
		reasons = append(reasons, ReasonManyLate)
	case late > LateNoticeRatio:
		reasons = append(reasons, ReasonSomeLate)
	}

	if in.Average > 0 {
		switch {
		case in.Average < AverageCritical:
			level = escalate(level, model.RiskCritical)
			reasons = append(reasons, ReasonVeryLowAverage)
		case in.Average < AverageMedium:
			level = escalate(level, model.RiskMedium)
			reasons = append(reasons, ReasonLowAverage)
		}
	}

	if ratio(in.LowGrade, in.Graded) > LowGradeMediumRatio {
		level = escalate(level, model.RiskMedium)
		reasons = append(reasons, ReasonManyLowGrades)
	}

	return level, reasons
}

// RiskLevel is AssessRisk for callers that only track missed, late and average.
func RiskLevel(missed, late int, average float64, total int) model.RiskLevel {
	level, _ := AssessRisk(RiskInput{Total: total, Missed: missed, Late: late, Average: average})
	return level
}
