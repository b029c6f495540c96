package dashboard

import (
	"slices"

	"github.com/docmate-health/docmate/pkg/model"
)

// Score bands of the insights ring.
const (
	BandGood = "good"
	BandFair = "fair"
	BandPoor = "poor"
)

const assessmentDateLayout = "1/2/2006"

// ScoreBand buckets an insights score
func ScoreBand(score float64) string {
	switch {
	case score > 80:
		return BandGood
	case score > 50:
		return BandFair
	default:
		return BandPoor
	}
}

// AssessmentHistory turns newest-first assessments into an oldest-first
// wellness series where each point scores 10 minus the severity. An
// assessment without a severity scores 10.
func AssessmentHistory(assessments []model.Assessment) []model.ScorePoint {
	points := make([]model.ScorePoint, 0, len(assessments))
	for i := len(assessments) - 1; i >= 0; i-- {
		a := assessments[i]

		score := 10.0
		if a.SeverityScore != nil && *a.SeverityScore != 0 {
			score = 10 - *a.SeverityScore
		}

		date := noDateLabel
		if a.CreatedDate != nil {
			date = a.CreatedDate.Format(assessmentDateLayout)
		}

		points = append(points, model.ScorePoint{Date: date, Score: score})
	}
	return points
}

// MergeInsights combines a model insights payload with local state: the
// completion flags come from completedIDs and the history is recomputed
// from the assessments.
func MergeInsights(ins model.HealthInsights, completedIDs []string, assessments []model.Assessment) model.InsightsView {
	plan := make([]model.ActionItem, len(ins.ActionPlan))
	for i, item := range ins.ActionPlan {
		item.Completed = slices.Contains(completedIDs, item.ID)
		plan[i] = item
	}
	ins.ActionPlan = plan
	ins.History = AssessmentHistory(assessments)

	return model.InsightsView{
		HealthInsights: ins,
		Band:           ScoreBand(ins.Score.Float64()),
	}
}

// CompletedIDs lists the ids of completed action items, in plan order
func CompletedIDs(plan []model.ActionItem) []string {
	ids := make([]string, 0, len(plan))
	for _, item := range plan {
		if item.Completed {
			ids = append(ids, item.ID)
		}
	}
	return ids
}
