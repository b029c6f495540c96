// Package dashboard derives the figures shown on the health dashboard from
// the cached report history. Every function is pure and recomputes from the
// full history it is given.
package dashboard

import (
	"math"
	"strings"

	"github.com/docmate-health/docmate/pkg/model"
)

// Defaults shown before any report exists.
const (
	DefaultHealthScore   = 95.0
	DefaultSleepLabel    = "Good"
	DefaultSleepDuration = "7h 20m"

	minHealthScore   = 10.0
	maxTrendPoints   = 7
	chartDateLayout  = "Jan 2"
	noDateLabel      = "N/A"
	severityPerPoint = 8.0
)

// SleepQuality is the sleep card of the dashboard
type SleepQuality struct {
	Label    string `json:"label"`
	Duration string `json:"duration"`
}

// TrendPoint is one point of the severity chart
type TrendPoint struct {
	Date          string  `json:"date"`
	SeverityScore float64 `json:"severityScore"`
}

// Summary is everything the dashboard shows about the report history
type Summary struct {
	HealthScore float64            `json:"healthScore"`
	Sleep       SleepQuality       `json:"sleep"`
	Trend       []TrendPoint       `json:"trend"`
	Latest      *model.SavedReport `json:"latest,omitempty"`
}

// Stats is the header of the reports view
type Stats struct {
	Total           int     `json:"total"`
	AverageSeverity float64 `json:"avgSeverity"`
	LatestDate      string  `json:"latestDate"`
}

// SeverityOf returns the explicit severity of a report, or infers it from
// its risk label
func SeverityOf(r model.SavedReport) float64 {
	if r.SeverityScore != nil {
		return *r.SeverityScore
	}
	return model.SeverityForLabel(r.RiskLevel)
}

// HealthScore maps a severity score onto a 10..100 score, falling by 8
// points per severity step
func HealthScore(severity float64) float64 {
	return math.Max(minHealthScore, 100-severity*severityPerPoint)
}

// ClassifySleep buckets a severity score into a sleep card. The buckets are
// fixed labels, not derived from any sleep signal.
func ClassifySleep(severity float64) SleepQuality {
	switch {
	case severity > 7:
		return SleepQuality{Label: "Disturbed", Duration: "5h 12m"}
	case severity > 4:
		return SleepQuality{Label: "Fair", Duration: "6h 30m"}
	default:
		return SleepQuality{Label: "Excellent", Duration: "7h 45m"}
	}
}

// SeverityTrend maps the newest seven reports, oldest first. reports are
// newest first, as stored in the cache.
func SeverityTrend(reports []model.SavedReport) []TrendPoint {
	n := min(len(reports), maxTrendPoints)
	trend := make([]TrendPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		trend = append(trend, TrendPoint{
			Date:          reportDate(reports[i]),
			SeverityScore: SeverityOf(reports[i]),
		})
	}
	return trend
}

// Summarize derives the dashboard from a newest-first history
func Summarize(reports []model.SavedReport) Summary {
	if len(reports) == 0 {
		return Summary{
			HealthScore: DefaultHealthScore,
			Sleep:       SleepQuality{Label: DefaultSleepLabel, Duration: DefaultSleepDuration},
			Trend:       []TrendPoint{},
		}
	}

	latest := reports[0]
	severity := SeverityOf(latest)
	return Summary{
		HealthScore: HealthScore(severity),
		Sleep:       ClassifySleep(severity),
		Trend:       SeverityTrend(reports),
		Latest:      &latest,
	}
}

// ComputeStats counts the history and averages its severity to one decimal
func ComputeStats(reports []model.SavedReport) Stats {
	if len(reports) == 0 {
		return Stats{LatestDate: noDateLabel}
	}

	var sum float64
	for _, r := range reports {
		sum += SeverityOf(r)
	}

	return Stats{
		Total:           len(reports),
		AverageSeverity: math.Round(sum/float64(len(reports))*10) / 10,
		LatestDate:      reportDate(reports[0]),
	}
}

// FilterReports keeps reports whose title, summary or top condition contain
// query, ignoring case. An empty query keeps everything.
func FilterReports(reports []model.SavedReport, query string) []model.SavedReport {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]model.SavedReport, 0, len(reports))
	for _, r := range reports {
		if q == "" ||
			strings.Contains(strings.ToLower(r.Title), q) ||
			strings.Contains(strings.ToLower(r.Summary), q) ||
			strings.Contains(strings.ToLower(r.TopCondition), q) {
			out = append(out, r)
		}
	}
	return out
}

func reportDate(r model.SavedReport) string {
	if r.Date.Time.IsZero() {
		return noDateLabel
	}
	return r.Date.Time.Format(chartDateLayout)
}
