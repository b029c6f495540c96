// Package session holds the per-user client state: the profile, the local
// report history and the insights cache, and the flows that update them.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docmate-health/docmate/internal/dashboard"
	"github.com/docmate-health/docmate/internal/reportcache"
	"github.com/docmate-health/docmate/pkg/client"
	"github.com/docmate-health/docmate/pkg/model"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"go.uber.org/zap"
)

const (
	symptomTitleChars   = 20
	defaultLabTitle     = "Lab Report"
	analysisComplete    = "Analysis Complete"
	insightsAssessments = 5
	insightsReports     = 3
	historyAssessments  = 10
)

var (
	// ErrReportNotFound is returned when a report id is not in the history
	ErrReportNotFound = errors.New("report not found")
	// ErrNoInsights is returned when an action is toggled before insights exist
	ErrNoInsights = errors.New("no insights loaded")
)

// API is the subset of the DocMate API a session calls
type API interface {
	AnalyzeSymptoms(ctx context.Context, req model.SymptomsRequest) (*model.SymptomAnalysis, error)
	AnalyzeReport(ctx context.Context, report client.File) (*model.ReportAnalysis, error)
	SuggestRemedies(ctx context.Context, req model.RemediesRequest) (*model.RemediesResponse, error)
	GenerateInsights(ctx context.Context, req model.InsightsRequest) (*model.HealthInsights, error)
	GetProfile(ctx context.Context, userID string) (*model.ProfileEnvelope, error)
	SaveProfile(ctx context.Context, userID string, env model.ProfileEnvelope) (*model.ProfileEnvelope, error)
}

// Session is the state of one signed-in user
type Session struct {
	userID   string
	api      API
	reports  *reportcache.ReportCache
	actions  *reportcache.ActionTracker
	insights *reportcache.InsightsCache
	now      func() time.Time
	logger   *zap.Logger

	mu      sync.Mutex
	profile model.ProfileEnvelope
}

// New creates a session for userID whose local state lives in store
func New(userID string, api API, store reportcache.Store, logger *zap.Logger) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("user_id", userID))

	return &Session{
		userID:   userID,
		api:      api,
		reports:  reportcache.NewReportCache(store, logger),
		actions:  reportcache.NewActionTracker(store, logger),
		insights: reportcache.NewInsightsCache(store, logger),
		now:      time.Now,
		logger:   logger,
		profile:  model.ProfileEnvelope{Profile: model.DefaultUserProfile()},
	}, nil
}

// UserID returns the id the session belongs to
func (s *Session) UserID() string {
	return s.userID
}

// Profile returns the current local profile
func (s *Session) Profile() model.ProfileEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// LoadProfile fetches the stored profile. A user without one keeps the
// empty default profile.
func (s *Session) LoadProfile(ctx context.Context) (model.ProfileEnvelope, error) {
	env, err := s.api.GetProfile(ctx, s.userID)
	switch {
	case errors.Is(err, client.ErrNotFound):
		s.logger.Info("no stored profile, using defaults")
		return s.Profile(), nil
	case err != nil:
		return s.Profile(), fmt.Errorf("failed to load profile: %w", err)
	}

	s.mu.Lock()
	s.profile = *env
	s.mu.Unlock()
	return *env, nil
}

// SaveProfile applies the new profile locally, then stores it. When the
// store fails the previous local profile is restored.
func (s *Session) SaveProfile(ctx context.Context, env model.ProfileEnvelope) (model.ProfileEnvelope, error) {
	s.mu.Lock()
	previous := s.profile
	env.Complete = env.Profile.Complete()
	s.profile = env
	s.mu.Unlock()

	saved, err := s.api.SaveProfile(ctx, s.userID, env)
	if err != nil {
		s.mu.Lock()
		s.profile = previous
		s.mu.Unlock()
		s.logger.Warn("profile save failed, restored previous profile", zap.Error(err))
		return previous, fmt.Errorf("failed to save profile: %w", err)
	}

	s.mu.Lock()
	s.profile = *saved
	s.mu.Unlock()
	return *saved, nil
}

// CheckSymptoms triages symptoms and records the result in the history
func (s *Session) CheckSymptoms(ctx context.Context, symptoms string, vitals model.VitalsInput) (*model.SymptomAnalysis, model.SavedReport, error) {
	symptoms = strings.TrimSpace(symptoms)
	if symptoms == "" {
		return nil, model.SavedReport{}, fmt.Errorf("symptoms are required")
	}

	vitalsJSON, err := json.Marshal(vitals)
	if err != nil {
		return nil, model.SavedReport{}, fmt.Errorf("failed to encode vitals: %w", err)
	}
	profileJSON, err := json.Marshal(s.Profile().Profile)
	if err != nil {
		return nil, model.SavedReport{}, fmt.Errorf("failed to encode profile: %w", err)
	}

	analysis, err := s.api.AnalyzeSymptoms(ctx, model.SymptomsRequest{
		Symptoms:    symptoms,
		Vitals:      vitalsJSON,
		UserProfile: profileJSON,
	})
	if err != nil {
		return nil, model.SavedReport{}, err
	}

	raw, err := json.Marshal(analysis)
	if err != nil {
		return nil, model.SavedReport{}, fmt.Errorf("failed to encode analysis: %w", err)
	}

	report := model.SavedReport{
		ID:            s.newReportID(),
		Title:         symptomTitle(symptoms),
		Date:          openapi_types.Date{Time: s.now()},
		RiskLevel:     string(analysis.RiskLevel),
		SeverityScore: severityScore(analysis.RiskScore),
		Summary:       symptomSummary(analysis),
		Type:          model.ReportTypeSymptomCheck,
		WarningSigns:  analysis.WarningSigns,
		FullData:      &model.ReportData{Analysis: raw},
	}
	if len(analysis.PossibleConditions) > 0 {
		report.TopCondition = analysis.PossibleConditions[0].Name
	}

	if err := s.reports.Append(ctx, report); err != nil {
		return analysis, report, fmt.Errorf("failed to save report: %w", err)
	}
	return analysis, report, nil
}

// AnalyzeReport reads an uploaded lab report and records it. An empty
// title defaults to "Lab Report" and a nil date to today.
func (s *Session) AnalyzeReport(ctx context.Context, file client.File, title string, date *time.Time) (*model.ReportAnalysis, model.SavedReport, error) {
	analysis, err := s.api.AnalyzeReport(ctx, file)
	if err != nil {
		return nil, model.SavedReport{}, err
	}

	raw, err := json.Marshal(analysis)
	if err != nil {
		return nil, model.SavedReport{}, fmt.Errorf("failed to encode analysis: %w", err)
	}

	if title = strings.TrimSpace(title); title == "" {
		title = defaultLabTitle
	}
	day := s.now()
	if date != nil {
		day = *date
	}

	report := model.SavedReport{
		ID:            s.newReportID(),
		Title:         title,
		Date:          openapi_types.Date{Time: day},
		RiskLevel:     string(analysis.TriageStatus.Level),
		SeverityScore: severityScore(analysis.TriageStatus.SeverityScore),
		Summary:       labSummary(analysis),
		Type:          model.ReportTypeLabReport,
		WarningSigns:  analysis.AIAnalysis.WarningSigns,
		FullData:      &model.ReportData{Analysis: raw},
	}
	if len(analysis.AIAnalysis.PossibleConditions) > 0 {
		report.TopCondition = analysis.AIAnalysis.PossibleConditions[0].Condition
	}

	if err := s.reports.Append(ctx, report); err != nil {
		return analysis, report, fmt.Errorf("failed to save report: %w", err)
	}
	return analysis, report, nil
}

// severityScore returns nil for a missing score so the dashboard infers
// severity from the risk label. Scores run from 1 to 10.
func severityScore(score model.Score) *float64 {
	v := score.Float64()
	if v <= 0 {
		return nil
	}
	return &v
}

// RemediesResult is the outcome of FetchRemedies
type RemediesResult struct {
	Remedies model.RemediesResponse
	// Cached is set when the report already held remedies
	Cached bool
	// Fallback is set when the static remedy set was substituted
	Fallback bool
}

// FetchRemedies returns the remedies of a report, asking the model once.
// On failure the static fallback set is returned and nothing is stored.
func (s *Session) FetchRemedies(ctx context.Context, reportID string) (RemediesResult, error) {
	report, ok := s.reports.Get(ctx, reportID)
	if !ok {
		return RemediesResult{}, ErrReportNotFound
	}
	if report.HasRemedies() {
		return RemediesResult{Remedies: *report.FullData.Remedies, Cached: true}, nil
	}

	remedies, err := s.api.SuggestRemedies(ctx, remediesRequest(report))
	if err != nil {
		s.logger.Warn("failed to fetch remedies, using fallback",
			zap.String("report_id", reportID),
			zap.Error(err),
		)
		return RemediesResult{Remedies: model.FallbackRemedies(), Fallback: true}, nil
	}

	err = s.reports.AttachRemedies(ctx, reportID, *remedies)
	if errors.Is(err, reportcache.ErrRemediesAttached) {
		// Another writer attached first; its remedies are authoritative.
		if stored, ok := s.reports.Get(ctx, reportID); ok && stored.HasRemedies() {
			return RemediesResult{Remedies: *stored.FullData.Remedies, Cached: true}, nil
		}
	}
	if err != nil {
		return RemediesResult{Remedies: *remedies}, fmt.Errorf("failed to store remedies: %w", err)
	}
	return RemediesResult{Remedies: *remedies}, nil
}

// Reports returns the history filtered by query, newest first, and the
// stats of the whole history
func (s *Session) Reports(ctx context.Context, query string) ([]model.SavedReport, dashboard.Stats) {
	all := s.reports.LoadAll(ctx)
	return dashboard.FilterReports(all, query), dashboard.ComputeStats(all)
}

// Report returns one saved report
func (s *Session) Report(ctx context.Context, id string) (model.SavedReport, error) {
	report, ok := s.reports.Get(ctx, id)
	if !ok {
		return model.SavedReport{}, ErrReportNotFound
	}
	return report, nil
}

// Dashboard derives the dashboard summary from the history
func (s *Session) Dashboard(ctx context.Context) dashboard.Summary {
	return dashboard.Summarize(s.reports.LoadAll(ctx))
}

// Insights returns the cached insights while fresh, otherwise asks the
// model and caches the merged result. refresh skips the cache.
func (s *Session) Insights(ctx context.Context, refresh bool) (model.InsightsView, error) {
	if !refresh {
		if view, ok := s.insights.Get(ctx, s.userID); ok {
			return *view, nil
		}
	}

	reports := s.reports.LoadAll(ctx)
	assessments := assessmentsFrom(reports, historyAssessments)

	req, err := s.insightsRequest(reports, assessments)
	if err != nil {
		return model.InsightsView{}, err
	}

	ins, err := s.api.GenerateInsights(ctx, req)
	if err != nil {
		return model.InsightsView{}, err
	}

	view := dashboard.MergeInsights(*ins, s.actions.Completed(ctx), assessments)
	if err := s.insights.Put(ctx, s.userID, view); err != nil {
		s.logger.Warn("failed to cache insights", zap.Error(err))
	}
	return view, nil
}

// ToggleAction flips one action-plan item of the cached insights and
// persists the completed ids
func (s *Session) ToggleAction(ctx context.Context, actionID string) (model.InsightsView, error) {
	view, ok := s.insights.Get(ctx, s.userID)
	if !ok {
		return model.InsightsView{}, ErrNoInsights
	}

	plan, err := s.actions.Toggle(ctx, view.ActionPlan, actionID)
	if err != nil {
		return *view, err
	}
	view.ActionPlan = plan

	if err := s.insights.Put(ctx, s.userID, *view); err != nil {
		s.logger.Warn("failed to cache insights", zap.Error(err))
	}
	return *view, nil
}

func (s *Session) insightsRequest(reports []model.SavedReport, assessments []model.Assessment) (model.InsightsRequest, error) {
	profile, err := json.Marshal(s.Profile().Profile)
	if err != nil {
		return model.InsightsRequest{}, fmt.Errorf("failed to encode profile: %w", err)
	}

	req := model.InsightsRequest{
		UserProfile:   profile,
		Assessments:   []json.RawMessage{},
		RecentReports: []json.RawMessage{},
	}
	for i, a := range assessments {
		if i == insightsAssessments {
			break
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return model.InsightsRequest{}, fmt.Errorf("failed to encode assessment: %w", err)
		}
		req.Assessments = append(req.Assessments, raw)
	}
	for i, r := range reports {
		if i == insightsReports {
			break
		}
		// The analysis payload is large and already summarised.
		r.FullData = nil
		raw, err := json.Marshal(r)
		if err != nil {
			return model.InsightsRequest{}, fmt.Errorf("failed to encode report: %w", err)
		}
		req.RecentReports = append(req.RecentReports, raw)
	}
	return req, nil
}

// newReportID returns the creation time in milliseconds
func (s *Session) newReportID() string {
	return strconv.FormatInt(s.now().UnixMilli(), 10)
}

func symptomTitle(symptoms string) string {
	runes := []rune(symptoms)
	if len(runes) > symptomTitleChars {
		return "Symptom Check: " + string(runes[:symptomTitleChars]) + "..."
	}
	return "Symptom Check: " + symptoms
}

func symptomSummary(a *model.SymptomAnalysis) string {
	switch {
	case strings.TrimSpace(a.Recommendation) != "":
		return a.Recommendation
	case len(a.PossibleConditions) > 0:
		return "Possible: " + a.PossibleConditions[0].Name
	default:
		return analysisComplete
	}
}

func labSummary(a *model.ReportAnalysis) string {
	switch {
	case strings.TrimSpace(a.AIAnalysis.Recommendations) != "":
		return a.AIAnalysis.Recommendations
	case strings.TrimSpace(a.TriageStatus.AlertMessage) != "":
		return a.TriageStatus.AlertMessage
	default:
		return analysisComplete
	}
}

// remediesRequest describes a report for the remedies prompt
func remediesRequest(r model.SavedReport) model.RemediesRequest {
	req := model.RemediesRequest{
		Diagnosis: r.Summary,
		RiskLevel: r.RiskLevel,
	}
	if r.TopCondition != "" {
		req.Conditions = []string{r.TopCondition}
	}
	if r.Type == model.ReportTypeLabReport && r.FullData != nil && len(r.FullData.Analysis) > 0 {
		var analysis model.ReportAnalysis
		if err := json.Unmarshal(r.FullData.Analysis, &analysis); err == nil {
			req.VitalSigns = analysis.VitalSigns
		}
	}
	return req
}

// assessmentsFrom turns the newest symptom checks into assessments,
// newest first
func assessmentsFrom(reports []model.SavedReport, limit int) []model.Assessment {
	out := make([]model.Assessment, 0, limit)
	for _, r := range reports {
		if len(out) == limit {
			break
		}
		if r.Type != model.ReportTypeSymptomCheck {
			continue
		}
		severity := dashboard.SeverityOf(r)
		created := r.Date.Time
		out = append(out, model.Assessment{
			ID:                  r.ID,
			SymptomsDescription: strings.TrimPrefix(r.Title, "Symptom Check: "),
			TriageLevel:         string(model.TriageFromRiskLevel(model.RiskLevel(r.RiskLevel))),
			SeverityScore:       &severity,
			CreatedDate:         &created,
		})
	}
	return out
}
