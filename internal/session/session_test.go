package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docmate-health/docmate/internal/reportcache"
	"github.com/docmate-health/docmate/pkg/client"
	"github.com/docmate-health/docmate/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// MockAPI is a mock implementation of API
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) AnalyzeSymptoms(ctx context.Context, req model.SymptomsRequest) (*model.SymptomAnalysis, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SymptomAnalysis), args.Error(1)
}

func (m *MockAPI) AnalyzeReport(ctx context.Context, report client.File) (*model.ReportAnalysis, error) {
	args := m.Called(ctx, report)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReportAnalysis), args.Error(1)
}

func (m *MockAPI) SuggestRemedies(ctx context.Context, req model.RemediesRequest) (*model.RemediesResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RemediesResponse), args.Error(1)
}

func (m *MockAPI) GenerateInsights(ctx context.Context, req model.InsightsRequest) (*model.HealthInsights, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.HealthInsights), args.Error(1)
}

func (m *MockAPI) GetProfile(ctx context.Context, userID string) (*model.ProfileEnvelope, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProfileEnvelope), args.Error(1)
}

func (m *MockAPI) SaveProfile(ctx context.Context, userID string, env model.ProfileEnvelope) (*model.ProfileEnvelope, error) {
	args := m.Called(ctx, userID, env)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProfileEnvelope), args.Error(1)
}

var fixedNow = time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, api API) *Session {
	t.Helper()
	s, err := New("user-1", api, reportcache.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestNew_RequiresUser(t *testing.T) {
	_, err := New(" ", new(MockAPI), reportcache.NewMemoryStore(), nil)
	assert.Error(t, err)
}

func TestLoadProfile(t *testing.T) {
	t.Run("missing profile keeps defaults", func(t *testing.T) {
		api := new(MockAPI)
		api.On("GetProfile", mock.Anything, "user-1").Return(nil, &client.APIError{Status: 404})
		s := newTestSession(t, api)

		env, err := s.LoadProfile(context.Background())
		require.NoError(t, err)
		assert.False(t, env.Complete)
		assert.Equal(t, []string{}, env.Profile.Allergies)
	})

	t.Run("stored profile replaces local", func(t *testing.T) {
		api := new(MockAPI)
		api.On("GetProfile", mock.Anything, "user-1").Return(&model.ProfileEnvelope{
			Profile:  model.UserProfile{FullName: "Asha", Age: "34", Gender: "Female"},
			Complete: true,
		}, nil)
		s := newTestSession(t, api)

		_, err := s.LoadProfile(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Asha", s.Profile().Profile.FullName)
	})

	t.Run("transport failure", func(t *testing.T) {
		api := new(MockAPI)
		api.On("GetProfile", mock.Anything, "user-1").Return(nil, errors.New("connection refused"))
		s := newTestSession(t, api)

		_, err := s.LoadProfile(context.Background())
		assert.Error(t, err)
	})
}

func TestSaveProfile_RollsBackOnFailure(t *testing.T) {
	api := new(MockAPI)
	original := model.ProfileEnvelope{Profile: model.UserProfile{FullName: "Asha", Age: "34", Gender: "Female"}, Complete: true}
	api.On("GetProfile", mock.Anything, "user-1").Return(&original, nil)
	api.On("SaveProfile", mock.Anything, "user-1", mock.Anything).Return(nil, errors.New("503 Service Unavailable")).Once()

	s := newTestSession(t, api)
	_, err := s.LoadProfile(context.Background())
	require.NoError(t, err)

	got, err := s.SaveProfile(context.Background(), model.ProfileEnvelope{Profile: model.UserProfile{FullName: "Someone Else"}})
	require.Error(t, err)
	assert.Equal(t, "Asha", got.Profile.FullName)
	assert.Equal(t, original, s.Profile())
}

func TestSaveProfile_CommitsServerCopy(t *testing.T) {
	api := new(MockAPI)
	stored := &model.ProfileEnvelope{Profile: model.UserProfile{FullName: "Ravi", Age: "41", Gender: "Male"}, Complete: true}
	api.On("SaveProfile", mock.Anything, "user-1", mock.MatchedBy(func(env model.ProfileEnvelope) bool {
		return env.Complete && env.Profile.FullName == "Ravi "
	})).Return(stored, nil).Once()

	s := newTestSession(t, api)
	got, err := s.SaveProfile(context.Background(), model.ProfileEnvelope{Profile: model.UserProfile{FullName: "Ravi ", Age: "41", Gender: "Male"}})
	require.NoError(t, err)
	assert.Equal(t, "Ravi", got.Profile.FullName)
	assert.Equal(t, *stored, s.Profile())
	api.AssertExpectations(t)
}

func TestCheckSymptoms_RecordsReport(t *testing.T) {
	api := new(MockAPI)
	api.On("AnalyzeSymptoms", mock.Anything, mock.MatchedBy(func(req model.SymptomsRequest) bool {
		return req.Symptoms == "severe headache and nausea since morning" && len(req.UserProfile) > 0
	})).Return(&model.SymptomAnalysis{
		RiskLevel:          model.RiskLevelModerate,
		RiskScore:          5,
		PossibleConditions: []model.PossibleCondition{{Name: "Migraine", Probability: 70}},
		WarningSigns:       []string{"Stiff neck"},
	}, nil).Once()

	s := newTestSession(t, api)
	_, report, err := s.CheckSymptoms(context.Background(), "  severe headache and nausea since morning ", model.VitalsInput{Temperature: "98.6"})
	require.NoError(t, err)

	assert.Equal(t, "1710410400000", report.ID)
	assert.Equal(t, "Symptom Check: severe headache and ...", report.Title)
	assert.Equal(t, "Possible: Migraine", report.Summary)
	assert.Equal(t, "Moderate", report.RiskLevel)
	assert.Equal(t, "Migraine", report.TopCondition)
	require.NotNil(t, report.SeverityScore)
	assert.Equal(t, 5.0, *report.SeverityScore)
	assert.False(t, report.HasRemedies())

	reports, stats := s.Reports(context.Background(), "")
	require.Len(t, reports, 1)
	assert.Equal(t, report.ID, reports[0].ID)
	assert.Equal(t, 1, stats.Total)

	summary := s.Dashboard(context.Background())
	assert.Equal(t, 60.0, summary.HealthScore)
	assert.Equal(t, "Fair", summary.Sleep.Label)
}

func TestCheckSymptoms_Errors(t *testing.T) {
	api := new(MockAPI)
	api.On("AnalyzeSymptoms", mock.Anything, mock.Anything).Return(nil, &client.APIError{Status: 500, Message: "Failed to analyze symptoms"}).Once()
	s := newTestSession(t, api)

	_, _, err := s.CheckSymptoms(context.Background(), "   ", model.VitalsInput{})
	assert.Error(t, err)

	_, _, err = s.CheckSymptoms(context.Background(), "cough", model.VitalsInput{})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)

	reports, _ := s.Reports(context.Background(), "")
	assert.Empty(t, reports, "failed checks are not recorded")
}

func TestSymptomSummaryAndTitle(t *testing.T) {
	assert.Equal(t, "Symptom Check: cough", symptomTitle("cough"))
	assert.Equal(t, "Symptom Check: 12345678901234567890", symptomTitle("12345678901234567890"))
	assert.Equal(t, "Symptom Check: 12345678901234567890...", symptomTitle("123456789012345678901"))

	assert.Equal(t, "Rest", symptomSummary(&model.SymptomAnalysis{Recommendation: "Rest"}))
	assert.Equal(t, "Analysis Complete", symptomSummary(&model.SymptomAnalysis{}))
}

func labAnalysis() *model.ReportAnalysis {
	return &model.ReportAnalysis{
		PatientInfo:  model.PatientInfo{Name: "Ravi"},
		TriageStatus: model.TriageStatus{Level: model.TriageLevelDoctorVisit, SeverityScore: 6, AlertMessage: "See a doctor this week"},
		VitalSigns:   []model.VitalSign{{Label: "Hemoglobin", Value: "10.1 g/dL", Status: "Low"}},
		AIAnalysis: model.ReportFindings{
			WarningSigns:       []string{"Fatigue"},
			PossibleConditions: []model.ReportCondition{{Condition: "Anemia", Probability: "High"}},
		},
	}
}

func TestAnalyzeReport_Defaults(t *testing.T) {
	api := new(MockAPI)
	api.On("AnalyzeReport", mock.Anything, mock.Anything).Return(labAnalysis(), nil)
	s := newTestSession(t, api)

	_, report, err := s.AnalyzeReport(context.Background(), client.File{Name: "cbc.png", Data: []byte("x")}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Lab Report", report.Title)
	assert.Equal(t, "2024-03-14", report.Date.Format("2006-01-02"))
	assert.Equal(t, "Doctor Visit", report.RiskLevel)
	assert.Equal(t, "See a doctor this week", report.Summary)
	assert.Equal(t, "Anemia", report.TopCondition)
	assert.Equal(t, model.ReportTypeLabReport, report.Type)

	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, report, err = s.AnalyzeReport(context.Background(), client.File{Data: []byte("x")}, "CBC January", &date)
	require.NoError(t, err)
	assert.Equal(t, "CBC January", report.Title)
	assert.Equal(t, "2024-01-02", report.Date.Format("2006-01-02"))
}

func TestAnalyzeReport_MissingSeverityFallsBackToLevel(t *testing.T) {
	analysis := labAnalysis()
	analysis.TriageStatus = model.TriageStatus{Level: model.TriageLevelEmergency, AlertMessage: "Go to the ER"}
	api := new(MockAPI)
	api.On("AnalyzeReport", mock.Anything, mock.Anything).Return(analysis, nil)
	s := newTestSession(t, api)

	_, report, err := s.AnalyzeReport(context.Background(), client.File{Data: []byte("x")}, "", nil)
	require.NoError(t, err)
	assert.Nil(t, report.SeverityScore)

	summary := s.Dashboard(context.Background())
	assert.Equal(t, 28.0, summary.HealthScore)
	assert.Equal(t, "Disturbed", summary.Sleep.Label)
	require.Len(t, summary.Trend, 1)
	assert.Equal(t, 9.0, summary.Trend[0].SeverityScore)
}

func TestAnalyzeReport_KeepsExplicitSeverity(t *testing.T) {
	api := new(MockAPI)
	api.On("AnalyzeReport", mock.Anything, mock.Anything).Return(labAnalysis(), nil)
	s := newTestSession(t, api)

	_, report, err := s.AnalyzeReport(context.Background(), client.File{Data: []byte("x")}, "", nil)
	require.NoError(t, err)
	require.NotNil(t, report.SeverityScore)
	assert.Equal(t, 6.0, *report.SeverityScore)
}

func TestFetchRemedies(t *testing.T) {
	remedies := &model.RemediesResponse{Disclaimer: "Not medical advice", Remedies: model.RemedySet{Home: []string{"Iron-rich diet"}}}

	api := new(MockAPI)
	api.On("AnalyzeReport", mock.Anything, mock.Anything).Return(labAnalysis(), nil)
	api.On("SuggestRemedies", mock.Anything, mock.MatchedBy(func(req model.RemediesRequest) bool {
		return req.Diagnosis == "See a doctor this week" &&
			req.RiskLevel == "Doctor Visit" &&
			len(req.VitalSigns) == 1 &&
			req.VitalSigns[0].Label == "Hemoglobin"
	})).Return(remedies, nil).Once()

	s := newTestSession(t, api)
	_, report, err := s.AnalyzeReport(context.Background(), client.File{Data: []byte("x")}, "", nil)
	require.NoError(t, err)

	first, err := s.FetchRemedies(context.Background(), report.ID)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.False(t, first.Fallback)
	assert.Equal(t, *remedies, first.Remedies)

	second, err := s.FetchRemedies(context.Background(), report.ID)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, *remedies, second.Remedies)
	api.AssertNumberOfCalls(t, "SuggestRemedies", 1)

	_, err = s.FetchRemedies(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestFetchRemedies_FallbackIsNotStored(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	api := new(MockAPI)
	api.On("AnalyzeReport", mock.Anything, mock.Anything).Return(labAnalysis(), nil)
	api.On("SuggestRemedies", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()

	s, err := New("user-1", api, reportcache.NewMemoryStore(), zap.New(core))
	require.NoError(t, err)

	_, report, err := s.AnalyzeReport(context.Background(), client.File{Data: []byte("x")}, "", nil)
	require.NoError(t, err)

	got, err := s.FetchRemedies(context.Background(), report.ID)
	require.NoError(t, err)
	assert.True(t, got.Fallback)
	assert.Equal(t, model.FallbackRemedies(), got.Remedies)

	stored, err := s.Report(context.Background(), report.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasRemedies())
	assert.Equal(t, 1, logs.FilterMessage("failed to fetch remedies, using fallback").Len())
}

func TestInsights_CachesAndMerges(t *testing.T) {
	api := new(MockAPI)
	api.On("AnalyzeSymptoms", mock.Anything, mock.Anything).Return(&model.SymptomAnalysis{
		RiskLevel: model.RiskLevelHigh, RiskScore: 7, Recommendation: "See a doctor",
	}, nil)

	var sent model.InsightsRequest
	api.On("GenerateInsights", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(model.InsightsRequest) }).
		Return(&model.HealthInsights{
			Score:      72,
			RiskLevel:  "Moderate",
			Summary:    "Mostly stable",
			ActionPlan: []model.ActionItem{{ID: "a1", Task: "Walk 20 minutes"}, {ID: "a2", Task: "Sleep by 11pm"}},
		}, nil).Once()

	s := newTestSession(t, api)
	ctx := context.Background()
	_, _, err := s.CheckSymptoms(ctx, "chest tightness", model.VitalsInput{})
	require.NoError(t, err)

	view, err := s.Insights(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "fair", view.Band)
	require.Len(t, view.History, 1)
	assert.Equal(t, 3.0, view.History[0].Score)
	assert.Len(t, sent.Assessments, 1)
	assert.Len(t, sent.RecentReports, 1)
	assert.NotContains(t, string(sent.RecentReports[0]), "fullData")

	cached, err := s.Insights(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, view.Summary, cached.Summary)
	api.AssertNumberOfCalls(t, "GenerateInsights", 1)

	toggled, err := s.ToggleAction(ctx, "a2")
	require.NoError(t, err)
	assert.False(t, toggled.ActionPlan[0].Completed)
	assert.True(t, toggled.ActionPlan[1].Completed)

	again, err := s.Insights(ctx, false)
	require.NoError(t, err)
	assert.True(t, again.ActionPlan[1].Completed)
}

func TestInsights_RefreshKeepsCompletedActions(t *testing.T) {
	plan := []model.ActionItem{{ID: "a1", Task: "Walk"}}
	api := new(MockAPI)
	api.On("GenerateInsights", mock.Anything, mock.Anything).Return(&model.HealthInsights{Score: 90, ActionPlan: plan}, nil)

	s := newTestSession(t, api)
	ctx := context.Background()

	_, err := s.ToggleAction(ctx, "a1")
	assert.ErrorIs(t, err, ErrNoInsights)

	_, err = s.Insights(ctx, false)
	require.NoError(t, err)
	_, err = s.ToggleAction(ctx, "a1")
	require.NoError(t, err)

	view, err := s.Insights(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "good", view.Band)
	assert.True(t, view.ActionPlan[0].Completed)
	api.AssertNumberOfCalls(t, "GenerateInsights", 2)
}

func TestAssessmentsFrom(t *testing.T) {
	high := 8.0
	reports := []model.SavedReport{
		{ID: "3", Title: "Symptom Check: fever", RiskLevel: "High", SeverityScore: &high, Type: model.ReportTypeSymptomCheck},
		{ID: "2", Title: "CBC", RiskLevel: "Low Risk", Type: model.ReportTypeLabReport},
		{ID: "1", Title: "Symptom Check: cough", RiskLevel: "Critical", Type: model.ReportTypeSymptomCheck},
	}

	got := assessmentsFrom(reports, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "fever", got[0].SymptomsDescription)
	assert.Equal(t, "Doctor Visit", got[0].TriageLevel)
	assert.Equal(t, 8.0, *got[0].SeverityScore)
	assert.Equal(t, "Emergency", got[1].TriageLevel)
	assert.Equal(t, 9.0, *got[1].SeverityScore)

	assert.Len(t, assessmentsFrom(reports, 1), 1)
}
