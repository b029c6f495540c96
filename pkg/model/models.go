package model

import (
	"encoding/json"
	"strings"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// UserProfile holds the health profile a user maintains about themselves
type UserProfile struct {
	FullName  string `json:"fullName"`
	Age       string `json:"age"`
	Gender    string `json:"gender"`
	BloodType string `json:"bloodType"`
	Weight    string `json:"weight"`
	Height    string `json:"height"`

	PastConditions     []string `json:"pastConditions"`
	Allergies          []string `json:"allergies"`
	CurrentMedications []string `json:"currentMedications"`

	SmokingStatus      string `json:"smokingStatus"`
	AlcoholConsumption string `json:"alcoholConsumption"`
	ExerciseLevel      string `json:"exerciseLevel"`

	EmergencyContactName         string `json:"emergencyContactName"`
	EmergencyContactPhone        string `json:"emergencyContactPhone"`
	EmergencyContactRelationship string `json:"emergencyContactRelationship"`
}

// DefaultUserProfile returns an empty profile with non-nil list fields.
func DefaultUserProfile() UserProfile {
	return UserProfile{
		PastConditions:     []string{},
		Allergies:          []string{},
		CurrentMedications: []string{},
	}
}

// Complete reports whether the basic identifying fields are filled in.
func (p UserProfile) Complete() bool {
	return strings.TrimSpace(p.FullName) != "" &&
		strings.TrimSpace(p.Age) != "" &&
		strings.TrimSpace(p.Gender) != ""
}

// UserSettings holds the user's consent flags
type UserSettings struct {
	LocationSharingConsent bool `json:"locationSharingConsent"`
	AutoTriggerConsent     bool `json:"autoTriggerConsent"`
}

// ProfileEnvelope is the request and response body of the profile routes
type ProfileEnvelope struct {
	Profile   UserProfile  `json:"profile"`
	Settings  UserSettings `json:"settings"`
	Email     string       `json:"email,omitempty"`
	Complete  bool         `json:"complete"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
}

// ReportType identifies which analysis flow produced a saved report
type ReportType string

const (
	ReportTypeSymptomCheck ReportType = "Symptom Check"
	ReportTypeLabReport    ReportType = "Lab Report"
)

// SavedReport is one entry of the local report history
type SavedReport struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	Date          openapi_types.Date `json:"date"`
	RiskLevel     string             `json:"risk_level"`
	SeverityScore *float64           `json:"severity_score,omitempty"`
	Summary       string             `json:"summary"`
	Type          ReportType         `json:"type"`
	TopCondition  string             `json:"top_condition,omitempty"`
	WarningSigns  []string           `json:"warning_signs,omitempty"`
	FullData      *ReportData        `json:"fullData,omitempty"`
}

// HasRemedies reports whether remedies were already attached.
func (r SavedReport) HasRemedies() bool {
	return r.FullData != nil && r.FullData.Remedies != nil
}

// ReportData is the full AI payload kept alongside a saved report
type ReportData struct {
	Analysis json.RawMessage   `json:"analysis,omitempty"`
	Remedies *RemediesResponse `json:"remedies"`
}

// VitalsInput is the vitals form submitted with a symptom check
type VitalsInput struct {
	Temperature string `json:"temp"`
	HeartRate   string `json:"hr"`
	BPSystolic  string `json:"bpSys"`
	BPDiastolic string `json:"bpDia"`
	SpO2        string `json:"spo2"`
}

// SymptomsRequest is the body of POST /api/analyze-symptoms
type SymptomsRequest struct {
	Symptoms    string          `json:"symptoms"`
	Vitals      json.RawMessage `json:"vitals,omitempty"`
	UserProfile json.RawMessage `json:"userProfile,omitempty"`
}

// PossibleCondition is one ranked condition of a symptom analysis
type PossibleCondition struct {
	Name        string `json:"name"`
	Probability Score  `json:"probability"`
}

// SymptomAnalysis is the response of POST /api/analyze-symptoms
type SymptomAnalysis struct {
	RiskLevel          RiskLevel           `json:"risk_level"`
	RiskScore          Score               `json:"risk_score"`
	PossibleConditions []PossibleCondition `json:"possible_conditions"`
	Recommendation     string              `json:"recommendation"`
	WarningSigns       []string            `json:"warning_signs"`
}

// PatientInfo is the patient block extracted from a lab report
type PatientInfo struct {
	Name      string `json:"name"`
	Age       any    `json:"age"`
	Gender    string `json:"gender"`
	BloodType string `json:"blood_type"`
}

// TriageStatus is the urgency block of a lab report analysis
type TriageStatus struct {
	Level         TriageLevel `json:"level"`
	SeverityScore Score       `json:"severity_score"`
	ColorCode     string      `json:"color_code"`
	AlertMessage  string      `json:"alert_message"`
}

// VitalSign is one measured value extracted from a lab report
type VitalSign struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Status string `json:"status"`
}

// ReportCondition is one condition suggested by a lab report analysis
type ReportCondition struct {
	Condition   string `json:"condition"`
	Probability string `json:"probability"`
	Description string `json:"description"`
}

// ReportFindings is the interpretation block of a lab report analysis
type ReportFindings struct {
	WarningSigns       []string          `json:"warning_signs"`
	PossibleConditions []ReportCondition `json:"possible_conditions"`
	Recommendations    string            `json:"recommendations"`
}

// ReportAnalysis is the response of POST /api/analyze-report
type ReportAnalysis struct {
	PatientInfo  PatientInfo    `json:"patient_info"`
	TriageStatus TriageStatus   `json:"triage_status"`
	VitalSigns   []VitalSign    `json:"vital_signs"`
	AIAnalysis   ReportFindings `json:"ai_analysis"`
}

// RemediesRequest is the body of POST /api/suggest-remedies
type RemediesRequest struct {
	Diagnosis  string      `json:"diagnosis"`
	RiskLevel  string      `json:"risk_level,omitempty"`
	VitalSigns []VitalSign `json:"vital_signs,omitempty"`
	Conditions []string    `json:"conditions,omitempty"`
}

// RemedySet groups supportive suggestions by tradition
type RemedySet struct {
	Home      []string `json:"home"`
	Ayurvedic []string `json:"ayurvedic"`
	Natural   []string `json:"natural"`
}

// RemediesResponse is the response of POST /api/suggest-remedies
type RemediesResponse struct {
	Disclaimer  string          `json:"disclaimer"`
	VitalAdvice json.RawMessage `json:"vital_advice,omitempty"`
	Remedies    RemedySet       `json:"remedies"`
}

// FallbackRemedies is shown when remedies cannot be fetched.
func FallbackRemedies() RemediesResponse {
	return RemediesResponse{
		Disclaimer: "Personalised remedies are unavailable right now. These general suggestions do not replace advice from a doctor.",
		Remedies: RemedySet{
			Home:      []string{"Rest and stay well hydrated", "Eat light, home-cooked meals"},
			Ayurvedic: []string{"Warm water with tulsi and ginger"},
			Natural:   []string{"Get 7-8 hours of sleep", "Take a short walk in fresh air if you feel able"},
		},
	}
}

// ChatTurn is one prior message of a conversation
type ChatTurn struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Message           string     `json:"message"`
	History           []ChatTurn `json:"history"`
	PreferredLanguage string     `json:"preferred_language,omitempty"`
}

// ChatResponse is the response of the chat routes
type ChatResponse struct {
	Response     string `json:"response"`
	LanguageCode string `json:"language_code"`
}

// Assessment is a past symptom assessment used for insights
type Assessment struct {
	ID                  string     `json:"id,omitempty"`
	SymptomsDescription string     `json:"symptoms_description,omitempty"`
	TriageLevel         string     `json:"triage_level,omitempty"`
	SeverityScore       *float64   `json:"severity_score,omitempty"`
	CreatedDate         *time.Time `json:"created_date,omitempty"`
}

// InsightsRequest is the body of POST /api/generate-health-insights
type InsightsRequest struct {
	UserProfile   json.RawMessage   `json:"userProfile"`
	Assessments   []json.RawMessage `json:"assessments"`
	RecentReports []json.RawMessage `json:"recentReports"`
}

// RiskPrediction is one forward-looking risk in the insights payload
type RiskPrediction struct {
	Condition           string   `json:"condition"`
	Timeline            string   `json:"timeline"`
	RiskLevel           string   `json:"riskLevel"`
	Reason              string   `json:"reason"`
	ContributingFactors []string `json:"contributingFactors"`
}

// ActionItem is one step of the insights action plan
type ActionItem struct {
	ID        string `json:"id"`
	Task      string `json:"task"`
	Category  string `json:"category"`
	Completed bool   `json:"completed"`
}

// ScorePoint is one point of the health history chart
type ScorePoint struct {
	Date  string  `json:"date"`
	Score float64 `json:"score"`
}

// HealthInsights is the response of POST /api/generate-health-insights
type HealthInsights struct {
	Score       Score            `json:"score"`
	RiskLevel   string           `json:"riskLevel"`
	Summary     string           `json:"summary"`
	Predictions []RiskPrediction `json:"predictions"`
	ActionPlan  []ActionItem     `json:"actionPlan"`
	History     []ScorePoint     `json:"history"`
}

// InsightsView is the insights payload after merging local state
type InsightsView struct {
	HealthInsights
	Band string `json:"band"`
}

// ReportPDFRequest is the body of POST /api/reports/pdf
type ReportPDFRequest struct {
	Report  SavedReport  `json:"report"`
	Profile *UserProfile `json:"profile,omitempty"`
}

// HealthStatus is the response of GET /health
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database,omitempty"`
}

// Error codes carried in ErrorResponse
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodeRateLimited = "RATE_LIMITED"
	CodeUpstream    = "UPSTREAM_ERROR"
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
)

// ErrorResponse is the error envelope returned by every route
type ErrorResponse struct {
	Error   string  `json:"error"`
	Code    string  `json:"code"`
	Details *string `json:"details,omitempty"`
}
