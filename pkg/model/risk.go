package model

import "strings"

// RiskLevel is the four-step scale returned by symptom analysis.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "Low"
	RiskLevelModerate RiskLevel = "Moderate"
	RiskLevelHigh     RiskLevel = "High"
	RiskLevelCritical RiskLevel = "Critical"
)

// Valid reports whether r is one of the known risk levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLevelLow, RiskLevelModerate, RiskLevelHigh, RiskLevelCritical:
		return true
	}
	return false
}

// TriageLevel is the three-step scale returned by lab report analysis.
type TriageLevel string

const (
	TriageLevelEmergency   TriageLevel = "Emergency"
	TriageLevelDoctorVisit TriageLevel = "Doctor Visit"
	TriageLevelLowRisk     TriageLevel = "Low Risk"
)

// Valid reports whether t is one of the known triage levels.
func (t TriageLevel) Valid() bool {
	switch t {
	case TriageLevelEmergency, TriageLevelDoctorVisit, TriageLevelLowRisk:
		return true
	}
	return false
}

// RiskLevelFromTriage maps a triage level onto the risk scale.
// Unknown triage levels map to Low.
func RiskLevelFromTriage(t TriageLevel) RiskLevel {
	switch t {
	case TriageLevelEmergency:
		return RiskLevelCritical
	case TriageLevelDoctorVisit:
		return RiskLevelHigh
	default:
		return RiskLevelLow
	}
}

// TriageFromRiskLevel maps a risk level onto the triage scale. Moderate
// and High both advise a doctor visit.
func TriageFromRiskLevel(r RiskLevel) TriageLevel {
	switch r {
	case RiskLevelCritical:
		return TriageLevelEmergency
	case RiskLevelHigh, RiskLevelModerate:
		return TriageLevelDoctorVisit
	default:
		return TriageLevelLowRisk
	}
}

// Inferred severity scores for reports that carry only a label.
const (
	SeverityUrgent   = 9.0
	SeverityElevated = 6.0
	SeverityBaseline = 2.0
)

// SeverityForLabel infers a severity score from a stored risk label, which
// may come from either vocabulary.
func SeverityForLabel(label string) float64 {
	switch strings.TrimSpace(label) {
	case string(TriageLevelEmergency), string(RiskLevelCritical):
		return SeverityUrgent
	case string(TriageLevelDoctorVisit), string(RiskLevelHigh):
		return SeverityElevated
	default:
		return SeverityBaseline
	}
}
