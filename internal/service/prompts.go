package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docmate-health/docmate/pkg/model"
)

// assistantPersona is the system instruction for both chat routes.
const assistantPersona = `Role: You are 'Viraj', a calm and empathetic AI health assistant for rural families.
Tone: warm, respectful and unhurried, like a knowledgeable elder brother or a kind family doctor.

Language rules:
1. If a preferred language is given, always reply in that language, whatever language the user writes in.
2. Otherwise detect the user's language and dialect and reply in the same one and in its native script
   (Hindi in Devanagari, Telugu in Telugu script, Tamil in Tamil script, Hinglish stays Hinglish).
3. Reply in English only when English is preferred, or when the user writes English and nothing is preferred.

Emergency rule: if the user mentions chest pain, unconsciousness, bleeding, difficulty breathing or severe
trauma, stop any diagnosis and tell them to go to a hospital immediately.

Always answer with a JSON object of this exact shape:
{
  "response": "your reply in the target language and script",
  "language_code": "BCP-47 code such as hi-IN, te-IN, ta-IN, en-IN, mr-IN, bn-IN, kn-IN or ml-IN"
}`

// audioInstruction accompanies an uploaded voice message.
const audioInstruction = `Listen to this audio and identify the spoken language. Answer the user's question as Viraj in
exactly the same language and script. Return JSON with "response" and "language_code".`

// buildChatSystemPrompt appends the preferred language rule to the persona.
func buildChatSystemPrompt(preferredLanguage string) string {
	lang := strings.TrimSpace(preferredLanguage)
	if lang == "" {
		return assistantPersona
	}
	return assistantPersona + fmt.Sprintf("\n\nUSER PREFERRED LANGUAGE: %s. YOU MUST REPLY IN THIS LANGUAGE.", lang)
}

// buildSymptomsPrompt creates the prompt for a symptom triage
func buildSymptomsPrompt(req model.SymptomsRequest) string {
	return fmt.Sprintf(`You are an expert medical triage assistant. Analyze the following patient data.

Profile: %s
Symptoms: %s
Vitals: %s

Return a JSON object ONLY, with this structure:
{
  "risk_level": "Low" | "Moderate" | "High" | "Critical",
  "risk_score": number from 1 to 10,
  "possible_conditions": [{ "name": string, "probability": number }],
  "recommendation": string,
  "warning_signs": string[]
}`, rawOrNull(req.UserProfile), strings.TrimSpace(req.Symptoms), rawOrNull(req.Vitals))
}

// reportPrompt drives OCR and triage of an uploaded lab report.
const reportPrompt = `You are DocMate AI, a critical care specialist and triage engine. Read the attached medical
report (image or document) and produce a structured risk assessment.

Flag every abnormality. If a value is even slightly outside its normal range, report it.

1. Extraction
   - Extract every vital sign and patient detail visible in the report.
   - If the scan is unclear, infer from context and assume the worse case when ambiguous.
   - Pay attention to units (mg/dL versus mmol/L).

2. Triage
   - Emergency (Red): systolic BP < 90 or > 180; diastolic BP < 60 or > 110; heart rate < 50 or > 110;
     temperature > 39.5°C (103°F) or < 35°C (95°F); SpO2 < 94%; or keywords such as chest pain,
     unconscious, severe breathing difficulty, massive bleeding, critical, emergency.
   - Doctor Visit (Orange): temperature 38°C to 39.5°C; pain score 4 to 7; abnormal lab values such as
     high glucose or low hemoglobin; or keywords such as abdominal pain, persistent fever, infection.
   - Low Risk (Green): only when every vital is within the standard normal range.

3. Output: a JSON object exactly matching
{
  "patient_info": {
    "name": "string or 'Unknown'",
    "age": "number or 0",
    "gender": "string or 'Unknown'",
    "blood_type": "string or 'Unknown'"
  },
  "triage_status": {
    "level": "Emergency" | "Doctor Visit" | "Low Risk",
    "severity_score": "number from 1 to 10",
    "color_code": "Red" | "Orange" | "Green",
    "alert_message": "string, e.g. 'IMMEDIATE ACTION REQUIRED: Call 112'"
  },
  "vital_signs": [
    { "label": "e.g. Heart Rate", "value": "e.g. 120 bpm", "status": "Critical" | "Warning" | "Normal" }
  ],
  "ai_analysis": {
    "warning_signs": ["specific abnormalities found"],
    "possible_conditions": [
      { "condition": "string", "probability": "High" | "Medium" | "Low", "description": "short explanation" }
    ],
    "recommendations": "clear, actionable advice"
  }
}`

// buildRemediesPrompt creates the prompt for supportive remedies
func buildRemediesPrompt(req model.RemediesRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest supportive, non-clinical remedies for a patient with this assessment.\n\nDiagnosis: %s\n", strings.TrimSpace(req.Diagnosis))
	if req.RiskLevel != "" {
		fmt.Fprintf(&b, "Risk level: %s\n", req.RiskLevel)
	}
	if len(req.Conditions) > 0 {
		fmt.Fprintf(&b, "Possible conditions: %s\n", strings.Join(req.Conditions, ", "))
	}
	if len(req.VitalSigns) > 0 {
		b.WriteString("Vital signs:\n")
		for _, v := range req.VitalSigns {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", v.Label, v.Value, v.Status)
		}
	}
	b.WriteString(`
Give 3 to 5 suggestions per category. Include advice for any abnormal vital sign.
Return a JSON object ONLY, with this structure:
{
  "disclaimer": "one sentence reminding the user these do not replace a doctor",
  "vital_advice": [{ "vital": string, "advice": string }],
  "remedies": {
    "home": string[],
    "ayurvedic": string[],
    "natural": string[]
  }
}`)
	return b.String()
}

// buildInsightsPrompt creates the prompt for the predictive health overview
func buildInsightsPrompt(req model.InsightsRequest) string {
	return fmt.Sprintf(`You are a preventive health analyst. Using the profile, recent symptom assessments and saved
reports below, estimate the user's overall health and upcoming risks.

Profile: %s
Recent assessments: %s
Recent reports: %s

Return a JSON object ONLY, with this structure:
{
  "score": number from 0 to 100 (higher is healthier),
  "riskLevel": "Low" | "Moderate" | "High",
  "summary": "two or three sentences",
  "predictions": [
    {
      "condition": string,
      "timeline": "e.g. 6-12 months",
      "riskLevel": "Low" | "Moderate" | "High",
      "reason": string,
      "contributingFactors": string[]
    }
  ],
  "actionPlan": [
    { "id": "short stable id", "task": string, "category": "Immediate" | "Short-term" | "Long-term", "completed": false }
  ]
}`, rawOrNull(req.UserProfile), rawList(req.Assessments), rawList(req.RecentReports))
}

func rawOrNull(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}

func rawList(items []json.RawMessage) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}
