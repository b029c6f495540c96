package pdf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/docmate-health/docmate/pkg/model"
	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"
)

const disclaimer = "This report was generated by an AI assistant and is not a medical diagnosis. " +
	"Consult a qualified doctor before acting on it."

// PDFGenerator renders saved reports as printable documents
type PDFGenerator struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewPDFGenerator creates a new PDFGenerator
func NewPDFGenerator(logger *zap.Logger) *PDFGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFGenerator{
		logger: logger,
		now:    time.Now,
	}
}

// ReportData contains all data needed for report generation
type ReportData struct {
	Report  model.SavedReport
	Profile *model.UserProfile
}

// document wraps the gofpdf handle with a cp1252 translator for the core fonts
type document struct {
	*gofpdf.Fpdf
	tr func(string) string
}

// Generate creates a PDF from a saved report
func (g *PDFGenerator) Generate(data *ReportData) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("report data is required")
	}

	g.logger.Info("generating PDF report",
		zap.String("report_id", data.Report.ID),
		zap.String("type", string(data.Report.Type)),
	)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle(data.Report.Title, true)
	pdf.SetCreator("DocMate", true)
	doc := &document{Fpdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	doc.AddPage()

	g.addTitle(doc, data.Report)
	g.addPatient(doc, data.Profile)
	g.addAssessment(doc, data.Report)

	var analysis json.RawMessage
	if data.Report.FullData != nil {
		analysis = data.Report.FullData.Analysis
	}
	switch data.Report.Type {
	case model.ReportTypeLabReport:
		g.addLabFindings(doc, analysis)
	default:
		g.addSymptomFindings(doc, analysis)
	}

	if data.Report.HasRemedies() {
		g.addRemedies(doc, data.Report.FullData.Remedies)
	}

	doc.Ln(5)
	doc.SetFont("Arial", "I", 8)
	doc.MultiCell(0, 4, doc.tr(disclaimer), "", "L", false)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		g.logger.Error("failed to generate PDF", zap.Error(err))
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	g.logger.Info("PDF report generated successfully",
		zap.String("report_id", data.Report.ID),
		zap.Int("size_bytes", buf.Len()),
	)

	return buf.Bytes(), nil
}

// addTitle adds the report title and header information
func (g *PDFGenerator) addTitle(doc *document, report model.SavedReport) {
	title := report.Title
	if title == "" {
		title = "Health Report"
	}

	doc.SetFont("Arial", "B", 20)
	doc.CellFormat(0, 10, doc.tr(title), "", 1, "C", false, 0, "")
	doc.Ln(5)

	doc.SetFont("Arial", "", 12)
	doc.line(fmt.Sprintf("Type: %s", report.Type))
	if !report.Date.Time.IsZero() {
		doc.line(fmt.Sprintf("Date: %s", report.Date.Time.Format("2006-01-02")))
	}
	doc.line(fmt.Sprintf("Generated: %s", g.now().Format("2006-01-02 15:04")))
	doc.Ln(8)
}

// addSectionHeader adds a section header
func (g *PDFGenerator) addSectionHeader(doc *document, title string) {
	doc.SetFont("Arial", "B", 14)
	doc.SetFillColor(230, 230, 230)
	doc.CellFormat(0, 10, doc.tr(title), "", 1, "L", true, 0, "")
	doc.Ln(3)
	doc.SetFont("Arial", "", 10)
}

func (g *PDFGenerator) addPatient(doc *document, profile *model.UserProfile) {
	if profile == nil {
		return
	}

	g.addSectionHeader(doc, "Patient")
	doc.field("Name", profile.FullName)
	doc.field("Age", profile.Age)
	doc.field("Gender", profile.Gender)
	doc.field("Blood Type", profile.BloodType)
	doc.field("Allergies", strings.Join(profile.Allergies, ", "))
	doc.field("Current Medications", strings.Join(profile.CurrentMedications, ", "))
	doc.field("Past Conditions", strings.Join(profile.PastConditions, ", "))
	if profile.EmergencyContactName != "" {
		doc.field("Emergency Contact", strings.TrimSpace(profile.EmergencyContactName+" "+profile.EmergencyContactPhone))
	}
	doc.Ln(5)
}

func (g *PDFGenerator) addAssessment(doc *document, report model.SavedReport) {
	g.addSectionHeader(doc, "Assessment")

	r, gr, b := riskColor(report.RiskLevel)
	doc.SetFont("Arial", "B", 12)
	doc.SetTextColor(r, gr, b)
	doc.line(fmt.Sprintf("Risk Level: %s", report.RiskLevel))
	doc.SetTextColor(0, 0, 0)
	doc.SetFont("Arial", "", 10)

	severity := model.SeverityForLabel(report.RiskLevel)
	if report.SeverityScore != nil {
		severity = *report.SeverityScore
	}
	doc.line(fmt.Sprintf("Severity: %.0f/10", severity))
	doc.field("Top Condition", report.TopCondition)
	if report.Summary != "" {
		doc.Ln(2)
		doc.MultiCell(0, 5, doc.tr(report.Summary), "", "L", false)
	}
	g.addList(doc, "Warning Signs", report.WarningSigns)
	doc.Ln(5)
}

func (g *PDFGenerator) addSymptomFindings(doc *document, raw json.RawMessage) {
	var analysis model.SymptomAnalysis
	if len(raw) == 0 || json.Unmarshal(raw, &analysis) != nil || len(analysis.PossibleConditions) == 0 {
		return
	}

	g.addSectionHeader(doc, "Possible Conditions")
	for _, c := range analysis.PossibleConditions {
		doc.line(fmt.Sprintf("  - %s (%.0f%%)", c.Name, c.Probability.Float64()))
	}
	doc.Ln(5)
}

func (g *PDFGenerator) addLabFindings(doc *document, raw json.RawMessage) {
	var analysis model.ReportAnalysis
	if len(raw) == 0 || json.Unmarshal(raw, &analysis) != nil {
		return
	}

	if len(analysis.VitalSigns) > 0 {
		g.addSectionHeader(doc, "Measured Values")
		doc.SetFont("Arial", "B", 10)
		doc.CellFormat(70, 6, "Test", "1", 0, "L", false, 0, "")
		doc.CellFormat(60, 6, "Value", "1", 0, "L", false, 0, "")
		doc.CellFormat(40, 6, "Status", "1", 1, "L", false, 0, "")
		doc.SetFont("Arial", "", 10)
		for _, v := range analysis.VitalSigns {
			doc.CellFormat(70, 6, doc.tr(v.Label), "1", 0, "L", false, 0, "")
			doc.CellFormat(60, 6, doc.tr(v.Value), "1", 0, "L", false, 0, "")
			doc.CellFormat(40, 6, doc.tr(v.Status), "1", 1, "L", false, 0, "")
		}
		doc.Ln(5)
	}

	if len(analysis.AIAnalysis.PossibleConditions) > 0 {
		g.addSectionHeader(doc, "Possible Conditions")
		for _, c := range analysis.AIAnalysis.PossibleConditions {
			doc.SetFont("Arial", "B", 10)
			doc.line(fmt.Sprintf("%s (%s)", c.Condition, c.Probability))
			doc.SetFont("Arial", "", 10)
			if c.Description != "" {
				doc.MultiCell(0, 5, doc.tr(c.Description), "", "L", false)
			}
		}
		doc.Ln(5)
	}

	if analysis.AIAnalysis.Recommendations != "" {
		g.addSectionHeader(doc, "Recommendations")
		doc.MultiCell(0, 5, doc.tr(analysis.AIAnalysis.Recommendations), "", "L", false)
		doc.Ln(5)
	}
}

func (g *PDFGenerator) addRemedies(doc *document, remedies *model.RemediesResponse) {
	g.addSectionHeader(doc, "Supportive Remedies")
	g.addList(doc, "Home", remedies.Remedies.Home)
	g.addList(doc, "Ayurvedic", remedies.Remedies.Ayurvedic)
	g.addList(doc, "Natural", remedies.Remedies.Natural)
	if remedies.Disclaimer != "" {
		doc.SetFont("Arial", "I", 9)
		doc.MultiCell(0, 5, doc.tr(remedies.Disclaimer), "", "L", false)
		doc.SetFont("Arial", "", 10)
	}
	doc.Ln(5)
}

func (g *PDFGenerator) addList(doc *document, label string, items []string) {
	if len(items) == 0 {
		return
	}
	doc.SetFont("Arial", "B", 10)
	doc.line(label + ":")
	doc.SetFont("Arial", "", 10)
	for _, item := range items {
		doc.line("  - " + item)
	}
}

func (d *document) line(text string) {
	d.CellFormat(0, 6, d.tr(text), "", 1, "L", false, 0, "")
}

func (d *document) field(label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	d.line(fmt.Sprintf("%s: %s", label, value))
}

// riskColor returns the text color for a risk label
func riskColor(label string) (int, int, int) {
	switch model.SeverityForLabel(label) {
	case model.SeverityUrgent:
		return 200, 30, 30
	case model.SeverityElevated:
		return 210, 120, 0
	default:
		return 30, 140, 60
	}
}
