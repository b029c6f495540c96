// Package export writes the report history as a spreadsheet.
package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/docmate-health/docmate/internal/dashboard"
	"github.com/docmate-health/docmate/pkg/model"
	"github.com/xuri/excelize/v2"
)

const (
	reportsSheet = "Reports"
	summarySheet = "Summary"
	dateLayout   = "2006-01-02"
)

// ReportHeader is the header row of the reports sheet
var ReportHeader = []string{
	"ID",
	"Date",
	"Title",
	"Type",
	"Risk Level",
	"Severity",
	"Top Condition",
	"Summary",
	"Warning Signs",
	"Remedies",
}

var columnWidths = []float64{16, 12, 36, 14, 14, 10, 24, 60, 40, 10}

// ReportsXLSX renders the history, newest first, with a summary sheet of
// the dashboard stats
func ReportsXLSX(reports []model.SavedReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteReports(&buf, reports); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteReports writes the workbook to w
func WriteReports(w io.Writer, reports []model.SavedReport) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(reportsSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F7F5"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeRow(f, reportsSheet, 1, toAny(ReportHeader)); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(ReportHeader), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(reportsSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(reportsSheet, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, r := range reports {
		if err := writeRow(f, reportsSheet, i+2, reportRow(r)); err != nil {
			return err
		}
	}

	if err := writeSummary(f, reports); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, reports []model.SavedReport) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	stats := dashboard.ComputeStats(reports)
	summary := dashboard.Summarize(reports)
	rows := [][]any{
		{"Total Reports", stats.Total},
		{"Average Severity", stats.AverageSeverity},
		{"Latest Report", stats.LatestDate},
		{"Health Score", summary.HealthScore},
		{"Sleep Quality", summary.Sleep.Label},
	}
	for i, row := range rows {
		if err := writeRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	return f.SetColWidth(summarySheet, "A", "A", 20)
}

func reportRow(r model.SavedReport) []any {
	var severity any = ""
	if r.SeverityScore != nil {
		severity = *r.SeverityScore
	}
	date := ""
	if !r.Date.Time.IsZero() {
		date = r.Date.Time.Format(dateLayout)
	}
	remedies := "No"
	if r.HasRemedies() {
		remedies = "Yes"
	}
	return []any{
		r.ID,
		date,
		r.Title,
		string(r.Type),
		r.RiskLevel,
		severity,
		r.TopCondition,
		r.Summary,
		strings.Join(r.WarningSigns, "; "),
		remedies,
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
