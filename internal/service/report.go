package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docmate-health/docmate/internal/azure"
	"github.com/docmate-health/docmate/internal/pdf"
	"github.com/docmate-health/docmate/pkg/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrArchiveDisabled is returned when no report archive is configured
var ErrArchiveDisabled = errors.New("report archive is not configured")

// RenderedReport is a generated PDF and, when archived, its blob name
type RenderedReport struct {
	PDF      []byte
	BlobName string
}

// ReportService renders saved reports as PDF and archives them
type ReportService struct {
	pdfGen  *pdf.PDFGenerator
	archive azure.ReportArchive
	now     func() time.Time
	logger  *zap.Logger
}

// NewReportService creates a new ReportService. archive may be nil.
func NewReportService(pdfGen *pdf.PDFGenerator, archive azure.ReportArchive, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		pdfGen:  pdfGen,
		archive: archive,
		now:     time.Now,
		logger:  logger,
	}
}

// RenderPDF renders a report. Archiving is best effort: an upload failure is
// logged and the PDF is still returned without a blob name.
func (s *ReportService) RenderPDF(ctx context.Context, req model.ReportPDFRequest) (*RenderedReport, error) {
	pdfBytes, err := s.pdfGen.Generate(&pdf.ReportData{
		Report:  req.Report,
		Profile: req.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	rendered := &RenderedReport{PDF: pdfBytes}
	if s.archive == nil {
		return rendered, nil
	}

	reportID := req.Report.ID
	if reportID == "" {
		reportID = uuid.New().String()
	}
	filename := fmt.Sprintf("%s_%s.pdf", reportID, s.now().Format("20060102"))

	blobName, err := s.archive.UploadPDF(ctx, filename, pdfBytes)
	if err != nil {
		s.logger.Warn("failed to archive report PDF",
			zap.Error(err),
			zap.String("report_id", reportID),
		)
		return rendered, nil
	}
	rendered.BlobName = blobName

	s.logger.Info("report PDF archived",
		zap.String("report_id", reportID),
		zap.String("blob_name", blobName),
	)

	return rendered, nil
}

// ArchivedPDF downloads a previously archived report
func (s *ReportService) ArchivedPDF(ctx context.Context, blobName string) ([]byte, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}

	data, err := s.archive.DownloadPDF(ctx, blobName)
	if err != nil {
		return nil, fmt.Errorf("failed to download archived report: %w", err)
	}

	return data, nil
}
