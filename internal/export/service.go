package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/loan-docintel/internal/entity"
)

// AnomalyLister is the slice of the anomaly store the export needs.
type AnomalyLister interface {
	FindByApplicationID(ctx context.Context, applicationID uuid.UUID) ([]*entity.AnomalyRecord, error)
}

// DocumentLister resolves document filenames for the Document column.
type DocumentLister interface {
	ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*entity.Document, error)
}

// Service is a tiny façade over repositories that produces XLSX bytes for exports.
type Service struct {
	anomalies AnomalyLister
	docs      DocumentLister
	logger    *slog.Logger
}

func NewService(anomalies AnomalyLister, docs DocumentLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{anomalies: anomalies, docs: docs, logger: logger}
}

const sheet = "Anomalies"

var headers = []string{
	"Detected At",
	"Severity",
	"Type",
	"Status",
	"Confidence",
	"Document",
	"Description",
	"Reviewed By",
	"Reviewed At",
	"Resolution Notes",
	"Anomaly ID",
}

// ExportAnomaliesXLSX returns an XLSX workbook (as bytes) with one row per anomaly of the application.
func (s *Service) ExportAnomaliesXLSX(ctx context.Context, applicationID uuid.UUID) ([]byte, error) {
	start := time.Now()

	recs, err := s.anomalies.FindByApplicationID(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}

	filenames := map[uuid.UUID]string{}
	if s.docs != nil {
		docs, err := s.docs.ListByApplication(ctx, applicationID)
		if err != nil {
			// rows fall back to document ids
			s.logger.Warn("export.documents.failed", "application_id", applicationID, "err", err)
		}
		for _, d := range docs {
			filenames[d.ID] = d.Filename
		}
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.CreatedAt.UTC().Format(time.RFC3339))
		write(2, string(r.Severity))
		write(3, r.AnomalyType)
		write(4, string(r.Status))
		write(5, r.Confidence)
		write(6, documentLabel(r.DocumentID, filenames))
		write(7, truncate(r.Description, 500))
		write(8, deref(r.ReviewedBy))
		if r.ReviewedAt != nil {
			write(9, r.ReviewedAt.UTC().Format(time.RFC3339))
		} else {
			write(9, "")
		}
		write(10, truncate(deref(r.ResolutionNotes), 500))
		write(11, r.ID.String())
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 22) // detected
	_ = f.SetColWidth(sheet, "B", "B", 11) // severity
	_ = f.SetColWidth(sheet, "C", "C", 30) // type
	_ = f.SetColWidth(sheet, "D", "E", 16) // status, confidence
	_ = f.SetColWidth(sheet, "F", "F", 38) // document
	_ = f.SetColWidth(sheet, "G", "G", 60) // description
	_ = f.SetColWidth(sheet, "H", "I", 22) // review
	_ = f.SetColWidth(sheet, "J", "J", 48) // notes
	_ = f.SetColWidth(sheet, "K", "K", 38) // id
	if row > 2 {
		_ = f.AutoFilter(sheet, fmt.Sprintf("A1:K%d", row-1), nil)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"application_id", applicationID.String(),
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func documentLabel(id *uuid.UUID, filenames map[uuid.UUID]string) string {
	if id == nil {
		return "N/A"
	}
	if name := filenames[*id]; name != "" {
		return name
	}
	return id.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
