package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/common"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/extract"
)

// DocumentStore is the slice of the document repository the processor needs.
type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	SaveAnalysis(ctx context.Context, id uuid.UUID, analysis *entity.DocumentAnalysis) error
}

// ManipulationRecorder persists forensic findings as reviewable anomalies.
type ManipulationRecorder interface {
	RecordManipulation(ctx context.Context, applicationID, documentID uuid.UUID, indicators []Indicator) (int, error)
}

// DocumentResult is the per-document payload the queue stores on success.
type DocumentResult struct {
	DocumentID        uuid.UUID              `json:"document_id"`
	ApplicationID     uuid.UUID              `json:"application_id"`
	DocumentType      constants.DocumentType `json:"document_type"`
	Quality           *QualityReport         `json:"quality,omitempty"`
	Manipulation      *ManipulationReport    `json:"manipulation,omitempty"`
	Extraction        *ExtractionReport      `json:"extraction,omitempty"`
	AnomaliesRecorded int                    `json:"anomalies_recorded"`
}

// Processor coordinates layout, the per-document analyzers and persistence.
type Processor struct {
	logger   *slog.Logger
	docs     DocumentStore
	layout   extract.LayoutProvider
	fields   extract.FieldProvider
	recorder ManipulationRecorder
}

func NewProcessor(
	logger *slog.Logger,
	docs DocumentStore,
	layout extract.LayoutProvider,
	fields extract.FieldProvider,
	recorder ManipulationRecorder,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:   logger,
		docs:     docs,
		layout:   layout,
		fields:   fields,
		recorder: recorder,
	}
}

// Process satisfies the queue's document processor contract.
func (p *Processor) Process(ctx context.Context, documentID uuid.UUID, jobType constants.JobType) (any, error) {
	return p.ProcessDocument(ctx, documentID, jobType)
}

// ProcessDocument runs the analyzers selected by jobType and stores the summary on the document.
// FULL_ANALYSIS additionally records manipulation indicators as anomalies.
func (p *Processor) ProcessDocument(ctx context.Context, documentID uuid.UUID, jobType constants.JobType) (*DocumentResult, error) {
	start := time.Now()
	doc, err := p.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	res, err := p.layout.Analyze(ctx, doc)
	if err != nil {
		p.logger.Error("processor.layout.failed", "document_id", documentID, "err", err)
		return nil, fmt.Errorf("layout: %w", err)
	}

	out := &DocumentResult{
		DocumentID:    doc.ID,
		ApplicationID: doc.ApplicationID,
		DocumentType:  doc.DocumentType,
	}
	summary := &entity.DocumentAnalysis{Status: constants.AnalysisStatusPartial}

	if jobType == constants.JobTypeFullAnalysis || jobType == constants.JobTypeQualityOnly {
		q := AssessQuality(res)
		out.Quality = &q
		summary.QualityScore = &q.Score
	}

	if jobType == constants.JobTypeFullAnalysis || jobType == constants.JobTypeExtractionOnly {
		ex, err := p.extractAll(ctx, doc)
		if err != nil {
			return nil, err
		}
		out.Extraction = &ex
		summary.ExtractionConfidence = &ex.Confidence
		summary.MissingFields = ex.Missing
	}

	if jobType == constants.JobTypeFullAnalysis {
		m := DetectManipulation(res, doc.UploadedAt)
		out.Manipulation = &m
		summary.ManipulationScore = &m.Score
		summary.Status = constants.AnalysisStatusComplete
	}

	summary.AnalyzedAt = time.Now().UTC()
	if err := p.docs.SaveAnalysis(ctx, doc.ID, summary); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}

	if out.Manipulation != nil && len(out.Manipulation.Indicators) > 0 && p.recorder != nil {
		n, err := p.recorder.RecordManipulation(ctx, doc.ApplicationID, doc.ID, out.Manipulation.Indicators)
		if err != nil {
			return nil, fmt.Errorf("record manipulation: %w", err)
		}
		out.AnomaliesRecorded = n
	}

	p.logger.Info("processor.document.done",
		"job_id", common.JobIDFromContext(ctx),
		"document_id", doc.ID,
		"job_type", jobType,
		"anomalies", out.AnomaliesRecorded,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// extractAll pulls every field category; absent categories are skipped, other failures abort.
func (p *Processor) extractAll(ctx context.Context, doc *entity.Document) (ExtractionReport, error) {
	var fields []*extract.Fields
	for _, c := range constants.FieldCategories {
		f, err := p.fields.Extract(ctx, doc.ID, c)
		if errors.Is(err, extract.ErrNoData) {
			continue
		}
		if err != nil {
			p.logger.Warn("processor.extract.failed", "document_id", doc.ID, "category", c, "err", err)
			return ExtractionReport{}, fmt.Errorf("extract %s: %w", c, err)
		}
		fields = append(fields, f)
	}
	return AssessExtraction(doc.DocumentType, fields), nil
}
