package inconsistency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/extract"
)

const defaultExtractParallelism = 4

// DocumentLister is the slice of the document repository the detector needs.
type DocumentLister interface {
	ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*entity.Document, error)
}

// Detector compares the extracted fields of every document pair in an application.
type Detector struct {
	docs        DocumentLister
	fields      extract.FieldProvider
	logger      *slog.Logger
	parallelism int
}

func NewDetector(docs DocumentLister, fields extract.FieldProvider, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		docs:        docs,
		fields:      fields,
		logger:      logger,
		parallelism: defaultExtractParallelism,
	}
}

// DetectInconsistencies extracts every document of the application and compares each pair.
// Fewer than two usable documents yields an empty result with score 0.
func (d *Detector) DetectInconsistencies(ctx context.Context, applicationID uuid.UUID) (*Result, error) {
	start := time.Now()
	docs, err := d.docs.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	res := &Result{
		ApplicationID:       applicationID,
		Inconsistencies:     []Inconsistency{},
		DocumentComparisons: []DocumentComparison{},
	}
	if len(docs) < 2 {
		d.logger.Info("detector.skipped", "application_id", applicationID, "documents", len(docs))
		return res, nil
	}

	extracted, err := d.extractAll(ctx, docs)
	if err != nil {
		return nil, err
	}

	usable := make([]DocumentFields, 0, len(extracted))
	for _, f := range extracted {
		if f.empty() {
			res.ExcludedDocuments = append(res.ExcludedDocuments, f.DocumentID)
			continue
		}
		usable = append(usable, f)
	}
	res.DocumentsAnalyzed = len(usable)
	if len(usable) < 2 {
		d.logger.Info("detector.skipped", "application_id", applicationID, "usable_documents", len(usable))
		return res, nil
	}

	comparisons, found := Compare(usable)
	res.DocumentComparisons = comparisons
	if len(found) > 0 {
		res.Inconsistencies = found
	}
	res.OverallRiskScore = OverallRiskScore(found)

	d.logger.Info("detector.done",
		"application_id", applicationID,
		"documents", len(usable),
		"pairs", len(comparisons),
		"inconsistencies", len(found),
		"risk_score", res.OverallRiskScore,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// extractAll fetches every category for every document. Provider failures drop the
// category; only context cancellation aborts the run.
func (d *Detector) extractAll(ctx context.Context, docs []*entity.Document) ([]DocumentFields, error) {
	out := make([]DocumentFields, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)

	for i, doc := range docs {
		out[i].DocumentID = doc.ID
		for _, category := range constants.FieldCategories {
			g.Go(func() error {
				f, err := d.fields.Extract(gctx, doc.ID, category)
				switch {
				case err == nil:
				case errors.Is(err, extract.ErrNoData):
					return nil
				case gctx.Err() != nil:
					return gctx.Err()
				default:
					d.logger.Warn("detector.extract.failed",
						"document_id", doc.ID, "category", category, "err", err)
					return nil
				}
				if f == nil {
					return nil
				}
				// each goroutine owns one (document, category) slot
				switch category {
				case constants.FieldCategoryPersonal:
					out[i].Personal = f
				case constants.FieldCategoryBusiness:
					out[i].Business = f
				case constants.FieldCategoryFinancial:
					out[i].Financial = f
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}
	return out, nil
}
