package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/inconsistency"
)

type AnomalySource interface {
	FindByApplicationID(ctx context.Context, applicationID uuid.UUID) ([]*entity.AnomalyRecord, error)
}

type InconsistencyDetector interface {
	DetectInconsistencies(ctx context.Context, applicationID uuid.UUID) (*inconsistency.Result, error)
}

// Engine gathers an application's documents, anomalies and inconsistencies and scores them.
type Engine struct {
	docs      inconsistency.DocumentLister
	anomalies AnomalySource
	detector  InconsistencyDetector
	required  []constants.DocumentType
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(docs inconsistency.DocumentLister, anomalies AnomalySource, detector InconsistencyDetector, required []constants.DocumentType, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if required == nil {
		required = constants.DefaultRequiredDocumentTypes
	}
	return &Engine{
		docs:      docs,
		anomalies: anomalies,
		detector:  detector,
		required:  required,
		logger:    logger,
		now:       time.Now,
	}
}

// CalculateRiskScore recomputes the assessment. A failing detector degrades the
// inconsistency category instead of failing the call.
func (e *Engine) CalculateRiskScore(ctx context.Context, applicationID uuid.UUID) (*Assessment, error) {
	docs, err := e.docs.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	anomalies, err := e.anomalies.FindByApplicationID(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}

	var detected *inconsistency.Result
	if e.detector != nil {
		detected, err = e.detector.DetectInconsistencies(ctx, applicationID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("risk.detect.failed", "application_id", applicationID, "err", err)
			detected = nil
		}
	}

	a := Assess(Input{
		ApplicationID:         applicationID,
		Documents:             docs,
		Anomalies:             anomalies,
		Inconsistency:         detected,
		RequiredDocumentTypes: e.required,
		Now:                   e.now().UTC(),
	})

	e.logger.Info("risk.assessed",
		"application_id", applicationID,
		"overall", a.Overall,
		"recommendation", a.Recommendation,
		"escalate", a.EscalationRequired,
		"confidence", a.Confidence,
		"findings", len(a.Evidence.Findings),
	)
	return a, nil
}
