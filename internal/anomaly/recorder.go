package anomaly

import (
	"context"
	"maps"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/internal/analysis"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/inconsistency"
)

// RecordInconsistencies persists a detection run as one atomic batch.
func (t *Tracker) RecordInconsistencies(ctx context.Context, applicationID uuid.UUID, found []inconsistency.Inconsistency) ([]*entity.AnomalyRecord, error) {
	if len(found) == 0 {
		return nil, nil
	}
	recs := make([]*entity.AnomalyRecord, 0, len(found))
	for _, inc := range found {
		recs = append(recs, inc.ToAnomaly(applicationID))
	}
	return t.CreateBatch(ctx, recs)
}

// RecordManipulation persists forensic indicators raised on one document.
func (t *Tracker) RecordManipulation(ctx context.Context, applicationID, documentID uuid.UUID, indicators []analysis.Indicator) (int, error) {
	if len(indicators) == 0 {
		return 0, nil
	}
	recs := make([]*entity.AnomalyRecord, 0, len(indicators))
	for _, ind := range indicators {
		docID := documentID
		recs = append(recs, &entity.AnomalyRecord{
			ApplicationID: applicationID,
			DocumentID:    &docID,
			AnomalyType:   string(ind.Type),
			Severity:      ind.Severity,
			Description:   ind.Description,
			Confidence:    ind.Confidence,
			Evidence: entity.Evidence{
				Kind: entity.EvidenceManipulation,
				Manipulation: &entity.ManipulationEvidence{
					Indicator: string(ind.Type),
					Score:     ind.Confidence,
					Page:      ind.Page,
					Details:   maps.Clone(ind.Details),
				},
			},
		})
	}
	created, err := t.CreateBatch(ctx, recs)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}

var _ analysis.ManipulationRecorder = (*Tracker)(nil)
