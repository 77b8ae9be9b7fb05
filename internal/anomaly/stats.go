package anomaly

import (
	"context"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
)

// Statistics is a derived view over stored anomalies.
// Actionable excludes FALSE_POSITIVE records.
type Statistics struct {
	ApplicationID     *uuid.UUID                      `json:"application_id,omitempty"`
	Total             int                             `json:"total"`
	Actionable        int                             `json:"actionable"`
	BySeverity        map[constants.Severity]int      `json:"by_severity"`
	ByStatus          map[constants.AnomalyStatus]int `json:"by_status"`
	ByType            map[string]int                  `json:"by_type"`
	AverageConfidence float64                         `json:"average_confidence"`
}

// GetStatistics aggregates in the database; pass nil for all applications.
func (t *Tracker) GetStatistics(ctx context.Context, applicationID *uuid.UUID) (*Statistics, error) {
	rows, err := t.repo.Aggregate(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	st := &Statistics{
		ApplicationID: applicationID,
		BySeverity:    make(map[constants.Severity]int, len(constants.Severities)),
		ByStatus:      make(map[constants.AnomalyStatus]int, len(constants.AnomalyStatuses)),
		ByType:        make(map[string]int),
	}
	for _, s := range constants.Severities {
		st.BySeverity[s] = 0
	}
	for _, s := range constants.AnomalyStatuses {
		st.ByStatus[s] = 0
	}

	var confSum float64
	for _, r := range rows {
		st.Total += r.Count
		st.BySeverity[r.Severity] += r.Count
		st.ByStatus[r.Status] += r.Count
		st.ByType[r.AnomalyType] += r.Count
		confSum += r.ConfidenceSum
		if r.Status != constants.AnomalyStatusFalsePositive {
			st.Actionable += r.Count
		}
	}
	if st.Total > 0 {
		st.AverageConfidence = confSum / float64(st.Total)
	}
	return st, nil
}
