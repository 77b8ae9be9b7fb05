package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/inconsistency"
)

func ptr[T any](v T) *T { return &v }

func analyzedDoc(app uuid.UUID, t constants.DocumentType, quality, manipulation, extraction float64, missing ...string) *entity.Document {
	return &entity.Document{
		ID:            uuid.New(),
		ApplicationID: app,
		DocumentType:  t,
		Analysis: &entity.DocumentAnalysis{
			Status:               constants.AnalysisStatusComplete,
			QualityScore:         ptr(quality),
			ManipulationScore:    ptr(manipulation),
			ExtractionConfidence: ptr(extraction),
			MissingFields:        missing,
		},
	}
}

func cleanDocs(app uuid.UUID) []*entity.Document {
	return []*entity.Document{
		analyzedDoc(app, constants.BankStatement, 90, 0, 0.9),
		analyzedDoc(app, constants.Identification, 90, 0, 0.9),
		analyzedDoc(app, constants.PayStub, 90, 0, 0.9),
	}
}

func anomaly(app uuid.UUID, typ string, sev constants.Severity, conf float64, status constants.AnomalyStatus) *entity.AnomalyRecord {
	return &entity.AnomalyRecord{
		ID:            uuid.New(),
		ApplicationID: app,
		AnomalyType:   typ,
		Severity:      sev,
		Confidence:    conf,
		Status:        status,
	}
}

func TestWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, c := range Categories {
		sum += Weights[c]
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestRecommendationFor(t *testing.T) {
	cases := map[float64]Recommendation{
		0:     Approve,
		29.99: Approve,
		30:    RequestMoreInfo,
		49.99: RequestMoreInfo,
		50:    Escalate,
		69.99: Escalate,
		70:    Reject,
		100:   Reject,
	}
	for score, want := range cases {
		assert.Equal(t, want, RecommendationFor(score), "score %v", score)
	}
}

func TestAssess_CleanApplication(t *testing.T) {
	app := uuid.New()
	a := Assess(Input{
		ApplicationID:         app,
		Documents:             cleanDocs(app),
		Inconsistency:         &inconsistency.Result{ApplicationID: app},
		RequiredDocumentTypes: constants.DefaultRequiredDocumentTypes,
	})

	assert.InDelta(t, 2.5, a.Overall, 0.01)
	assert.Equal(t, Approve, a.Recommendation)
	assert.False(t, a.EscalationRequired)
	assert.Empty(t, a.EscalationReason)
	assert.Equal(t, 1.0, a.Confidence)
	assert.Len(t, a.ByCategory, len(Categories))
	assert.InDelta(t, 10, a.ByCategory[DocumentQuality].Score, 1e-9)
	assert.Equal(t, "detector", a.Evidence.InconsistencySource)
	assert.Len(t, a.Evidence.DocumentsConsidered, 3)
}

func TestAssess_CriticalAnomalyForcesEscalation(t *testing.T) {
	app := uuid.New()
	a := Assess(Input{
		ApplicationID: app,
		Documents:     cleanDocs(app),
		Anomalies: []*entity.AnomalyRecord{
			anomaly(app, string(constants.IDNumberMismatch), constants.SeverityCritical, 0.95, constants.AnomalyStatusPending),
			anomaly(app, string(constants.NameMismatch), constants.SeverityHigh, 0.9, constants.AnomalyStatusFalsePositive),
		},
		Inconsistency: &inconsistency.Result{Inconsistencies: []inconsistency.Inconsistency{
			{Type: constants.NameMismatch, Severity: constants.SeverityHigh, Confidence: 0.9},
		}},
		RequiredDocumentTypes: constants.DefaultRequiredDocumentTypes,
	})

	assert.Equal(t, "anomaly_records", a.Evidence.InconsistencySource)
	assert.Equal(t, 1, a.Evidence.ExcludedFalsePositives)
	require.Len(t, a.Evidence.Findings, 1)
	assert.Equal(t, SourceAnomaly, a.Evidence.Findings[0].Source)

	assert.InDelta(t, 95, a.ByCategory[DataInconsistency].Score, 0.01)
	assert.InDelta(t, 38, a.ByCategory[AnomalySeverity].Score, 0.01)
	assert.InDelta(t, 31.95, a.Overall, 0.01)
	assert.Equal(t, RequestMoreInfo, a.Recommendation)
	assert.True(t, a.EscalationRequired)
	assert.Contains(t, a.EscalationReason, "1 critical finding(s)")
	assert.Contains(t, a.EscalationReason, "data inconsistency")
}

func TestAssess_FalsePositiveRecordsDoNotShadowDetector(t *testing.T) {
	app := uuid.New()
	a := Assess(Input{
		ApplicationID: app,
		Documents:     cleanDocs(app),
		Anomalies: []*entity.AnomalyRecord{
			anomaly(app, string(constants.NameMismatch), constants.SeverityHigh, 0.9, constants.AnomalyStatusFalsePositive),
		},
		Inconsistency: &inconsistency.Result{Inconsistencies: []inconsistency.Inconsistency{
			{Type: constants.DateMismatch, Severity: constants.SeverityMedium, Confidence: 0.8},
		}},
		RequiredDocumentTypes: constants.DefaultRequiredDocumentTypes,
	})

	assert.Equal(t, "detector", a.Evidence.InconsistencySource)
	assert.Equal(t, 1, a.Evidence.ExcludedFalsePositives)
	require.Len(t, a.Evidence.Findings, 1)
	assert.Equal(t, SourceInconsistency, a.Evidence.Findings[0].Source)
	assert.Equal(t, string(constants.DateMismatch), a.Evidence.Findings[0].Type)
	assert.True(t, a.ByCategory[DataInconsistency].Available)
	assert.Greater(t, a.ByCategory[DataInconsistency].Score, 0.0)
}

func TestAssess_ThreeHighFindingsEscalateBelowThreshold(t *testing.T) {
	app := uuid.New()
	high := inconsistency.Inconsistency{Type: constants.NameMismatch, Severity: constants.SeverityHigh, Confidence: 0.9}
	a := Assess(Input{
		ApplicationID:         app,
		Documents:             cleanDocs(app),
		Inconsistency:         &inconsistency.Result{Inconsistencies: []inconsistency.Inconsistency{high, high, high}},
		RequiredDocumentTypes: constants.DefaultRequiredDocumentTypes,
	})

	assert.InDelta(t, 67.5, a.ByCategory[DataInconsistency].Score, 0.01)
	assert.InDelta(t, 29.5, a.Overall, 0.01)
	assert.Equal(t, Approve, a.Recommendation)
	assert.True(t, a.EscalationRequired)
	assert.Contains(t, a.EscalationReason, "3 high severity findings")
	assert.Len(t, a.Evidence.Findings, 3)
	for _, f := range a.Evidence.Findings {
		assert.Equal(t, SourceInconsistency, f.Source)
	}
}

func TestAssess_MissingInformationAndManipulation(t *testing.T) {
	app := uuid.New()
	a := Assess(Input{
		ApplicationID:         app,
		Documents:             []*entity.Document{analyzedDoc(app, constants.BankStatement, 50, 80, 0.5, "address")},
		RequiredDocumentTypes: constants.DefaultRequiredDocumentTypes,
	})

	assert.InDelta(t, 50, a.ByCategory[MissingInformation].Score, 0.01)
	assert.ElementsMatch(t, []string{"IDENTIFICATION", "PAY_STUB"}, a.Evidence.MissingDocumentTypes)
	assert.InDelta(t, 37.5, a.Overall, 0.01)
	assert.Equal(t, RequestMoreInfo, a.Recommendation)
	assert.True(t, a.EscalationRequired)
	assert.Contains(t, a.EscalationReason, "image manipulation 80.0 above 70")
	assert.False(t, a.ByCategory[DataInconsistency].Available)
	assert.Equal(t, "none", a.Evidence.InconsistencySource)
	assert.Equal(t, 0.92, a.Confidence)
}

func TestAssess_NoDocuments(t *testing.T) {
	a := Assess(Input{ApplicationID: uuid.New(), RequiredDocumentTypes: constants.DefaultRequiredDocumentTypes})
	assert.Equal(t, 0.0, a.Confidence)
	assert.InDelta(t, 6, a.Overall, 0.01)
	assert.Equal(t, Approve, a.Recommendation)
}

type fakeDocs struct {
	docs []*entity.Document
	err  error
}

func (f fakeDocs) ListByApplication(context.Context, uuid.UUID) ([]*entity.Document, error) {
	return f.docs, f.err
}

type fakeAnomalies []*entity.AnomalyRecord

func (f fakeAnomalies) FindByApplicationID(context.Context, uuid.UUID) ([]*entity.AnomalyRecord, error) {
	return f, nil
}

type fakeDetector struct {
	res *inconsistency.Result
	err error
}

func (f fakeDetector) DetectInconsistencies(context.Context, uuid.UUID) (*inconsistency.Result, error) {
	return f.res, f.err
}

func TestEngine_CalculateRiskScore(t *testing.T) {
	app := uuid.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	e := NewEngine(fakeDocs{docs: cleanDocs(app)}, fakeAnomalies{}, fakeDetector{err: errors.New("provider down")}, nil, logger)
	e.now = func() time.Time { return fixed }

	a, err := e.CalculateRiskScore(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, app, a.ApplicationID)
	assert.Equal(t, fixed, a.AssessedAt)
	assert.Equal(t, "none", a.Evidence.InconsistencySource)
	assert.Equal(t, Approve, a.Recommendation)

	e = NewEngine(fakeDocs{err: errors.New("db down")}, fakeAnomalies{}, nil, nil, logger)
	_, err = e.CalculateRiskScore(context.Background(), app)
	require.Error(t, err)
}
