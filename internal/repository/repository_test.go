package repository

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/common"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := OpenSQLite(ctx, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { Close(db, logger) })
	require.NoError(t, Migrate(ctx, db, logger))
	return db
}

func newAnomaly(appID uuid.UUID, sev constants.Severity, conf float64) *entity.AnomalyRecord {
	return &entity.AnomalyRecord{
		ApplicationID: appID,
		AnomalyType:   string(constants.NameMismatch),
		Severity:      sev,
		Description:   "names differ",
		Confidence:    conf,
		Evidence: entity.Evidence{
			Kind: entity.EvidenceInconsistency,
			Inconsistency: &entity.InconsistencyEvidence{
				ConflictingValues: []entity.ConflictingValue{{Field: "name", Value: "John Smith", Confidence: 0.9}},
			},
		},
	}
}

func TestAnomalyRepository_CreateAndFind(t *testing.T) {
	db := newTestDB(t)
	repo := NewAnomalyRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	appID := uuid.New()
	docID := uuid.New()
	rec := newAnomaly(appID, constants.SeverityHigh, 0.85)
	rec.DocumentID = &docID

	created, err := repo.Create(ctx, rec)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, constants.AnomalyStatusPending, created.Status)

	got, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, appID, got.ApplicationID)
	require.NotNil(t, got.DocumentID)
	assert.Equal(t, docID, *got.DocumentID)
	assert.Equal(t, constants.SeverityHigh, got.Severity)
	assert.InDelta(t, 0.85, got.Confidence, 1e-9)
	assert.Equal(t, entity.EvidenceInconsistency, got.Evidence.Kind)
	require.NotNil(t, got.Evidence.Inconsistency)
	assert.Equal(t, "John Smith", got.Evidence.Inconsistency.ConflictingValues[0].Value)
	assert.Nil(t, got.ReviewedBy)

	byDoc, err := repo.FindByDocumentID(ctx, docID)
	require.NoError(t, err)
	assert.Len(t, byDoc, 1)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAnomalyRepository_CreateBatchIsAtomic(t *testing.T) {
	db := newTestDB(t)
	repo := NewAnomalyRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	appID := uuid.New()

	first := newAnomaly(appID, constants.SeverityLow, 0.4)
	_, err := repo.Create(ctx, first)
	require.NoError(t, err)

	// the duplicate primary key makes the second insert fail
	dup := newAnomaly(appID, constants.SeverityMedium, 0.7)
	dup.ID = first.ID
	_, err = repo.CreateBatch(ctx, []*entity.AnomalyRecord{newAnomaly(appID, constants.SeverityCritical, 0.9), dup})
	require.Error(t, err)

	all, err := repo.FindByApplicationID(ctx, appID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	recs, err := repo.CreateBatch(ctx, []*entity.AnomalyRecord{
		newAnomaly(appID, constants.SeverityCritical, 0.9),
		newAnomaly(appID, constants.SeverityMedium, 0.7),
	})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	all, err = repo.FindByApplicationID(ctx, appID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAnomalyRepository_FindPendingOrdersBySeverityThenAge(t *testing.T) {
	db := newTestDB(t)
	repo := NewAnomalyRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	appID := uuid.New()
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	oldLow := newAnomaly(appID, constants.SeverityLow, 0.5)
	oldLow.CreatedAt = base
	newCritical := newAnomaly(appID, constants.SeverityCritical, 0.9)
	newCritical.CreatedAt = base.Add(2 * time.Hour)
	oldCritical := newAnomaly(appID, constants.SeverityCritical, 0.9)
	oldCritical.CreatedAt = base.Add(time.Hour)
	_, err := repo.CreateBatch(ctx, []*entity.AnomalyRecord{oldLow, newCritical, oldCritical})
	require.NoError(t, err)

	pending, err := repo.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, oldCritical.ID, pending[0].ID)
	assert.Equal(t, newCritical.ID, pending[1].ID)
	assert.Equal(t, oldLow.ID, pending[2].ID)

	limited, err := repo.FindPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAnomalyRepository_UpdateReviewIsConditional(t *testing.T) {
	db := newTestDB(t)
	repo := NewAnomalyRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	rec, err := repo.Create(ctx, newAnomaly(uuid.New(), constants.SeverityMedium, 0.7))
	require.NoError(t, err)

	notes := "confirmed with applicant"
	updated, err := repo.UpdateReview(ctx, rec.ID, constants.AnomalyStatusPending, ReviewUpdate{
		Status:          constants.AnomalyStatusResolved,
		ReviewedBy:      "analyst@example.com",
		ResolutionNotes: &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, constants.AnomalyStatusResolved, updated.Status)
	require.NotNil(t, updated.ReviewedBy)
	assert.Equal(t, "analyst@example.com", *updated.ReviewedBy)
	require.NotNil(t, updated.ReviewedAt)
	require.NotNil(t, updated.ResolutionNotes)
	assert.Equal(t, notes, *updated.ResolutionNotes)

	_, err = repo.UpdateReview(ctx, rec.ID, constants.AnomalyStatusPending, ReviewUpdate{
		Status:     constants.AnomalyStatusFalsePositive,
		ReviewedBy: "someone-else",
	})
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	_, err = repo.UpdateReview(ctx, uuid.New(), constants.AnomalyStatusPending, ReviewUpdate{
		Status:     constants.AnomalyStatusResolved,
		ReviewedBy: "x",
	})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAnomalyRepository_AggregateAndDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewAnomalyRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	appA, appB := uuid.New(), uuid.New()

	_, err := repo.CreateBatch(ctx, []*entity.AnomalyRecord{
		newAnomaly(appA, constants.SeverityHigh, 0.8),
		newAnomaly(appA, constants.SeverityHigh, 0.6),
		newAnomaly(appA, constants.SeverityLow, 0.4),
		newAnomaly(appB, constants.SeverityCritical, 1.0),
	})
	require.NoError(t, err)

	aggs, err := repo.Aggregate(ctx, &appA)
	require.NoError(t, err)
	total := 0
	sum := 0.0
	for _, a := range aggs {
		total += a.Count
		sum += a.ConfidenceSum
		if a.Severity == constants.SeverityHigh {
			assert.Equal(t, 2, a.Count)
		}
	}
	assert.Equal(t, 3, total)
	assert.InDelta(t, 1.8, sum, 1e-9)

	all, err := repo.Aggregate(ctx, nil)
	require.NoError(t, err)
	total = 0
	for _, a := range all {
		total += a.Count
	}
	assert.Equal(t, 4, total)

	n, err := repo.DeleteByApplicationID(ctx, appA)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	left, err := repo.FindByApplicationID(ctx, appA)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDocumentRepository_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	appID := uuid.New()

	doc, err := repo.Create(ctx, &entity.Document{
		ApplicationID: appID,
		Filename:      "statement.pdf",
		DocumentType:  constants.BankStatement,
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.BankStatement, got.DocumentType)
	assert.Nil(t, got.Analysis)

	quality := 82.5
	require.NoError(t, repo.SaveAnalysis(ctx, doc.ID, &entity.DocumentAnalysis{
		Status:        constants.AnalysisStatusPartial,
		QualityScore:  &quality,
		MissingFields: []string{"address"},
	}))

	got, err = repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, constants.AnalysisStatusPartial, got.Analysis.Status)
	require.NotNil(t, got.Analysis.QualityScore)
	assert.InDelta(t, 82.5, *got.Analysis.QualityScore, 1e-9)
	assert.Nil(t, got.Analysis.ManipulationScore)
	assert.Equal(t, []string{"address"}, got.Analysis.MissingFields)

	err = repo.SaveAnalysis(ctx, uuid.New(), &entity.DocumentAnalysis{Status: constants.AnalysisStatusComplete})
	assert.ErrorIs(t, err, common.ErrNotFound)

	docs, err := repo.ListByApplication(ctx, appID)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	n, err := repo.DeleteByApplication(ctx, appID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
