package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
)

type stubAnomalies struct {
	recs []*entity.AnomalyRecord
	err  error
}

func (s stubAnomalies) FindByApplicationID(context.Context, uuid.UUID) ([]*entity.AnomalyRecord, error) {
	return s.recs, s.err
}

type stubDocs []*entity.Document

func (s stubDocs) ListByApplication(context.Context, uuid.UUID) ([]*entity.Document, error) {
	return s, nil
}

func TestExportAnomaliesXLSX(t *testing.T) {
	app, doc := uuid.New(), uuid.New()
	reviewer := "analyst-7"
	reviewedAt := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	recs := []*entity.AnomalyRecord{
		{
			ID:            uuid.New(),
			ApplicationID: app,
			DocumentID:    &doc,
			AnomalyType:   string(constants.EditingSoftware),
			Severity:      constants.SeverityHigh,
			Description:   "produced by an image editor",
			Confidence:    0.8,
			Status:        constants.AnomalyStatusResolved,
			ReviewedBy:    &reviewer,
			ReviewedAt:    &reviewedAt,
			CreatedAt:     time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			ID:            uuid.New(),
			ApplicationID: app,
			AnomalyType:   string(constants.NameMismatch),
			Severity:      constants.SeverityHigh,
			Description:   "names differ",
			Confidence:    0.9,
			Status:        constants.AnomalyStatusPending,
			CreatedAt:     time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		},
	}
	svc := NewService(stubAnomalies{recs: recs}, stubDocs{{ID: doc, Filename: "statement.pdf"}},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	b, err := svc.ExportAnomaliesXLSX(context.Background(), app)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, "2026-04-01T08:00:00Z", rows[1][0])
	assert.Equal(t, "EDITING_SOFTWARE", rows[1][2])
	assert.Equal(t, "statement.pdf", rows[1][5])
	assert.Equal(t, "analyst-7", rows[1][7])
	assert.Equal(t, "N/A", rows[2][5])
	assert.Equal(t, recs[1].ID.String(), rows[2][10])
}

func TestExportAnomaliesXLSX_QueryError(t *testing.T) {
	svc := NewService(stubAnomalies{err: errors.New("db down")}, nil, nil)
	_, err := svc.ExportAnomaliesXLSX(context.Background(), uuid.New())
	require.Error(t, err)
}
