package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/extract"
)

func cleanPages(n int) []extract.PageLayout {
	pages := make([]extract.PageLayout, n)
	for i := range pages {
		pages[i] = extract.PageLayout{Number: i + 1, DPI: 300, WordCount: 200, OCRConfidence: 0.95, Fonts: []string{"Helvetica"}}
	}
	return pages
}

func codes(issues []QualityIssue) []string {
	var out []string
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestAssessQuality(t *testing.T) {
	t.Run("clean document", func(t *testing.T) {
		r := AssessQuality(extract.LayoutResult{Format: constants.PDF, Pages: cleanPages(2), ExpectedPages: 2})
		assert.Equal(t, 100.0, r.Score)
		assert.Empty(t, r.Issues)
	})

	t.Run("no pages", func(t *testing.T) {
		r := AssessQuality(extract.LayoutResult{})
		assert.Equal(t, 0.0, r.Score)
		assert.Equal(t, []string{IssueNoPages}, codes(r.Issues))
	})

	t.Run("low confidence, low dpi, sparse and missing pages", func(t *testing.T) {
		r := AssessQuality(extract.LayoutResult{
			Format:        constants.IMAGE,
			ExpectedPages: 3,
			Pages: []extract.PageLayout{
				{Number: 1, DPI: 100, WordCount: 5, OCRConfidence: 0.5},
			},
		})
		// 100 - (0.70-0.50)*100 - 10 - 20 - min(2*15, 30)
		assert.InDelta(t, 20.0, r.Score, 1e-9)
		assert.ElementsMatch(t,
			[]string{IssueLowOCRConfidence, IssueLowResolution, IssueSparseText, IssueMissingPages},
			codes(r.Issues))
	})

	t.Run("dpi ignored for pdf", func(t *testing.T) {
		pages := cleanPages(1)
		pages[0].DPI = 72
		r := AssessQuality(extract.LayoutResult{Format: constants.PDF, Pages: pages})
		assert.Equal(t, 100.0, r.Score)
	})
}

func TestDetectManipulation(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	upload := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("clean", func(t *testing.T) {
		r := DetectManipulation(extract.LayoutResult{
			Pages:    cleanPages(2),
			Metadata: extract.Metadata{Producer: "Bank Statement Generator", CreatedAt: &created, ModifiedAt: &created},
		}, upload)
		assert.Zero(t, r.Score)
		assert.Empty(t, r.Indicators)
	})

	t.Run("editing software and backdated modification", func(t *testing.T) {
		before := created.Add(-time.Hour)
		r := DetectManipulation(extract.LayoutResult{
			Pages:    cleanPages(1),
			Metadata: extract.Metadata{Producer: "Adobe Photoshop 25.0", CreatedAt: &created, ModifiedAt: &before},
		}, upload)
		require.Len(t, r.Indicators, 2)
		assert.Equal(t, constants.MetadataDateInconsistency, r.Indicators[0].Type)
		assert.Equal(t, constants.EditingSoftware, r.Indicators[1].Type)
		// 1 - (1-0.63)(1-0.56) = 0.8372
		assert.InDelta(t, 83.72, r.Score, 1e-6)
	})

	t.Run("created after upload", func(t *testing.T) {
		future := upload.Add(48 * time.Hour)
		r := DetectManipulation(extract.LayoutResult{Metadata: extract.Metadata{CreatedAt: &future}}, upload)
		require.Len(t, r.Indicators, 1)
		assert.Equal(t, constants.SeverityHigh, r.Indicators[0].Severity)
	})

	t.Run("page level signals", func(t *testing.T) {
		pages := cleanPages(3)
		pages[0].Fonts = []string{"Arial", "Times", "Courier", "Comic Sans"}
		pages[1].OCRConfidence = 0.4
		pages[2].RecompressionCount = 3
		r := DetectManipulation(extract.LayoutResult{Pages: pages}, time.Time{})

		var types []constants.ManipulationType
		for _, i := range r.Indicators {
			types = append(types, i.Type)
		}
		assert.ElementsMatch(t, []constants.ManipulationType{
			constants.FontInconsistency, constants.ConfidenceVariance, constants.CompressionArtifacts,
		}, types)
		assert.Greater(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 100.0)
	})
}

func TestAssessExtraction(t *testing.T) {
	docID := uuid.New()
	fields := []*extract.Fields{
		{DocumentID: docID, Category: constants.FieldCategoryPersonal, Personal: &extract.PersonalFields{Name: "Jane"}, Confidence: 0.9},
		{DocumentID: docID, Category: constants.FieldCategoryFinancial, Financial: &extract.FinancialFields{AccountNumbers: []string{"1234"}}, Confidence: 0.7},
		nil,
	}
	r := AssessExtraction(constants.BankStatement, fields)
	assert.InDelta(t, 0.8, r.Confidence, 1e-9)
	assert.Equal(t, []string{"account_numbers", "name"}, r.Present)
	assert.Equal(t, []string{"address", "amounts"}, r.Missing)

	r = AssessExtraction(constants.PayStub, []*extract.Fields{{Personal: &extract.PersonalFields{Name: "Jane"}}})
	assert.Equal(t, defaultFieldConfidence, r.Confidence)
	assert.Equal(t, []string{"amounts"}, r.Missing)

	r = AssessExtraction(constants.Identification, nil)
	assert.Zero(t, r.Confidence)
	assert.Len(t, r.Missing, 3)
}

type memDocs struct {
	mu    sync.Mutex
	docs  map[uuid.UUID]*entity.Document
	saved map[uuid.UUID]*entity.DocumentAnalysis
}

func (m *memDocs) GetByID(_ context.Context, id uuid.UUID) (*entity.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (m *memDocs) SaveAnalysis(_ context.Context, id uuid.UUID, a *entity.DocumentAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[id] = a
	return nil
}

type stubLayout struct{ res extract.LayoutResult }

func (s stubLayout) Analyze(_ context.Context, doc *entity.Document) (extract.LayoutResult, error) {
	r := s.res
	r.DocumentID = doc.ID
	return r, nil
}

type stubFields struct{ err error }

func (s stubFields) Extract(_ context.Context, id uuid.UUID, c constants.FieldCategory) (*extract.Fields, error) {
	if s.err != nil {
		return nil, s.err
	}
	if c != constants.FieldCategoryPersonal {
		return nil, extract.ErrNoData
	}
	return &extract.Fields{DocumentID: id, Category: c, Personal: &extract.PersonalFields{Name: "Jane"}, Confidence: 0.9}, nil
}

type recordingRecorder struct {
	calls int
	got   []Indicator
}

func (r *recordingRecorder) RecordManipulation(_ context.Context, _, _ uuid.UUID, ind []Indicator) (int, error) {
	r.calls++
	r.got = append(r.got, ind...)
	return len(ind), nil
}

func TestProcessor(t *testing.T) {
	doc := &entity.Document{ID: uuid.New(), ApplicationID: uuid.New(), DocumentType: constants.PayStub, UploadedAt: time.Now()}
	docs := &memDocs{docs: map[uuid.UUID]*entity.Document{doc.ID: doc}, saved: map[uuid.UUID]*entity.DocumentAnalysis{}}
	layout := stubLayout{res: extract.LayoutResult{
		Format:   constants.PDF,
		Text:     "pay stub",
		Pages:    cleanPages(1),
		Metadata: extract.Metadata{Creator: "GIMP 2.10"},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("full analysis records anomalies", func(t *testing.T) {
		rec := &recordingRecorder{}
		p := NewProcessor(logger, docs, layout, stubFields{}, rec)
		out, err := p.ProcessDocument(context.Background(), doc.ID, constants.JobTypeFullAnalysis)
		require.NoError(t, err)
		require.NotNil(t, out.Quality)
		require.NotNil(t, out.Manipulation)
		require.NotNil(t, out.Extraction)
		assert.Equal(t, 1, out.AnomaliesRecorded)
		assert.Equal(t, 1, rec.calls)
		assert.Equal(t, constants.EditingSoftware, rec.got[0].Type)

		saved := docs.saved[doc.ID]
		require.NotNil(t, saved)
		assert.Equal(t, constants.AnalysisStatusComplete, saved.Status)
		assert.Equal(t, []string{"amounts"}, saved.MissingFields)
	})

	t.Run("quality only skips extraction and forensics", func(t *testing.T) {
		rec := &recordingRecorder{}
		p := NewProcessor(logger, docs, layout, stubFields{err: errors.New("should not be called")}, rec)
		payload, err := p.Process(context.Background(), doc.ID, constants.JobTypeQualityOnly)
		require.NoError(t, err)
		out := payload.(*DocumentResult)
		assert.NotNil(t, out.Quality)
		assert.Nil(t, out.Manipulation)
		assert.Nil(t, out.Extraction)
		assert.Zero(t, rec.calls)
		assert.Equal(t, constants.AnalysisStatusPartial, docs.saved[doc.ID].Status)
	})

	t.Run("extraction failure surfaces", func(t *testing.T) {
		p := NewProcessor(logger, docs, layout, stubFields{err: errors.New("llm down")}, nil)
		_, err := p.ProcessDocument(context.Background(), doc.ID, constants.JobTypeExtractionOnly)
		require.Error(t, err)
	})

	t.Run("unknown document", func(t *testing.T) {
		p := NewProcessor(logger, docs, layout, stubFields{}, nil)
		_, err := p.ProcessDocument(context.Background(), uuid.New(), constants.JobTypeFullAnalysis)
		require.Error(t, err)
	})
}
