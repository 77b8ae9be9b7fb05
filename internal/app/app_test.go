package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/async"
	"github.com/joseph-ayodele/loan-docintel/internal/common"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
)

// layoutServer returns "NAME: <name>" text for each registered document.
func layoutServer(t *testing.T, names map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DocumentID string `json:"document_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]any{
			"format":     "PDF",
			"text":       fmt.Sprintf("LOAN DOCUMENT\nNAME: %s\nSSN 123-45-6789", names[req.DocumentID]),
			"page_count": 1,
			"pages": []map[string]any{
				{"number": 1, "dpi": 300, "word_count": 250, "ocr_confidence": 0.96, "fonts": []string{"Helvetica"}},
			},
			"metadata": map[string]any{"producer": "Bank Statement Generator"},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

// llmServer answers personal-field requests by reading the NAME line back out of the prompt.
func llmServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Messages) < 2 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		content := "{}"
		if strings.Contains(body.Messages[0].Content, "Extract only the personal fields") {
			name := ""
			for _, line := range strings.Split(body.Messages[1].Content, "\n") {
				if v, ok := strings.CutPrefix(line, "NAME: "); ok {
					name = v
				}
			}
			content = fmt.Sprintf(`{"name":%q,"identification_number":"123-45-6789","confidence":0.9}`, name)
		}
		resp := map[string]any{"choices": []map[string]any{{"message": map[string]any{"content": content}}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestAnalyzeApplication_EndToEnd(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &common.Config{
		Database: common.DatabaseConfig{
			Driver: "sqlite",
			DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString()),
		},
		Queue: common.QueueConfig{MaxConcurrent: 2, Timeout: 30 * time.Second, RetryAttempts: 1, RetryDelay: 10 * time.Millisecond},
		Risk:  common.RiskConfig{RequiredDocumentTypes: []constants.DocumentType{constants.Identification, constants.BankStatement}},
	}
	db, err := OpenDB(ctx, cfg.Database, logger)
	require.NoError(t, err)

	appID := uuid.New()
	idDoc := &entity.Document{
		ID: uuid.New(), ApplicationID: appID, Filename: "license.pdf", DocumentType: constants.Identification,
		UploadedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	stmt := &entity.Document{
		ID: uuid.New(), ApplicationID: appID, Filename: "statement.pdf", DocumentType: constants.BankStatement,
		UploadedAt: time.Date(2026, 4, 1, 9, 5, 0, 0, time.UTC),
	}
	names := map[string]string{
		idDoc.ID.String(): "John Smith",
		stmt.ID.String():  "Jon Smith",
	}
	layoutSrv := layoutServer(t, names)
	defer layoutSrv.Close()
	llmSrv := llmServer(t)
	defer llmSrv.Close()
	cfg.Layout = common.LayoutConfig{BaseURL: layoutSrv.URL}
	cfg.LLM = common.LLMConfig{BaseURL: llmSrv.URL, APIKey: "test-key", Model: "test-model"}

	sink := async.NewLogSink(logger)
	a := New(db, cfg, sink, logger)
	defer func() { require.NoError(t, a.Close(ctx)) }()

	_, err = a.Documents.Create(ctx, idDoc)
	require.NoError(t, err)
	_, err = a.Documents.Create(ctx, stmt)
	require.NoError(t, err)

	res, err := a.AnalyzeApplication(ctx, appID, constants.JobTypeFullAnalysis)
	require.NoError(t, err)

	assert.Equal(t, constants.JobStatusCompleted, res.Job.Status)
	assert.Equal(t, 2, res.Job.Processed)
	assert.Equal(t, 0, res.Job.Failed)

	require.NotNil(t, res.Inconsistencies)
	require.Len(t, res.Inconsistencies.Inconsistencies, 1)
	assert.Equal(t, constants.NameMismatch, res.Inconsistencies.Inconsistencies[0].Type)
	assert.Equal(t, 1, res.Recorded)

	require.NotNil(t, res.Assessment)
	assert.Equal(t, "anomaly_records", res.Assessment.Evidence.InconsistencySource)
	assert.Empty(t, res.Assessment.Evidence.MissingDocumentTypes)

	saved, err := a.Documents.GetByID(ctx, idDoc.ID)
	require.NoError(t, err)
	require.NotNil(t, saved.Analysis)
	assert.Equal(t, constants.AnalysisStatusComplete, saved.Analysis.Status)

	report, err := a.Tracker.GenerateAnomalyReport(ctx, appID)
	require.NoError(t, err)
	assert.Contains(t, report, "### 1. NAME_MISMATCH")

	xlsx, err := a.Export.ExportAnomaliesXLSX(ctx, appID)
	require.NoError(t, err)
	assert.NotEmpty(t, xlsx)
}
