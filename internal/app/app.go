package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/analysis"
	"github.com/joseph-ayodele/loan-docintel/internal/anomaly"
	"github.com/joseph-ayodele/loan-docintel/internal/async"
	"github.com/joseph-ayodele/loan-docintel/internal/common"
	"github.com/joseph-ayodele/loan-docintel/internal/export"
	"github.com/joseph-ayodele/loan-docintel/internal/extract"
	"github.com/joseph-ayodele/loan-docintel/internal/inconsistency"
	"github.com/joseph-ayodele/loan-docintel/internal/ingest"
	"github.com/joseph-ayodele/loan-docintel/internal/layout"
	"github.com/joseph-ayodele/loan-docintel/internal/llm/openai"
	"github.com/joseph-ayodele/loan-docintel/internal/repository"
	"github.com/joseph-ayodele/loan-docintel/internal/risk"
)

// App holds the wired services shared by the binaries.
type App struct {
	DB        *repository.DB
	Documents repository.DocumentRepository
	Anomalies repository.AnomalyRepository
	Tracker   *anomaly.Tracker
	Queue     *async.ProcessorQueue
	Detector  *inconsistency.Detector
	Risk      *risk.Engine
	Export    *export.Service
	Ingest    *ingest.FSIngestor

	logger *slog.Logger
}

// NewLogger builds the JSON handler the binaries log through.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// OpenDB opens and migrates the configured database.
func OpenDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repository.DB, error) {
	var (
		db  *repository.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = repository.OpenSQLite(ctx, cfg.DSN, logger)
	default:
		db, err = repository.Open(ctx, repository.Config{
			DSN:              cfg.DSN,
			MaxConns:         cfg.MaxConns,
			MinConns:         cfg.MinConns,
			MaxConnLifetime:  cfg.MaxConnLifetime,
			MaxConnIdleTime:  cfg.MaxConnIdleTime,
			DialTimeout:      cfg.DialTimeout,
			StatementTimeout: cfg.StatementTimeout,
		}, logger)
	}
	if err != nil {
		return nil, err
	}
	if err := repository.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		repository.Close(db, logger)
		return nil, err
	}
	if err := repository.Migrate(ctx, db, logger); err != nil {
		repository.Close(db, logger)
		return nil, err
	}
	return db, nil
}

// New wires every service on top of an open database.
func New(db *repository.DB, cfg *common.Config, sink async.EventSink, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	docs := repository.NewDocumentRepository(db, logger)
	anomalies := repository.NewAnomalyRepository(db, logger)
	tracker := anomaly.NewTracker(anomalies, logger)

	layoutClient := extract.NewLayoutCache(layout.NewClient(layout.Config{
		BaseURL:           cfg.Layout.BaseURL,
		APIKey:            cfg.Layout.APIKey,
		Timeout:           cfg.Layout.Timeout,
		RequestsPerSecond: cfg.Layout.RequestsPerSecond,
	}, logger))
	llmClient := openai.NewClient(openai.Config{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		Timeout:           cfg.LLM.Timeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		LenientOptional:   true,
	}, logger)
	fields := extract.NewCache(extract.NewService(docs, layoutClient, llmClient, logger))

	processor := analysis.NewProcessor(logger, docs, layoutClient, fields, tracker)
	queue := async.NewProcessorQueue(processor, sink, logger,
		async.WithMaxConcurrent(cfg.Queue.MaxConcurrent),
		async.WithTimeout(cfg.Queue.Timeout),
		async.WithRetryAttempts(cfg.Queue.RetryAttempts),
		async.WithRetryDelay(cfg.Queue.RetryDelay),
	)
	detector := inconsistency.NewDetector(docs, fields, logger)

	return &App{
		DB:        db,
		Documents: docs,
		Anomalies: anomalies,
		Tracker:   tracker,
		Queue:     queue,
		Detector:  detector,
		Risk:      risk.NewEngine(docs, anomalies, detector, cfg.Risk.RequiredDocumentTypes, logger),
		Export:    export.NewService(anomalies, docs, logger),
		Ingest:    ingest.NewFSIngestor(docs, logger),
		logger:    logger,
	}
}

// Close drains the queue and closes the database.
func (a *App) Close(ctx context.Context) error {
	err := a.Queue.Shutdown(ctx)
	repository.Close(a.DB, a.logger)
	return err
}

// ApplicationAnalysis is the end-to-end outcome for one application.
type ApplicationAnalysis struct {
	Job             *async.Job            `json:"job"`
	Inconsistencies *inconsistency.Result `json:"inconsistencies"`
	Recorded        int                   `json:"anomalies_recorded"`
	Assessment      *risk.Assessment      `json:"assessment"`
}

// AnalyzeApplication runs every document through the queue, then detects, records and scores.
func (a *App) AnalyzeApplication(ctx context.Context, applicationID uuid.UUID, jobType constants.JobType) (*ApplicationAnalysis, error) {
	ctx = common.WithApplicationID(ctx, applicationID)
	docs, err := a.Documents.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("application %s has no documents", applicationID), common.ErrNotFound)
	}
	ids := make([]uuid.UUID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	jobID, err := a.Queue.Submit(ctx, ids, jobType)
	if err != nil {
		return nil, err
	}
	job, err := a.Queue.Wait(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("wait for job %s: %w", jobID, err)
	}
	out := &ApplicationAnalysis{Job: job}
	if jobType == constants.JobTypeQualityOnly {
		a.logger.Info("app.analyze.done", "application_id", applicationID, "job_id", jobID, "status", job.Status)
		return out, nil
	}

	res, err := a.Detector.DetectInconsistencies(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("detect inconsistencies: %w", err)
	}
	out.Inconsistencies = res
	recorded, err := a.Tracker.RecordInconsistencies(ctx, applicationID, res.Inconsistencies)
	if err != nil {
		return nil, fmt.Errorf("record inconsistencies: %w", err)
	}
	out.Recorded = len(recorded)

	out.Assessment, err = a.Risk.CalculateRiskScore(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("assess risk: %w", err)
	}
	a.logger.Info("app.analyze.done",
		"application_id", applicationID,
		"job_id", jobID,
		"status", job.Status,
		"inconsistencies", len(res.Inconsistencies),
		"overall", out.Assessment.Overall,
		"recommendation", out.Assessment.Recommendation,
	)
	return out, nil
}
