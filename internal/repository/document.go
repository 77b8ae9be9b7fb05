package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/common"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
)

var documentColumns = []string{
	"id",
	"application_id",
	"filename",
	"document_type",
	"source_uri",
	"uploaded_at",
	"analysis_status",
	"quality_score",
	"manipulation_score",
	"extraction_confidence",
	"missing_fields",
	"analyzed_at",
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) (*entity.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*entity.Document, error)
	SaveAnalysis(ctx context.Context, id uuid.UUID, analysis *entity.DocumentAnalysis) error
	DeleteByApplication(ctx context.Context, applicationID uuid.UUID) (int, error)
}

type documentRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewDocumentRepository(db *DB, logger *slog.Logger) DocumentRepository {
	return &documentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *documentRepository) Create(ctx context.Context, doc *entity.Document) (*entity.Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.DocumentType == "" {
		doc.DocumentType = constants.OtherDocument
	}
	q, args := r.db.builder().Insert(DocumentTable).
		Columns("id", "application_id", "filename", "document_type", "source_uri", "uploaded_at", "analysis_status").
		Values(doc.ID, doc.ApplicationID, doc.Filename, string(doc.DocumentType), doc.SourceURI, doc.UploadedAt, string(constants.AnalysisStatusNone)).
		Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to create document", "application_id", doc.ApplicationID, "filename", doc.Filename, "error", err)
		return nil, common.NewAppError("DB_ERROR", "create document", errors.Join(common.ErrDatabase, err))
	}
	r.logger.Debug("document created", "id", doc.ID, "type", doc.DocumentType)
	return doc, nil
}

func (r *documentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	docs, err := r.list(ctx, r.selectDocuments().Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("document %s", id), common.ErrNotFound)
	}
	return docs[0], nil
}

func (r *documentRepository) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*entity.Document, error) {
	sel := r.selectDocuments().
		Where(entsql.EQ("application_id", applicationID)).
		OrderBy(entsql.Asc("uploaded_at"), entsql.Asc("id"))
	return r.list(ctx, sel)
}

func (r *documentRepository) SaveAnalysis(ctx context.Context, id uuid.UUID, analysis *entity.DocumentAnalysis) error {
	if analysis == nil {
		return common.NewAppError("VALIDATION_ERROR", "analysis is nil", common.ErrValidation)
	}
	missing, err := json.Marshal(analysis.MissingFields)
	if err != nil {
		return common.NewAppError("VALIDATION_ERROR", "encode missing fields", errors.Join(common.ErrValidation, err))
	}
	analyzedAt := analysis.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now().UTC()
	}
	ub := r.db.builder().Update(DocumentTable).
		Set("analysis_status", string(analysis.Status)).
		Set("missing_fields", string(missing)).
		Set("analyzed_at", analyzedAt)
	// scores from a partial run do not erase earlier ones
	if analysis.QualityScore != nil {
		ub = ub.Set("quality_score", *analysis.QualityScore)
	}
	if analysis.ManipulationScore != nil {
		ub = ub.Set("manipulation_score", *analysis.ManipulationScore)
	}
	if analysis.ExtractionConfidence != nil {
		ub = ub.Set("extraction_confidence", *analysis.ExtractionConfidence)
	}
	q, args := ub.Where(entsql.EQ("id", id)).Query()

	var res sql.Result
	if err := r.db.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("failed to save document analysis", "id", id, "error", err)
		return common.NewAppError("DB_ERROR", "save analysis", errors.Join(common.ErrDatabase, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.NewAppError("DB_ERROR", "save analysis", errors.Join(common.ErrDatabase, err))
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", fmt.Sprintf("document %s", id), common.ErrNotFound)
	}
	return nil
}

func (r *documentRepository) DeleteByApplication(ctx context.Context, applicationID uuid.UUID) (int, error) {
	q, args := r.db.builder().Delete(DocumentTable).Where(entsql.EQ("application_id", applicationID)).Query()
	var res sql.Result
	if err := r.db.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("failed to delete documents", "application_id", applicationID, "error", err)
		return 0, common.NewAppError("DB_ERROR", "delete documents", errors.Join(common.ErrDatabase, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, common.NewAppError("DB_ERROR", "delete documents", errors.Join(common.ErrDatabase, err))
	}
	return int(n), nil
}

func (r *documentRepository) selectDocuments() *entsql.Selector {
	return r.db.builder().Select(documentColumns...).From(entsql.Table(DocumentTable))
}

func (r *documentRepository) list(ctx context.Context, sel *entsql.Selector) ([]*entity.Document, error) {
	q, args := sel.Query()
	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("failed to query documents", "error", err)
		return nil, common.NewAppError("DB_ERROR", "query documents", errors.Join(common.ErrDatabase, err))
	}
	defer rows.Close()

	var out []*entity.Document
	for rows.Next() {
		var (
			doc                        entity.Document
			docType, analysisStatus    string
			quality, manip, extraction sql.NullFloat64
			missing                    []byte
			analyzedAt                 sql.NullTime
		)
		if err := rows.Scan(
			&doc.ID, &doc.ApplicationID, &doc.Filename, &docType, &doc.SourceURI, &doc.UploadedAt,
			&analysisStatus, &quality, &manip, &extraction, &missing, &analyzedAt,
		); err != nil {
			return nil, common.NewAppError("DB_ERROR", "scan document", errors.Join(common.ErrDatabase, err))
		}
		doc.DocumentType = constants.DocumentType(docType)
		if constants.AnalysisStatus(analysisStatus) != constants.AnalysisStatusNone {
			a := &entity.DocumentAnalysis{Status: constants.AnalysisStatus(analysisStatus)}
			if quality.Valid {
				a.QualityScore = &quality.Float64
			}
			if manip.Valid {
				a.ManipulationScore = &manip.Float64
			}
			if extraction.Valid {
				a.ExtractionConfidence = &extraction.Float64
			}
			if len(missing) > 0 {
				if err := json.Unmarshal(missing, &a.MissingFields); err != nil {
					r.logger.Warn("could not decode missing fields", "document_id", doc.ID, "error", err)
				}
			}
			if analyzedAt.Valid {
				a.AnalyzedAt = analyzedAt.Time
			}
			doc.Analysis = a
		}
		out = append(out, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError("DB_ERROR", "iterate documents", errors.Join(common.ErrDatabase, err))
	}
	return out, nil
}
