package repository

import (
	"context"
	"database/sql"
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

var anomalyColumns = []string{
	"id",
	"application_id",
	"document_id",
	"anomaly_type",
	"severity",
	"description",
	"evidence",
	"confidence",
	"status",
	"reviewed_by",
	"reviewed_at",
	"resolution_notes",
	"created_at",
	"updated_at",
}

// ReviewUpdate is the state written by a single review action.
type ReviewUpdate struct {
	Status          constants.AnomalyStatus
	ReviewedBy      string
	ResolutionNotes *string
	ReviewedAt      time.Time
}

// AnomalyAggregate is one row of the grouped count query behind statistics.
type AnomalyAggregate struct {
	Severity      constants.Severity
	Status        constants.AnomalyStatus
	AnomalyType   string
	Count         int
	ConfidenceSum float64
}

type AnomalyRepository interface {
	Create(ctx context.Context, rec *entity.AnomalyRecord) (*entity.AnomalyRecord, error)
	CreateBatch(ctx context.Context, recs []*entity.AnomalyRecord) ([]*entity.AnomalyRecord, error)
	FindByID(ctx context.Context, id uuid.UUID) (*entity.AnomalyRecord, error)
	FindByApplicationID(ctx context.Context, applicationID uuid.UUID) ([]*entity.AnomalyRecord, error)
	FindByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*entity.AnomalyRecord, error)
	FindByStatus(ctx context.Context, status constants.AnomalyStatus, applicationID *uuid.UUID) ([]*entity.AnomalyRecord, error)
	FindBySeverity(ctx context.Context, severity constants.Severity, applicationID *uuid.UUID) ([]*entity.AnomalyRecord, error)
	FindPending(ctx context.Context, limit int) ([]*entity.AnomalyRecord, error)
	// UpdateReview applies upd only while the row still has status from.
	// It returns ErrNotFound for unknown ids and ErrInvalidTransition when the status moved underneath.
	UpdateReview(ctx context.Context, id uuid.UUID, from constants.AnomalyStatus, upd ReviewUpdate) (*entity.AnomalyRecord, error)
	Aggregate(ctx context.Context, applicationID *uuid.UUID) ([]AnomalyAggregate, error)
	DeleteByApplicationID(ctx context.Context, applicationID uuid.UUID) (int, error)
}

type anomalyRepository struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

func NewAnomalyRepository(db *DB, logger *slog.Logger) AnomalyRepository {
	return &anomalyRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *anomalyRepository) Create(ctx context.Context, rec *entity.AnomalyRecord) (*entity.AnomalyRecord, error) {
	if err := r.prepare(rec); err != nil {
		return nil, err
	}
	q, args, err := r.insertQuery(rec)
	if err != nil {
		return nil, err
	}
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to create anomaly", "application_id", rec.ApplicationID, "type", rec.AnomalyType, "error", err)
		return nil, common.NewAppError("DB_ERROR", "create anomaly", errors.Join(common.ErrDatabase, err))
	}
	r.logger.Debug("anomaly created", "id", rec.ID, "type", rec.AnomalyType, "severity", rec.Severity)
	return rec, nil
}

func (r *anomalyRepository) CreateBatch(ctx context.Context, recs []*entity.AnomalyRecord) ([]*entity.AnomalyRecord, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	for _, rec := range recs {
		if err := r.prepare(rec); err != nil {
			return nil, err
		}
	}

	tx, err := r.db.drv.Tx(ctx)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "begin batch", errors.Join(common.ErrDatabase, err))
	}
	for _, rec := range recs {
		q, args, err := r.insertQuery(rec)
		if err != nil {
			return nil, rollback(tx, err)
		}
		if err := tx.Exec(ctx, q, args, nil); err != nil {
			r.logger.Error("batch insert failed, rolling back", "application_id", rec.ApplicationID, "count", len(recs), "error", err)
			return nil, common.NewAppError("DB_ERROR", "create anomaly batch", errors.Join(common.ErrDatabase, rollback(tx, err)))
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, common.NewAppError("DB_ERROR", "commit anomaly batch", errors.Join(common.ErrDatabase, err))
	}
	r.logger.Debug("anomaly batch created", "count", len(recs))
	return recs, nil
}

func (r *anomalyRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.AnomalyRecord, error) {
	recs, err := r.list(ctx, r.selectAnomalies().Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("anomaly %s", id), common.ErrNotFound)
	}
	return recs[0], nil
}

func (r *anomalyRepository) FindByApplicationID(ctx context.Context, applicationID uuid.UUID) ([]*entity.AnomalyRecord, error) {
	sel := r.selectAnomalies().
		Where(entsql.EQ("application_id", applicationID)).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("id"))
	return r.list(ctx, sel)
}

func (r *anomalyRepository) FindByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*entity.AnomalyRecord, error) {
	sel := r.selectAnomalies().
		Where(entsql.EQ("document_id", documentID)).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("id"))
	return r.list(ctx, sel)
}

func (r *anomalyRepository) FindByStatus(ctx context.Context, status constants.AnomalyStatus, applicationID *uuid.UUID) ([]*entity.AnomalyRecord, error) {
	pred := entsql.EQ("status", string(status))
	if applicationID != nil {
		pred = entsql.And(entsql.EQ("application_id", *applicationID), pred)
	}
	sel := r.selectAnomalies().Where(pred).OrderBy(entsql.Asc("created_at"), entsql.Asc("id"))
	return r.list(ctx, sel)
}

func (r *anomalyRepository) FindBySeverity(ctx context.Context, severity constants.Severity, applicationID *uuid.UUID) ([]*entity.AnomalyRecord, error) {
	pred := entsql.EQ("severity", string(severity))
	if applicationID != nil {
		pred = entsql.And(entsql.EQ("application_id", *applicationID), pred)
	}
	sel := r.selectAnomalies().Where(pred).OrderBy(entsql.Asc("created_at"), entsql.Asc("id"))
	return r.list(ctx, sel)
}

func (r *anomalyRepository) FindPending(ctx context.Context, limit int) ([]*entity.AnomalyRecord, error) {
	sel := r.selectAnomalies().
		Where(entsql.EQ("status", string(constants.AnomalyStatusPending))).
		OrderBy(entsql.Desc("severity_rank"), entsql.Asc("created_at"), entsql.Asc("id"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	return r.list(ctx, sel)
}

func (r *anomalyRepository) UpdateReview(ctx context.Context, id uuid.UUID, from constants.AnomalyStatus, upd ReviewUpdate) (*entity.AnomalyRecord, error) {
	reviewedAt := upd.ReviewedAt
	if reviewedAt.IsZero() {
		reviewedAt = r.now()
	}
	ub := r.db.builder().Update(AnomalyTable).
		Set("status", string(upd.Status)).
		Set("reviewed_by", upd.ReviewedBy).
		Set("reviewed_at", reviewedAt).
		Set("updated_at", reviewedAt)
	if upd.ResolutionNotes != nil {
		ub = ub.Set("resolution_notes", *upd.ResolutionNotes)
	}
	q, args := ub.Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", string(from)))).Query()

	var res sql.Result
	if err := r.db.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("failed to update anomaly review", "id", id, "error", err)
		return nil, common.NewAppError("DB_ERROR", "update review", errors.Join(common.ErrDatabase, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "update review", errors.Join(common.ErrDatabase, err))
	}
	if n == 0 {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, common.NewAppError("INVALID_TRANSITION",
			fmt.Sprintf("anomaly %s is %s, expected %s", id, current.Status, from), common.ErrInvalidTransition)
	}
	return r.FindByID(ctx, id)
}

func (r *anomalyRepository) Aggregate(ctx context.Context, applicationID *uuid.UUID) ([]AnomalyAggregate, error) {
	sel := r.db.builder().
		Select(
			"severity",
			"status",
			"anomaly_type",
			entsql.As(entsql.Count("*"), "total"),
			entsql.As(entsql.Sum("confidence"), "confidence_sum"),
		).
		From(entsql.Table(AnomalyTable)).
		GroupBy("severity", "status", "anomaly_type")
	if applicationID != nil {
		sel = sel.Where(entsql.EQ("application_id", *applicationID))
	}
	q, args := sel.Query()

	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("failed to aggregate anomalies", "error", err)
		return nil, common.NewAppError("DB_ERROR", "aggregate anomalies", errors.Join(common.ErrDatabase, err))
	}
	defer rows.Close()

	var out []AnomalyAggregate
	for rows.Next() {
		var (
			agg              AnomalyAggregate
			severity, status string
			total            int64
			sum              sql.NullFloat64
		)
		if err := rows.Scan(&severity, &status, &agg.AnomalyType, &total, &sum); err != nil {
			return nil, common.NewAppError("DB_ERROR", "scan aggregate", errors.Join(common.ErrDatabase, err))
		}
		agg.Severity = constants.Severity(severity)
		agg.Status = constants.AnomalyStatus(status)
		agg.Count = int(total)
		agg.ConfidenceSum = sum.Float64
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError("DB_ERROR", "iterate aggregate", errors.Join(common.ErrDatabase, err))
	}
	return out, nil
}

func (r *anomalyRepository) DeleteByApplicationID(ctx context.Context, applicationID uuid.UUID) (int, error) {
	q, args := r.db.builder().Delete(AnomalyTable).Where(entsql.EQ("application_id", applicationID)).Query()
	var res sql.Result
	if err := r.db.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("failed to delete anomalies", "application_id", applicationID, "error", err)
		return 0, common.NewAppError("DB_ERROR", "delete anomalies", errors.Join(common.ErrDatabase, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, common.NewAppError("DB_ERROR", "delete anomalies", errors.Join(common.ErrDatabase, err))
	}
	r.logger.Info("anomalies deleted", "application_id", applicationID, "count", n)
	return int(n), nil
}

// prepare fills server-side defaults before insert.
func (r *anomalyRepository) prepare(rec *entity.AnomalyRecord) error {
	if rec == nil {
		return common.NewAppError("VALIDATION_ERROR", "anomaly record is nil", common.ErrValidation)
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = constants.AnomalyStatusPending
	}
	now := r.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	return nil
}

func (r *anomalyRepository) insertQuery(rec *entity.AnomalyRecord) (string, []any, error) {
	evidence, err := rec.Evidence.Encode()
	if err != nil {
		return "", nil, common.NewAppError("VALIDATION_ERROR", "encode evidence", errors.Join(common.ErrValidation, err))
	}
	var documentID any
	if rec.DocumentID != nil {
		documentID = *rec.DocumentID
	}
	var reviewedAt any
	if rec.ReviewedAt != nil {
		reviewedAt = *rec.ReviewedAt
	}
	q, args := r.db.builder().Insert(AnomalyTable).
		Columns(
			"id", "application_id", "document_id", "anomaly_type", "severity", "severity_rank",
			"description", "evidence", "confidence", "status", "reviewed_by", "reviewed_at",
			"resolution_notes", "created_at", "updated_at",
		).
		Values(
			rec.ID, rec.ApplicationID, documentID, rec.AnomalyType, string(rec.Severity), rec.Severity.Rank(),
			rec.Description, string(evidence), rec.Confidence, string(rec.Status), nullableString(rec.ReviewedBy), reviewedAt,
			nullableString(rec.ResolutionNotes), rec.CreatedAt, rec.UpdatedAt,
		).
		Query()
	return q, args, nil
}

func (r *anomalyRepository) selectAnomalies() *entsql.Selector {
	return r.db.builder().Select(anomalyColumns...).From(entsql.Table(AnomalyTable))
}

func (r *anomalyRepository) list(ctx context.Context, sel *entsql.Selector) ([]*entity.AnomalyRecord, error) {
	q, args := sel.Query()
	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("failed to query anomalies", "error", err)
		return nil, common.NewAppError("DB_ERROR", "query anomalies", errors.Join(common.ErrDatabase, err))
	}
	defer rows.Close()

	var out []*entity.AnomalyRecord
	for rows.Next() {
		rec, err := scanAnomaly(&rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError("DB_ERROR", "iterate anomalies", errors.Join(common.ErrDatabase, err))
	}
	return out, nil
}

func scanAnomaly(rows *entsql.Rows) (*entity.AnomalyRecord, error) {
	var (
		rec              entity.AnomalyRecord
		documentID       uuid.NullUUID
		severity, status string
		evidence         []byte
		reviewedBy       sql.NullString
		reviewedAt       sql.NullTime
		notes            sql.NullString
	)
	if err := rows.Scan(
		&rec.ID, &rec.ApplicationID, &documentID, &rec.AnomalyType, &severity, &rec.Description,
		&evidence, &rec.Confidence, &status, &reviewedBy, &reviewedAt, &notes,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, common.NewAppError("DB_ERROR", "scan anomaly", errors.Join(common.ErrDatabase, err))
	}
	if documentID.Valid {
		id := documentID.UUID
		rec.DocumentID = &id
	}
	rec.Severity = constants.Severity(severity)
	rec.Status = constants.AnomalyStatus(status)
	ev, err := entity.DecodeEvidence(evidence)
	if err != nil {
		ev = entity.RawEvidence(evidence)
	}
	rec.Evidence = ev
	if reviewedBy.Valid {
		rec.ReviewedBy = &reviewedBy.String
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		rec.ReviewedAt = &t
	}
	if notes.Valid {
		rec.ResolutionNotes = &notes.String
	}
	return &rec, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
