package anomaly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/common"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/repository"
)

const (
	maxTypeLength        = 100
	maxDescriptionLength = 2000
	maxReviewerLength    = 255
	maxNotesLength       = 4000
	defaultPendingLimit  = 50
)

// ReviewRequest is one reviewer decision.
type ReviewRequest struct {
	Status          constants.AnomalyStatus
	ReviewedBy      string
	ResolutionNotes *string
}

// Tracker is the system of record for anomalies and owns the review state machine.
type Tracker struct {
	repo   repository.AnomalyRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(repo repository.AnomalyRepository, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new PENDING anomaly. No deduplication is attempted.
func (t *Tracker) Create(ctx context.Context, rec *entity.AnomalyRecord) (*entity.AnomalyRecord, error) {
	if err := validateRecord(rec); err != nil {
		t.logger.Error("anomaly.create.invalid", "err", err)
		return nil, err
	}
	created, err := t.repo.Create(ctx, rec)
	if err != nil {
		return nil, err
	}
	t.logger.Info("anomaly.created",
		"id", created.ID,
		"application_id", created.ApplicationID,
		"type", created.AnomalyType,
		"severity", created.Severity,
	)
	return created, nil
}

// CreateBatch stores every record or none of them.
func (t *Tracker) CreateBatch(ctx context.Context, recs []*entity.AnomalyRecord) ([]*entity.AnomalyRecord, error) {
	for i, rec := range recs {
		if err := validateRecord(rec); err != nil {
			t.logger.Error("anomaly.batch.invalid", "index", i, "err", err)
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	created, err := t.repo.CreateBatch(ctx, recs)
	if err != nil {
		return nil, err
	}
	t.logger.Info("anomaly.batch.created", "count", len(created))
	return created, nil
}

func (t *Tracker) FindByID(ctx context.Context, id uuid.UUID) (*entity.AnomalyRecord, error) {
	return t.repo.FindByID(ctx, id)
}

func (t *Tracker) FindByApplicationID(ctx context.Context, applicationID uuid.UUID) ([]*entity.AnomalyRecord, error) {
	return t.repo.FindByApplicationID(ctx, applicationID)
}

func (t *Tracker) FindByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*entity.AnomalyRecord, error) {
	return t.repo.FindByDocumentID(ctx, documentID)
}

// FindByStatus optionally narrows to one application.
func (t *Tracker) FindByStatus(ctx context.Context, status constants.AnomalyStatus, applicationID *uuid.UUID) ([]*entity.AnomalyRecord, error) {
	return t.repo.FindByStatus(ctx, status, applicationID)
}

// FindBySeverity optionally narrows to one application.
func (t *Tracker) FindBySeverity(ctx context.Context, severity constants.Severity, applicationID *uuid.UUID) ([]*entity.AnomalyRecord, error) {
	return t.repo.FindBySeverity(ctx, severity, applicationID)
}

// Review is the only operation that changes an anomaly's status.
// Transitions out of RESOLVED or FALSE_POSITIVE are rejected before anything is written.
func (t *Tracker) Review(ctx context.Context, id uuid.UUID, req ReviewRequest) (*entity.AnomalyRecord, error) {
	v := common.NewValidator().
		Field("status", req.Status, common.OneOf(
			constants.AnomalyStatusReviewed,
			constants.AnomalyStatusResolved,
			constants.AnomalyStatusFalsePositive,
		)).
		Field("reviewed_by", req.ReviewedBy, common.Required, common.MaxLength(maxReviewerLength)).
		Field("resolution_notes", req.ResolutionNotes, common.MaxLength(maxNotesLength))
	if err := v.Error(); err != nil {
		return nil, err
	}

	current, err := t.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(req.Status) {
		t.logger.Warn("anomaly.review.rejected", "id", id, "from", current.Status, "to", req.Status)
		return nil, common.NewAppError("INVALID_TRANSITION",
			fmt.Sprintf("cannot move anomaly %s from %s to %s", id, current.Status, req.Status),
			common.ErrInvalidTransition)
	}

	updated, err := t.repo.UpdateReview(ctx, id, current.Status, repository.ReviewUpdate{
		Status:          req.Status,
		ReviewedBy:      req.ReviewedBy,
		ResolutionNotes: req.ResolutionNotes,
		ReviewedAt:      t.now(),
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("anomaly.reviewed",
		"id", id,
		"from", current.Status,
		"to", updated.Status,
		"reviewed_by", req.ReviewedBy,
	)
	return updated, nil
}

// BulkReviewItem pairs an anomaly with the decision to apply.
type BulkReviewItem struct {
	ID uuid.UUID
	ReviewRequest
}

type BulkReviewFailure struct {
	ID  uuid.UUID
	Err error
}

type BulkReviewResult struct {
	Reviewed []*entity.AnomalyRecord
	Failed   []BulkReviewFailure
}

// BulkReview applies each item independently; one failure never undoes or stops the others.
func (t *Tracker) BulkReview(ctx context.Context, items []BulkReviewItem) *BulkReviewResult {
	res := &BulkReviewResult{}
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, BulkReviewFailure{ID: it.ID, Err: err})
			continue
		}
		rec, err := t.Review(ctx, it.ID, it.ReviewRequest)
		if err != nil {
			res.Failed = append(res.Failed, BulkReviewFailure{ID: it.ID, Err: err})
			continue
		}
		res.Reviewed = append(res.Reviewed, rec)
	}
	t.logger.Info("anomaly.bulk_review.done", "reviewed", len(res.Reviewed), "failed", len(res.Failed))
	return res
}

// GetPendingReviews returns PENDING anomalies, most severe first, then oldest first.
func (t *Tracker) GetPendingReviews(ctx context.Context, limit int) ([]*entity.AnomalyRecord, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	return t.repo.FindPending(ctx, limit)
}

// AutoResolveFalsePositives marks PENDING, LOW, low-confidence anomalies as FALSE_POSITIVE.
func (t *Tracker) AutoResolveFalsePositives(ctx context.Context, applicationID uuid.UUID, reviewedBy string) ([]*entity.AnomalyRecord, error) {
	pending, err := t.repo.FindByStatus(ctx, constants.AnomalyStatusPending, &applicationID)
	if err != nil {
		return nil, err
	}
	note := constants.AutoResolveNote
	var resolved []*entity.AnomalyRecord
	for _, rec := range pending {
		if rec.Severity != constants.SeverityLow || rec.Confidence >= constants.AutoResolveMaxConfidence {
			continue
		}
		updated, err := t.Review(ctx, rec.ID, ReviewRequest{
			Status:          constants.AnomalyStatusFalsePositive,
			ReviewedBy:      reviewedBy,
			ResolutionNotes: &note,
		})
		if errors.Is(err, common.ErrInvalidTransition) {
			// reviewed by someone else in the meantime
			continue
		}
		if err != nil {
			return resolved, err
		}
		resolved = append(resolved, updated)
	}
	t.logger.Info("anomaly.auto_resolve.done",
		"application_id", applicationID,
		"candidates", len(pending),
		"resolved", len(resolved),
	)
	return resolved, nil
}

// DeleteApplication removes every anomaly of an application. Administrative use only.
func (t *Tracker) DeleteApplication(ctx context.Context, applicationID uuid.UUID) (int, error) {
	n, err := t.repo.DeleteByApplicationID(ctx, applicationID)
	if err != nil {
		return 0, err
	}
	t.logger.Warn("anomaly.application.deleted", "application_id", applicationID, "count", n)
	return n, nil
}

func validateRecord(rec *entity.AnomalyRecord) error {
	if rec == nil {
		return common.NewAppError("VALIDATION_ERROR", "anomaly record is nil", common.ErrValidation)
	}
	v := common.NewValidator().
		Field("application_id", rec.ApplicationID, common.Required).
		Field("anomaly_type", rec.AnomalyType, common.Required, common.MaxLength(maxTypeLength)).
		Field("severity", rec.Severity, common.OneOf(constants.Severities...)).
		Field("description", rec.Description, common.Required, common.MaxLength(maxDescriptionLength)).
		Field("confidence", rec.Confidence, common.Range01)
	if rec.Status != "" {
		v.Field("status", rec.Status, common.OneOf(constants.AnomalyStatusPending))
	}
	return v.Error()
}
