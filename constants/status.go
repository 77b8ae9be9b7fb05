package constants

// JobStatus is the lifecycle state of an in-memory processing job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"    // submitted, no worker started yet
	JobStatusProcessing JobStatus = "PROCESSING" // at least one worker started
	JobStatusCompleted  JobStatus = "COMPLETED"  // every document has an outcome
	JobStatusFailed     JobStatus = "FAILED"     // the job itself broke (not a document)
	JobStatusCancelled  JobStatus = "CANCELLED"
	JobStatusTimedOut   JobStatus = "TIMED_OUT"
)

// IsTerminal reports whether no further mutation may happen to a job in this state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusTimedOut:
		return true
	}
	return false
}

// JobType selects which analyzers the queue runs per document.
type JobType string

const (
	JobTypeFullAnalysis   JobType = "FULL_ANALYSIS"
	JobTypeQualityOnly    JobType = "QUALITY_ONLY"
	JobTypeExtractionOnly JobType = "EXTRACTION_ONLY"
)

// ParseJobType accepts the canonical names case-insensitively.
func ParseJobType(s string) (JobType, bool) {
	switch normalizeKey(s) {
	case "full_analysis", "full":
		return JobTypeFullAnalysis, true
	case "quality_only", "quality":
		return JobTypeQualityOnly, true
	case "extraction_only", "extraction":
		return JobTypeExtractionOnly, true
	}
	return "", false
}

// AnomalyStatus is the review state of a persisted anomaly (store these exact strings in DB).
type AnomalyStatus string

const (
	AnomalyStatusPending       AnomalyStatus = "PENDING"
	AnomalyStatusReviewed      AnomalyStatus = "REVIEWED"
	AnomalyStatusResolved      AnomalyStatus = "RESOLVED"
	AnomalyStatusFalsePositive AnomalyStatus = "FALSE_POSITIVE"
)

var AnomalyStatuses = []AnomalyStatus{
	AnomalyStatusPending,
	AnomalyStatusReviewed,
	AnomalyStatusResolved,
	AnomalyStatusFalsePositive,
}

// IsTerminal reports whether the record can no longer be reviewed.
func (s AnomalyStatus) IsTerminal() bool {
	return s == AnomalyStatusResolved || s == AnomalyStatusFalsePositive
}

// CanTransitionTo encodes PENDING -> REVIEWED -> RESOLVED plus the PENDING -> FALSE_POSITIVE branch.
// A PENDING record may also be resolved directly.
func (s AnomalyStatus) CanTransitionTo(next AnomalyStatus) bool {
	switch s {
	case AnomalyStatusPending:
		return next == AnomalyStatusReviewed || next == AnomalyStatusResolved || next == AnomalyStatusFalsePositive
	case AnomalyStatusReviewed:
		return next == AnomalyStatusResolved
	}
	return false
}

// AnalysisStatus is stored on documents.analysis_status.
type AnalysisStatus string

const (
	AnalysisStatusNone     AnalysisStatus = "NONE"
	AnalysisStatusPartial  AnalysisStatus = "PARTIAL"  // quality-only or extraction-only run
	AnalysisStatusComplete AnalysisStatus = "COMPLETE" // full analysis
)
