package risk

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
)

// Category is one weighted input to the overall score.
type Category string

const (
	DocumentQuality      Category = "document_quality"
	ImageManipulation    Category = "image_manipulation"
	DataInconsistency    Category = "data_inconsistency"
	MissingInformation   Category = "missing_information"
	AnomalySeverity      Category = "anomaly_severity"
	ExtractionConfidence Category = "extraction_confidence"
)

// Categories in display order.
var Categories = []Category{
	DocumentQuality,
	ImageManipulation,
	DataInconsistency,
	MissingInformation,
	AnomalySeverity,
	ExtractionConfidence,
}

// Weights sum to 1.0.
var Weights = map[Category]float64{
	DocumentQuality:      0.20,
	ImageManipulation:    0.25,
	DataInconsistency:    0.25,
	MissingInformation:   0.10,
	AnomalySeverity:      0.15,
	ExtractionConfidence: 0.05,
}

type Recommendation string

const (
	Approve         Recommendation = "APPROVE"
	RequestMoreInfo Recommendation = "REQUEST_MORE_INFO"
	Escalate        Recommendation = "ESCALATE"
	Reject          Recommendation = "REJECT"
)

// Escalation thresholds.
const (
	EscalationOverall           = 70.0
	EscalationHighCount         = 3
	InconsistencyHighRisk       = 60.0
	ManipulationHighRisk        = 70.0
	recommendMoreInfoAt         = 30.0
	recommendEscalateAt         = 50.0
	recommendRejectAt           = 70.0
	missingDocumentTypeShare    = 0.6
	missingFieldShare           = 0.4
	anomalySeverityPointsCap    = 100.0
	inconsistencyCategoryFactor = 2.5 // detector score tops out at 40 for all-critical findings
)

// CategoryScore is a 0..100 sub-score where higher means riskier.
type CategoryScore struct {
	Category  Category `json:"category"`
	Score     float64  `json:"score"`
	Weight    float64  `json:"weight"`
	Weighted  float64  `json:"weighted"`
	Available bool     `json:"available"`
	Evidence  []string `json:"evidence,omitempty"`
}

// FindingSource tells where a finding counted towards the assessment came from.
type FindingSource string

const (
	SourceAnomaly       FindingSource = "anomaly"
	SourceInconsistency FindingSource = "inconsistency"
)

// Finding is a contributing anomaly or fresh inconsistency, kept for audit display.
type Finding struct {
	Source      FindingSource      `json:"source"`
	AnomalyID   *uuid.UUID         `json:"anomaly_id,omitempty"`
	DocumentIDs []uuid.UUID        `json:"document_ids,omitempty"`
	Type        string             `json:"type"`
	Severity    constants.Severity `json:"severity"`
	Confidence  float64            `json:"confidence"`
	Description string             `json:"description"`
}

// Evidence is everything the assessment was computed from.
type Evidence struct {
	Findings               []Finding   `json:"findings"`
	DocumentsConsidered    []uuid.UUID `json:"documents_considered"`
	MissingDocumentTypes   []string    `json:"missing_document_types,omitempty"`
	ExcludedFalsePositives int         `json:"excluded_false_positives"`
	InconsistencySource    string      `json:"inconsistency_source"`
}

// Assessment is recomputed on demand and never persisted.
type Assessment struct {
	ApplicationID      uuid.UUID                  `json:"application_id"`
	Overall            float64                    `json:"overall"`
	ByCategory         map[Category]CategoryScore `json:"by_category"`
	Recommendation     Recommendation             `json:"recommendation"`
	EscalationRequired bool                       `json:"escalation_required"`
	EscalationReason   string                     `json:"escalation_reason,omitempty"`
	Confidence         float64                    `json:"confidence"`
	Evidence           Evidence                   `json:"evidence"`
	AssessedAt         time.Time                  `json:"assessed_at"`
}

// RecommendationFor maps an overall score onto a disposition.
func RecommendationFor(overall float64) Recommendation {
	switch {
	case overall >= recommendRejectAt:
		return Reject
	case overall >= recommendEscalateAt:
		return Escalate
	case overall >= recommendMoreInfoAt:
		return RequestMoreInfo
	}
	return Approve
}
