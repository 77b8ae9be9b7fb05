package inconsistency

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/extract"
)

// Matching thresholds for fuzzy fields; a pair matches only when similarity is strictly above.
const (
	NameThreshold    = 0.90
	AddressThreshold = 0.85
	AmountTolerance  = "0.01"
)

// Inconsistency is one conflict between two documents of an application.
// Severity is fixed at creation.
type Inconsistency struct {
	Type              constants.InconsistencyType `json:"type"`
	Severity          constants.Severity          `json:"severity"`
	Field             string                      `json:"field"`
	Description       string                      `json:"description"`
	AffectedDocuments []uuid.UUID                 `json:"affected_documents"`
	ConflictingValues []entity.ConflictingValue   `json:"conflicting_values"`
	Evidence          string                      `json:"evidence"`
	Confidence        float64                     `json:"confidence"`
}

// DocumentComparison is the outcome of comparing one unordered pair of documents.
type DocumentComparison struct {
	DocumentA         uuid.UUID `json:"document_a"`
	DocumentB         uuid.UUID `json:"document_b"`
	Similarity        float64   `json:"similarity"`
	MatchingFields    []string  `json:"matching_fields"`
	ConflictingFields []string  `json:"conflicting_fields"`
}

// Result is what one detection run over an application produces.
type Result struct {
	ApplicationID       uuid.UUID            `json:"application_id"`
	Inconsistencies     []Inconsistency      `json:"inconsistencies"`
	OverallRiskScore    float64              `json:"overall_risk_score"`
	DocumentComparisons []DocumentComparison `json:"document_comparisons"`
	DocumentsAnalyzed   int                  `json:"documents_analyzed"`
	ExcludedDocuments   []uuid.UUID          `json:"excluded_documents,omitempty"`
}

// DocumentFields is everything extracted for one document; missing categories are nil.
type DocumentFields struct {
	DocumentID uuid.UUID
	Personal   *extract.Fields
	Business   *extract.Fields
	Financial  *extract.Fields
}

func (d DocumentFields) empty() bool {
	return d.Personal == nil && d.Business == nil && d.Financial == nil
}

// OverallRiskScore is the mean of severityWeight x confidence across findings, scaled to 0..100.
func OverallRiskScore(found []Inconsistency) float64 {
	if len(found) == 0 {
		return 0
	}
	var sum float64
	for _, f := range found {
		sum += f.Severity.Weight() * f.Confidence
	}
	return sum / float64(len(found)) * 100
}

// ToAnomaly converts a finding into a pending anomaly record for the tracker.
func (i Inconsistency) ToAnomaly(applicationID uuid.UUID) *entity.AnomalyRecord {
	return &entity.AnomalyRecord{
		ApplicationID: applicationID,
		AnomalyType:   string(i.Type),
		Severity:      i.Severity,
		Description:   i.Description,
		Confidence:    i.Confidence,
		Evidence: entity.Evidence{
			Kind: entity.EvidenceInconsistency,
			Inconsistency: &entity.InconsistencyEvidence{
				AffectedDocuments: append([]uuid.UUID(nil), i.AffectedDocuments...),
				ConflictingValues: append([]entity.ConflictingValue(nil), i.ConflictingValues...),
				Details:           i.Evidence,
			},
		},
	}
}

func describe(field string, a, b uuid.UUID, va, vb string) string {
	label := strings.ReplaceAll(field, "_", " ")
	return fmt.Sprintf("%s differs between documents %s (%q) and %s (%q)",
		strings.ToUpper(label[:1])+label[1:], short(a), va, short(b), vb)
}

func short(id uuid.UUID) string {
	return id.String()[:8]
}
