package risk

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/inconsistency"
)

// Input is the already-fetched data for one application.
type Input struct {
	ApplicationID         uuid.UUID
	Documents             []*entity.Document
	Anomalies             []*entity.AnomalyRecord
	Inconsistency         *inconsistency.Result // nil when detection was not run or failed
	RequiredDocumentTypes []constants.DocumentType
	Now                   time.Time
}

var inconsistencyTypes = map[string]bool{
	string(constants.NameMismatch):          true,
	string(constants.AddressMismatch):       true,
	string(constants.IDNumberMismatch):      true,
	string(constants.BusinessInfoConflict):  true,
	string(constants.AmountMismatch):        true,
	string(constants.DateMismatch):          true,
	string(constants.MissingCrossReference): true,
}

var anomalyPoints = map[constants.Severity]float64{
	constants.SeverityCritical: 40,
	constants.SeverityHigh:     25,
	constants.SeverityMedium:   10,
	constants.SeverityLow:      5,
}

// Assess is a pure function of its input. FALSE_POSITIVE anomalies never contribute.
func Assess(in Input) *Assessment {
	a := &Assessment{
		ApplicationID: in.ApplicationID,
		ByCategory:    make(map[Category]CategoryScore, len(Categories)),
		AssessedAt:    in.Now,
		Evidence:      Evidence{Findings: []Finding{}, DocumentsConsidered: []uuid.UUID{}},
	}

	var (
		active           []*entity.AnomalyRecord
		hasInconsistency bool
	)
	for _, rec := range in.Anomalies {
		if rec.Status == constants.AnomalyStatusFalsePositive {
			a.Evidence.ExcludedFalsePositives++
			continue
		}
		if inconsistencyTypes[rec.AnomalyType] {
			hasInconsistency = true
		}
		active = append(active, rec)
		a.Evidence.Findings = append(a.Evidence.Findings, anomalyFinding(rec))
	}
	for _, d := range in.Documents {
		a.Evidence.DocumentsConsidered = append(a.Evidence.DocumentsConsidered, d.ID)
	}

	// persisted non-false-positive inconsistency records take precedence over a fresh detector run
	var fresh []inconsistency.Inconsistency
	switch {
	case hasInconsistency:
		a.Evidence.InconsistencySource = "anomaly_records"
	case in.Inconsistency != nil:
		a.Evidence.InconsistencySource = "detector"
		fresh = in.Inconsistency.Inconsistencies
		for _, inc := range fresh {
			a.Evidence.Findings = append(a.Evidence.Findings, Finding{
				Source:      SourceInconsistency,
				DocumentIDs: inc.AffectedDocuments,
				Type:        string(inc.Type),
				Severity:    inc.Severity,
				Confidence:  inc.Confidence,
				Description: inc.Description,
			})
		}
	default:
		a.Evidence.InconsistencySource = "none"
	}

	scores := []CategoryScore{
		qualityScore(in.Documents),
		manipulationScore(in.Documents),
		inconsistencyScore(active, fresh, hasInconsistency || in.Inconsistency != nil),
		missingScore(in.Documents, in.RequiredDocumentTypes, a),
		severityScore(active, fresh),
		extractionScore(in.Documents),
	}
	available := 0
	for _, s := range scores {
		s.Weight = Weights[s.Category]
		s.Weighted = s.Score * s.Weight
		a.Overall += s.Weighted
		a.ByCategory[s.Category] = s
		if s.Available {
			available++
		}
	}
	a.Overall = round2(a.Overall)
	a.Recommendation = RecommendationFor(a.Overall)

	reasons := escalationReasons(a, a.Evidence.Findings)
	if len(reasons) > 0 {
		a.EscalationRequired = true
		a.EscalationReason = strings.Join(reasons, "; ")
	}
	a.Confidence = confidence(in.Documents, available)
	return a
}

func anomalyFinding(rec *entity.AnomalyRecord) Finding {
	id := rec.ID
	f := Finding{
		Source:      SourceAnomaly,
		AnomalyID:   &id,
		Type:        rec.AnomalyType,
		Severity:    rec.Severity,
		Confidence:  rec.Confidence,
		Description: rec.Description,
	}
	if rec.DocumentID != nil {
		f.DocumentIDs = []uuid.UUID{*rec.DocumentID}
	} else if ev := rec.Evidence.Inconsistency; ev != nil {
		f.DocumentIDs = ev.AffectedDocuments
	}
	return f
}

func qualityScore(docs []*entity.Document) CategoryScore {
	s := CategoryScore{Category: DocumentQuality}
	var sum float64
	n := 0
	for _, d := range docs {
		if d.Analysis == nil || d.Analysis.QualityScore == nil {
			continue
		}
		q := *d.Analysis.QualityScore
		sum += 100 - q
		n++
		if q < 70 {
			s.Evidence = append(s.Evidence, fmt.Sprintf("document %s quality %.1f", d.ID, q))
		}
	}
	if n > 0 {
		s.Available = true
		s.Score = clamp(sum / float64(n))
	}
	return s
}

// manipulationScore is the worst document's score.
func manipulationScore(docs []*entity.Document) CategoryScore {
	s := CategoryScore{Category: ImageManipulation}
	for _, d := range docs {
		if d.Analysis == nil || d.Analysis.ManipulationScore == nil {
			continue
		}
		m := *d.Analysis.ManipulationScore
		s.Available = true
		if m > s.Score {
			s.Score = clamp(m)
		}
		if m > 0 {
			s.Evidence = append(s.Evidence, fmt.Sprintf("document %s manipulation %.1f", d.ID, m))
		}
	}
	return s
}

func inconsistencyScore(active []*entity.AnomalyRecord, fresh []inconsistency.Inconsistency, available bool) CategoryScore {
	s := CategoryScore{Category: DataInconsistency, Available: available}
	found := slices.Clone(fresh)
	for _, rec := range active {
		if !inconsistencyTypes[rec.AnomalyType] {
			continue
		}
		found = append(found, inconsistency.Inconsistency{
			Type:       constants.InconsistencyType(rec.AnomalyType),
			Severity:   rec.Severity,
			Confidence: rec.Confidence,
		})
	}
	for _, f := range found {
		s.Evidence = append(s.Evidence, fmt.Sprintf("%s %s (%.2f)", f.Severity, f.Type, f.Confidence))
	}
	s.Score = clamp(inconsistency.OverallRiskScore(found) * inconsistencyCategoryFactor)
	return s
}

func missingScore(docs []*entity.Document, required []constants.DocumentType, a *Assessment) CategoryScore {
	s := CategoryScore{Category: MissingInformation, Available: len(docs) > 0}

	present := make(map[constants.DocumentType]bool, len(docs))
	for _, d := range docs {
		present[d.DocumentType] = true
	}
	var typeRatio float64
	if len(required) > 0 {
		missing := 0
		for _, t := range required {
			if !present[t] {
				missing++
				a.Evidence.MissingDocumentTypes = append(a.Evidence.MissingDocumentTypes, string(t))
				s.Evidence = append(s.Evidence, "missing document type "+string(t))
			}
		}
		typeRatio = float64(missing) / float64(len(required))
	}

	var missingFields, expectedFields int
	for _, d := range docs {
		if d.Analysis == nil || d.Analysis.ExtractionConfidence == nil {
			continue
		}
		expectedFields += len(constants.RequiredFields(d.DocumentType))
		missingFields += len(d.Analysis.MissingFields)
		if len(d.Analysis.MissingFields) > 0 {
			s.Evidence = append(s.Evidence, fmt.Sprintf("document %s missing %s", d.ID, strings.Join(d.Analysis.MissingFields, ", ")))
		}
	}
	var fieldRatio float64
	if expectedFields > 0 {
		fieldRatio = math.Min(1, float64(missingFields)/float64(expectedFields))
	}

	s.Score = clamp(100 * (missingDocumentTypeShare*typeRatio + missingFieldShare*fieldRatio))
	return s
}

func severityScore(active []*entity.AnomalyRecord, fresh []inconsistency.Inconsistency) CategoryScore {
	s := CategoryScore{Category: AnomalySeverity, Available: true}
	var points float64
	counts := map[constants.Severity]int{}
	for _, rec := range active {
		points += anomalyPoints[rec.Severity] * rec.Confidence
		counts[rec.Severity]++
	}
	for _, inc := range fresh {
		points += anomalyPoints[inc.Severity] * inc.Confidence
		counts[inc.Severity]++
	}
	for _, sev := range constants.Severities {
		if counts[sev] > 0 {
			s.Evidence = append(s.Evidence, fmt.Sprintf("%d %s", counts[sev], sev))
		}
	}
	s.Score = clamp(math.Min(points, anomalySeverityPointsCap))
	return s
}

func extractionScore(docs []*entity.Document) CategoryScore {
	s := CategoryScore{Category: ExtractionConfidence}
	var sum float64
	n := 0
	for _, d := range docs {
		if d.Analysis == nil || d.Analysis.ExtractionConfidence == nil {
			continue
		}
		sum += *d.Analysis.ExtractionConfidence
		n++
	}
	if n > 0 {
		mean := sum / float64(n)
		s.Available = true
		s.Score = clamp(100 * (1 - mean))
		s.Evidence = append(s.Evidence, fmt.Sprintf("mean extraction confidence %.2f over %d documents", mean, n))
	}
	return s
}

func escalationReasons(a *Assessment, findings []Finding) []string {
	var reasons []string
	if a.Overall >= EscalationOverall {
		reasons = append(reasons, fmt.Sprintf("overall risk %.1f at or above %.0f", a.Overall, EscalationOverall))
	}
	critical, high := 0, 0
	for _, f := range findings {
		switch f.Severity {
		case constants.SeverityCritical:
			critical++
		case constants.SeverityHigh:
			high++
		}
	}
	if critical > 0 {
		reasons = append(reasons, fmt.Sprintf("%d critical finding(s)", critical))
	}
	if high >= EscalationHighCount {
		reasons = append(reasons, fmt.Sprintf("%d high severity findings", high))
	}
	if s := a.ByCategory[DataInconsistency].Score; s > InconsistencyHighRisk {
		reasons = append(reasons, fmt.Sprintf("data inconsistency %.1f above %.0f", s, InconsistencyHighRisk))
	}
	if s := a.ByCategory[ImageManipulation].Score; s > ManipulationHighRisk {
		reasons = append(reasons, fmt.Sprintf("image manipulation %.1f above %.0f", s, ManipulationHighRisk))
	}
	return reasons
}

// confidence reflects how much of the picture was available: analyzed documents and populated categories.
func confidence(docs []*entity.Document, availableCategories int) float64 {
	if len(docs) == 0 {
		return 0
	}
	analyzed := 0
	for _, d := range docs {
		if d.Analysis != nil && d.Analysis.Status != constants.AnalysisStatusNone {
			analyzed++
		}
	}
	docShare := float64(analyzed) / float64(len(docs))
	catShare := float64(availableCategories) / float64(len(Categories))
	return round2(0.5*docShare + 0.5*catShare)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
