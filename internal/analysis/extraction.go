package analysis

import (
	"slices"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/extract"
)

// defaultFieldConfidence applies when fields were extracted but the model reported no confidence.
const defaultFieldConfidence = 0.75

// ExtractionReport summarizes what the field provider found for one document.
type ExtractionReport struct {
	Confidence float64  `json:"confidence"` // 0..1
	Present    []string `json:"present,omitempty"`
	Missing    []string `json:"missing,omitempty"`
}

// AssessExtraction compares extracted fields to the fields the document type requires.
func AssessExtraction(docType constants.DocumentType, fields []*extract.Fields) ExtractionReport {
	var (
		present  []string
		confSum  float64
		confSeen int
	)
	for _, f := range fields {
		if f == nil {
			continue
		}
		for _, name := range f.Present() {
			if !slices.Contains(present, name) {
				present = append(present, name)
			}
		}
		if f.Confidence > 0 {
			confSum += f.Confidence
			confSeen++
		}
	}
	slices.Sort(present)

	var missing []string
	for _, req := range constants.RequiredFields(docType) {
		if !slices.Contains(present, req) {
			missing = append(missing, req)
		}
	}

	report := ExtractionReport{Present: present, Missing: missing}
	switch {
	case confSeen > 0:
		report.Confidence = confSum / float64(confSeen)
	case len(present) > 0:
		report.Confidence = defaultFieldConfidence
	}
	return report
}
