package analysis

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/extract"
)

var editingSoftware = []string{
	"photoshop", "gimp", "illustrator", "paint.net", "pixelmator", "affinity",
	"canva", "pdf editor", "phantompdf", "nitro", "sejda", "ilovepdf", "pdfescape",
}

const (
	maxFontsPerPage          = 3
	confidenceVarianceStdDev = 0.15
	lowCompressionQuality    = 50
	modificationGrace        = 24 * time.Hour
)

// Indicator is one forensic signal raised on a document.
type Indicator struct {
	Type        constants.ManipulationType `json:"type"`
	Severity    constants.Severity         `json:"severity"`
	Confidence  float64                    `json:"confidence"`
	Description string                     `json:"description"`
	Page        int                        `json:"page,omitempty"`
	Details     map[string]string          `json:"details,omitempty"`
}

// ManipulationReport scores tampering likelihood, 0 being clean.
type ManipulationReport struct {
	Score      float64     `json:"score"`
	Indicators []Indicator `json:"indicators,omitempty"`
}

// DetectManipulation inspects file metadata and per-page layout signals.
// uploadedAt bounds plausible creation dates; pass the zero time to skip that check.
func DetectManipulation(res extract.LayoutResult, uploadedAt time.Time) ManipulationReport {
	var ind []Indicator
	ind = append(ind, metadataDates(res.Metadata, uploadedAt)...)
	ind = append(ind, editingTools(res.Metadata)...)
	ind = append(ind, fontMix(res.Pages)...)
	ind = append(ind, confidenceSpread(res.Pages)...)
	ind = append(ind, compression(res.Pages)...)
	return ManipulationReport{Score: combineIndicators(ind), Indicators: ind}
}

// combineIndicators is a noisy-or over per-indicator points so independent signals
// reinforce each other without exceeding 100.
func combineIndicators(ind []Indicator) float64 {
	clean := 1.0
	for _, i := range ind {
		p := severityPoints(i.Severity) * clamp(i.Confidence, 0, 1) / 100
		clean *= 1 - p
	}
	return clamp((1-clean)*100, 0, 100)
}

func severityPoints(s constants.Severity) float64 {
	switch s {
	case constants.SeverityCritical:
		return 100
	case constants.SeverityHigh:
		return 70
	case constants.SeverityMedium:
		return 45
	case constants.SeverityLow:
		return 20
	}
	return 0
}

func metadataDates(m extract.Metadata, uploadedAt time.Time) []Indicator {
	var out []Indicator
	if m.CreatedAt != nil && m.ModifiedAt != nil {
		created, modified := *m.CreatedAt, *m.ModifiedAt
		switch {
		case modified.Before(created):
			out = append(out, Indicator{
				Type:        constants.MetadataDateInconsistency,
				Severity:    constants.SeverityHigh,
				Confidence:  0.9,
				Description: "modification date precedes creation date",
				Details:     dateDetails(created, modified),
			})
		case modified.Sub(created) > modificationGrace:
			out = append(out, Indicator{
				Type:        constants.MetadataDateInconsistency,
				Severity:    constants.SeverityMedium,
				Confidence:  0.6,
				Description: fmt.Sprintf("document modified %s after creation", modified.Sub(created).Round(time.Hour)),
				Details:     dateDetails(created, modified),
			})
		}
	}
	if m.CreatedAt != nil && !uploadedAt.IsZero() && m.CreatedAt.After(uploadedAt) {
		out = append(out, Indicator{
			Type:        constants.MetadataDateInconsistency,
			Severity:    constants.SeverityHigh,
			Confidence:  0.85,
			Description: "creation date is after the upload time",
			Details: map[string]string{
				"created_at":  m.CreatedAt.UTC().Format(time.RFC3339),
				"uploaded_at": uploadedAt.UTC().Format(time.RFC3339),
			},
		})
	}
	return out
}

func dateDetails(created, modified time.Time) map[string]string {
	return map[string]string{
		"created_at":  created.UTC().Format(time.RFC3339),
		"modified_at": modified.UTC().Format(time.RFC3339),
	}
}

func editingTools(m extract.Metadata) []Indicator {
	for _, field := range []struct{ name, value string }{{"producer", m.Producer}, {"creator", m.Creator}} {
		v := strings.ToLower(field.value)
		for _, tool := range editingSoftware {
			if strings.Contains(v, tool) {
				return []Indicator{{
					Type:        constants.EditingSoftware,
					Severity:    constants.SeverityHigh,
					Confidence:  0.8,
					Description: fmt.Sprintf("%s metadata names editing software %q", field.name, field.value),
					Details:     map[string]string{field.name: field.value},
				}}
			}
		}
	}
	return nil
}

func fontMix(pages []extract.PageLayout) []Indicator {
	var out []Indicator
	for _, p := range pages {
		distinct := make(map[string]struct{}, len(p.Fonts))
		for _, f := range p.Fonts {
			distinct[strings.ToLower(strings.TrimSpace(f))] = struct{}{}
		}
		if len(distinct) > maxFontsPerPage {
			out = append(out, Indicator{
				Type:        constants.FontInconsistency,
				Severity:    constants.SeverityMedium,
				Confidence:  0.6,
				Description: fmt.Sprintf("%d distinct fonts on one page", len(distinct)),
				Page:        p.Number,
				Details:     map[string]string{"fonts": strings.Join(p.Fonts, ", ")},
			})
		}
	}
	return out
}

func confidenceSpread(pages []extract.PageLayout) []Indicator {
	if len(pages) < 2 {
		return nil
	}
	var sum float64
	for _, p := range pages {
		sum += p.OCRConfidence
	}
	mean := sum / float64(len(pages))
	var sq float64
	for _, p := range pages {
		d := p.OCRConfidence - mean
		sq += d * d
	}
	stddev := math.Sqrt(sq / float64(len(pages)))
	if stddev <= confidenceVarianceStdDev {
		return nil
	}
	return []Indicator{{
		Type:        constants.ConfidenceVariance,
		Severity:    constants.SeverityMedium,
		Confidence:  0.5,
		Description: fmt.Sprintf("OCR confidence varies across pages (stddev %.2f)", stddev),
		Details:     map[string]string{"stddev": fmt.Sprintf("%.3f", stddev)},
	}}
}

func compression(pages []extract.PageLayout) []Indicator {
	var out []Indicator
	for _, p := range pages {
		switch {
		case p.RecompressionCount >= 2:
			out = append(out, Indicator{
				Type:        constants.CompressionArtifacts,
				Severity:    constants.SeverityMedium,
				Confidence:  0.65,
				Description: fmt.Sprintf("page re-encoded %d times", p.RecompressionCount),
				Page:        p.Number,
			})
		case p.CompressionQuality > 0 && p.CompressionQuality < lowCompressionQuality:
			out = append(out, Indicator{
				Type:        constants.CompressionArtifacts,
				Severity:    constants.SeverityLow,
				Confidence:  0.5,
				Description: fmt.Sprintf("heavy compression (quality %d)", p.CompressionQuality),
				Page:        p.Number,
			})
		}
	}
	return out
}
