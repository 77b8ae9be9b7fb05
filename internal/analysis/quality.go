package analysis

import (
	"fmt"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/extract"
)

// Issue codes reported by AssessQuality.
const (
	IssueNoPages          = "NO_PAGES"
	IssueLowOCRConfidence = "LOW_OCR_CONFIDENCE"
	IssueLowResolution    = "LOW_RESOLUTION"
	IssueSparseText       = "SPARSE_TEXT"
	IssueMissingPages     = "MISSING_PAGES"
)

const (
	lowResolutionPenalty    = 10.0
	lowResolutionPenaltyCap = 30.0
	sparseTextPenalty       = 20.0
	missingPagePenalty      = 15.0
	missingPagePenaltyCap   = 30.0
)

type QualityIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Page    int    `json:"page,omitempty"`
}

// QualityReport scores how usable a document is, 100 being pristine.
type QualityReport struct {
	Score  float64        `json:"score"`
	Issues []QualityIssue `json:"issues,omitempty"`
}

// AssessQuality scores the layout result. Low average OCR confidence costs up to 70 points,
// then resolution, sparse text and missing pages each take a bounded penalty.
func AssessQuality(res extract.LayoutResult) QualityReport {
	if len(res.Pages) == 0 {
		return QualityReport{
			Score:  0,
			Issues: []QualityIssue{{Code: IssueNoPages, Message: "layout returned no pages"}},
		}
	}

	var (
		report   QualityReport
		score    = 100.0
		confSum  float64
		words    int
		lowResPn float64
	)
	for _, p := range res.Pages {
		confSum += p.OCRConfidence
		words += p.WordCount
		if p.OCRConfidence < constants.LowOCRConfidenceThreshold {
			report.Issues = append(report.Issues, QualityIssue{
				Code:    IssueLowOCRConfidence,
				Message: fmt.Sprintf("OCR confidence %.2f below %.2f", p.OCRConfidence, constants.LowOCRConfidenceThreshold),
				Page:    p.Number,
			})
		}
		if res.Format == constants.IMAGE && p.DPI > 0 && p.DPI < constants.MinImageDPI {
			lowResPn += lowResolutionPenalty
			report.Issues = append(report.Issues, QualityIssue{
				Code:    IssueLowResolution,
				Message: fmt.Sprintf("%d DPI below %d", p.DPI, constants.MinImageDPI),
				Page:    p.Number,
			})
		}
	}

	avgConf := confSum / float64(len(res.Pages))
	if avgConf < constants.LowOCRConfidenceThreshold {
		score -= (constants.LowOCRConfidenceThreshold - avgConf) * 100
	}
	score -= min(lowResPn, lowResolutionPenaltyCap)

	if words < constants.SparseTextWordCount {
		score -= sparseTextPenalty
		report.Issues = append(report.Issues, QualityIssue{
			Code:    IssueSparseText,
			Message: fmt.Sprintf("only %d words recognized", words),
		})
	}

	if missing := res.ExpectedPages - len(res.Pages); res.ExpectedPages > 0 && missing > 0 {
		score -= min(float64(missing)*missingPagePenalty, missingPagePenaltyCap)
		report.Issues = append(report.Issues, QualityIssue{
			Code:    IssueMissingPages,
			Message: fmt.Sprintf("%d of %d pages missing", missing, res.ExpectedPages),
		})
	}

	report.Score = clamp(score, 0, 100)
	return report
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
