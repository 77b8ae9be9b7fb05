package anomaly

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
)

// GenerateAnomalyReport renders every anomaly of the application as markdown, grouped by severity.
// Output depends only on stored data and the tracker clock.
func (t *Tracker) GenerateAnomalyReport(ctx context.Context, applicationID uuid.UUID) (string, error) {
	recs, err := t.repo.FindByApplicationID(ctx, applicationID)
	if err != nil {
		return "", err
	}
	report := RenderReport(applicationID, recs, t.now())
	t.logger.Info("anomaly.report.generated", "application_id", applicationID, "anomalies", len(recs))
	return report, nil
}

// RenderReport is the pure formatter behind GenerateAnomalyReport.
func RenderReport(applicationID uuid.UUID, recs []*entity.AnomalyRecord, generatedAt time.Time) string {
	sorted := slices.Clone(recs)
	slices.SortStableFunc(sorted, func(a, b *entity.AnomalyRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	bySeverity := make(map[constants.Severity][]*entity.AnomalyRecord)
	pending, falsePositives := 0, 0
	for _, r := range sorted {
		bySeverity[r.Severity] = append(bySeverity[r.Severity], r)
		switch r.Status {
		case constants.AnomalyStatusPending:
			pending++
		case constants.AnomalyStatusFalsePositive:
			falsePositives++
		}
	}

	var b strings.Builder
	b.WriteString("# Anomaly Report\n")
	fmt.Fprintf(&b, "Application: %s\n", applicationID)
	fmt.Fprintf(&b, "Generated: %s\n", formatTime(generatedAt))
	fmt.Fprintf(&b, "Total Anomalies: %d\n", len(sorted))
	b.WriteString("\n## Summary\n")
	for _, sev := range constants.Severities {
		fmt.Fprintf(&b, "- %s: %d\n", sev.Title(), len(bySeverity[sev]))
	}
	fmt.Fprintf(&b, "- Pending Review: %d\n", pending)
	fmt.Fprintf(&b, "- False Positives: %d\n", falsePositives)

	if len(sorted) == 0 {
		b.WriteString("\nNo anomalies detected.\n")
		return b.String()
	}

	for _, sev := range constants.Severities {
		group := bySeverity[sev]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s Severity (%d)\n", sev.Title(), len(group))
		for i, r := range group {
			writeRecord(&b, i+1, r)
		}
	}
	return b.String()
}

func writeRecord(b *strings.Builder, n int, r *entity.AnomalyRecord) {
	fmt.Fprintf(b, "\n### %d. %s\n", n, r.AnomalyType)
	fmt.Fprintf(b, "- ID: %s\n", r.ID)
	doc := "N/A"
	if r.DocumentID != nil {
		doc = r.DocumentID.String()
	}
	fmt.Fprintf(b, "- Document: %s\n", doc)
	fmt.Fprintf(b, "- Status: %s\n", r.Status)
	fmt.Fprintf(b, "- Confidence: %.1f%%\n", r.Confidence*100)
	fmt.Fprintf(b, "- Description: %s\n", r.Description)
	fmt.Fprintf(b, "- Detected: %s\n", formatTime(r.CreatedAt))
	if r.ReviewedBy != nil && r.ReviewedAt != nil {
		fmt.Fprintf(b, "- Reviewed By: %s\n", *r.ReviewedBy)
		fmt.Fprintf(b, "- Reviewed At: %s\n", formatTime(*r.ReviewedAt))
	}
	if r.ResolutionNotes != nil && *r.ResolutionNotes != "" {
		fmt.Fprintf(b, "- Resolution Notes: %s\n", *r.ResolutionNotes)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
