package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
)

// Document represents an uploaded loan document for data transfer between layers.
type Document struct {
	ID            uuid.UUID              `json:"id"`
	ApplicationID uuid.UUID              `json:"application_id"`
	Filename      string                 `json:"filename"`
	DocumentType  constants.DocumentType `json:"document_type"`
	SourceURI     string                 `json:"source_uri"`
	UploadedAt    time.Time              `json:"uploaded_at"`
	Analysis      *DocumentAnalysis      `json:"analysis,omitempty"`
}

// DocumentAnalysis is the persisted summary of the per-document analyzers.
type DocumentAnalysis struct {
	Status               constants.AnalysisStatus `json:"status"`
	QualityScore         *float64                 `json:"quality_score,omitempty"`
	ManipulationScore    *float64                 `json:"manipulation_score,omitempty"`
	ExtractionConfidence *float64                 `json:"extraction_confidence,omitempty"`
	MissingFields        []string                 `json:"missing_fields,omitempty"`
	AnalyzedAt           time.Time                `json:"analyzed_at"`
}
