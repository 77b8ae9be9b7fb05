package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
)

// AnomalyRecord is a persisted, reviewable finding for data transfer between layers.
type AnomalyRecord struct {
	ID              uuid.UUID               `json:"id"`
	ApplicationID   uuid.UUID               `json:"application_id"`
	DocumentID      *uuid.UUID              `json:"document_id,omitempty"`
	AnomalyType     string                  `json:"anomaly_type"`
	Severity        constants.Severity      `json:"severity"`
	Description     string                  `json:"description"`
	Evidence        Evidence                `json:"evidence"`
	Confidence      float64                 `json:"confidence"`
	Status          constants.AnomalyStatus `json:"status"`
	ReviewedBy      *string                 `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time              `json:"reviewed_at,omitempty"`
	ResolutionNotes *string                 `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// EvidenceKind tags which member of Evidence is populated.
type EvidenceKind string

const (
	EvidenceInconsistency EvidenceKind = "inconsistency"
	EvidenceManipulation  EvidenceKind = "manipulation"
	EvidenceRaw           EvidenceKind = "raw"
)

// Evidence is a tagged union of the evidence shapes the detectors produce.
// Unknown shapes round-trip through Raw.
type Evidence struct {
	Kind          EvidenceKind           `json:"kind"`
	Inconsistency *InconsistencyEvidence `json:"inconsistency,omitempty"`
	Manipulation  *ManipulationEvidence  `json:"manipulation,omitempty"`
	Raw           json.RawMessage        `json:"raw,omitempty"`
}

// InconsistencyEvidence captures the conflicting values across documents.
type InconsistencyEvidence struct {
	AffectedDocuments []uuid.UUID        `json:"affected_documents"`
	ConflictingValues []ConflictingValue `json:"conflicting_values"`
	Details           string             `json:"details,omitempty"`
}

// ConflictingValue is one document's value for a conflicting field.
type ConflictingValue struct {
	DocumentID uuid.UUID `json:"document_id"`
	Field      string    `json:"field"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
}

// ManipulationEvidence describes a forensic indicator on one document.
type ManipulationEvidence struct {
	Indicator string            `json:"indicator"`
	Score     float64           `json:"score"`
	Page      int               `json:"page,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// RawEvidence wraps an opaque blob for forward compatibility.
func RawEvidence(b []byte) Evidence {
	if len(b) == 0 {
		return Evidence{Kind: EvidenceRaw}
	}
	return Evidence{Kind: EvidenceRaw, Raw: json.RawMessage(b)}
}

// DecodeEvidence never fails on well-formed JSON: shapes it does not recognize become raw evidence.
func DecodeEvidence(b []byte) (Evidence, error) {
	if len(b) == 0 {
		return Evidence{Kind: EvidenceRaw}, nil
	}
	var ev Evidence
	if err := json.Unmarshal(b, &ev); err != nil {
		return Evidence{}, err
	}
	switch {
	case ev.Kind == EvidenceInconsistency && ev.Inconsistency != nil:
		return ev, nil
	case ev.Kind == EvidenceManipulation && ev.Manipulation != nil:
		return ev, nil
	case ev.Kind == EvidenceRaw:
		return ev, nil
	}
	return RawEvidence(b), nil
}

// Encode serializes evidence for storage.
func (e Evidence) Encode() ([]byte, error) {
	if e.Kind == "" {
		e.Kind = EvidenceRaw
	}
	return json.Marshal(e)
}
