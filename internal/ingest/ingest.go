package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
)

// DocumentStore is the slice of the document repository ingestion writes through.
type DocumentStore interface {
	Create(ctx context.Context, doc *entity.Document) (*entity.Document, error)
	ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*entity.Document, error)
}

// Result is the per-file ingest outcome.
type Result struct {
	SourcePath   string                 `json:"source_path"`
	DocumentID   uuid.UUID              `json:"document_id,omitempty"`
	DocumentType constants.DocumentType `json:"document_type,omitempty"`
	Deduplicated bool                   `json:"deduplicated"`
	Err          string                 `json:"error,omitempty"`
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32 `json:"scanned"`
	Matched      uint32 `json:"matched"`
	Succeeded    uint32 `json:"succeeded"`
	Deduplicated uint32 `json:"deduplicated"`
	Failed       uint32 `json:"failed"`
}
