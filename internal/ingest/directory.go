package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/internal/common"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
)

// FSIngestor registers documents found on the local filesystem against an application.
type FSIngestor struct {
	docs   DocumentStore
	logger *slog.Logger
}

func NewFSIngestor(docs DocumentStore, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{docs: docs, logger: logger}
}

// IngestPath registers one file. A file already registered under the same source URI is not duplicated.
func (i *FSIngestor) IngestPath(ctx context.Context, applicationID uuid.UUID, path string) (Result, error) {
	existing, err := i.existingURIs(ctx, applicationID)
	if err != nil {
		return Result{SourcePath: path}, err
	}
	return i.ingest(ctx, applicationID, path, existing)
}

// IngestDirectory walks root, skips hidden entries if requested,
// and registers every supported file. Per-file failures are reported, not returned.
func (i *FSIngestor) IngestDirectory(
	ctx context.Context,
	applicationID uuid.UUID,
	root string,
	skipHidden bool,
) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.NewAppError("INVALID_INPUT", "root path is required", common.ErrInvalidInput)
	}
	existing, err := i.existingURIs(ctx, applicationID)
	if err != nil {
		return nil, DirStats{}, err
	}

	var results []Result
	var stats DirStats

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.ingest(ctx, applicationID, path, existing)
		if err != nil {
			results = append(results, Result{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})

	i.logger.Info("ingest.directory.done",
		"application_id", applicationID,
		"root", root,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

func (i *FSIngestor) existingURIs(ctx context.Context, applicationID uuid.UUID) (map[string]*entity.Document, error) {
	docs, err := i.docs.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*entity.Document, len(docs))
	for _, d := range docs {
		if d.SourceURI != "" {
			out[d.SourceURI] = d
		}
	}
	return out, nil
}

func (i *FSIngestor) ingest(ctx context.Context, applicationID uuid.UUID, path string, existing map[string]*entity.Document) (Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{SourcePath: path}, fmt.Errorf("abs path: %w", err)
	}
	out := Result{SourcePath: abs}

	if !AllowedExt(filepath.Ext(abs)) {
		return out, common.NewAppError("INVALID_INPUT", fmt.Sprintf("unsupported extension %q", filepath.Ext(abs)), common.ErrInvalidInput)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return out, err
	}
	if info.IsDir() {
		return out, common.NewAppError("INVALID_INPUT", abs+" is a directory", common.ErrInvalidInput)
	}
	if info.Size() == 0 {
		return out, common.NewAppError("INVALID_INPUT", abs+" is empty", common.ErrInvalidInput)
	}

	uri := SourceURI(abs)
	if doc, ok := existing[uri]; ok {
		out.DocumentID = doc.ID
		out.DocumentType = doc.DocumentType
		out.Deduplicated = true
		i.logger.Debug("ingest.file.deduplicated", "application_id", applicationID, "path", abs, "document_id", doc.ID)
		return out, nil
	}

	doc, err := i.docs.Create(ctx, &entity.Document{
		ApplicationID: applicationID,
		Filename:      filepath.Base(abs),
		DocumentType:  GuessDocumentType(abs),
		SourceURI:     uri,
	})
	if err != nil {
		return out, err
	}
	existing[uri] = doc
	out.DocumentID = doc.ID
	out.DocumentType = doc.DocumentType
	i.logger.Info("ingest.file.registered", "application_id", applicationID, "path", abs, "document_id", doc.ID, "type", doc.DocumentType)
	return out, nil
}
