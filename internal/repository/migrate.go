package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	AnomalyTable  = "anomaly_records"
	DocumentTable = "documents"
)

var (
	// DocumentsColumns holds the columns for the "documents" table.
	DocumentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "application_id", Type: field.TypeUUID},
		{Name: "filename", Type: field.TypeString},
		{Name: "document_type", Type: field.TypeString},
		{Name: "source_uri", Type: field.TypeString, Default: ""},
		{Name: "uploaded_at", Type: field.TypeTime},
		{Name: "analysis_status", Type: field.TypeString, Default: "NONE"},
		{Name: "quality_score", Type: field.TypeFloat64, Nullable: true},
		{Name: "manipulation_score", Type: field.TypeFloat64, Nullable: true},
		{Name: "extraction_confidence", Type: field.TypeFloat64, Nullable: true},
		{Name: "missing_fields", Type: field.TypeJSON, Nullable: true},
		{Name: "analyzed_at", Type: field.TypeTime, Nullable: true},
	}
	// DocumentsTable holds the schema information for the "documents" table.
	DocumentsTable = &schema.Table{
		Name:       DocumentTable,
		Columns:    DocumentsColumns,
		PrimaryKey: []*schema.Column{DocumentsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "document_application_id_uploaded_at",
				Columns: []*schema.Column{DocumentsColumns[1], DocumentsColumns[5]},
			},
		},
	}
	// AnomalyRecordsColumns holds the columns for the "anomaly_records" table.
	AnomalyRecordsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "application_id", Type: field.TypeUUID},
		{Name: "document_id", Type: field.TypeUUID, Nullable: true},
		{Name: "anomaly_type", Type: field.TypeString},
		{Name: "severity", Type: field.TypeString},
		{Name: "severity_rank", Type: field.TypeInt},
		{Name: "description", Type: field.TypeString, Size: 2147483647},
		{Name: "evidence", Type: field.TypeJSON},
		{Name: "confidence", Type: field.TypeFloat64},
		{Name: "status", Type: field.TypeString, Default: "PENDING"},
		{Name: "reviewed_by", Type: field.TypeString, Nullable: true},
		{Name: "reviewed_at", Type: field.TypeTime, Nullable: true},
		{Name: "resolution_notes", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// AnomalyRecordsTable holds the schema information for the "anomaly_records" table.
	AnomalyRecordsTable = &schema.Table{
		Name:       AnomalyTable,
		Columns:    AnomalyRecordsColumns,
		PrimaryKey: []*schema.Column{AnomalyRecordsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "anomaly_application_id_status",
				Columns: []*schema.Column{AnomalyRecordsColumns[1], AnomalyRecordsColumns[9]},
			},
			{
				Name:    "anomaly_severity_status",
				Columns: []*schema.Column{AnomalyRecordsColumns[4], AnomalyRecordsColumns[9]},
			},
			{
				Name:    "anomaly_document_id",
				Columns: []*schema.Column{AnomalyRecordsColumns[2]},
			},
			{
				Name:    "anomaly_status_severity_rank_created_at",
				Columns: []*schema.Column{AnomalyRecordsColumns[9], AnomalyRecordsColumns[5], AnomalyRecordsColumns[13]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		DocumentsTable,
		AnomalyRecordsTable,
	}
)

// Migrate creates or upgrades the tables. Storage engine migrations proper are owned
// by operations; this keeps embedded and test databases self-contained.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	m, err := schema.NewMigrate(db.drv)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		logger.Error("schema migration failed", "error", err)
		return fmt.Errorf("migrate: create tables: %w", err)
	}
	logger.Info("schema migrated", "tables", len(Tables))
	return nil
}
