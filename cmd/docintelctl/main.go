package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/anomaly"
	"github.com/joseph-ayodele/loan-docintel/internal/app"
	"github.com/joseph-ayodele/loan-docintel/internal/async"
	"github.com/joseph-ayodele/loan-docintel/internal/common"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/repository"
)

var Version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "warning: could not load .env:", err)
	}

	rootCmd := &cobra.Command{
		Use:           "docintelctl",
		Short:         "docintelctl - loan document analysis, review and reporting",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("db", "", "Database DSN (overrides DB_URL)")
	rootCmd.PersistentFlags().String("driver", "", "Database driver: postgres or sqlite (overrides DB_DRIVER)")
	rootCmd.PersistentFlags().Bool("events", false, "Stream queue events as JSON lines to stderr")

	rootCmd.AddCommand(addDocumentCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(autoResolveCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(healthCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = common.WithRequestID(ctx, uuid.NewString())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp loads configuration, applies flag overrides and wires the services.
// needAnalyzers validates the layout and LLM settings too.
func openApp(cmd *cobra.Command, needAnalyzers bool) (*app.App, error) {
	cfg := common.LoadConfig()
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.Database.DSN = v
	}
	if v, _ := cmd.Flags().GetString("driver"); v != "" {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if needAnalyzers {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else if cfg.Database.DSN == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "DB_URL or --db is required", common.ErrInvalidInput)
	}

	logger := app.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	db, err := app.OpenDB(cmd.Context(), cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	var sink async.EventSink = async.NopSink{}
	if stream, _ := cmd.Flags().GetBool("events"); stream {
		sink = async.NewMultiSink(logger, async.NewStreamSink(os.Stderr))
	}
	return app.New(db, cfg, sink, logger), nil
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "warning: shutdown:", err)
	}
}

func parseID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, common.NewAppError("INVALID_INPUT", fmt.Sprintf("invalid %s %q", kind, s), common.ErrInvalidInput)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addDocumentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-document [application-id] [filename]",
		Short: "Register an uploaded document against an application",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := parseID("application id", args[0])
			if err != nil {
				return err
			}
			typ, _ := cmd.Flags().GetString("type")
			uri, _ := cmd.Flags().GetString("uri")
			docType, ok := constants.CanonicalizeDocumentType(typ)
			if !ok {
				return common.NewAppError("INVALID_INPUT", fmt.Sprintf("unknown document type %q", typ), common.ErrInvalidInput)
			}

			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(a)

			doc, err := a.Documents.Create(cmd.Context(), &entity.Document{
				ApplicationID: appID,
				Filename:      args[1],
				DocumentType:  docType,
				SourceURI:     uri,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}

	cmd.Flags().StringP("type", "t", string(constants.OtherDocument), "Document type (BANK_STATEMENT, PAY_STUB, TAX_RETURN, IDENTIFICATION, ...)")
	cmd.Flags().StringP("uri", "u", "", "Source URI the layout service reads the file from")

	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [application-id] [path]",
		Short: "Register a file or every supported file under a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := parseID("application id", args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(args[1])
			if err != nil {
				return err
			}
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if !info.IsDir() {
				r, err := a.Ingest.IngestPath(cmd.Context(), appID, args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), r)
			}
			skipHidden, _ := cmd.Flags().GetBool("skip-hidden")
			results, stats, err := a.Ingest.IngestDirectory(cmd.Context(), appID, args[1], skipHidden)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"results": results, "stats": stats})
		},
	}

	cmd.Flags().Bool("skip-hidden", true, "Skip hidden files and directories")

	return cmd
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [application-id]",
		Short: "Process every document of an application, detect inconsistencies and score risk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := parseID("application id", args[0])
			if err != nil {
				return err
			}
			typ, _ := cmd.Flags().GetString("type")
			jobType, ok := constants.ParseJobType(typ)
			if !ok {
				return common.NewAppError("INVALID_INPUT", fmt.Sprintf("unknown job type %q", typ), common.ErrInvalidInput)
			}

			a, err := openApp(cmd, true)
			if err != nil {
				return err
			}
			defer closeApp(a)

			res, err := a.AnalyzeApplication(cmd.Context(), appID, jobType)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringP("type", "t", "full", "Job type (full, quality_only, extraction_only)")

	return cmd
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report [application-id]",
		Short: "Print the markdown anomaly report for an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := parseID("application id", args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(a)

			report, err := a.Tracker.GenerateAnomalyReport(cmd.Context(), appID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), report)
			return err
		},
	}
}

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review [anomaly-id]",
		Short: "Record a review decision on an anomaly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("anomaly id", args[0])
			if err != nil {
				return err
			}
			status, _ := cmd.Flags().GetString("status")
			by, _ := cmd.Flags().GetString("by")
			req := anomaly.ReviewRequest{
				Status:     constants.AnomalyStatus(strings.ToUpper(status)),
				ReviewedBy: by,
			}
			if cmd.Flags().Changed("notes") {
				notes, _ := cmd.Flags().GetString("notes")
				req.ResolutionNotes = &notes
			}

			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(a)

			rec, err := a.Tracker.Review(cmd.Context(), id, req)
			if err != nil {
				if errors.Is(err, common.ErrInvalidTransition) {
					return fmt.Errorf("anomaly %s: %w", id, err)
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}

	cmd.Flags().StringP("status", "s", string(constants.AnomalyStatusReviewed), "New status (REVIEWED, RESOLVED, FALSE_POSITIVE)")
	cmd.Flags().StringP("by", "b", "", "Reviewer identity")
	cmd.Flags().StringP("notes", "n", "", "Resolution notes")
	_ = cmd.MarkFlagRequired("by")

	return cmd
}

func pendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List anomalies awaiting review, most severe first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(a)

			recs, err := a.Tracker.GetPendingReviews(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), recs)
			}
			for _, r := range recs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s  %-28s  %.2f  %s\n", r.ID, r.Severity, r.AnomalyType, r.Confidence, r.Description)
			}
			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 50, "Maximum results")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [application-id]",
		Short: "Print anomaly statistics for one application or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var appID *uuid.UUID
			if len(args) == 1 {
				id, err := parseID("application id", args[0])
				if err != nil {
					return err
				}
				appID = &id
			}
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(a)

			stats, err := a.Tracker.GetStatistics(cmd.Context(), appID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func autoResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto-resolve [application-id]",
		Short: "Mark low severity, low confidence pending anomalies as false positives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := parseID("application id", args[0])
			if err != nil {
				return err
			}
			by, _ := cmd.Flags().GetString("by")
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(a)

			resolved, err := a.Tracker.AutoResolveFalsePositives(cmd.Context(), appID, by)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "auto-resolved %d anomalies\n", len(resolved))
			return nil
		},
	}

	cmd.Flags().StringP("by", "b", "system", "Reviewer identity recorded on resolved anomalies")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [application-id]",
		Short: "Export an application's anomalies to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := parseID("application id", args[0])
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = fmt.Sprintf("anomalies-%s.xlsx", appID)
			}
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(a)

			data, err := a.Export.ExportAnomaliesXLSX(cmd.Context(), appID)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}

	cmd.Flags().StringP("out", "o", "", "Output file (default anomalies-<application-id>.xlsx)")

	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database connectivity and print anomaly totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if err := repository.HealthCheck(cmd.Context(), a.DB, time.Second, slog.Default()); err != nil {
				return fmt.Errorf("DB health: FAIL (%w)", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "DB health: OK")

			stats, err := a.Tracker.GetStatistics(cmd.Context(), nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "anomalies: %d total, %d actionable\n", stats.Total, stats.Actionable)
			for _, sev := range constants.Severities {
				fmt.Fprintf(cmd.OutOrStdout(), "- %-8s %d\n", sev, stats.BySeverity[sev])
			}
			return nil
		},
	}
}
