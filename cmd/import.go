package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-engine/internal/importer"
	"github.com/sells-group/hazard-engine/internal/model"
	"github.com/sells-group/hazard-engine/internal/store"
)

var (
	importFilePath string
	importSheet    string
	importCategory string
	importBulk     bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import issues from a CSV or XLSX export",
	Long: "Reads a municipal issue export, submits each row through the engine (bounds check, risk scoring, hazard projection), and reports how many were ingested.\n\n" +
		"With --bulk (postgres only) rows are upserted in one COPY-backed transaction and then batch-assessed, which is much faster for large exports.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := importer.Options{
			DefaultCategory: importCategory,
			SheetName:       importSheet,
		}

		var res *importer.Result
		switch strings.ToLower(filepath.Ext(importFilePath)) {
		case ".csv":
			res, err = importer.ReadCSV(importFilePath, opts)
		case ".xlsx":
			res, err = importer.ReadXLSX(importFilePath, opts)
		default:
			return eris.Errorf("unsupported file extension %q (want .csv or .xlsx)", filepath.Ext(importFilePath))
		}
		if err != nil {
			return eris.Wrap(err, "read export")
		}

		if importBulk {
			return bulkImport(ctx, env, res)
		}

		ingested, rejected := 0, 0
		for i := range res.Issues {
			if _, err := env.Engine.SubmitIssue(ctx, &res.Issues[i]); err != nil {
				if eris.Is(err, model.ErrInvalidCoordinate) || eris.Is(err, model.ErrUnscoredIssue) {
					rejected++
					continue
				}
				return eris.Wrapf(err, "submit issue %s", res.Issues[i].ID)
			}
			ingested++
		}

		zap.L().Info("import complete",
			zap.String("file", importFilePath),
			zap.Int("ingested", ingested),
			zap.Int("rejected", rejected),
			zap.Int("skipped_rows", res.Skipped),
		)
		return nil
	},
}

// bulkImport upserts the whole batch in one round trip, reloads the engine
// projections, and scores the new rows with the batch assessor. Only the
// postgres driver has the COPY-backed upsert path.
func bulkImport(ctx context.Context, env *engineEnv, res *importer.Result) error {
	pg, ok := env.Store.(*store.PostgresStore)
	if !ok {
		return eris.New("--bulk requires the postgres store driver")
	}

	bounds := model.BBox{
		MinLat: cfg.Bounds.MinLat,
		MinLng: cfg.Bounds.MinLng,
		MaxLat: cfg.Bounds.MaxLat,
		MaxLng: cfg.Bounds.MaxLng,
	}

	now := time.Now().UTC()
	rows := make([]model.Issue, 0, len(res.Issues))
	ids := make([]string, 0, len(res.Issues))
	rejected := 0
	for _, issue := range res.Issues {
		if !bounds.Contains(issue.Lat, issue.Lng) {
			rejected++
			continue
		}
		if issue.ID == "" {
			issue.ID = uuid.New().String()
		}
		if issue.Status == "" {
			issue.Status = model.IssueStatusOpen
		}
		if issue.CreatedAt.IsZero() {
			issue.CreatedAt = now
		}
		if issue.UpdatedAt.IsZero() {
			issue.UpdatedAt = issue.CreatedAt
		}
		rows = append(rows, issue)
		ids = append(ids, issue.ID)
	}

	n, err := pg.BulkUpsertIssues(ctx, rows)
	if err != nil {
		return eris.Wrap(err, "bulk upsert issues")
	}

	// The projections predate the new rows; rebuild them, then score.
	if err := env.Engine.Load(ctx); err != nil {
		return err
	}
	assessed, errs := env.Engine.BatchAssess(ctx, ids)
	for id, err := range errs {
		zap.L().Warn("bulk assessment failed", zap.String("issue_id", id), zap.Error(err))
	}

	zap.L().Info("bulk import complete",
		zap.String("file", importFilePath),
		zap.Int64("upserted", n),
		zap.Int("assessed", len(assessed)),
		zap.Int("failed", len(errs)),
		zap.Int("rejected", rejected),
		zap.Int("skipped_rows", res.Skipped),
	)
	return nil
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to CSV or XLSX export (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().StringVar(&importCategory, "category", "", "fallback category for rows without one")
	importCmd.Flags().BoolVar(&importBulk, "bulk", false, "COPY-backed bulk upsert instead of per-row submission (postgres only)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
