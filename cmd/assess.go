package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-engine/internal/store"
)

var assessAll bool

var assessCmd = &cobra.Command{
	Use:   "assess [issue-id...]",
	Short: "Recompute risk assessments",
	Long:  "Re-runs risk scoring for the given issue ids, or for every stored issue with --all. Useful after changing category weights.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !assessAll && len(args) == 0 {
			return eris.New("pass issue ids or --all")
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ids := args
		if assessAll {
			issues, err := env.Store.ListIssues(ctx, store.IssueFilter{})
			if err != nil {
				return eris.Wrap(err, "list issues")
			}
			ids = make([]string, 0, len(issues))
			for _, issue := range issues {
				ids = append(ids, issue.ID)
			}
		}

		out, errs := env.Engine.BatchAssess(ctx, ids)
		for id, err := range errs {
			zap.L().Warn("assessment failed", zap.String("issue_id", id), zap.Error(err))
		}

		byLevel := make(map[string]int)
		for _, a := range out {
			byLevel[string(a.Level)]++
		}
		zap.L().Info("assessment complete",
			zap.Int("assessed", len(out)),
			zap.Int("failed", len(errs)),
			zap.Any("by_level", byLevel),
		)
		return nil
	},
}

func init() {
	assessCmd.Flags().BoolVar(&assessAll, "all", false, "reassess every stored issue")
	rootCmd.AddCommand(assessCmd)
}
