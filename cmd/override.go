package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/pipeline"
)

var (
	overrideDoc      string
	overrideField    string
	overrideValue    string
	overrideReviewer string
	overrideReason   string
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Apply a reviewer correction to one field of a document record",
	Long:  "Creates a new record version carrying the corrected value at full confidence and re-runs validation. The original version is preserved.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		library, err := loadLibrary()
		if err != nil {
			return err
		}

		p := pipeline.New(cfg, st, library, nil)

		rec, err := p.ApplyOverride(ctx, pipeline.Override{
			DocID:      overrideDoc,
			Field:      overrideField,
			NewValue:   overrideValue,
			ReviewerID: overrideReviewer,
			Reason:     overrideReason,
		})
		if err != nil {
			return err
		}

		zap.L().Info("override applied",
			zap.String("record_id", rec.ID),
			zap.Int("version", rec.Version),
			zap.String("restates", rec.RestatesID),
			zap.String("field", overrideField),
			zap.Bool("requires_review", rec.RequiresReview),
		)
		return nil
	},
}

func init() {
	overrideCmd.Flags().StringVar(&overrideDoc, "doc", "", "document ID (required)")
	overrideCmd.Flags().StringVar(&overrideField, "field", "", "canonical field name (required)")
	overrideCmd.Flags().StringVar(&overrideValue, "value", "", "corrected raw value (required)")
	overrideCmd.Flags().StringVar(&overrideReviewer, "reviewer", "", "reviewer ID (required)")
	overrideCmd.Flags().StringVar(&overrideReason, "reason", "", "reason for the correction")
	_ = overrideCmd.MarkFlagRequired("doc")
	_ = overrideCmd.MarkFlagRequired("field")
	_ = overrideCmd.MarkFlagRequired("value")
	_ = overrideCmd.MarkFlagRequired("reviewer")
	rootCmd.AddCommand(overrideCmd)
}
