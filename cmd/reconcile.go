package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/model"
	"github.com/olitsch123/FOReportingv2/internal/reconcile"
	"github.com/olitsch123/FOReportingv2/internal/validate"
)

var (
	reconFund     string
	reconInvestor string
	reconAsOf     string
	reconJSON     bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Cross-check reported KPIs against the cashflow ledger for one scope",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		asOf, err := time.Parse("2006-01-02", reconAsOf)
		if err != nil {
			return eris.Wrapf(err, "parse --as-of %q", reconAsOf)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		agent := reconcile.NewAgent(
			st,
			validate.NewTolerance(cfg.Validation.ToleranceRel, cfg.Validation.ToleranceAbs),
			cfg.Reconcile.IRRTolerance,
			cfg.Reconcile.IRRFailThreshold,
			cfg.Reconcile.MultipleTolerance,
			time.Duration(cfg.Reconcile.LeaseTTLSecs)*time.Second,
		)

		report, err := agent.Run(ctx, model.ReconScope{
			FundID:     reconFund,
			InvestorID: reconInvestor,
			AsOfDate:   asOf,
		})
		if err != nil {
			if eris.Is(err, reconcile.ErrScopeBusy) {
				return eris.Wrap(err, "another run holds the scope lease")
			}
			return eris.Wrap(err, "reconcile")
		}

		if reconJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		passed, failed, warnings, missing := report.Summary()
		zap.L().Info("reconciliation finished",
			zap.String("report_id", report.ID),
			zap.String("status", string(report.Status)),
			zap.Int("passed", passed),
			zap.Int("failed", failed),
			zap.Int("warnings", warnings),
			zap.Int("missing", missing),
			zap.Bool("requires_review", report.RequiresReview),
		)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconFund, "fund", "", "fund ID (required)")
	reconcileCmd.Flags().StringVar(&reconInvestor, "investor", "", "investor ID, empty for fund level")
	reconcileCmd.Flags().StringVar(&reconAsOf, "as-of", "", "period end date YYYY-MM-DD (required)")
	reconcileCmd.Flags().BoolVar(&reconJSON, "json", false, "print the full report as JSON")
	_ = reconcileCmd.MarkFlagRequired("fund")
	_ = reconcileCmd.MarkFlagRequired("as-of")
	rootCmd.AddCommand(reconcileCmd)
}
