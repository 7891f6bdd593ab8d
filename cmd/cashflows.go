package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/ingest"
)

var (
	cashflowSheet    string
	cashflowCurrency string
)

var cashflowsCmd = &cobra.Command{
	Use:   "cashflows <ledger.xlsx>",
	Short: "Import a cashflow ledger workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := ingest.NewImporter(st).Import(ctx, args[0], ingest.LedgerOptions{
			SheetName: cashflowSheet,
			Currency:  cashflowCurrency,
		})
		if err != nil {
			return err
		}

		zap.L().Info("cashflow import complete",
			zap.Int64("rows", n),
			zap.String("path", args[0]),
		)
		return nil
	},
}

func init() {
	cashflowsCmd.Flags().StringVar(&cashflowSheet, "sheet", "", "sheet name, defaults to the first sheet")
	cashflowsCmd.Flags().StringVar(&cashflowCurrency, "currency", "", "fallback currency for rows without one")
	rootCmd.AddCommand(cashflowsCmd)
}
