package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "foreporting",
	Short: "Fund document extraction and reconciliation engine",
	Long:  "Extracts financial fields from parsed PE fund documents via competing methods, reconciles the candidates, validates the results and cross-checks reported KPIs against the cashflow ledger.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
