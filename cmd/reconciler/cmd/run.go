package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"order-reconciliation-service/internal/models"
	"order-reconciliation-service/internal/report"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	runStartDate   string
	runEndDate     string
	runStoreCodes  []string
	runReceivables bool
	runReport      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass from the command line",
	Long: `Runs the summarizer, delta calculator and classifier for a date
window, optionally followed by receivables matching and a workbook build.

Examples:
  reconciler run --start-date 2024-03-01 --end-date 2024-03-31
  reconciler run --start-date 2024-03-01 --end-date 2024-03-31 --stores BLR01,BLR02
  reconciler run --start-date 2024-03-01 --end-date 2024-03-31 --receivables --report`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runOnce(cmd.Context()))
	},
}

func init() {
	runCmd.Flags().StringVar(&runStartDate, "start-date", "", "window start date (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runEndDate, "end-date", "", "window end date (YYYY-MM-DD)")
	runCmd.Flags().StringSliceVar(&runStoreCodes, "stores", nil, "store codes to include (default all)")
	runCmd.Flags().BoolVar(&runReceivables, "receivables", false, "also match receivables against bank deposits")
	runCmd.Flags().BoolVar(&runReport, "report", false, "also build the workbook")
	runCmd.MarkFlagRequired("start-date")
	runCmd.MarkFlagRequired("end-date")
	rootCmd.AddCommand(runCmd)
}

func parseWindow() (models.ReconciliationWindow, error) {
	var window models.ReconciliationWindow
	start, err := time.Parse("2006-01-02", runStartDate)
	if err != nil {
		return window, apperrors.ConfigError(apperrors.CodeInvalidConfig, "invalid --start-date: "+runStartDate)
	}
	end, err := time.Parse("2006-01-02", runEndDate)
	if err != nil {
		return window, apperrors.ConfigError(apperrors.CodeInvalidConfig, "invalid --end-date: "+runEndDate)
	}
	window = models.ReconciliationWindow{StartDate: start, EndDate: end, StoreCodes: runStoreCodes}
	if err := window.Validate(); err != nil {
		return window, apperrors.ConfigError(apperrors.CodeInvalidConfig, err.Error())
	}
	return window, nil
}

func runOnce(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	window, err := parseWindow()
	if err != nil {
		return err
	}
	log := logger.GetGlobalLogger()

	st, eng, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}

	result, err := eng.Run(ctx, window)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Reconciliation %s to %s", runStartDate, runEndDate)
	if len(runStoreCodes) > 0 {
		fmt.Fprintf(os.Stdout, " (stores %s)", strings.Join(runStoreCodes, ", "))
	}
	fmt.Fprintln(os.Stdout)
	fmt.Fprintf(os.Stdout, "  POS orders:      %d\n", result.PosProcessed)
	fmt.Fprintf(os.Stdout, "  3PO orders:      %d\n", result.ZomatoProcessed)
	fmt.Fprintf(os.Stdout, "  3PO refunds:     %d\n", result.RefundsProcessed)
	fmt.Fprintf(os.Stdout, "  Reconciled:      %d\n", result.Reconciled)
	fmt.Fprintf(os.Stdout, "  Unreconciled:    %d\n", result.Unreconciled)
	if result.Failed > 0 {
		fmt.Fprintf(os.Stdout, "  Failed records:  %d\n", result.Failed)
	}

	if runReceivables {
		matches, err := eng.MatchReceivables(ctx, window)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Receivables: %d batches, %d matched, %d without deposit\n",
			matches.Batches, matches.Matched, matches.Unmatched)
	}

	if runReport {
		assembler, err := report.NewAssembler(st, nil, cfg.AssemblerConfig(), log)
		if err != nil {
			return err
		}
		filename, err := assembler.Generate(ctx, "")
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Report written: %s\n", filename)
	}
	return nil
}
