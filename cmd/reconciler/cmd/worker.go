package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"order-reconciliation-service/internal/jobs"
	"order-reconciliation-service/internal/report"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background report worker",
	Long: `Consumes report tasks from the configured Pub/Sub subscription and
executes them: optional reconciliation pass, receivables matching, then
the workbook build. Runs until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runWorker(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.UsePubSub() {
		return apperrors.ConfigError(apperrors.CodeMissingConfig,
			"worker mode requires a Pub/Sub project (RECONCILER_PUBSUB_PROJECT_ID)")
	}
	log := logger.GetGlobalLogger()

	st, eng, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}
	assembler, err := report.NewAssembler(st, st, cfg.AssemblerConfig(), log)
	if err != nil {
		return err
	}
	processor := jobs.NewProcessor(eng, assembler, st, log)

	creds, err := cfg.PubSubCredentials()
	if err != nil {
		return err
	}
	worker, err := jobs.NewWorker(ctx, cfg.PubSub.ProjectID, cfg.PubSub.SubscriptionID, creds, processor, log)
	if err != nil {
		return err
	}
	defer worker.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}
