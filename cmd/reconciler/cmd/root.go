package cmd

import (
	"fmt"
	"os"

	"order-reconciliation-service/cmd/reconciler/config"
	"order-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "POS vs aggregator order reconciliation service",
	Long: `Reconciler matches point-of-sale orders against the third-party
aggregator's reported orders, classifies each order as reconciled or
unreconciled with per-field tolerance rules, and matches settlement
batches against bank deposits by UTR.

Examples:
  reconciler migrate
  reconciler run --start-date 2024-03-01 --end-date 2024-03-31
  reconciler serve --addr :8080
  reconciler worker
  reconciler version`,
	Version: getVersionString(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the app configuration and installs the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.LoggerConfig()
	if verbose {
		logCfg.Level = logger.DebugLevel
	}
	log, err := logger.NewLogger(logCfg)
	if err != nil {
		return nil, err
	}
	logger.SetGlobalLogger(log)
	return cfg, nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	os.Exit(NewCLIErrorHandler().HandleError(err))
}
