package cmd

import (
	"fmt"
	"os"

	"order-reconciliation-service/internal/store"
	"order-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Creates or updates every table and seeds the static reference data
(field mappings and formula definitions) when those tables are empty.`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runMigrate())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := store.Open(cfg.StoreConfig(), logger.GetGlobalLogger())
	if err != nil {
		return err
	}
	if err := st.Migrate(); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "Migration complete")
	return nil
}
