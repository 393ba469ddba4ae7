package cmd

import (
	"fmt"
	"os"

	"order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: verbose,
	}
}

// HandleError handles errors and provides user-friendly messages
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}
	return h.handleGenericError(err)
}

// handleReconcilerError handles ReconcilerError with detailed context
func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	fmt.Fprintf(os.Stderr, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles non-ReconcilerError types
func (h *CLIErrorHandler) handleGenericError(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(os.Stderr, "Run with --verbose for more detail\n")
	}
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryStore:
		return `Store error help:
• Check that the database is reachable and the DSN is correct
• Verify RECONCILER_DATABASE_DSN (user, password, host, schema)
• Run 'reconciler migrate' if tables are missing
• Check MySQL max_allowed_packet if bulk writes fail`

	case errors.CategoryFormula:
		return `Formula error help:
• Check the formula_definitions table for malformed expressions
• Formula references must not form a cycle
• Only + - * / and parentheses are supported
• Reseed defaults by truncating formula_definitions and running 'reconciler migrate'`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and environment variables
• Verify config file syntax if using --config
• Use 'reconciler --help' to see all available options
• Dates use the YYYY-MM-DD format`

	case errors.CategoryJob:
		return `Job error help:
• Check the job id against GET /api/reconciliation/jobs/<id>
• Verify the Pub/Sub project, topic and subscription settings
• Make sure a worker process is running for background reports`

	case errors.CategoryReport:
		return `Report error help:
• Check that the report output directory exists and is writable
• Verify available disk space
• Transient database failures during report reads are retried;
  persistent failures mean the store needs attention`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler <command> --help' for command-specific help
• Check the documentation for detailed examples`
	}
}
