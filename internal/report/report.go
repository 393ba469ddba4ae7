// Package report renders the reconciliation outcome into a multi-sheet
// spreadsheet. Rows are streamed straight into the workbook so peak memory
// stays at one chunk regardless of table size.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Sheet names in workbook order.
const (
	SheetOrders       = "Order Reconciliation"
	SheetUnreconciled = "Unreconciled Orders"
	SheetReceivables  = "Receivables vs Receipts"
	SheetSummary      = "Summary"
)

// Repository is the read surface the assembler streams rows from.
type Repository interface {
	ForEachComparisonChunk(ctx context.Context, fn func([]models.UnifiedComparisonRecord) error) error
	ForEachComparisonStatusChunk(ctx context.Context, status models.ReconciliationStatus, fn func([]models.UnifiedComparisonRecord) error) error
	ForEachReceivableChunk(ctx context.Context, fn func([]models.ReceivableVsReceipt) error) error
}

// JobStore receives progress updates while a report builds. Nil-able: the
// CLI path generates reports without a tracked job.
type JobStore interface {
	UpdateJobProgress(ctx context.Context, id string, progress int, message string) error
}

// Config holds report generation settings.
type Config struct {
	OutputDir     string
	RetryAttempts int
	RetryBackoff  time.Duration
}

// DefaultConfig returns the default report configuration.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:     "reports",
		RetryAttempts: 3,
		RetryBackoff:  2 * time.Second,
	}
}

// Validate checks the report configuration.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return apperrors.ConfigError(apperrors.CodeMissingConfig, "report output directory is required")
	}
	if c.RetryAttempts < 1 {
		return apperrors.ConfigError(apperrors.CodeInvalidConfig, "retry attempts must be at least 1")
	}
	return nil
}

// Assembler builds reconciliation workbooks.
type Assembler struct {
	repo   Repository
	jobs   JobStore
	config *Config
	log    logger.Logger
}

// NewAssembler creates a report assembler. jobs may be nil when no job
// record tracks the run.
func NewAssembler(repo Repository, jobs JobStore, config *Config, log logger.Logger) (*Assembler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Assembler{repo: repo, jobs: jobs, config: config, log: log.WithComponent("report")}, nil
}

// summaryTotals accumulates while the full order sheet streams, so the
// summary sheet needs no extra table scan.
type summaryTotals struct {
	total              int64
	reconciled         int64
	unreconciled       int64
	pending            int64
	reconciledAmount   decimal.Decimal
	unreconciledAmount decimal.Decimal
}

// Generate builds the workbook and returns the written filename (relative
// to the output directory). Section read failures are retried with linear
// backoff; when a section exhausts its retries the workbook is still saved
// with the sections completed so far and the error propagates.
func (a *Assembler) Generate(ctx context.Context, jobID string) (string, error) {
	if err := os.MkdirAll(a.config.OutputDir, 0o755); err != nil {
		return "", apperrors.ReportError(apperrors.CodeSheetFailed, "output directory", err)
	}

	filename := fmt.Sprintf("reconciliation_report_%s.xlsx", time.Now().Format("20060102_150405"))
	path := filepath.Join(a.config.OutputDir, filename)

	f := excelize.NewFile()
	defer f.Close()

	totals := &summaryTotals{}
	sections := []struct {
		name     string
		progress int
		build    func(context.Context, *excelize.File) error
	}{
		{SheetOrders, 55, func(ctx context.Context, f *excelize.File) error {
			return a.writeOrderSheet(ctx, f, totals)
		}},
		{SheetUnreconciled, 70, a.writeUnreconciledSheet},
		{SheetReceivables, 85, a.writeReceivablesSheet},
		{SheetSummary, 95, func(_ context.Context, f *excelize.File) error {
			return a.writeSummarySheet(f, totals)
		}},
	}

	// The job processor's pipeline stages end at 40; everything written
	// here stays above that so pollers never see progress move backwards.
	a.progress(ctx, jobID, 45, "report generation started")
	var sectionErr error
	for _, section := range sections {
		if err := a.withRetry(ctx, section.name, func() error {
			return section.build(ctx, f)
		}); err != nil {
			sectionErr = err
			break
		}
		a.progress(ctx, jobID, section.progress, fmt.Sprintf("sheet %q written", section.name))
	}

	// Drop the default sheet only if at least one real sheet exists.
	if idx, err := f.GetSheetIndex(SheetOrders); err == nil && idx >= 0 {
		_ = f.DeleteSheet("Sheet1")
	}
	if err := f.SaveAs(path); err != nil {
		return "", apperrors.ReportError(apperrors.CodeSheetFailed, "save workbook", err)
	}
	if sectionErr != nil {
		return filename, sectionErr
	}

	a.log.WithFields(logger.Fields{
		"file": path,
		"rows": totals.total,
	}).Info("report written")
	return filename, nil
}

// withRetry runs one section with linear backoff between attempts.
func (a *Assembler) withRetry(ctx context.Context, section string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= a.config.RetryAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		a.log.WithError(lastErr).WithFields(logger.Fields{
			"section": section,
			"attempt": attempt,
		}).Warn("report section failed")
		if attempt == a.config.RetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * a.config.RetryBackoff):
		}
	}
	return apperrors.ReportError(apperrors.CodeRetryExhausted, section, lastErr)
}

func (a *Assembler) progress(ctx context.Context, jobID string, pct int, message string) {
	if a.jobs == nil || jobID == "" {
		return
	}
	if err := a.jobs.UpdateJobProgress(ctx, jobID, pct, message); err != nil {
		a.log.WithError(err).WithField("job_id", jobID).Warn("progress update failed")
	}
}

// orderSheetHeader builds the column header row: identity columns, both
// sources' value per paired field, the signed difference, and the
// classification outcome.
func orderSheetHeader() []interface{} {
	header := []interface{}{
		"Order Key", "POS Order ID", "3PO Order ID",
		"POS Store", "3PO Store", "Order Date", "UTR Number",
	}
	for _, field := range models.ComparisonFields {
		header = append(header,
			"POS "+field,
			"3PO "+field,
			field+" delta",
		)
	}
	header = append(header,
		"Status", "Reconciled Amount", "Unreconciled Amount",
		"POS vs 3PO Reasons", "3PO vs POS Reasons",
	)
	return header
}

func orderSheetRow(rec *models.UnifiedComparisonRecord) []interface{} {
	orderDate := rec.PosOrderDate
	if orderDate.IsZero() {
		orderDate = rec.ZomatoDate
	}
	row := []interface{}{
		rec.OrderKey, rec.PosOrderID, rec.ZomatoOrderID,
		rec.PosStoreCode, rec.ZomatoStore, formatDate(orderDate), rec.UTRNumber,
	}
	for _, field := range models.ComparisonFields {
		posVsZomato, _ := rec.Delta(field)
		row = append(row,
			decimalCell(rec.SourceValue(models.SourcePOS, field)),
			decimalCell(rec.SourceValue(models.SourceZomato, field)),
			decimalCell(posVsZomato),
		)
	}
	row = append(row,
		string(rec.ReconciliationStatus),
		decimalCell(rec.ReconciledAmount),
		decimalCell(rec.UnreconciledAmount),
		rec.PosVsZomatoReasons,
		rec.ZomatoVsPosReasons,
	)
	return row
}

func (a *Assembler) writeOrderSheet(ctx context.Context, f *excelize.File, totals *summaryTotals) error {
	// Runs once per retry attempt; a retried attempt must not add onto
	// the rows the failed attempt already counted.
	*totals = summaryTotals{}
	sw, err := newSheetWriter(f, SheetOrders, orderSheetHeader())
	if err != nil {
		return err
	}
	err = a.repo.ForEachComparisonChunk(ctx, func(chunk []models.UnifiedComparisonRecord) error {
		for i := range chunk {
			rec := &chunk[i]
			if err := sw.writeRow(orderSheetRow(rec)); err != nil {
				return err
			}
			totals.total++
			switch rec.ReconciliationStatus {
			case models.StatusReconciled:
				totals.reconciled++
				totals.reconciledAmount = totals.reconciledAmount.Add(rec.ReconciledAmount)
			case models.StatusUnreconciled:
				totals.unreconciled++
				totals.unreconciledAmount = totals.unreconciledAmount.Add(rec.UnreconciledAmount)
			default:
				totals.pending++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return sw.flush()
}

func (a *Assembler) writeUnreconciledSheet(ctx context.Context, f *excelize.File) error {
	sw, err := newSheetWriter(f, SheetUnreconciled, orderSheetHeader())
	if err != nil {
		return err
	}
	err = a.repo.ForEachComparisonStatusChunk(ctx, models.StatusUnreconciled, func(chunk []models.UnifiedComparisonRecord) error {
		for i := range chunk {
			if err := sw.writeRow(orderSheetRow(&chunk[i])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return sw.flush()
}

func (a *Assembler) writeReceivablesSheet(ctx context.Context, f *excelize.File) error {
	header := []interface{}{
		"UTR Number", "UTR Date", "Order Date", "Store",
		"Order Count", "Receivable", "Deposit", "Delta", "Remark", "Bank",
	}
	sw, err := newSheetWriter(f, SheetReceivables, header)
	if err != nil {
		return err
	}
	err = a.repo.ForEachReceivableChunk(ctx, func(chunk []models.ReceivableVsReceipt) error {
		for i := range chunk {
			row := &chunk[i]
			cells := []interface{}{
				row.UTRNumber, formatDate(row.UTRDate), formatDate(row.OrderDate), row.StoreCode,
				row.OrderCount, decimalCell(row.Receivable), decimalCell(row.Deposit),
				decimalCell(row.Delta), row.Remark, row.BankName,
			}
			if err := sw.writeRow(cells); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return sw.flush()
}

func (a *Assembler) writeSummarySheet(f *excelize.File, totals *summaryTotals) error {
	sw, err := newSheetWriter(f, SheetSummary, []interface{}{"Metric", "Value"})
	if err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Total Orders", totals.total},
		{"Reconciled", totals.reconciled},
		{"Unreconciled", totals.unreconciled},
		{"Pending", totals.pending},
		{"Reconciled Amount", decimalCell(totals.reconciledAmount)},
		{"Unreconciled Amount", decimalCell(totals.unreconciledAmount)},
		{"Generated At", time.Now().Format(time.RFC3339)},
	}
	for _, row := range rows {
		if err := sw.writeRow(row); err != nil {
			return err
		}
	}
	return sw.flush()
}

// sheetWriter wraps one excelize stream writer with row bookkeeping.
type sheetWriter struct {
	sheet string
	sw    *excelize.StreamWriter
	row   int
}

func newSheetWriter(f *excelize.File, sheet string, header []interface{}) (*sheetWriter, error) {
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, apperrors.ReportError(apperrors.CodeSheetFailed, sheet, err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return nil, apperrors.ReportError(apperrors.CodeSheetFailed, sheet, err)
	}
	w := &sheetWriter{sheet: sheet, sw: sw, row: 1}
	if err := w.writeRow(header); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *sheetWriter) writeRow(cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return apperrors.ReportError(apperrors.CodeSheetFailed, w.sheet, err)
	}
	if err := w.sw.SetRow(cell, cells); err != nil {
		return apperrors.ReportError(apperrors.CodeSheetFailed, w.sheet, err)
	}
	w.row++
	return nil
}

func (w *sheetWriter) flush() error {
	if err := w.sw.Flush(); err != nil {
		return apperrors.ReportError(apperrors.CodeSheetFailed, w.sheet, err)
	}
	return nil
}

// decimalCell converts a decimal for the spreadsheet without losing scale.
func decimalCell(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
