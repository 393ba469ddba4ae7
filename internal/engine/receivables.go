package engine

import (
	"context"

	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Remarks assigned to a receivable-vs-deposit comparison. The tolerance is
// one whole currency unit around the aggregated receivable.
const (
	RemarkExcessPayment = "Excess Payment Received"
	RemarkShortPayment  = "Short Payment Received"
	RemarkEqualPayment  = "Equal Payment Received"
	RemarkNoDeposit     = "No Payment Received"
)

var depositTolerance = decimal.NewFromInt(1)

// ReceivablesMatcher aggregates settled aggregator orders per UTR and
// compares each batch's receivable to the bank deposit carrying the same
// reference.
type ReceivablesMatcher struct {
	repo Repository
	log  logger.Logger
}

// NewReceivablesMatcher creates a matcher over a repository.
func NewReceivablesMatcher(repo Repository, log logger.Logger) *ReceivablesMatcher {
	return &ReceivablesMatcher{repo: repo, log: log.WithComponent("receivables")}
}

// ReceivablesResult aggregates the counts of one matching run.
type ReceivablesResult struct {
	Batches   int `json:"batches"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Short     int `json:"short"`
	Excess    int `json:"excess"`
}

// Run materializes one ReceivableVsReceipt row per UTR seen in the window.
// A batch with no bank record keeps deposit zero, so its delta equals the
// full receivable. Rows are upserted by UTR; a batch sharing a UTR with an
// earlier one in the same pass overwrites it.
func (m *ReceivablesMatcher) Run(ctx context.Context, window models.ReconciliationWindow) (*ReceivablesResult, error) {
	batches, err := m.repo.SettlementBatches(ctx, window)
	if err != nil {
		return nil, apperrors.StoreError(apperrors.CodeReadFailed, "load settlement batches", err)
	}

	utrs := make([]string, 0, len(batches))
	seen := make(map[string]bool, len(batches))
	for _, batch := range batches {
		if !seen[batch.UTRNumber] {
			seen[batch.UTRNumber] = true
			utrs = append(utrs, batch.UTRNumber)
		}
	}

	deposits, err := m.repo.BankStatementsByUTR(ctx, utrs)
	if err != nil {
		return nil, apperrors.StoreError(apperrors.CodeReadFailed, "load bank statements", err)
	}

	result := &ReceivablesResult{Batches: len(batches)}
	rows := make([]*models.ReceivableVsReceipt, 0, len(batches))
	for _, batch := range batches {
		row := &models.ReceivableVsReceipt{
			UTRNumber:  batch.UTRNumber,
			UTRDate:    batch.UTRDate,
			OrderDate:  batch.OrderDate,
			StoreCode:  batch.StoreCode,
			OrderCount: batch.OrderCount,
			Receivable: batch.Receivable,
		}
		if statement, ok := deposits[batch.UTRNumber]; ok {
			row.Deposit = statement.DepositAmount
			row.BankName = statement.BankName
			row.Delta = batch.Receivable.Sub(statement.DepositAmount)
			row.Remark = classifyDeposit(row.Delta)
			result.Matched++
		} else {
			row.Deposit = decimal.Zero
			row.Delta = batch.Receivable
			row.Remark = RemarkNoDeposit
			result.Unmatched++
		}
		switch row.Remark {
		case RemarkShortPayment:
			result.Short++
		case RemarkExcessPayment:
			result.Excess++
		}
		rows = append(rows, row)
	}

	if err := m.repo.UpsertReceivables(ctx, rows); err != nil {
		return nil, apperrors.StoreError(apperrors.CodeBatchWriteFailed, "write receivable matches", err)
	}

	m.log.WithFields(logger.Fields{
		"batches":   result.Batches,
		"matched":   result.Matched,
		"unmatched": result.Unmatched,
	}).Info("receivables matching complete")
	return result, nil
}

// classifyDeposit buckets a receivable-minus-deposit delta with the one
// unit tolerance. Negative beyond tolerance means the bank received more
// than the aggregator owed.
func classifyDeposit(delta decimal.Decimal) string {
	switch {
	case delta.LessThan(depositTolerance.Neg()):
		return RemarkExcessPayment
	case delta.GreaterThan(depositTolerance):
		return RemarkShortPayment
	default:
		return RemarkEqualPayment
	}
}
