package engine

import (
	"context"
	"fmt"
	"strings"

	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Reason strings for records one source never reported.
const (
	ReasonMissingInPOS = "Order not found in POS"
	ReasonMissingIn3PO = "Order not found in 3PO"
)

// thresholdRule is one ordered tolerance check over a paired delta field.
// Base columns keep the evaluation going through the remaining base columns
// after a violation; a non-base violation stops the walk immediately.
type thresholdRule struct {
	field     string
	tolerance decimal.Decimal
	base      bool
	reason    string
}

var (
	toleranceExact = decimal.Zero
	toleranceFifty = decimal.RequireFromString("0.50")
	toleranceTen   = decimal.RequireFromString("0.10")
)

// thresholdRules returns the classification rules in evaluation order.
// The order and the base-column short-circuit behavior are load-bearing
// business rules: changing either changes which reasons get recorded.
func thresholdRules() []thresholdRule {
	return []thresholdRule{
		{"gross_amount", toleranceExact, false, "Gross amount mismatch between POS and 3PO"},
		{"net_amount", toleranceFifty, true, "Net amount mismatch between POS and 3PO"},
		{"tax_paid_by_customer", toleranceTen, false, "Customer tax mismatch between POS and 3PO"},
		{"commission_value", toleranceFifty, true, "Commission value mismatch between POS and 3PO"},
		{"pg_applied_on", toleranceFifty, false, "PG applied-on amount mismatch between POS and 3PO"},
		{"pg_charge", toleranceFifty, false, "PG charge mismatch between POS and 3PO"},
		{"zomato_fee_tax", toleranceTen, false, "Zomato fee tax mismatch between POS and 3PO"},
		{"tds_amount", toleranceTen, false, "TDS amount mismatch between POS and 3PO"},
		{"final_amount", toleranceFifty, true, "Final amount mismatch between POS and 3PO"},
	}
}

// Classifier assigns each unified record a terminal RECONCILED or
// UNRECONCILED status with direction-specific reasons. Every run
// re-evaluates from scratch; there is no persisted transition history.
type Classifier struct {
	repo  Repository
	rules []thresholdRule
	log   logger.Logger
}

// NewClassifier creates a classifier over a repository.
func NewClassifier(repo Repository, log logger.Logger) *Classifier {
	return &Classifier{repo: repo, rules: thresholdRules(), log: log.WithComponent("classifier")}
}

// ClassifyResult aggregates the outcome counts of one classification run.
type ClassifyResult struct {
	Reconciled   int
	Unreconciled int
	Failed       int
}

// Run classifies every comparison record in chunks. A record that fails
// classification is logged and left out of that chunk's update batch; it
// never aborts the run.
func (c *Classifier) Run(ctx context.Context) (*ClassifyResult, error) {
	result := &ClassifyResult{}
	tracker := logger.NewProgressTracker(c.log, "classification", -1)
	err := c.repo.ForEachComparisonChunk(ctx, func(chunk []models.UnifiedComparisonRecord) error {
		records := make([]*models.UnifiedComparisonRecord, 0, len(chunk))
		for i := range chunk {
			rec := &chunk[i]
			if err := c.classify(rec); err != nil {
				result.Failed++
				c.log.WithError(err).WithField("order_key", rec.OrderKey).
					Warn("record classification failed, excluded from batch")
				continue
			}
			if rec.ReconciliationStatus == models.StatusReconciled {
				result.Reconciled++
			} else {
				result.Unreconciled++
			}
			records = append(records, rec)
		}
		if len(records) == 0 {
			return nil
		}
		if err := c.repo.UpsertComparisonRecords(ctx, records, models.ClassificationColumns()); err != nil {
			return apperrors.StoreError(apperrors.CodeBatchWriteFailed, "write classifications", err)
		}
		tracker.Add(int64(len(chunk)))
		return nil
	})
	if err != nil {
		return result, err
	}
	tracker.Done()
	return result, nil
}

// classify assigns status, reasons and amounts for one record. Decimal
// arithmetic can panic on malformed stored values, so the per-record
// failure contract is enforced here with a recover.
func (c *Classifier) classify(rec *models.UnifiedComparisonRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.ClassificationError(rec.OrderKey, fmt.Errorf("%v", r))
		}
	}()

	if rec.PosOrderID == "" {
		c.markUnreconciled(rec, []string{ReasonMissingInPOS}, rec.ZomatoNetAmount)
		return nil
	}
	if rec.ZomatoOrderID == "" {
		c.markUnreconciled(rec, []string{ReasonMissingIn3PO}, rec.PosNetAmount)
		return nil
	}

	var reasons []string
	baseViolated := false
	for _, rule := range c.rules {
		if baseViolated && !rule.base {
			continue
		}
		delta, _ := rec.Delta(rule.field)
		if delta.Abs().LessThanOrEqual(rule.tolerance) {
			continue
		}
		if rule.base {
			reasons = append(reasons, rule.reason)
			baseViolated = true
			continue
		}
		if len(reasons) == 0 {
			reasons = append(reasons, rule.reason)
		}
		break
	}
	if len(reasons) > 0 {
		c.markUnreconciled(rec, reasons, c.reconcilableAmount(rec))
		return nil
	}

	// Deltas agree; check the aggregator's own arithmetic against ours.
	for _, field := range models.CalculatedFields {
		if !rec.CalculatedValue(field).Equal(rec.SourceValue(models.SourceZomato, field)) {
			reason := fmt.Sprintf("Calculated %s differs from 3PO reported value", field)
			c.markUnreconciled(rec, []string{reason}, rec.ZomatoNetAmount)
			return nil
		}
	}

	rec.ReconciliationStatus = models.StatusReconciled
	rec.ReconciledAmount = c.reconcilableAmount(rec)
	rec.UnreconciledAmount = decimal.Zero
	rec.PosVsZomatoReasons = ""
	rec.ZomatoVsPosReasons = ""
	return nil
}

// reconcilableAmount is the bill-total basis for a record: the POS net
// amount, falling back to the aggregator's when the POS side carried none.
func (c *Classifier) reconcilableAmount(rec *models.UnifiedComparisonRecord) decimal.Decimal {
	if rec.PosNetAmount.IsZero() {
		return rec.ZomatoNetAmount
	}
	return rec.PosNetAmount
}

func (c *Classifier) markUnreconciled(rec *models.UnifiedComparisonRecord, reasons []string, amount decimal.Decimal) {
	joined := strings.Join(reasons, "; ")
	rec.ReconciliationStatus = models.StatusUnreconciled
	rec.UnreconciledAmount = amount
	rec.ReconciledAmount = decimal.Zero
	rec.PosVsZomatoReasons = joined
	rec.ZomatoVsPosReasons = joined
}
