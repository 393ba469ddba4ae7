package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DataSource identifies which side of the reconciliation a record or
// formula set belongs to.
type DataSource string

const (
	// SourcePOS is the point-of-sale platform.
	SourcePOS DataSource = "pos"
	// SourceZomato is the third-party order aggregator.
	SourceZomato DataSource = "zomato"
)

// String returns the string representation of DataSource
func (s DataSource) String() string {
	return string(s)
}

// IsValid checks if the data source is valid
func (s DataSource) IsValid() bool {
	return s == SourcePOS || s == SourceZomato
}

// ReconciliationStatus is the terminal classification of a unified record.
type ReconciliationStatus string

const (
	StatusPending      ReconciliationStatus = "PENDING"
	StatusReconciled   ReconciliationStatus = "RECONCILED"
	StatusUnreconciled ReconciliationStatus = "UNRECONCILED"
)

// JobStatus tracks the lifecycle of an asynchronous report run.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IsTerminal reports whether the job can no longer change state.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Zomato order action types. Sales and refunds are summarized in separate
// passes so a refund never collides with the sale row for the same order id.
const (
	ActionSale   = "sale"
	ActionRefund = "refund"
)

// PosOrder is one order-event as recorded by the POS platform. Rows are
// ingested by an external collaborator and treated as immutable here.
type PosOrder struct {
	ID             uint            `gorm:"primaryKey"`
	OrderID        string          `gorm:"size:64;index"`
	StoreCode      string          `gorm:"size:32;index"`
	OrderDate      time.Time       `gorm:"index"`
	OrderTaker     string          `gorm:"size:32;index"`
	BillSubtotal   decimal.Decimal `gorm:"type:decimal(18,4)"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(18,4)"`
	PackingCharge  decimal.Decimal `gorm:"type:decimal(18,4)"`
	GSTCollected   decimal.Decimal `gorm:"type:decimal(18,4);column:gst_collected"`
	CreatedAt      time.Time
}

// TableName overrides the GORM table name
func (PosOrder) TableName() string { return "pos_orders" }

// Env returns the physical-field environment used for formula evaluation.
func (o *PosOrder) Env() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"bill_subtotal":   o.BillSubtotal,
		"discount_amount": o.DiscountAmount,
		"packing_charge":  o.PackingCharge,
		"gst_collected":   o.GSTCollected,
	}
}

// ZomatoOrder is one order-event as reported by the aggregator, including
// the financial breakdown the aggregator itself computed and the settlement
// reference (UTR) tying the order to a payout batch.
type ZomatoOrder struct {
	ID                uint            `gorm:"primaryKey"`
	OrderID           string          `gorm:"size:64;index"`
	StoreCode         string          `gorm:"size:32;index"`
	OrderDate         time.Time       `gorm:"index"`
	Action            string          `gorm:"size:16;index"`
	UTRNumber         string          `gorm:"size:64;index;column:utr_number"`
	UTRDate           time.Time       `gorm:"column:utr_date"`
	GrossAmount       decimal.Decimal `gorm:"type:decimal(18,4)"`
	NetAmount         decimal.Decimal `gorm:"type:decimal(18,4)"`
	TaxPaidByCustomer decimal.Decimal `gorm:"type:decimal(18,4)"`
	CommissionValue   decimal.Decimal `gorm:"type:decimal(18,4)"`
	PGAppliedOn       decimal.Decimal `gorm:"type:decimal(18,4);column:pg_applied_on"`
	PGCharge          decimal.Decimal `gorm:"type:decimal(18,4);column:pg_charge"`
	ZomatoFeeTax      decimal.Decimal `gorm:"type:decimal(18,4)"`
	TDSAmount         decimal.Decimal `gorm:"type:decimal(18,4);column:tds_amount"`
	FinalAmount       decimal.Decimal `gorm:"type:decimal(18,4)"`
	CreatedAt         time.Time
}

// TableName overrides the GORM table name
func (ZomatoOrder) TableName() string { return "zomato_orders" }

// Env returns the physical-field environment used for formula evaluation.
func (o *ZomatoOrder) Env() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"gross_amount":         o.GrossAmount,
		"net_amount":           o.NetAmount,
		"tax_paid_by_customer": o.TaxPaidByCustomer,
		"commission_value":     o.CommissionValue,
		"pg_applied_on":        o.PGAppliedOn,
		"pg_charge":            o.PGCharge,
		"zomato_fee_tax":       o.ZomatoFeeTax,
		"tds_amount":           o.TDSAmount,
		"final_amount":         o.FinalAmount,
	}
}

// OrderKey returns the logical key this record upserts under. Refund
// actions are keyed separately from the sale row for the same order id.
func (o *ZomatoOrder) OrderKey() string {
	if o.Action == ActionRefund {
		return o.OrderID + ":refund"
	}
	return o.OrderID
}

// FieldMapping maps a spreadsheet-style report column name to a physical
// field name for one data source. Static reference data.
type FieldMapping struct {
	ID            uint       `gorm:"primaryKey"`
	DataSource    DataSource `gorm:"size:16;index:idx_mapping_source_column,unique"`
	ReportColumn  string     `gorm:"size:128;index:idx_mapping_source_column,unique"`
	PhysicalField string     `gorm:"size:128"`
}

// TableName overrides the GORM table name
func (FieldMapping) TableName() string { return "field_mappings" }

// FormulaDefinition is one named arithmetic expression over the field
// vocabulary of a source. Expressions may reference other formula names;
// Position preserves the hand-maintained declaration order.
type FormulaDefinition struct {
	ID         uint       `gorm:"primaryKey"`
	DataSource DataSource `gorm:"size:16;index:idx_formula_source_name,unique"`
	Name       string     `gorm:"size:64;index:idx_formula_source_name,unique"`
	Expression string     `gorm:"size:512"`
	Position   int        `gorm:"index"`
}

// TableName overrides the GORM table name
func (FormulaDefinition) TableName() string { return "formula_definitions" }

// BankStatementRecord is an external deposit record keyed by UTR. Ground
// truth for money actually received.
type BankStatementRecord struct {
	ID            uint            `gorm:"primaryKey"`
	UTRNumber     string          `gorm:"size:64;uniqueIndex;column:utr_number"`
	DepositAmount decimal.Decimal `gorm:"type:decimal(18,4)"`
	DepositDate   time.Time
	BankName      string `gorm:"size:64"`
	AccountNumber string `gorm:"size:64"`
	CreatedAt     time.Time
}

// TableName overrides the GORM table name
func (BankStatementRecord) TableName() string { return "bank_statement_records" }

// ReceivableVsReceipt joins one settlement batch's aggregated receivable to
// the matching bank deposit. One row per UTR, upserted by UTR.
type ReceivableVsReceipt struct {
	ID         uint            `gorm:"primaryKey"`
	UTRNumber  string          `gorm:"size:64;uniqueIndex;column:utr_number"`
	UTRDate    time.Time       `gorm:"column:utr_date"`
	OrderDate  time.Time
	StoreCode  string `gorm:"size:32"`
	OrderCount int
	Receivable decimal.Decimal `gorm:"type:decimal(18,4)"`
	Deposit    decimal.Decimal `gorm:"type:decimal(18,4)"`
	Delta      decimal.Decimal `gorm:"type:decimal(18,4)"`
	Remark     string          `gorm:"size:64"`
	BankName   string          `gorm:"size:64"`
	UpdatedAt  time.Time
}

// TableName overrides the GORM table name
func (ReceivableVsReceipt) TableName() string { return "receivable_vs_receipts" }

// SettlementBatch is a derived group of aggregator orders sharing one
// settlement reference, with the aggregated receivable. Never persisted;
// the receivables matcher materializes it into ReceivableVsReceipt rows.
type SettlementBatch struct {
	OrderDate  time.Time
	StoreCode  string
	UTRNumber  string `gorm:"column:utr_number"`
	UTRDate    time.Time `gorm:"column:utr_date"`
	Receivable decimal.Decimal
	OrderCount int
}

// ReconciliationJob tracks one asynchronous report-generation run. The
// persisted row is the only job state; there is no in-memory shadow.
type ReconciliationJob struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Status    JobStatus `gorm:"size:16;index"`
	Progress  int
	Message   string `gorm:"size:255"`
	Filename  string `gorm:"size:255"`
	Error     string `gorm:"size:1024"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the GORM table name
func (ReconciliationJob) TableName() string { return "reconciliation_jobs" }

// ReconciliationWindow bounds one reconciliation pass.
type ReconciliationWindow struct {
	StartDate  time.Time
	EndDate    time.Time
	StoreCodes []string
}

// Validate performs basic validation on the window
func (w *ReconciliationWindow) Validate() error {
	if w.StartDate.IsZero() || w.EndDate.IsZero() {
		return fmt.Errorf("start date and end date are required")
	}
	if w.StartDate.After(w.EndDate) {
		return fmt.Errorf("start date must be before end date")
	}
	for _, code := range w.StoreCodes {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("store codes cannot be blank")
		}
	}
	return nil
}

// AllModels lists every persisted model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&PosOrder{},
		&ZomatoOrder{},
		&FieldMapping{},
		&FormulaDefinition{},
		&UnifiedComparisonRecord{},
		&BankStatementRecord{},
		&ReceivableVsReceipt{},
		&ReconciliationJob{},
	}
}
