package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComparisonFields lists the paired numeric fields held in both pos_* and
// zomato_* form. Order matters: the delta calculator and the classifier
// walk this list in declaration order.
var ComparisonFields = []string{
	"gross_amount",
	"net_amount",
	"tax_paid_by_customer",
	"commission_value",
	"pg_applied_on",
	"pg_charge",
	"zomato_fee_tax",
	"tds_amount",
	"final_amount",
}

// CalculatedFields lists the derived shadow fields checked against the
// aggregator's reported values during self-consistency classification.
var CalculatedFields = []string{
	"commission_value",
	"pg_applied_on",
	"pg_charge",
	"zomato_fee_tax",
	"tds_amount",
	"final_amount",
}

// UnifiedComparisonRecord is the unified comparison table: exactly one row
// per logical order, holding both sources' computed fields, the calculated
// shadows, bidirectional deltas and the classification outcome.
type UnifiedComparisonRecord struct {
	ID       string `gorm:"primaryKey;size:80"`
	OrderKey string `gorm:"size:72;uniqueIndex"`

	PosOrderID    string    `gorm:"size:64;index"`
	PosStoreCode  string    `gorm:"size:32"`
	PosOrderDate  time.Time `gorm:""`
	ZomatoOrderID string    `gorm:"size:64;index"`
	ZomatoStore   string    `gorm:"size:32;column:zomato_store_code"`
	ZomatoDate    time.Time `gorm:"column:zomato_order_date"`
	UTRNumber     string    `gorm:"size:64;column:utr_number"`
	UTRDate       time.Time `gorm:"column:utr_date"`

	PosGrossAmount       decimal.Decimal `gorm:"type:decimal(18,4)"`
	PosNetAmount         decimal.Decimal `gorm:"type:decimal(18,4)"`
	PosTaxPaidByCustomer decimal.Decimal `gorm:"type:decimal(18,4)"`
	PosCommissionValue   decimal.Decimal `gorm:"type:decimal(18,4)"`
	PosPGAppliedOn       decimal.Decimal `gorm:"type:decimal(18,4);column:pos_pg_applied_on"`
	PosPGCharge          decimal.Decimal `gorm:"type:decimal(18,4);column:pos_pg_charge"`
	PosZomatoFeeTax      decimal.Decimal `gorm:"type:decimal(18,4)"`
	PosTDSAmount         decimal.Decimal `gorm:"type:decimal(18,4);column:pos_tds_amount"`
	PosFinalAmount       decimal.Decimal `gorm:"type:decimal(18,4)"`

	ZomatoGrossAmount       decimal.Decimal `gorm:"type:decimal(18,4)"`
	ZomatoNetAmount         decimal.Decimal `gorm:"type:decimal(18,4)"`
	ZomatoTaxPaidByCustomer decimal.Decimal `gorm:"type:decimal(18,4)"`
	ZomatoCommissionValue   decimal.Decimal `gorm:"type:decimal(18,4)"`
	ZomatoPGAppliedOn       decimal.Decimal `gorm:"type:decimal(18,4);column:zomato_pg_applied_on"`
	ZomatoPGCharge          decimal.Decimal `gorm:"type:decimal(18,4);column:zomato_pg_charge"`
	ZomatoZomatoFeeTax      decimal.Decimal `gorm:"type:decimal(18,4);column:zomato_zomato_fee_tax"`
	ZomatoTDSAmount         decimal.Decimal `gorm:"type:decimal(18,4);column:zomato_tds_amount"`
	ZomatoFinalAmount       decimal.Decimal `gorm:"type:decimal(18,4)"`

	CalculatedCommissionValue decimal.Decimal `gorm:"type:decimal(18,4)"`
	CalculatedPGAppliedOn     decimal.Decimal `gorm:"type:decimal(18,4);column:calculated_pg_applied_on"`
	CalculatedPGCharge        decimal.Decimal `gorm:"type:decimal(18,4);column:calculated_pg_charge"`
	CalculatedZomatoFeeTax    decimal.Decimal `gorm:"type:decimal(18,4)"`
	CalculatedTDSAmount       decimal.Decimal `gorm:"type:decimal(18,4);column:calculated_tds_amount"`
	CalculatedFinalAmount     decimal.Decimal `gorm:"type:decimal(18,4)"`

	PosVsZomatoGrossAmountDelta       decimal.Decimal `gorm:"type:decimal(18,4)"`
	ZomatoVsPosGrossAmountDelta       decimal.Decimal `gorm:"type:decimal(18,4)"`
	PosVsZomatoNetAmountDelta         decimal.Decimal `gorm:"type:decimal(18,4)"`
	ZomatoVsPosNetAmountDelta         decimal.Decimal `gorm:"type:decimal(18,4)"`
	PosVsZomatoTaxPaidByCustomerDelta decimal.Decimal `gorm:"type:decimal(18,4)"`
	ZomatoVsPosTaxPaidByCustomerDelta decimal.Decimal `gorm:"type:decimal(18,4)"`
	PosVsZomatoCommissionValueDelta   decimal.Decimal `gorm:"type:decimal(18,4)"`
	ZomatoVsPosCommissionValueDelta   decimal.Decimal `gorm:"type:decimal(18,4)"`
	PosVsZomatoPGAppliedOnDelta       decimal.Decimal `gorm:"type:decimal(18,4);column:pos_vs_zomato_pg_applied_on_delta"`
	ZomatoVsPosPGAppliedOnDelta       decimal.Decimal `gorm:"type:decimal(18,4);column:zomato_vs_pos_pg_applied_on_delta"`
	PosVsZomatoPGChargeDelta          decimal.Decimal `gorm:"type:decimal(18,4);column:pos_vs_zomato_pg_charge_delta"`
	ZomatoVsPosPGChargeDelta          decimal.Decimal `gorm:"type:decimal(18,4);column:zomato_vs_pos_pg_charge_delta"`
	PosVsZomatoZomatoFeeTaxDelta      decimal.Decimal `gorm:"type:decimal(18,4)"`
	ZomatoVsPosZomatoFeeTaxDelta      decimal.Decimal `gorm:"type:decimal(18,4)"`
	PosVsZomatoTDSAmountDelta         decimal.Decimal `gorm:"type:decimal(18,4);column:pos_vs_zomato_tds_amount_delta"`
	ZomatoVsPosTDSAmountDelta         decimal.Decimal `gorm:"type:decimal(18,4);column:zomato_vs_pos_tds_amount_delta"`
	PosVsZomatoFinalAmountDelta       decimal.Decimal `gorm:"type:decimal(18,4)"`
	ZomatoVsPosFinalAmountDelta       decimal.Decimal `gorm:"type:decimal(18,4)"`

	ReconciliationStatus ReconciliationStatus `gorm:"size:16;index;default:PENDING"`
	ReconciledAmount     decimal.Decimal      `gorm:"type:decimal(18,4)"`
	UnreconciledAmount   decimal.Decimal      `gorm:"type:decimal(18,4)"`
	PosVsZomatoReasons   string               `gorm:"size:1024"`
	ZomatoVsPosReasons   string               `gorm:"size:1024"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the GORM table name
func (UnifiedComparisonRecord) TableName() string { return "unified_comparison_records" }

// sourceField returns a pointer to the pos_* or zomato_* column backing a
// paired field, or nil for an unknown field name.
func (r *UnifiedComparisonRecord) sourceField(source DataSource, field string) *decimal.Decimal {
	switch source {
	case SourcePOS:
		switch field {
		case "gross_amount":
			return &r.PosGrossAmount
		case "net_amount":
			return &r.PosNetAmount
		case "tax_paid_by_customer":
			return &r.PosTaxPaidByCustomer
		case "commission_value":
			return &r.PosCommissionValue
		case "pg_applied_on":
			return &r.PosPGAppliedOn
		case "pg_charge":
			return &r.PosPGCharge
		case "zomato_fee_tax":
			return &r.PosZomatoFeeTax
		case "tds_amount":
			return &r.PosTDSAmount
		case "final_amount":
			return &r.PosFinalAmount
		}
	case SourceZomato:
		switch field {
		case "gross_amount":
			return &r.ZomatoGrossAmount
		case "net_amount":
			return &r.ZomatoNetAmount
		case "tax_paid_by_customer":
			return &r.ZomatoTaxPaidByCustomer
		case "commission_value":
			return &r.ZomatoCommissionValue
		case "pg_applied_on":
			return &r.ZomatoPGAppliedOn
		case "pg_charge":
			return &r.ZomatoPGCharge
		case "zomato_fee_tax":
			return &r.ZomatoZomatoFeeTax
		case "tds_amount":
			return &r.ZomatoTDSAmount
		case "final_amount":
			return &r.ZomatoFinalAmount
		}
	}
	return nil
}

// SourceValue returns the value of a paired field for one source.
func (r *UnifiedComparisonRecord) SourceValue(source DataSource, field string) decimal.Decimal {
	if p := r.sourceField(source, field); p != nil {
		return *p
	}
	return decimal.Zero
}

// SetSourceValue sets a paired field for one source. Unknown fields are
// ignored so a formula set may carry names the unified table does not hold.
func (r *UnifiedComparisonRecord) SetSourceValue(source DataSource, field string, v decimal.Decimal) {
	if p := r.sourceField(source, field); p != nil {
		*p = v
	}
}

func (r *UnifiedComparisonRecord) calculatedField(field string) *decimal.Decimal {
	switch field {
	case "commission_value":
		return &r.CalculatedCommissionValue
	case "pg_applied_on":
		return &r.CalculatedPGAppliedOn
	case "pg_charge":
		return &r.CalculatedPGCharge
	case "zomato_fee_tax":
		return &r.CalculatedZomatoFeeTax
	case "tds_amount":
		return &r.CalculatedTDSAmount
	case "final_amount":
		return &r.CalculatedFinalAmount
	}
	return nil
}

// CalculatedValue returns a calculated_* shadow field value.
func (r *UnifiedComparisonRecord) CalculatedValue(field string) decimal.Decimal {
	if p := r.calculatedField(field); p != nil {
		return *p
	}
	return decimal.Zero
}

// SetCalculatedValue sets a calculated_* shadow field. Unknown fields are
// ignored.
func (r *UnifiedComparisonRecord) SetCalculatedValue(field string, v decimal.Decimal) {
	if p := r.calculatedField(field); p != nil {
		*p = v
	}
}

func (r *UnifiedComparisonRecord) deltaFields(field string) (posVsZomato, zomatoVsPos *decimal.Decimal) {
	switch field {
	case "gross_amount":
		return &r.PosVsZomatoGrossAmountDelta, &r.ZomatoVsPosGrossAmountDelta
	case "net_amount":
		return &r.PosVsZomatoNetAmountDelta, &r.ZomatoVsPosNetAmountDelta
	case "tax_paid_by_customer":
		return &r.PosVsZomatoTaxPaidByCustomerDelta, &r.ZomatoVsPosTaxPaidByCustomerDelta
	case "commission_value":
		return &r.PosVsZomatoCommissionValueDelta, &r.ZomatoVsPosCommissionValueDelta
	case "pg_applied_on":
		return &r.PosVsZomatoPGAppliedOnDelta, &r.ZomatoVsPosPGAppliedOnDelta
	case "pg_charge":
		return &r.PosVsZomatoPGChargeDelta, &r.ZomatoVsPosPGChargeDelta
	case "zomato_fee_tax":
		return &r.PosVsZomatoZomatoFeeTaxDelta, &r.ZomatoVsPosZomatoFeeTaxDelta
	case "tds_amount":
		return &r.PosVsZomatoTDSAmountDelta, &r.ZomatoVsPosTDSAmountDelta
	case "final_amount":
		return &r.PosVsZomatoFinalAmountDelta, &r.ZomatoVsPosFinalAmountDelta
	}
	return nil, nil
}

// Delta returns the pos-vs-zomato and zomato-vs-pos deltas for a paired
// field.
func (r *UnifiedComparisonRecord) Delta(field string) (posVsZomato, zomatoVsPos decimal.Decimal) {
	p, z := r.deltaFields(field)
	if p == nil {
		return decimal.Zero, decimal.Zero
	}
	return *p, *z
}

// SetDelta stores both directions of a paired field's delta.
func (r *UnifiedComparisonRecord) SetDelta(field string, posVsZomato, zomatoVsPos decimal.Decimal) {
	p, z := r.deltaFields(field)
	if p == nil {
		return
	}
	*p = posVsZomato
	*z = zomatoVsPos
}

// PosAssignColumns lists the columns the POS summarization pass owns. Used
// as the conflict-update column set so an upsert never clobbers the
// aggregator side of an existing row.
func PosAssignColumns() []string {
	return []string{
		"pos_order_id", "pos_store_code", "pos_order_date",
		"pos_gross_amount", "pos_net_amount", "pos_tax_paid_by_customer",
		"pos_commission_value", "pos_pg_applied_on", "pos_pg_charge",
		"pos_zomato_fee_tax", "pos_tds_amount", "pos_final_amount",
		"updated_at",
	}
}

// ZomatoAssignColumns lists the columns the aggregator summarization pass
// owns, including the calculated shadows.
func ZomatoAssignColumns() []string {
	return []string{
		"zomato_order_id", "zomato_store_code", "zomato_order_date",
		"utr_number", "utr_date",
		"zomato_gross_amount", "zomato_net_amount", "zomato_tax_paid_by_customer",
		"zomato_commission_value", "zomato_pg_applied_on", "zomato_pg_charge",
		"zomato_zomato_fee_tax", "zomato_tds_amount", "zomato_final_amount",
		"calculated_commission_value", "calculated_pg_applied_on", "calculated_pg_charge",
		"calculated_zomato_fee_tax", "calculated_tds_amount", "calculated_final_amount",
		"updated_at",
	}
}

// DeltaColumns lists the bidirectional delta columns the delta calculator
// writes back.
func DeltaColumns() []string {
	return []string{
		"pos_vs_zomato_gross_amount_delta", "zomato_vs_pos_gross_amount_delta",
		"pos_vs_zomato_net_amount_delta", "zomato_vs_pos_net_amount_delta",
		"pos_vs_zomato_tax_paid_by_customer_delta", "zomato_vs_pos_tax_paid_by_customer_delta",
		"pos_vs_zomato_commission_value_delta", "zomato_vs_pos_commission_value_delta",
		"pos_vs_zomato_pg_applied_on_delta", "zomato_vs_pos_pg_applied_on_delta",
		"pos_vs_zomato_pg_charge_delta", "zomato_vs_pos_pg_charge_delta",
		"pos_vs_zomato_zomato_fee_tax_delta", "zomato_vs_pos_zomato_fee_tax_delta",
		"pos_vs_zomato_tds_amount_delta", "zomato_vs_pos_tds_amount_delta",
		"pos_vs_zomato_final_amount_delta", "zomato_vs_pos_final_amount_delta",
		"updated_at",
	}
}

// ClassificationColumns lists the columns the classifier writes back.
func ClassificationColumns() []string {
	return []string{
		"reconciliation_status", "reconciled_amount", "unreconciled_amount",
		"pos_vs_zomato_reasons", "zomato_vs_pos_reasons", "updated_at",
	}
}
