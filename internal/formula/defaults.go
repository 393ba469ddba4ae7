package formula

import (
	"order-reconciliation-service/internal/models"
)

// DefaultDefinitions returns the hand-maintained formula set for a source,
// used when the formula_definitions table carries no rows for it. Order is
// the declaration order the business rules were written in.
func DefaultDefinitions(source models.DataSource) []Definition {
	switch source {
	case models.SourcePOS:
		return []Definition{
			{Name: "gross_amount", Expression: "BillSubtotal + PackingCharge"},
			{Name: "net_amount", Expression: "BillSubtotal - Discount"},
			{Name: "tax_paid_by_customer", Expression: "GSTCollected"},
			{Name: "commission_value", Expression: "net_amount * slab_rate"},
			{Name: "pg_applied_on", Expression: "net_amount + tax_paid_by_customer"},
			{Name: "pg_charge", Expression: "pg_applied_on * 0.0115"},
			{Name: "zomato_fee_tax", Expression: "(commission_value + pg_charge) * 0.18"},
			{Name: "tds_amount", Expression: "net_amount * 0.01"},
			{Name: "final_amount", Expression: "pg_applied_on - commission_value - pg_charge - zomato_fee_tax - tds_amount"},
		}
	case models.SourceZomato:
		// The aggregator reports its own breakdown; these recompute it
		// from the subtotal so the classifier can self-check the
		// reported figures.
		return []Definition{
			{Name: "commission_value", Expression: "net_amount * slab_rate"},
			{Name: "pg_applied_on", Expression: "net_amount + tax_paid_by_customer"},
			{Name: "pg_charge", Expression: "pg_applied_on * 0.0115"},
			{Name: "zomato_fee_tax", Expression: "(commission_value + pg_charge) * 0.18"},
			{Name: "tds_amount", Expression: "net_amount * 0.01"},
			{Name: "final_amount", Expression: "pg_applied_on - commission_value - pg_charge - zomato_fee_tax - tds_amount"},
		}
	}
	return nil
}

// DefaultFieldMappings returns the static report-column to physical-field
// mappings seeded at migration time.
func DefaultFieldMappings() []models.FieldMapping {
	return []models.FieldMapping{
		{DataSource: models.SourcePOS, ReportColumn: "BillSubtotal", PhysicalField: "bill_subtotal"},
		{DataSource: models.SourcePOS, ReportColumn: "Discount", PhysicalField: "discount_amount"},
		{DataSource: models.SourcePOS, ReportColumn: "PackingCharge", PhysicalField: "packing_charge"},
		{DataSource: models.SourcePOS, ReportColumn: "GSTCollected", PhysicalField: "gst_collected"},
		{DataSource: models.SourceZomato, ReportColumn: "Subtotal", PhysicalField: "net_amount"},
		{DataSource: models.SourceZomato, ReportColumn: "BillTotal", PhysicalField: "gross_amount"},
		{DataSource: models.SourceZomato, ReportColumn: "CustomerTax", PhysicalField: "tax_paid_by_customer"},
		{DataSource: models.SourceZomato, ReportColumn: "Commission", PhysicalField: "commission_value"},
		{DataSource: models.SourceZomato, ReportColumn: "PGAppliedOn", PhysicalField: "pg_applied_on"},
		{DataSource: models.SourceZomato, ReportColumn: "PGCharge", PhysicalField: "pg_charge"},
		{DataSource: models.SourceZomato, ReportColumn: "ServiceFeeTax", PhysicalField: "zomato_fee_tax"},
		{DataSource: models.SourceZomato, ReportColumn: "TDS", PhysicalField: "tds_amount"},
		{DataSource: models.SourceZomato, ReportColumn: "NetPayable", PhysicalField: "final_amount"},
	}
}
