package formula

import "github.com/shopspring/decimal"

// slab boundaries and the commission rate applied below each boundary. The
// final rate applies to everything at or above the last boundary.
var slabBoundaries = []struct {
	below decimal.Decimal
	rate  decimal.Decimal
}{
	{decimal.NewFromInt(400), decimal.RequireFromString("0.165")},
	{decimal.NewFromInt(450), decimal.RequireFromString("0.1525")},
	{decimal.NewFromInt(500), decimal.RequireFromString("0.145")},
	{decimal.NewFromInt(550), decimal.RequireFromString("0.1375")},
	{decimal.NewFromInt(600), decimal.RequireFromString("0.1325")},
}

var topSlabRate = decimal.RequireFromString("0.1275")

// SlabRate returns the tiered commission rate for an order net amount. The
// brackets are half-open: an amount equal to a boundary falls in the next
// slab.
func SlabRate(netAmount decimal.Decimal) decimal.Decimal {
	for _, slab := range slabBoundaries {
		if netAmount.LessThan(slab.below) {
			return slab.rate
		}
	}
	return topSlabRate
}
