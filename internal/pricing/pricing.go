package pricing

import "github.com/shopspring/decimal"

// Discount types returned by the commerce backend.
const (
	DiscountTypePercentage = "porcentaje"
	DiscountTypeFixed      = "monto_fijo"
)

var hundred = decimal.NewFromInt(100)

// Total returns the payable total after applying the discount, floored at
// zero. Full precision is retained; rounding happens at display time only.
func Total(subtotal, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// DiscountAmount resolves a coupon's discount against the subtotal.
// Unknown discount types resolve to zero.
func DiscountAmount(subtotal decimal.Decimal, discountType string, value decimal.Decimal) decimal.Decimal {
	switch discountType {
	case DiscountTypePercentage:
		return subtotal.Mul(value).Div(hundred)
	case DiscountTypeFixed:
		return value
	default:
		return decimal.Zero
	}
}

// Display formats an amount with two-decimal currency rounding.
func Display(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
