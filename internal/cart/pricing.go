package cart

import "github.com/shopspring/decimal"

// Pricing 运费规则：小计达到 FreeShippingThreshold 免运费，否则收取固定 ShippingFee。
type Pricing struct {
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// DefaultPricing 运费 15，满 299 包邮。
func DefaultPricing() Pricing {
	return Pricing{
		ShippingFee:           decimal.NewFromInt(15),
		FreeShippingThreshold: decimal.NewFromInt(299),
	}
}

// Shipping 按小计计算运费。空购物车同样按固定运费计算，是否展示由调用方决定。
func (p Pricing) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.ShippingFee
}
