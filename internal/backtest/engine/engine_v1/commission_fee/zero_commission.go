package commission_fee

// ZeroCommissionFee implements CommissionFee interface with zero commission.
type ZeroCommissionFee struct{}

// NewZeroCommissionFee creates a new zero commission fee.
func NewZeroCommissionFee() CommissionFee {
	return &ZeroCommissionFee{}
}

func (c *ZeroCommissionFee) BuyRate() float64 {
	return 0
}

func (c *ZeroCommissionFee) SellRate() float64 {
	return 0
}

// BuyCost returns notional unchanged.
func (c *ZeroCommissionFee) BuyCost(notional float64) float64 {
	return notional
}

// SellProceeds returns notional unchanged.
func (c *ZeroCommissionFee) SellProceeds(notional float64) float64 {
	return notional
}
