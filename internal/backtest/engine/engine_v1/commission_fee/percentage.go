package commission_fee

// PercentageCommissionFee charges independent fractions on each leg plus a sell-side tax.
type PercentageCommissionFee struct {
	commissionBuy  float64
	commissionSell float64
	taxSell        float64
}

// NewPercentageCommissionFee creates a percentage fee model.
func NewPercentageCommissionFee(commissionBuy, commissionSell, taxSell float64) CommissionFee {
	return &PercentageCommissionFee{
		commissionBuy:  commissionBuy,
		commissionSell: commissionSell,
		taxSell:        taxSell,
	}
}

func (c *PercentageCommissionFee) BuyRate() float64 {
	return c.commissionBuy
}

func (c *PercentageCommissionFee) SellRate() float64 {
	return c.commissionSell + c.taxSell
}

func (c *PercentageCommissionFee) BuyCost(notional float64) float64 {
	return notional * (1 + c.commissionBuy)
}

func (c *PercentageCommissionFee) SellProceeds(notional float64) float64 {
	return notional * (1 - c.commissionSell - c.taxSell)
}
