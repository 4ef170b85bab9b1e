package commission_fee

// CommissionFee prices the buy and sell legs of a trade as fractions of notional.
type CommissionFee interface {
	// BuyRate is the commission charged on the buy notional.
	BuyRate() float64
	// SellRate is the commission plus tax charged on the sell notional.
	SellRate() float64
	// BuyCost returns the cash needed to buy notional, commission included.
	BuyCost(notional float64) float64
	// SellProceeds returns the net cash from selling notional after commission and tax.
	SellProceeds(notional float64) float64
}

type Broker string

const (
	BrokerPercentage Broker = "percentage"
	BrokerZero       Broker = "zero_commission"
)

var AllBrokers = []any{
	BrokerPercentage,
	BrokerZero,
}

// GetCommissionFeeHandler returns the fee model of broker. Unknown brokers use the
// percentage model.
func GetCommissionFeeHandler(broker Broker, buy, sell, tax float64) CommissionFee {
	switch broker {
	case BrokerZero:
		return NewZeroCommissionFee()
	case BrokerPercentage:
		return NewPercentageCommissionFee(buy, sell, tax)
	default:
		return NewPercentageCommissionFee(buy, sell, tax)
	}
}
