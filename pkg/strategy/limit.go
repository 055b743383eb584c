package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/futurestrader/pkg/order"
)

// TimeInForceGTC keeps a limit order on the book until filled or cancelled.
const TimeInForceGTC = "GTC"

// Limit executes only at the given price or better.
type Limit struct{}

func (Limit) OrderType() string { return "LIMIT" }

func (Limit) ValidateParameters(params map[string]any) error {
	_, err := limitPrice(params)
	return err
}

func (l Limit) PrepareOrderData(symbol string, side order.Side, qty decimal.Decimal, params map[string]any) (order.Payload, error) {
	price, err := limitPrice(params)
	if err != nil {
		return nil, err
	}
	p := basePayload(symbol, side, qty, l.OrderType())
	p[order.KeyPrice] = price.String()
	p[order.KeyTimeInForce] = TimeInForceGTC
	return p, nil
}

func limitPrice(params map[string]any) (decimal.Decimal, error) {
	raw, ok := params[order.ParamPrice]
	if !ok {
		return decimal.Decimal{}, paramErrorf("limit orders require a 'price' parameter")
	}
	price, err := order.ParseDecimal(raw)
	if err != nil {
		return decimal.Decimal{}, paramErrorf("price must be a valid positive number, got: %v", raw)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, paramErrorf("price must be positive")
	}
	return price, nil
}
