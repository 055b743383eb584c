package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/futurestrader/pkg/order"
)

// Market executes immediately at the prevailing price; it never carries a price.
type Market struct{}

func (Market) OrderType() string { return "MARKET" }

func (Market) ValidateParameters(params map[string]any) error {
	if _, ok := params[order.ParamPrice]; ok {
		return paramErrorf("market orders don't accept a price parameter; use a limit order for a specific price")
	}
	return nil
}

func (m Market) PrepareOrderData(symbol string, side order.Side, qty decimal.Decimal, params map[string]any) (order.Payload, error) {
	if err := m.ValidateParameters(params); err != nil {
		return nil, err
	}
	return basePayload(symbol, side, qty, m.OrderType()), nil
}
