// Package strategy turns validated order parameters into exchange payloads.
//
// Each supported order type has one Strategy; New picks it from a fixed
// registry keyed by the lowercase type name.
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/futurestrader/pkg/order"
)

// Strategy prepares the exchange payload for one order type.
type Strategy interface {
	// ValidateParameters checks the type-specific extra parameters.
	ValidateParameters(params map[string]any) error
	// PrepareOrderData builds the payload sent to the exchange.
	PrepareOrderData(symbol string, side order.Side, qty decimal.Decimal, params map[string]any) (order.Payload, error)
	// OrderType is the exchange spelling of the type ("MARKET", "LIMIT").
	OrderType() string
}

// ParameterError reports extra parameters that do not fit the order type.
type ParameterError struct {
	Msg string
}

func (e *ParameterError) Error() string { return e.Msg }

func paramErrorf(format string, args ...any) error {
	return &ParameterError{Msg: fmt.Sprintf(format, args...)}
}

var registry = map[order.Type]func() Strategy{
	order.Market: func() Strategy { return Market{} },
	order.Limit:  func() Strategy { return Limit{} },
}

// New returns the strategy registered for orderType.
func New(orderType string) (Strategy, error) {
	key := order.Type(strings.ToLower(strings.TrimSpace(orderType)))
	ctor, ok := registry[key]
	if !ok {
		return nil, paramErrorf("unsupported order type '%s'. Supported types: %s",
			key, strings.Join(SupportedTypes(), ", "))
	}
	return ctor(), nil
}

// SupportedTypes lists the registered order types in a stable order.
func SupportedTypes() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, string(t))
	}
	// "limit" < "market" alphabetically; keep market first as users expect.
	sort.Slice(types, func(i, j int) bool { return types[i] > types[j] })
	return types
}

// IsSupported reports whether orderType (already normalised) has a strategy.
func IsSupported(orderType string) bool {
	_, ok := registry[order.Type(orderType)]
	return ok
}

func basePayload(symbol string, side order.Side, qty decimal.Decimal, typ string) order.Payload {
	return order.Payload{
		order.KeySymbol:   strings.ToUpper(symbol),
		order.KeySide:     side.Exchange(),
		order.KeyType:     typ,
		order.KeyQuantity: qty.String(),
	}
}
