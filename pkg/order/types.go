package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side of an order
type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// Exchange renders the side as the exchange spells it ("BUY"/"SELL").
func (s Side) Exchange() string { return strings.ToUpper(s.String()) }

// ParseSide accepts "buy" or "sell" in any case, surrounded by whitespace.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, true
	case "sell":
		return Sell, true
	}
	return 0, false
}

// Type is the order type name used by the strategy registry ("market", "limit").
type Type string

const (
	Market Type = "market"
	Limit  Type = "limit"
)

// Request is the raw order as typed by the user. Quantity and Price accept
// decimal text, integers, floats or decimal.Decimal (see ParseDecimal).
// A nil Price means no price was supplied.
type Request struct {
	Symbol    string
	Side      string
	Quantity  any
	OrderType string
	Price     any
}

// Validated is an order whose fields passed format, bounds and business checks.
// Fields are unexported so a Validated can only come from NewValidated.
type Validated struct {
	symbol    string
	side      Side
	quantity  decimal.Decimal
	orderType Type
	price     *decimal.Decimal
}

// NewValidated assembles a Validated order. It is meant to be called by the
// validator once every check has passed.
func NewValidated(symbol string, side Side, qty decimal.Decimal, typ Type, price *decimal.Decimal) Validated {
	v := Validated{symbol: symbol, side: side, quantity: qty, orderType: typ}
	if price != nil {
		p := *price
		v.price = &p
	}
	return v
}

func (v Validated) Symbol() string            { return v.symbol }
func (v Validated) Side() Side                { return v.side }
func (v Validated) Quantity() decimal.Decimal { return v.quantity }
func (v Validated) Type() Type                { return v.orderType }

// Price returns the limit price and whether one was supplied.
func (v Validated) Price() (decimal.Decimal, bool) {
	if v.price == nil {
		return decimal.Decimal{}, false
	}
	return *v.price, true
}

// Params returns the strategy-specific parameters carried by the order
// (currently only "price").
func (v Validated) Params() map[string]any {
	params := map[string]any{}
	if v.price != nil {
		params[ParamPrice] = *v.price
	}
	return params
}

// ParamPrice is the extra-parameter key for limit prices.
const ParamPrice = "price"

// Payload is the exchange-ready order, keyed by exchange parameter names.
// Values are exact text; decimals are never rendered through binary floats.
type Payload map[string]string

// Payload keys used by the futures order endpoint
const (
	KeySymbol        = "symbol"
	KeySide          = "side"
	KeyType          = "type"
	KeyQuantity      = "quantity"
	KeyPrice         = "price"
	KeyTimeInForce   = "timeInForce"
	KeyClientOrderID = "newClientOrderId"
)

// Has reports whether key is present in the payload.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}
