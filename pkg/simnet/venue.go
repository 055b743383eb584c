package simnet

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/futurestrader/pkg/exchange"
	"github.com/uhyunpark/futurestrader/pkg/util"
)

// Order statuses
const (
	OrderNew    = "NEW"
	OrderFilled = "FILLED"
)

// Rejection codes the venue answers with, besides those in package exchange
const (
	CodeMandatoryParam    = -1102
	CodeInvalidTIF        = -1115
	CodeInvalidOrderType  = -1116
	CodeInvalidSide       = -1117
	CodePriceNotPositive  = -4001
	CodeDuplicateClientID = -4116
)

// RejectError is an order refused with an exchange error code.
type RejectError struct {
	HTTPStatus int
	Code       int
	Msg        string
}

func (e *RejectError) Error() string { return fmt.Sprintf("code %d: %s", e.Code, e.Msg) }

func reject(code int, format string, args ...any) *RejectError {
	return &RejectError{HTTPStatus: http.StatusBadRequest, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Order is the venue's record of an order, encoded as the order endpoint returns it.
type Order struct {
	OrderID       int64           `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	TimeInForce   string          `json:"timeInForce,omitempty"`
	OrigQty       decimal.Decimal `json:"origQty"`
	Price         decimal.Decimal `json:"price"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	Status        string          `json:"status"`
	UpdateTime    int64           `json:"updateTime"`
}

func (o Order) update() exchange.OrderUpdate {
	return exchange.OrderUpdate{
		Type:      "order",
		OrderID:   o.OrderID,
		Symbol:    o.Symbol,
		Status:    o.Status,
		FilledQty: o.ExecutedQty,
		AvgPrice:  o.AvgPrice,
		Timestamp: o.UpdateTime,
	}
}

// OrderParams is a decoded order request.
type OrderParams struct {
	Symbol        string
	Side          string // BUY | SELL
	Type          string // MARKET | LIMIT
	TimeInForce   string
	Quantity      decimal.Decimal
	Price         decimal.Decimal // zero for market orders
	ClientOrderID string
}

// Venue accepts orders against the registry and ledger. Market orders fill
// immediately at the symbol's mark price; limit orders rest until Fill.
type Venue struct {
	registry  *Registry
	ledger    *Ledger
	clock     util.Clock
	fillAfter time.Duration
	log       *zap.SugaredLogger

	mu        sync.Mutex
	orders    map[int64]*Order
	clientIDs map[string]int64
	nextID    int64
	onUpdate  func(exchange.OrderUpdate)
}

func NewVenue(reg *Registry, ledger *Ledger, clock util.Clock, fillAfter time.Duration, logger *zap.Logger) *Venue {
	return &Venue{
		registry:  reg,
		ledger:    ledger,
		clock:     clock,
		fillAfter: fillAfter,
		log:       util.OrNop(logger).Sugar(),
		orders:    make(map[int64]*Order),
		clientIDs: make(map[string]int64),
		nextID:    1000000,
	}
}

// OnUpdate registers f to be called after every order state change.
func (v *Venue) OnUpdate(f func(exchange.OrderUpdate)) {
	v.mu.Lock()
	v.onUpdate = f
	v.mu.Unlock()
}

func (v *Venue) Registry() *Registry { return v.registry }
func (v *Venue) Ledger() *Ledger     { return v.ledger }

// Place accepts or rejects p. Rejections are *RejectError.
func (v *Venue) Place(p OrderParams) (Order, error) {
	sym, ok := v.registry.Get(p.Symbol)
	if !ok {
		return Order{}, reject(exchange.CodeInvalidSymbol, "Invalid symbol.")
	}
	if sym.Status != StatusTrading {
		return Order{}, reject(exchange.CodeNewOrderRejected, "Symbol %s is not trading (status %s).", sym.Name, sym.Status)
	}

	v.mu.Lock()
	if p.ClientOrderID != "" {
		if _, dup := v.clientIDs[p.ClientOrderID]; dup {
			v.mu.Unlock()
			return Order{}, reject(CodeDuplicateClientID, "ClientOrderId is duplicated.")
		}
	}

	o := &Order{
		OrderID:       v.nextID,
		ClientOrderID: p.ClientOrderID,
		Symbol:        sym.Name,
		Side:          p.Side,
		Type:          p.Type,
		OrigQty:       p.Quantity,
		Status:        OrderNew,
		UpdateTime:    v.clock.Now().UnixMilli(),
	}

	var err error
	switch p.Type {
	case "MARKET":
		err = v.fillMarket(o, sym)
	case "LIMIT":
		o.Price = p.Price
		o.TimeInForce = p.TimeInForce
		if p.Side == "BUY" {
			err = v.ledger.Lock(sym.QuoteAsset, p.Quantity.Mul(p.Price))
		}
	default:
		err = reject(CodeInvalidOrderType, "Invalid orderType.")
	}
	if err != nil {
		v.mu.Unlock()
		if errors.Is(err, ErrInsufficientMargin) {
			return Order{}, reject(exchange.CodeMarginInsufficient, "Margin is insufficient.")
		}
		return Order{}, err
	}

	v.nextID++
	v.orders[o.OrderID] = o
	if o.ClientOrderID != "" {
		v.clientIDs[o.ClientOrderID] = o.OrderID
	}
	placed, notify := *o, v.onUpdate
	v.mu.Unlock()

	v.log.Infow("sim_order_accepted",
		"order_id", placed.OrderID,
		"symbol", placed.Symbol,
		"side", placed.Side,
		"type", placed.Type,
		"quantity", placed.OrigQty.String(),
		"status", placed.Status)

	if notify != nil {
		notify(placed.update())
	}
	if placed.Status == OrderNew && v.fillAfter > 0 {
		id := placed.OrderID
		time.AfterFunc(v.fillAfter, func() {
			if _, err := v.Fill(id); err != nil {
				v.log.Warnw("sim_delayed_fill_failed", "order_id", id, "err", err)
			}
		})
	}
	return placed, nil
}

// fillMarket settles a market order at the mark price. Callers hold v.mu.
func (v *Venue) fillMarket(o *Order, sym Symbol) error {
	notional := o.OrigQty.Mul(sym.MarkPrice)
	if o.Side == "BUY" {
		if err := v.ledger.Debit(sym.QuoteAsset, notional); err != nil {
			return err
		}
	} else {
		v.ledger.Credit(sym.QuoteAsset, notional)
	}
	o.Status = OrderFilled
	o.ExecutedQty = o.OrigQty
	o.AvgPrice = sym.MarkPrice
	return nil
}

// Fill executes a resting limit order in full at its limit price.
func (v *Venue) Fill(id int64) (Order, error) {
	v.mu.Lock()
	o, ok := v.orders[id]
	if !ok {
		v.mu.Unlock()
		return Order{}, fmt.Errorf("order %d not found", id)
	}
	if o.Status != OrderNew {
		v.mu.Unlock()
		return Order{}, fmt.Errorf("order %d is %s", id, o.Status)
	}

	sym, _ := v.registry.Get(o.Symbol)
	notional := o.OrigQty.Mul(o.Price)
	if o.Side == "BUY" {
		v.ledger.SettleLocked(sym.QuoteAsset, notional)
	} else {
		v.ledger.Credit(sym.QuoteAsset, notional)
	}
	o.Status = OrderFilled
	o.ExecutedQty = o.OrigQty
	o.AvgPrice = o.Price
	o.UpdateTime = v.clock.Now().UnixMilli()
	filled, notify := *o, v.onUpdate
	v.mu.Unlock()

	v.log.Infow("sim_order_filled", "order_id", id, "symbol", filled.Symbol, "price", filled.AvgPrice.String())
	if notify != nil {
		notify(filled.update())
	}
	return filled, nil
}

func (v *Venue) Order(id int64) (Order, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}
