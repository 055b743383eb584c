package exchange

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Symbol status reported by exchangeInfo for tradable contracts
const StatusTrading = "TRADING"

// Balance is one asset line of the futures account.
type Balance struct {
	Asset            string          `json:"asset"`
	WalletBalance    decimal.Decimal `json:"walletBalance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
}

// SymbolInfo is the part of exchangeInfo the client consumes.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset,omitempty"`
	QuoteAsset string `json:"quoteAsset,omitempty"`
}

// OrderResult is the standardized response to an order placement.
type OrderResult struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          string
	Type          string
	Quantity      decimal.Decimal
	Price         *decimal.Decimal // nil for market orders
	Status        string
	Timestamp     time.Time
	Raw           json.RawMessage // original body, kept for debugging
}

// OrderUpdate is pushed on the order-update stream when an order changes state.
type OrderUpdate struct {
	Type      string          `json:"type"` // "order"
	OrderID   int64           `json:"orderId"`
	Symbol    string          `json:"symbol"`
	Status    string          `json:"status"`
	FilledQty decimal.Decimal `json:"filledQty"`
	AvgPrice  decimal.Decimal `json:"avgPrice"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
}

// ClientInfo describes which environment the client talks to.
type ClientInfo struct {
	Testnet bool
	BaseURL string
}

// wire types

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type exchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}

type accountResponse struct {
	Assets []Balance `json:"assets"`
}

type orderResponse struct {
	OrderID       int64           `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	OrigQty       decimal.Decimal `json:"origQty"`
	Price         decimal.Decimal `json:"price"`
	Status        string          `json:"status"`
	UpdateTime    int64           `json:"updateTime"`
}

func (r orderResponse) standardize(raw []byte) *OrderResult {
	res := &OrderResult{
		OrderID:       r.OrderID,
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          r.Side,
		Type:          r.Type,
		Quantity:      r.OrigQty,
		Status:        r.Status,
		Timestamp:     time.UnixMilli(r.UpdateTime),
		Raw:           append(json.RawMessage(nil), raw...),
	}
	if r.Price.IsPositive() {
		p := r.Price
		res.Price = &p
	}
	return res
}
