// Package validator turns raw user input into exact, bounded order parameters
// and checks them against the exchange before anything is sent.
package validator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/futurestrader/pkg/exchange"
	"github.com/uhyunpark/futurestrader/pkg/order"
	"github.com/uhyunpark/futurestrader/pkg/strategy"
	"github.com/uhyunpark/futurestrader/pkg/util"
)

// QuoteAsset is the settlement asset balances are checked in.
const QuoteAsset = "USDT"

var (
	MinQuantity = decimal.RequireFromString("0.000001")
	MaxQuantity = decimal.RequireFromString("1000000")
	MaxPrice    = decimal.RequireFromString("10000000")

	// MarketReferencePrice is the conservative per-unit price used to estimate
	// what a market buy will cost; there is no live price feed.
	MarketReferencePrice = decimal.NewFromInt(50000)
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{6,12}$`)

// ValidationError reports input that is malformed, out of range or fails an
// exchange precondition. It is never retried.
type ValidationError struct {
	Msg string
	Err error // underlying cause, if any
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return e.Err }

func invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Exchange is the part of the exchange client the business checks need.
type Exchange interface {
	GetExchangeInfo(ctx context.Context) ([]exchange.SymbolInfo, error)
	GetAccountBalance(ctx context.Context) ([]exchange.Balance, error)
}

// Validator checks orders. The TRADING symbol set is fetched on first use and
// kept for the validator's lifetime; the load is guarded so a validator may be
// shared between goroutines.
type Validator struct {
	ex  Exchange // nil disables business checks
	log *zap.SugaredLogger

	mu      sync.Mutex
	symbols map[string]struct{}
}

// New creates a validator. ex may be nil to validate format and bounds only.
func New(ex Exchange, logger *zap.Logger) *Validator {
	return &Validator{
		ex:  ex,
		log: util.OrNop(logger).Named("validator").Sugar(),
	}
}

// Validate applies every rule in order and fails on the first violation.
func (v *Validator) Validate(ctx context.Context, req order.Request) (order.Validated, error) {
	v.log.Infow("order_validation_started",
		"symbol", req.Symbol,
		"side", req.Side,
		"quantity", fmt.Sprint(req.Quantity),
		"order_type", req.OrderType)

	symbol, err := ValidateSymbol(req.Symbol)
	if err != nil {
		return v.reject(err)
	}
	side, err := ValidateSide(req.Side)
	if err != nil {
		return v.reject(err)
	}
	qty, err := v.validateQuantity(req.Quantity)
	if err != nil {
		return v.reject(err)
	}
	typ, err := ValidateOrderType(req.OrderType)
	if err != nil {
		return v.reject(err)
	}

	var price *decimal.Decimal
	if req.Price != nil {
		p, err := ValidatePrice(req.Price)
		if err != nil {
			return v.reject(err)
		}
		price = &p
	}

	out := order.NewValidated(symbol, side, qty, typ, price)

	if v.ex != nil {
		if err := v.checkSymbolExists(ctx, symbol); err != nil {
			return v.reject(err)
		}
		if err := v.checkBalance(ctx, out); err != nil {
			return v.reject(err)
		}
	}

	v.log.Infow("order_validated", "symbol", symbol, "side", side.String(), "quantity", qty.String(), "order_type", string(typ))
	return out, nil
}

func (v *Validator) reject(err error) (order.Validated, error) {
	v.log.Warnw("order_validation_failed", "err", err.Error())
	return order.Validated{}, err
}

// ValidateSymbol trims and uppercases s and checks the contract name format.
func ValidateSymbol(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", invalidf("symbol cannot be empty")
	}
	if !symbolPattern.MatchString(s) {
		return "", invalidf("invalid symbol format '%s': symbols are 6-12 letters and digits (e.g. BTCUSDT)", s)
	}
	return s, nil
}

func ValidateSide(s string) (order.Side, error) {
	side, ok := order.ParseSide(s)
	if !ok {
		return 0, invalidf("side must be 'buy' or 'sell', got '%s'", strings.TrimSpace(s))
	}
	return side, nil
}

// ValidateQuantity parses q exactly, checks it lies within
// [MinQuantity, MaxQuantity] and truncates it to order.Precision digits.
func ValidateQuantity(q any) (decimal.Decimal, error) {
	d, err := order.ParseDecimal(q)
	if err != nil {
		return decimal.Decimal{}, &ValidationError{Msg: fmt.Sprintf("quantity must be a valid number, got: %v", q), Err: err}
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, invalidf("quantity must be positive")
	}
	if d.GreaterThan(MaxQuantity) {
		return decimal.Decimal{}, invalidf("quantity too large (max: %s)", MaxQuantity)
	}
	if d.LessThan(MinQuantity) {
		return decimal.Decimal{}, invalidf("quantity too small (min: %s)", MinQuantity)
	}
	return order.Truncate(d), nil
}

func (v *Validator) validateQuantity(q any) (decimal.Decimal, error) {
	qty, err := ValidateQuantity(q)
	if err != nil {
		return qty, err
	}
	if orig, perr := order.ParseDecimal(q); perr == nil && !orig.Equal(qty) {
		v.log.Infow("quantity_truncated", "from", orig.String(), "to", qty.String())
	}
	return qty, nil
}

func ValidateOrderType(s string) (order.Type, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	if !strategy.IsSupported(t) {
		return "", invalidf("unsupported order type '%s'. Supported types: %s", t, strings.Join(strategy.SupportedTypes(), ", "))
	}
	return order.Type(t), nil
}

// ValidatePrice parses p exactly, checks 0 < p <= MaxPrice and truncates it.
func ValidatePrice(p any) (decimal.Decimal, error) {
	d, err := order.ParseDecimal(p)
	if err != nil {
		return decimal.Decimal{}, &ValidationError{Msg: fmt.Sprintf("price must be a valid number, got: %v", p), Err: err}
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, invalidf("price must be positive")
	}
	if d.GreaterThan(MaxPrice) {
		return decimal.Decimal{}, invalidf("price too high (max: %s)", MaxPrice)
	}
	return order.Truncate(d), nil
}

func (v *Validator) checkSymbolExists(ctx context.Context, symbol string) error {
	symbols, err := v.tradingSymbols(ctx)
	if err != nil {
		return err
	}
	if _, ok := symbols[symbol]; !ok {
		return invalidf("symbol '%s' is not available for futures trading; check the symbol name", symbol)
	}
	return nil
}

// tradingSymbols loads the TRADING symbol set once. A failed load is not
// cached, so the next validation tries again.
func (v *Validator) tradingSymbols(ctx context.Context) (map[string]struct{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.symbols != nil {
		return v.symbols, nil
	}

	v.log.Info("loading_trading_symbols")
	infos, err := v.ex.GetExchangeInfo(ctx)
	if err != nil {
		v.log.Errorw("load_trading_symbols_failed", "err", err)
		return nil, &ValidationError{
			Msg: fmt.Sprintf("unable to validate symbol against the exchange; check your connection. Error: %v", err),
			Err: err,
		}
	}

	set := make(map[string]struct{}, len(infos))
	for _, s := range infos {
		if s.Status == exchange.StatusTrading {
			set[s.Symbol] = struct{}{}
		}
	}
	v.symbols = set
	v.log.Infow("trading_symbols_loaded", "count", len(set))
	return set, nil
}

// RequiredBalance estimates the quote balance an order consumes.
// Sells need nothing up front; market buys are priced at MarketReferencePrice.
func RequiredBalance(o order.Validated) decimal.Decimal {
	if o.Side() != order.Buy {
		return decimal.Zero
	}
	switch o.Type() {
	case order.Market:
		return o.Quantity().Mul(MarketReferencePrice)
	case order.Limit:
		if price, ok := o.Price(); ok {
			return o.Quantity().Mul(price)
		}
	}
	return decimal.Zero
}

func (v *Validator) checkBalance(ctx context.Context, o order.Validated) error {
	balances, err := v.ex.GetAccountBalance(ctx)
	if err != nil {
		v.log.Errorw("balance_check_failed", "err", err)
		return &ValidationError{Msg: fmt.Sprintf("unable to verify balance: %v", err), Err: err}
	}

	available := decimal.Zero
	for _, b := range balances {
		if b.Asset == QuoteAsset {
			available = b.AvailableBalance
			break
		}
	}

	required := RequiredBalance(o)
	if available.LessThan(required) {
		return invalidf("Insufficient balance. Required: %s %s, Available: %s %s",
			required, QuoteAsset, available, QuoteAsset)
	}

	v.log.Infow("balance_check_passed", "available", available.String(), "required", required.String())
	return nil
}
