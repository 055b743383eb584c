package simnet

import (
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/futurestrader/pkg/exchange"
)

var (
	ErrInsufficientMargin = errors.New("margin is insufficient")
	ErrNegativeAmount     = errors.New("amount must not be negative")
)

type assetBalance struct {
	wallet decimal.Decimal
	locked decimal.Decimal // held by resting buy orders
}

func (b *assetBalance) available() decimal.Decimal { return b.wallet.Sub(b.locked) }

// Ledger tracks the simulated account's per-asset balances.
// Invariant: 0 <= locked <= wallet for every asset.
type Ledger struct {
	mu     sync.Mutex
	assets map[string]*assetBalance
}

func NewLedger() *Ledger {
	return &Ledger{assets: make(map[string]*assetBalance)}
}

func (l *Ledger) get(asset string) *assetBalance {
	b, ok := l.assets[asset]
	if !ok {
		b = &assetBalance{}
		l.assets[asset] = b
	}
	return b
}

func (l *Ledger) Deposit(asset string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(asset)
	b.wallet = b.wallet.Add(amount)
	return nil
}

func (l *Ledger) Available(asset string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(asset).available()
}

// Debit removes amount from the available balance.
func (l *Ledger) Debit(asset string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(asset)
	if b.available().LessThan(amount) {
		return ErrInsufficientMargin
	}
	b.wallet = b.wallet.Sub(amount)
	return nil
}

func (l *Ledger) Credit(asset string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(asset)
	b.wallet = b.wallet.Add(amount)
}

// Lock holds amount for a resting order.
func (l *Ledger) Lock(asset string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(asset)
	if b.available().LessThan(amount) {
		return ErrInsufficientMargin
	}
	b.locked = b.locked.Add(amount)
	return nil
}

// SettleLocked pays out amount previously held with Lock.
func (l *Ledger) SettleLocked(asset string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(asset)
	b.locked = decimal.Max(b.locked.Sub(amount), decimal.Zero)
	b.wallet = b.wallet.Sub(amount)
}

// Balances lists every asset ordered by name.
func (l *Ledger) Balances() []exchange.Balance {
	l.mu.Lock()
	out := make([]exchange.Balance, 0, len(l.assets))
	for asset, b := range l.assets {
		out = append(out, exchange.Balance{
			Asset:            asset,
			WalletBalance:    b.wallet,
			AvailableBalance: b.available(),
		})
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}
