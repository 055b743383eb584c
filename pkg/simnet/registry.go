package simnet

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/futurestrader/pkg/exchange"
)

// Symbol statuses as exchangeInfo reports them
const (
	StatusTrading  = exchange.StatusTrading
	StatusBreak    = "BREAK"
	StatusSettling = "SETTLING"
	StatusSettled  = "SETTLED"
)

// ParseStatus checks s is a known symbol status.
func ParseStatus(s string) (string, error) {
	switch s {
	case StatusTrading, StatusBreak, StatusSettling, StatusSettled:
		return s, nil
	}
	return "", fmt.Errorf("unknown symbol status %q", s)
}

// Symbol is one listed contract.
type Symbol struct {
	Name       string
	BaseAsset  string
	QuoteAsset string
	Status     string
	MarkPrice  decimal.Decimal
}

func (s Symbol) info() exchange.SymbolInfo {
	return exchange.SymbolInfo{
		Symbol:     s.Name,
		Status:     s.Status,
		BaseAsset:  s.BaseAsset,
		QuoteAsset: s.QuoteAsset,
	}
}

// Registry holds the listed symbols. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	symbols map[string]*Symbol
}

func NewRegistry() *Registry {
	return &Registry{symbols: make(map[string]*Symbol)}
}

// Register lists s. Listing the same name twice is an error.
func (r *Registry) Register(s Symbol) error {
	if _, err := ParseStatus(s.Status); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.symbols[s.Name]; exists {
		return fmt.Errorf("symbol %s already registered", s.Name)
	}
	r.symbols[s.Name] = &s
	return nil
}

// Get returns a copy of the named symbol.
func (r *Registry) Get(name string) (Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.symbols[name]
	if !ok {
		return Symbol{}, false
	}
	return *s, true
}

// List returns every symbol ordered by name.
func (r *Registry) List() []Symbol {
	r.mu.RLock()
	out := make([]Symbol, 0, len(r.symbols))
	for _, s := range r.symbols {
		out = append(out, *s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetStatus moves a symbol to status. SETTLED is terminal.
func (r *Registry) SetStatus(name, status string) error {
	if _, err := ParseStatus(status); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.symbols[name]
	if !ok {
		return fmt.Errorf("symbol %s not found", name)
	}
	if s.Status == StatusSettled {
		return fmt.Errorf("symbol %s is settled", name)
	}
	s.Status = status
	return nil
}

func (r *Registry) SetMarkPrice(name string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("mark price must be positive")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.symbols[name]
	if !ok {
		return fmt.Errorf("symbol %s not found", name)
	}
	s.MarkPrice = price
	return nil
}
