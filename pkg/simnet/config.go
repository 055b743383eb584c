// Package simnet is a local stand-in for the futures exchange REST API. It
// keeps a symbol registry and a decimal ledger in memory, checks request
// signatures the way the real venue does and can inject failures, so the
// client can be exercised end to end without network access.
package simnet

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is read from YAML.
type Config struct {
	Listen         string            `yaml:"listen"`
	APIKey         string            `yaml:"api_key"`
	APISecret      string            `yaml:"api_secret"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	Symbols        []SymbolConfig    `yaml:"symbols"`
	Balances       map[string]string `yaml:"balances"`   // asset -> starting wallet balance
	FillAfter      time.Duration     `yaml:"fill_after"` // resting limit orders fill after this; 0 leaves them NEW
	Faults         Faults            `yaml:"faults"`
}

type SymbolConfig struct {
	Symbol    string `yaml:"symbol"`
	Base      string `yaml:"base"`
	Quote     string `yaml:"quote"`
	Status    string `yaml:"status"`
	MarkPrice string `yaml:"mark_price"`
}

// Faults makes the order endpoint fail before it does any work.
type Faults struct {
	// FailFirst order requests are answered with FailStatus and no error code.
	FailFirst  int `yaml:"fail_first"`
	FailStatus int `yaml:"fail_status"`
	// RateLimitFirst order requests after those are answered with HTTP 429, code -1003.
	RateLimitFirst int `yaml:"rate_limit_first"`
}

func DefaultConfig() Config {
	return Config{
		Listen:         ":8090",
		APIKey:         "simnet-key",
		APISecret:      "simnet-secret",
		AllowedOrigins: []string{"http://localhost:3000"},
		Symbols: []SymbolConfig{
			{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Status: StatusTrading, MarkPrice: "65000"},
			{Symbol: "ETHUSDT", Base: "ETH", Quote: "USDT", Status: StatusTrading, MarkPrice: "3200"},
			{Symbol: "SOLUSDT", Base: "SOL", Quote: "USDT", Status: StatusTrading, MarkPrice: "150"},
			{Symbol: "BTCDOMUSDT", Base: "BTCDOM", Quote: "USDT", Status: StatusBreak, MarkPrice: "1500"},
		},
		Balances: map[string]string{
			"USDT": "10000",
			"BNB":  "0",
		},
	}
}

// LoadConfig reads path and fills anything it leaves out from DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read simnet config: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse simnet config %s: %w", path, err)
	}

	if file.Listen != "" {
		cfg.Listen = file.Listen
	}
	if file.APIKey != "" {
		cfg.APIKey = file.APIKey
	}
	if file.APISecret != "" {
		cfg.APISecret = file.APISecret
	}
	if len(file.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = file.AllowedOrigins
	}
	if len(file.Symbols) > 0 {
		cfg.Symbols = file.Symbols
	}
	if len(file.Balances) > 0 {
		cfg.Balances = file.Balances
	}
	cfg.FillAfter = file.FillAfter
	cfg.Faults = file.Faults

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.APIKey == "" || c.APISecret == "" {
		return fmt.Errorf("simnet: api_key and api_secret are required")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("simnet: at least one symbol is required")
	}
	for _, s := range c.Symbols {
		if s.Symbol == "" || s.Quote == "" {
			return fmt.Errorf("simnet: symbol entries need symbol and quote")
		}
		if _, err := ParseStatus(s.Status); err != nil {
			return fmt.Errorf("simnet: symbol %s: %w", s.Symbol, err)
		}
		mark, err := decimal.NewFromString(s.MarkPrice)
		if err != nil || !mark.IsPositive() {
			return fmt.Errorf("simnet: symbol %s: mark_price must be a positive number", s.Symbol)
		}
	}
	for asset, amount := range c.Balances {
		d, err := decimal.NewFromString(amount)
		if err != nil || d.IsNegative() {
			return fmt.Errorf("simnet: balance for %s must be a non-negative number", asset)
		}
	}
	if c.Faults.FailFirst > 0 && (c.Faults.FailStatus < 400 || c.Faults.FailStatus > 599) {
		return fmt.Errorf("simnet: fail_status must be an HTTP error status, got %d", c.Faults.FailStatus)
	}
	if c.FillAfter < 0 {
		return fmt.Errorf("simnet: fill_after must not be negative")
	}
	return nil
}
