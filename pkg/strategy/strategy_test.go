package strategy

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/futurestrader/pkg/order"
)

func TestNew(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"market", "MARKET"},
		{"limit", "LIMIT"},
		{"  LIMIT ", "LIMIT"},
		{"Market", "MARKET"},
	}
	for _, tt := range tests {
		s, err := New(tt.in)
		if err != nil {
			t.Fatalf("New(%q): %v", tt.in, err)
		}
		if s.OrderType() != tt.want {
			t.Errorf("New(%q).OrderType() = %s, want %s", tt.in, s.OrderType(), tt.want)
		}
	}
}

func TestNew_Unsupported(t *testing.T) {
	_, err := New("stop_loss")
	var perr *ParameterError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParameterError, got %v", err)
	}
	if !strings.Contains(err.Error(), "market, limit") {
		t.Errorf("error should list supported types: %q", err)
	}
}

func TestSupportedTypes(t *testing.T) {
	got := SupportedTypes()
	if len(got) != 2 || got[0] != "market" || got[1] != "limit" {
		t.Errorf("SupportedTypes() = %v", got)
	}
	if !IsSupported("limit") || IsSupported("stop") {
		t.Error("IsSupported mismatch")
	}
}

func TestMarket_PrepareOrderData(t *testing.T) {
	p, err := Market{}.PrepareOrderData("btcusdt", order.Buy, decimal.RequireFromString("0.001"), nil)
	if err != nil {
		t.Fatalf("PrepareOrderData: %v", err)
	}
	want := order.Payload{
		"symbol":   "BTCUSDT",
		"side":     "BUY",
		"type":     "MARKET",
		"quantity": "0.001",
	}
	if len(p) != len(want) {
		t.Fatalf("payload = %v, want %v", p, want)
	}
	for k, v := range want {
		if p[k] != v {
			t.Errorf("payload[%s] = %q, want %q", k, p[k], v)
		}
	}
	if p.Has(order.KeyPrice) || p.Has(order.KeyTimeInForce) {
		t.Error("market payload must not carry price or timeInForce")
	}
}

func TestMarket_RejectsPrice(t *testing.T) {
	params := map[string]any{"price": "100"}
	if err := (Market{}).ValidateParameters(params); err == nil {
		t.Fatal("expected error for price on market order")
	}
	_, err := Market{}.PrepareOrderData("BTCUSDT", order.Sell, decimal.NewFromInt(1), params)
	var perr *ParameterError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParameterError, got %v", err)
	}
}

func TestLimit_PrepareOrderData(t *testing.T) {
	params := map[string]any{"price": decimal.RequireFromString("3000.12345678")}
	p, err := Limit{}.PrepareOrderData("ethusdt", order.Sell, decimal.RequireFromString("0.1"), params)
	if err != nil {
		t.Fatalf("PrepareOrderData: %v", err)
	}
	checks := map[string]string{
		"symbol":      "ETHUSDT",
		"side":        "SELL",
		"type":        "LIMIT",
		"quantity":    "0.1",
		"price":       "3000.12345678",
		"timeInForce": "GTC",
	}
	for k, v := range checks {
		if p[k] != v {
			t.Errorf("payload[%s] = %q, want %q", k, p[k], v)
		}
	}
}

func TestLimit_PriceFromText(t *testing.T) {
	p, err := Limit{}.PrepareOrderData("ETHUSDT", order.Buy, decimal.NewFromInt(2), map[string]any{"price": "2500.50"})
	if err != nil {
		t.Fatalf("PrepareOrderData: %v", err)
	}
	if p["price"] != "2500.5" {
		t.Errorf("price = %q, want 2500.5", p["price"])
	}
}

func TestLimit_InvalidPrice(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"missing", map[string]any{}},
		{"nil map", nil},
		{"not a number", map[string]any{"price": "abc"}},
		{"zero", map[string]any{"price": "0"}},
		{"negative", map[string]any{"price": -5.5}},
		{"wrong type", map[string]any{"price": []int{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Limit{}.PrepareOrderData("BTCUSDT", order.Buy, decimal.NewFromInt(1), tt.params)
			var perr *ParameterError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParameterError, got %v", err)
			}
		})
	}
}
