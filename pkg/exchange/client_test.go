package exchange_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/uhyunpark/futurestrader/pkg/exchange"
	"github.com/uhyunpark/futurestrader/pkg/order"
	"github.com/uhyunpark/futurestrader/pkg/simnet"
	"github.com/uhyunpark/futurestrader/pkg/util"
)

var testNow = time.UnixMilli(1700000000000)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time                         { return c.now }
func (c fixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func startSimnet(t *testing.T, mutate func(*simnet.Config)) (*simnet.Server, *httptest.Server) {
	t.Helper()
	cfg := simnet.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := simnet.NewServer(cfg, nil, simnet.WithClock(fixedClock{testNow}))
	if err != nil {
		t.Fatalf("simnet: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func newClient(t *testing.T, ts *httptest.Server, key, secret string, opts ...exchange.Option) *exchange.Client {
	t.Helper()
	cfg := exchange.DefaultConfig()
	cfg.APIKey, cfg.APISecret = key, secret
	cfg.BaseURL = ts.URL
	cfg.RateLimit = 0
	opts = append([]exchange.Option{exchange.WithClock(fixedClock{testNow}), exchange.WithHTTPClient(ts.Client())}, opts...)
	c, err := exchange.New(cfg, nil, opts...)
	if err != nil {
		t.Fatalf("exchange.New: %v", err)
	}
	return c
}

func simClient(t *testing.T, mutate func(*simnet.Config), opts ...exchange.Option) (*exchange.Client, *simnet.Server, *httptest.Server) {
	t.Helper()
	srv, ts := startSimnet(t, mutate)
	def := simnet.DefaultConfig()
	return newClient(t, ts, def.APIKey, def.APISecret, opts...), srv, ts
}

func TestSign(t *testing.T) {
	// reference vector from the exchange API documentation
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
	if got := exchange.Sign(secret, payload); got != want {
		t.Errorf("Sign = %s, want %s", got, want)
	}
	if !exchange.VerifySignature(secret, payload, want) {
		t.Error("VerifySignature rejected a valid signature")
	}
	if exchange.VerifySignature(secret, payload+"0", want) || exchange.VerifySignature(secret, payload, "zz") {
		t.Error("VerifySignature accepted a bad signature")
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := exchange.New(exchange.Config{APIKey: "k"}, nil); err == nil {
		t.Error("New without secret should fail")
	}
}

func TestInfo(t *testing.T) {
	cfg := exchange.DefaultConfig()
	cfg.APIKey, cfg.APISecret = "k", "s"
	c, err := exchange.New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if info := c.Info(); !info.Testnet || info.BaseURL != exchange.TestnetBaseURL {
		t.Errorf("Info = %+v", info)
	}
	cfg.Testnet = false
	c, _ = exchange.New(cfg, nil)
	if info := c.Info(); info.Testnet || info.BaseURL != exchange.LiveBaseURL {
		t.Errorf("Info = %+v", info)
	}
}

func TestClient_PublicCalls(t *testing.T) {
	c, _, _ := simClient(t, nil)
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	symbols, err := c.GetExchangeInfo(ctx)
	if err != nil {
		t.Fatalf("GetExchangeInfo: %v", err)
	}
	if len(symbols) != 4 {
		t.Errorf("symbols = %d, want 4", len(symbols))
	}

	info, err := c.GetSymbolInfo(ctx, "ethusdt")
	if err != nil || info == nil || info.Status != exchange.StatusTrading || info.QuoteAsset != "USDT" {
		t.Errorf("GetSymbolInfo(ethusdt) = %+v, %v", info, err)
	}
	info, err = c.GetSymbolInfo(ctx, "DOGEUSDT")
	if err != nil || info != nil {
		t.Errorf("GetSymbolInfo(DOGEUSDT) = %+v, %v; want nil, nil", info, err)
	}
}

func TestClient_AccountBalanceSkipsZero(t *testing.T) {
	c, _, _ := simClient(t, nil)
	bals, err := c.GetAccountBalance(context.Background())
	if err != nil {
		t.Fatalf("GetAccountBalance: %v", err)
	}
	if len(bals) != 1 || bals[0].Asset != "USDT" || bals[0].AvailableBalance.String() != "10000" {
		t.Errorf("balances = %+v", bals)
	}
	if err := c.CheckConnectivity(context.Background()); err != nil {
		t.Errorf("CheckConnectivity: %v", err)
	}
}

func TestClient_SignedGetSendsSignatureLast(t *testing.T) {
	var rawQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		w.Write([]byte(`{"assets":[]}`))
	}))
	defer ts.Close()

	c := newClient(t, ts, "k", "s")
	if _, err := c.GetAccountBalance(context.Background()); err != nil {
		t.Fatalf("GetAccountBalance: %v", err)
	}
	signed, sig, ok := strings.Cut(rawQuery, "&"+exchange.ParamSignature+"=")
	if !ok || strings.Contains(sig, "&") {
		t.Fatalf("query %q: signature is not the last parameter", rawQuery)
	}
	if want := exchange.Sign("s", signed); sig != want {
		t.Errorf("signature %s does not cover %q (want %s)", sig, signed, want)
	}
	if !strings.Contains(signed, exchange.ParamTimestamp+"=1700000000000") || !strings.Contains(signed, exchange.ParamRecvWindow+"=5000") {
		t.Errorf("signed text %q lacks timestamp or recvWindow", signed)
	}
}

func TestClient_PlaceMarketOrder(t *testing.T) {
	c, srv, _ := simClient(t, nil, exchange.WithIDSource(func() string { return "fixed-id" }))
	res, err := c.PlaceOrder(context.Background(), order.Payload{
		order.KeySymbol:   "BTCUSDT",
		order.KeySide:     "BUY",
		order.KeyType:     "MARKET",
		order.KeyQuantity: "0.01",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if res.OrderID == 0 || res.ClientOrderID != "fixed-id" || res.Status != "FILLED" {
		t.Errorf("result = %+v", res)
	}
	if res.Price != nil {
		t.Errorf("market order price = %s, want nil", res.Price)
	}
	if res.Quantity.String() != "0.01" || res.Side != "BUY" || res.Type != "MARKET" {
		t.Errorf("result = %+v", res)
	}
	if !res.Timestamp.Equal(testNow) {
		t.Errorf("timestamp = %v, want %v", res.Timestamp, testNow)
	}
	if len(res.Raw) == 0 {
		t.Error("raw response not kept")
	}
	if _, ok := srv.Venue().Order(res.OrderID); !ok {
		t.Error("venue has no record of the order")
	}
}

func TestClient_PlaceLimitOrderKeepsClientID(t *testing.T) {
	c, _, _ := simClient(t, nil)
	res, err := c.PlaceOrder(context.Background(), order.Payload{
		order.KeySymbol:        "ETHUSDT",
		order.KeySide:          "SELL",
		order.KeyType:          "LIMIT",
		order.KeyQuantity:      "0.5",
		order.KeyPrice:         "3500.25",
		order.KeyTimeInForce:   "GTC",
		order.KeyClientOrderID: "mine",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if res.Status != "NEW" || res.ClientOrderID != "mine" {
		t.Errorf("result = %+v", res)
	}
	if res.Price == nil || res.Price.String() != "3500.25" {
		t.Errorf("price = %v, want 3500.25", res.Price)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	def := simnet.DefaultConfig()
	marketBuy := func(qty string) order.Payload {
		return order.Payload{order.KeySymbol: "BTCUSDT", order.KeySide: "BUY", order.KeyType: "MARKET", order.KeyQuantity: qty}
	}

	t.Run("bad signature is a connection error", func(t *testing.T) {
		_, ts := startSimnet(t, nil)
		c := newClient(t, ts, def.APIKey, "wrong")
		_, err := c.PlaceOrder(context.Background(), marketBuy("0.01"))
		var ce *exchange.ConnectionError
		if !errors.As(err, &ce) {
			t.Fatalf("err = %T %v, want ConnectionError", err, err)
		}
	})

	t.Run("rejected key is an auth error", func(t *testing.T) {
		_, ts := startSimnet(t, nil)
		c := newClient(t, ts, "wrong", def.APISecret)
		_, err := c.PlaceOrder(context.Background(), marketBuy("0.01"))
		var ae *exchange.AuthError
		if !errors.As(err, &ae) || ae.Code != exchange.CodeRejectedAPIKey {
			t.Fatalf("err = %T %v, want AuthError -2015", err, err)
		}
		_, err = c.GetAccountBalance(context.Background())
		if !errors.As(err, &ae) {
			t.Fatalf("balance err = %T %v, want AuthError", err, err)
		}
	})

	t.Run("margin shortfall is an order rejection", func(t *testing.T) {
		c, _, _ := simClient(t, nil)
		_, err := c.PlaceOrder(context.Background(), marketBuy("100"))
		var rej *exchange.OrderRejection
		if !errors.As(err, &rej) || rej.Code != exchange.CodeMarginInsufficient || rej.HTTPStatus != http.StatusBadRequest {
			t.Fatalf("err = %T %v, want OrderRejection -2019", err, err)
		}
	})

	t.Run("unknown symbol is an order rejection", func(t *testing.T) {
		c, _, _ := simClient(t, nil)
		p := marketBuy("1")
		p[order.KeySymbol] = "DOGEUSDT"
		_, err := c.PlaceOrder(context.Background(), p)
		var rej *exchange.OrderRejection
		if !errors.As(err, &rej) || rej.Code != exchange.CodeInvalidSymbol {
			t.Fatalf("err = %T %v, want OrderRejection -1121", err, err)
		}
	})

	t.Run("uncoded 503 is a status error", func(t *testing.T) {
		c, _, _ := simClient(t, func(cfg *simnet.Config) {
			cfg.Faults = simnet.Faults{FailFirst: 1, FailStatus: http.StatusServiceUnavailable}
		})
		_, err := c.PlaceOrder(context.Background(), marketBuy("0.01"))
		var se *exchange.StatusError
		if !errors.As(err, &se) || se.StatusCode() != http.StatusServiceUnavailable {
			t.Fatalf("err = %T %v, want StatusError 503", err, err)
		}
	})

	t.Run("rate limit is an order rejection mentioning it", func(t *testing.T) {
		c, _, _ := simClient(t, func(cfg *simnet.Config) {
			cfg.Faults = simnet.Faults{RateLimitFirst: 1}
		})
		_, err := c.PlaceOrder(context.Background(), marketBuy("0.01"))
		var rej *exchange.OrderRejection
		if !errors.As(err, &rej) || rej.Code != exchange.CodeTooManyRequests || rej.HTTPStatus != http.StatusTooManyRequests {
			t.Fatalf("err = %T %v, want OrderRejection -1003", err, err)
		}
		if !strings.Contains(strings.ToLower(err.Error()), "too many requests") {
			t.Errorf("err = %q", err)
		}
	})
}

func TestClient_RawStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"401 without code", http.StatusUnauthorized, "", func(err error) bool {
			var ae *exchange.AuthError
			return errors.As(err, &ae)
		}},
		{"418 without code", http.StatusTeapot, "no", func(err error) bool {
			var se *exchange.StatusError
			return errors.As(err, &se) && se.StatusCode() == http.StatusTeapot
		}},
		{"clock skew", http.StatusBadRequest, `{"code":-1021,"msg":"Timestamp outside"}`, func(err error) bool {
			var ce *exchange.ConnectionError
			return errors.As(err, &ce)
		}},
		{"key format", http.StatusBadRequest, `{"code":-2014,"msg":"API-key format invalid."}`, func(err error) bool {
			var ae *exchange.AuthError
			return errors.As(err, &ae) && ae.Code == exchange.CodeInvalidAPIKeyFmt
		}},
		{"coded 401", http.StatusUnauthorized, `{"code":-1002,"msg":"unauthorized"}`, func(err error) bool {
			var ae *exchange.AuthError
			return errors.As(err, &ae)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()
			c := newClient(t, ts, "k", "s")
			_, err := c.PlaceOrder(context.Background(), order.Payload{order.KeySymbol: "BTCUSDT"})
			if !tt.check(err) {
				t.Errorf("err = %T %v", err, err)
			}
		})
	}
}

func TestClient_InfoFailuresAreConnectionErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code":-1000,"msg":"An unknown error occurred."}`))
	}))
	defer ts.Close()
	c := newClient(t, ts, "k", "s")

	var ce *exchange.ConnectionError
	if _, err := c.GetExchangeInfo(context.Background()); !errors.As(err, &ce) {
		t.Errorf("GetExchangeInfo err = %T %v", err, err)
	}
	if _, err := c.GetAccountBalance(context.Background()); !errors.As(err, &ce) {
		t.Errorf("GetAccountBalance err = %T %v", err, err)
	}
	if err := c.CheckConnectivity(context.Background()); err == nil {
		t.Error("CheckConnectivity should fail")
	}
}

func TestClient_CancelledContext(t *testing.T) {
	c, _, _ := simClient(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Ping(ctx)
	var ce *exchange.ConnectionError
	if !errors.As(err, &ce) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %T %v, want ConnectionError wrapping context.Canceled", err, err)
	}
}

func TestClient_SubscribeOrderUpdates(t *testing.T) {
	c, srv, ts := simClient(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	updates, err := c.SubscribeOrderUpdates(ctx, wsURL, "solusdt")
	if err != nil {
		t.Fatalf("SubscribeOrderUpdates: %v", err)
	}

	channel := exchange.OrderChannel("SOLUSDT")
	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().Subscribers(channel) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	res, err := c.PlaceOrder(ctx, order.Payload{
		order.KeySymbol: "SOLUSDT", order.KeySide: "BUY", order.KeyType: "MARKET", order.KeyQuantity: "2",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	select {
	case u := <-updates:
		if u.OrderID != res.OrderID || u.Status != "FILLED" || u.FilledQty.String() != "2" || u.AvgPrice.String() != "150" {
			t.Errorf("update = %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no order update received")
	}

	cancel()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("update channel not closed after cancel")
		}
	}
}

func TestClient_LogsUnderAPILoggerName(t *testing.T) {
	_, ts := startSimnet(t, nil)
	def := simnet.DefaultConfig()
	cfg := exchange.DefaultConfig()
	cfg.APIKey, cfg.APISecret, cfg.BaseURL, cfg.RateLimit = def.APIKey, def.APISecret, ts.URL, 0

	core, logs := observer.New(zapcore.DebugLevel)
	c, err := exchange.New(cfg, zap.New(core), exchange.WithClock(fixedClock{testNow}), exchange.WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.CheckConnectivity(context.Background()); err != nil {
		t.Fatalf("CheckConnectivity: %v", err)
	}
	if logs.Len() == 0 {
		t.Fatal("no log entries")
	}
	for _, e := range logs.All() {
		if e.LoggerName != util.APILoggerName {
			t.Errorf("%s logged under %q, want %q", e.Message, e.LoggerName, util.APILoggerName)
		}
	}
}
