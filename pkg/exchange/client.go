// Package exchange is a REST client for a USDⓈ-M futures exchange API.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uhyunpark/futurestrader/pkg/order"
	"github.com/uhyunpark/futurestrader/pkg/util"
)

const (
	TestnetBaseURL = "https://testnet.binancefuture.com"
	LiveBaseURL    = "https://fapi.binance.com"
)

// REST paths
const (
	PathPing         = "/fapi/v1/ping"
	PathExchangeInfo = "/fapi/v1/exchangeInfo"
	PathAccount      = "/fapi/v2/account"
	PathOrder        = "/fapi/v1/order"
)

// HeaderAPIKey carries the API key on signed requests.
const HeaderAPIKey = "X-MBX-APIKEY"

// Query parameters added to signed requests
const (
	ParamTimestamp  = "timestamp"
	ParamRecvWindow = "recvWindow"
	ParamSignature  = "signature"
)

type Config struct {
	APIKey     string
	APISecret  string
	BaseURL    string // empty selects TestnetBaseURL or LiveBaseURL
	Testnet    bool
	RecvWindow time.Duration
	Timeout    time.Duration
	RateLimit  float64 // requests per second; <= 0 disables throttling
	RateBurst  int
}

func DefaultConfig() Config {
	return Config{
		Testnet:    true,
		RecvWindow: 5 * time.Second,
		Timeout:    10 * time.Second,
		RateLimit:  10,
		RateBurst:  5,
	}
}

func (c Config) baseURL() string {
	switch {
	case c.BaseURL != "":
		return strings.TrimRight(c.BaseURL, "/")
	case c.Testnet:
		return TestnetBaseURL
	default:
		return LiveBaseURL
	}
}

// Client talks to the exchange REST API. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *resty.Client
	limiter *rate.Limiter
	clock   util.Clock
	newID   func() string
	log     *zap.SugaredLogger
}

type Option func(*Client)

// WithClock replaces the time source used for request timestamps.
func WithClock(c util.Clock) Option { return func(cl *Client) { cl.clock = c } }

// WithHTTPClient sends requests through hc (e.g. an httptest server's client).
func WithHTTPClient(hc *http.Client) Option {
	return func(cl *Client) { cl.http = resty.NewWithClient(hc) }
}

// WithIDSource replaces NewClientOrderID for orders that carry no client id.
func WithIDSource(f func() string) Option { return func(cl *Client) { cl.newID = f } }

func New(cfg Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("exchange: API key and secret are required")
	}
	c := &Client{
		cfg:   cfg,
		http:  resty.New(),
		clock: util.RealClock{},
		newID: NewClientOrderID,
		log:   util.OrNop(logger).Named(util.APILoggerName).Sugar(),
	}
	for _, o := range opts {
		o(c)
	}

	c.http.SetBaseURL(cfg.baseURL())
	if cfg.Timeout > 0 {
		c.http.SetTimeout(cfg.Timeout)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(limit, burst)

	c.log.Infow("exchange_client_initialized", "base_url", cfg.baseURL(), "testnet", cfg.Testnet)
	return c, nil
}

// NewClientOrderID returns a fresh client order id. Reusing one id across
// retries of the same order lets the exchange reject duplicates.
func NewClientOrderID() string { return uuid.NewString() }

func (c *Client) Info() ClientInfo {
	return ClientInfo{Testnet: c.cfg.Testnet, BaseURL: c.cfg.baseURL()}
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "ping", http.MethodGet, PathPing, nil, false)
	return err
}

// CheckConnectivity pings the exchange and makes one signed call so bad
// credentials surface before the first order.
func (c *Client) CheckConnectivity(ctx context.Context) error {
	if err := c.Ping(ctx); err != nil {
		c.log.Errorw("connectivity_check_failed", "stage", "ping", "err", err)
		return err
	}
	if _, err := c.GetAccountBalance(ctx); err != nil {
		c.log.Errorw("connectivity_check_failed", "stage", "account", "err", err)
		return err
	}
	c.log.Infow("connectivity_check_passed", "base_url", c.cfg.baseURL())
	return nil
}

// PlaceOrder submits p. A newClientOrderId is generated when p has none.
func (c *Client) PlaceOrder(ctx context.Context, p order.Payload) (*OrderResult, error) {
	params := url.Values{}
	for k, v := range p {
		params.Set(k, v)
	}
	if !p.Has(order.KeyClientOrderID) {
		params.Set(order.KeyClientOrderID, c.newID())
	}

	c.log.Infow("placing_order",
		"symbol", p[order.KeySymbol],
		"side", p[order.KeySide],
		"type", p[order.KeyType],
		"quantity", p[order.KeyQuantity],
		"client_order_id", params.Get(order.KeyClientOrderID))

	body, err := c.do(ctx, "place_order", http.MethodPost, PathOrder, params, true)
	if err != nil {
		c.log.Warnw("order_placement_failed", "symbol", p[order.KeySymbol], "err", err)
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("place_order: decode response: %w", err)
	}
	res := resp.standardize(body)
	c.log.Infow("order_placed",
		"order_id", res.OrderID,
		"symbol", res.Symbol,
		"status", res.Status)
	return res, nil
}

// GetAccountBalance returns the futures wallet balances that are not zero.
func (c *Client) GetAccountBalance(ctx context.Context) ([]Balance, error) {
	body, err := c.do(ctx, "account", http.MethodGet, PathAccount, url.Values{}, true)
	if err != nil {
		return nil, asConnectionError("account", err)
	}
	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ConnectionError{Op: "account", Err: fmt.Errorf("decode response: %w", err)}
	}

	out := make([]Balance, 0, len(resp.Assets))
	for _, b := range resp.Assets {
		if !b.WalletBalance.IsZero() {
			out = append(out, b)
		}
	}
	c.log.Debugw("account_balance_fetched", "assets", len(out))
	return out, nil
}

func (c *Client) GetExchangeInfo(ctx context.Context) ([]SymbolInfo, error) {
	body, err := c.do(ctx, "exchange_info", http.MethodGet, PathExchangeInfo, nil, false)
	if err != nil {
		return nil, asConnectionError("exchange_info", err)
	}
	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ConnectionError{Op: "exchange_info", Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.Symbols, nil
}

// GetSymbolInfo looks symbol up in exchangeInfo. It returns nil, nil when the
// exchange does not list it.
func (c *Client) GetSymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	symbols, err := c.GetExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	for i := range symbols {
		if symbols[i].Symbol == symbol {
			return &symbols[i], nil
		}
	}
	return nil, nil
}

// do sends one request and returns the body of a 2xx response. Failures come
// back as ConnectionError, AuthError, OrderRejection or StatusError.
func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ConnectionError{Op: op, Err: err}
	}

	req := c.http.R().SetContext(ctx)
	query := ""
	if params != nil {
		query = params.Encode()
	}
	if signed {
		params.Set(ParamTimestamp, strconv.FormatInt(c.clock.Now().UnixMilli(), 10))
		if c.cfg.RecvWindow > 0 {
			params.Set(ParamRecvWindow, strconv.FormatInt(c.cfg.RecvWindow.Milliseconds(), 10))
		}
		query = params.Encode()
		query += "&" + ParamSignature + "=" + Sign(c.cfg.APISecret, query)
		req.SetHeader(HeaderAPIKey, c.cfg.APIKey)
	}

	switch method {
	case http.MethodPost:
		req.SetHeader("Content-Type", "application/x-www-form-urlencoded").SetBody(query)
	default:
		// appended verbatim: SetQueryString re-sorts the parameters, moving
		// the signature away from the end of the signed text
		if query != "" {
			path += "?" + query
		}
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, &ConnectionError{Op: op, Err: err}
	}
	if resp.IsSuccess() {
		return resp.Body(), nil
	}
	return nil, mapError(op, resp.StatusCode(), resp.Body())
}

func mapError(op string, status int, body []byte) error {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Code != 0 {
		switch ae.Code {
		case CodeTimestampOutside, CodeInvalidSignature:
			return &ConnectionError{Op: op, Err: fmt.Errorf("code %d: %s", ae.Code, ae.Msg)}
		case CodeInvalidAPIKeyFmt, CodeRejectedAPIKey:
			return &AuthError{Op: op, Code: ae.Code, Message: ae.Msg}
		}
		if status == http.StatusUnauthorized {
			return &AuthError{Op: op, Code: ae.Code, Message: ae.Msg}
		}
		return &OrderRejection{Code: ae.Code, Message: ae.Msg, HTTPStatus: status}
	}
	if status == http.StatusUnauthorized {
		return &AuthError{Op: op, Message: http.StatusText(status)}
	}
	return &StatusError{Op: op, HTTPStatus: status, Body: string(body)}
}

// asConnectionError keeps authentication failures as they are and reports
// everything else as a connection problem.
func asConnectionError(op string, err error) error {
	switch err.(type) {
	case *AuthError, *ConnectionError:
		return err
	}
	return &ConnectionError{Op: op, Err: err}
}
