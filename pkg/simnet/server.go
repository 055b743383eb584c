package simnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/futurestrader/pkg/exchange"
	"github.com/uhyunpark/futurestrader/pkg/util"
)

// Request validation codes
const (
	CodeIllegalChars     = -1100
	CodeParamNotRequired = -1106
)

const (
	defaultRecvWindow = 5000  // ms
	maxRecvWindow     = 60000 // ms
	maxClockAhead     = 1000  // ms a request may be stamped in the future
	maxBodyBytes      = 1 << 16
)

// Server serves the simulated REST and websocket API.
type Server struct {
	cfg     Config
	venue   *Venue
	hub     *Hub
	metrics *Metrics
	router  *mux.Router
	clock   util.Clock
	log     *zap.SugaredLogger

	hubOnce sync.Once

	faultMu       sync.Mutex
	failLeft      int
	rateLimitLeft int
}

type Option func(*Server)

// WithClock replaces the time source for request timestamps and order times.
func WithClock(c util.Clock) Option { return func(s *Server) { s.clock = c } }

func NewServer(cfg Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = util.OrNop(logger).Named("simnet")
	s := &Server{
		cfg:     cfg,
		metrics: NewMetrics(),
		router:  mux.NewRouter(),
		clock:   util.RealClock{},
		log:     logger.Sugar(),
	}
	for _, o := range opts {
		o(s)
	}

	reg := NewRegistry()
	for _, sc := range cfg.Symbols {
		err := reg.Register(Symbol{
			Name:       strings.ToUpper(sc.Symbol),
			BaseAsset:  sc.Base,
			QuoteAsset: sc.Quote,
			Status:     sc.Status,
			MarkPrice:  decimal.RequireFromString(sc.MarkPrice),
		})
		if err != nil {
			return nil, err
		}
	}
	ledger := NewLedger()
	for asset, amount := range cfg.Balances {
		if err := ledger.Deposit(asset, decimal.RequireFromString(amount)); err != nil {
			return nil, fmt.Errorf("simnet: balance %s: %w", asset, err)
		}
	}

	s.venue = NewVenue(reg, ledger, s.clock, cfg.FillAfter, logger)
	s.hub = NewHub(s.log)
	s.venue.OnUpdate(s.hub.broadcastOrder)
	s.SetFaults(cfg.Faults)

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/fapi").Subrouter()
	api.HandleFunc("/v1/ping", s.handlePing).Methods(http.MethodGet)
	api.HandleFunc("/v1/exchangeInfo", s.handleExchangeInfo).Methods(http.MethodGet)
	api.HandleFunc("/v2/account", s.handleAccount).Methods(http.MethodGet)
	api.HandleFunc("/v1/order", s.handlePlaceOrder).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Handler returns the CORS-wrapped router and starts the websocket hub on
// first use.
func (s *Server) Handler() http.Handler {
	s.hubOnce.Do(func() { go s.hub.Run() })
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", exchange.HeaderAPIKey},
	})
	return c.Handler(s.router)
}

// ListenAndServe serves on cfg.Listen until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Infow("simnet_listening", "addr", s.cfg.Listen, "symbols", len(s.cfg.Symbols))

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close disconnects websocket clients.
func (s *Server) Close() { s.hub.Close() }

func (s *Server) Venue() *Venue     { return s.venue }
func (s *Server) Hub() *Hub         { return s.hub }
func (s *Server) Metrics() *Metrics { return s.metrics }

// SetFaults replaces the pending injected failures.
func (s *Server) SetFaults(f Faults) {
	s.faultMu.Lock()
	s.failLeft = f.FailFirst
	s.rateLimitLeft = f.RateLimitFirst
	s.cfg.Faults = f
	s.faultMu.Unlock()
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, struct{}{})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleExchangeInfo(w http.ResponseWriter, r *http.Request) {
	symbols := s.venue.Registry().List()
	infos := make([]exchange.SymbolInfo, len(symbols))
	for i, sym := range symbols {
		infos[i] = sym.info()
	}
	respondJSON(w, struct {
		Timezone   string                `json:"timezone"`
		ServerTime int64                 `json:"serverTime"`
		Symbols    []exchange.SymbolInfo `json:"symbols"`
	}{"UTC", s.clock.Now().UnixMilli(), infos})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	respondJSON(w, struct {
		CanTrade bool               `json:"canTrade"`
		Assets   []exchange.Balance `json:"assets"`
	}{true, s.venue.Ledger().Balances()})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	values, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if s.injectFault(w) {
		return
	}

	p, rerr := parseOrderParams(values)
	if rerr != nil {
		s.reject(w, rerr)
		return
	}
	o, err := s.venue.Place(p)
	if err != nil {
		var re *RejectError
		if errors.As(err, &re) {
			s.reject(w, re)
			return
		}
		s.log.Errorw("sim_order_failed", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.metrics.orderAccepted(o)
	respondJSON(w, o)
}

// authenticate checks the API key, the HMAC signature over the exact
// request text and the timestamp window. On failure it has already written
// the response.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (url.Values, bool) {
	switch key := r.Header.Get(exchange.HeaderAPIKey); {
	case key == "":
		s.fail(w, http.StatusUnauthorized, exchange.CodeInvalidAPIKeyFmt, "API-key format invalid.")
		return nil, false
	case key != s.cfg.APIKey:
		s.fail(w, http.StatusUnauthorized, exchange.CodeRejectedAPIKey, "Invalid API-key, IP, or permissions for action.")
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, http.StatusBadRequest, CodeIllegalChars, "Unreadable request body.")
		return nil, false
	}
	total := r.URL.RawQuery
	if len(body) > 0 {
		if total != "" {
			total += "&"
		}
		total += string(body)
	}

	values, err := url.ParseQuery(total)
	if err != nil {
		s.fail(w, http.StatusBadRequest, CodeIllegalChars, "Illegal characters found in a parameter.")
		return nil, false
	}
	sig := values.Get(exchange.ParamSignature)
	if sig == "" {
		s.reject(w, missingParam(exchange.ParamSignature))
		return nil, false
	}
	signed := strings.TrimSuffix(total, "&"+exchange.ParamSignature+"="+sig)
	if !exchange.VerifySignature(s.cfg.APISecret, signed, sig) {
		s.fail(w, http.StatusBadRequest, exchange.CodeInvalidSignature, "Signature for this request is not valid.")
		return nil, false
	}

	ts, err := strconv.ParseInt(values.Get(exchange.ParamTimestamp), 10, 64)
	if err != nil {
		s.reject(w, missingParam(exchange.ParamTimestamp))
		return nil, false
	}
	window := int64(defaultRecvWindow)
	if rw := values.Get(exchange.ParamRecvWindow); rw != "" {
		if window, err = strconv.ParseInt(rw, 10, 64); err != nil || window <= 0 || window > maxRecvWindow {
			s.fail(w, http.StatusBadRequest, CodeIllegalChars, "recvWindow must be between 1 and 60000.")
			return nil, false
		}
	}
	now := s.clock.Now().UnixMilli()
	if now-ts > window || ts-now > maxClockAhead {
		s.fail(w, http.StatusBadRequest, exchange.CodeTimestampOutside, "Timestamp for this request is outside of the recvWindow.")
		return nil, false
	}
	return values, true
}

func (s *Server) injectFault(w http.ResponseWriter) bool {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	switch {
	case s.failLeft > 0:
		s.failLeft--
		status := s.cfg.Faults.FailStatus
		s.metrics.faultInjected()
		s.log.Infow("sim_fault_injected", "status", status, "remaining", s.failLeft)
		w.WriteHeader(status)
		io.WriteString(w, http.StatusText(status))
		return true
	case s.rateLimitLeft > 0:
		s.rateLimitLeft--
		s.metrics.faultInjected()
		s.fail(w, http.StatusTooManyRequests, exchange.CodeTooManyRequests,
			"Too many requests; current limit is 1200 requests per minute.")
		return true
	}
	return false
}

func parseOrderParams(v url.Values) (OrderParams, *RejectError) {
	p := OrderParams{
		Symbol:        strings.ToUpper(v.Get("symbol")),
		Side:          v.Get("side"),
		Type:          v.Get("type"),
		TimeInForce:   v.Get("timeInForce"),
		ClientOrderID: v.Get("newClientOrderId"),
	}
	if p.Symbol == "" {
		return p, missingParam("symbol")
	}
	if p.Side != "BUY" && p.Side != "SELL" {
		return p, reject(CodeInvalidSide, "Invalid side.")
	}
	if p.Type != "MARKET" && p.Type != "LIMIT" {
		return p, reject(CodeInvalidOrderType, "Invalid orderType.")
	}

	qty, err := decimal.NewFromString(v.Get("quantity"))
	if err != nil {
		return p, missingParam("quantity")
	}
	if !qty.IsPositive() {
		return p, reject(exchange.CodeInvalidQuantity, "Quantity less than or equal to zero.")
	}
	p.Quantity = qty

	rawPrice := v.Get("price")
	switch p.Type {
	case "MARKET":
		if rawPrice != "" {
			return p, reject(CodeParamNotRequired, "Parameter 'price' sent when not required.")
		}
	case "LIMIT":
		price, err := decimal.NewFromString(rawPrice)
		if err != nil {
			return p, missingParam("price")
		}
		if !price.IsPositive() {
			return p, reject(CodePriceNotPositive, "Price less than or equal to zero.")
		}
		p.Price = price
		switch p.TimeInForce {
		case "":
			return p, missingParam("timeInForce")
		case "GTC", "IOC", "FOK", "GTX":
		default:
			return p, reject(CodeInvalidTIF, "Invalid timeInForce.")
		}
	}
	return p, nil
}

func missingParam(param string) *RejectError {
	return reject(CodeMandatoryParam, "Mandatory parameter '%s' was not sent, was empty/null, or malformed.", param)
}

func (s *Server) reject(w http.ResponseWriter, e *RejectError) {
	s.fail(w, e.HTTPStatus, e.Code, e.Msg)
}

func (s *Server) fail(w http.ResponseWriter, status, code int, msg string) {
	s.metrics.rejected(code)
	s.log.Warnw("sim_request_rejected", "status", status, "code", code, "msg", msg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg})
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
